package notifications

import (
	"sort"
	"time"
)

type monthDay struct {
	Month time.Month
	Day   int
}

var holidays = map[string]monthDay{
	"NEW_YEAR":         {time.January, 1},
	"VALENTINES":       {time.February, 14},
	"WOMENS_DAY":       {time.March, 8},
	"INDEPENDENCE_DAY": {time.July, 4},
	"HALLOWEEN":        {time.October, 31},
	"SINGLES_DAY":      {time.November, 11},
	"CHRISTMAS":        {time.December, 25},
	"NEW_YEARS_EVE":    {time.December, 31},
}

// Holidays returns the supported holiday keys in calendar order.
func Holidays() []string {
	keys := make([]string, 0, len(holidays))
	for k := range holidays {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := holidays[keys[i]], holidays[keys[j]]
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		return a.Day < b.Day
	})
	return keys
}

// IsHoliday reports whether key names a supported holiday.
func IsHoliday(key string) bool {
	_, ok := holidays[key]
	return ok
}

// DueOn reports whether the template fires on the calendar date of day.
// Birthday templates are evaluated every day; recipients are filtered by
// BirthdayOn. February 29 anniversaries fire on February 28 in common years.
func (t Template) DueOn(day time.Time) bool {
	switch t.Trigger {
	case TriggerBirthday:
		return true
	case TriggerHoliday:
		h, ok := holidays[t.Holiday]
		return ok && anniversary(h.Month, h.Day, day)
	case TriggerRecurring:
		return anniversary(time.Month(t.Month), t.Day, day)
	case TriggerOneTime:
		return t.OnDate != nil && sameDate(*t.OnDate, day)
	default:
		return false
	}
}

// BirthdayOn reports whether a customer born on birthday celebrates on day.
func BirthdayOn(birthday, day time.Time) bool {
	return anniversary(birthday.Month(), birthday.Day(), day)
}

func anniversary(month time.Month, d int, day time.Time) bool {
	y, m, dd := day.Date()
	if month == time.February && d == 29 && !isLeap(y) {
		return m == time.February && dd == 28
	}
	return m == month && dd == d
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// validMonthDay accepts February 29 since it recurs every leap year.
func validMonthDay(month, day int) bool {
	if month < 1 || month > 12 || day < 1 {
		return false
	}
	t := time.Date(2024, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Month() == time.Month(month) && t.Day() == day
}
