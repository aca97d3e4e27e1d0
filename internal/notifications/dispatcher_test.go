package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/emporia/console/internal/jobs"
	"github.com/emporia/console/internal/platform/mail"
)

type runKey struct {
	template int64
	day      string
}

type fakeDispatchStore struct {
	mu        sync.Mutex
	templates []Template
	customers []Customer
	runs      map[runKey]int
	coupons   []Coupon
	leapAsked bool
}

func newFakeDispatchStore() *fakeDispatchStore {
	return &fakeDispatchStore{runs: map[runKey]int{}}
}

func (f *fakeDispatchStore) ListActive(ctx context.Context) ([]Template, error) {
	var out []Template
	for _, t := range f.templates {
		if t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeDispatchStore) BirthdayCustomers(ctx context.Context, month time.Month, day int, leapFallback bool) ([]Customer, error) {
	f.leapAsked = leapFallback
	var out []Customer
	for _, c := range f.customers {
		if c.Birthday == nil {
			continue
		}
		if c.Birthday.Month() == month && c.Birthday.Day() == day {
			out = append(out, c)
		} else if leapFallback && c.Birthday.Month() == time.February && c.Birthday.Day() == 29 {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeDispatchStore) OptedInCustomers(ctx context.Context) ([]Customer, error) {
	return f.customers, nil
}

func (f *fakeDispatchStore) ClaimRun(ctx context.Context, templateID int64, day time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := runKey{templateID, day.Format("2006-01-02")}
	if _, ok := f.runs[k]; ok {
		return false, nil
	}
	f.runs[k] = -1
	return true, nil
}

func (f *fakeDispatchStore) ReleaseRun(ctx context.Context, templateID int64, day time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.runs, runKey{templateID, day.Format("2006-01-02")})
	return nil
}

func (f *fakeDispatchStore) CompleteRun(ctx context.Context, templateID int64, day time.Time, queued int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[runKey{templateID, day.Format("2006-01-02")}] = queued
	return nil
}

func (f *fakeDispatchStore) SaveCoupons(ctx context.Context, coupons []Coupon) ([]Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Coupon, 0, len(coupons))
	for _, c := range coupons {
		kept := c
		for _, existing := range f.coupons {
			if existing.TemplateID == c.TemplateID && existing.CustomerID == c.CustomerID && existing.IssuedOn.Equal(c.IssuedOn) {
				kept = existing
				break
			}
		}
		if kept == c {
			f.coupons = append(f.coupons, c)
		}
		out = append(out, kept)
	}
	return out, nil
}

type fakeQueue struct {
	messages []mail.Message
	keys     []string
	failAt   int
}

// EnqueueMail drops repeated keys the way the task queue does.
func (q *fakeQueue) EnqueueMail(ctx context.Context, msg mail.Message, key string) error {
	for _, k := range q.keys {
		if k == key {
			return nil
		}
	}
	if q.failAt > 0 && len(q.messages)+1 == q.failAt {
		return errors.New("redis unavailable")
	}
	q.messages = append(q.messages, msg)
	q.keys = append(q.keys, key)
	return nil
}

func birthday(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func TestDispatcherBirthdayWithCoupons(t *testing.T) {
	store := newFakeDispatchStore()
	store.templates = []Template{{
		ID: 1, Trigger: TriggerBirthday, Active: true,
		Subject: "Happy birthday {{.FirstName}}", Body: "{{.Coupon}}",
		CouponPercent: 20, CouponValidDays: 14, CouponPrefix: "BDAY",
	}}
	store.customers = []Customer{
		{ID: 10, Email: "a@example.com", Name: "ann lee", Birthday: birthday(1990, 2, 28)},
		{ID: 11, Email: "b@example.com", Name: "bo", Birthday: birthday(1992, 2, 29)},
		{ID: 12, Email: "c@example.com", Name: "cy", Birthday: birthday(1985, 3, 1)},
	}
	queue := &fakeQueue{}
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	d := NewDispatcher(store, queue, metrics, nil)
	n := 0
	d.newCode = func(prefix string) string {
		n++
		return prefix + "-" + string(rune('A'+n-1))
	}

	summary, err := d.Run(context.Background(), time.Date(2027, 2, 28, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Queued)
	assert.True(t, store.leapAsked)

	require.Len(t, queue.messages, 2)
	assert.Equal(t, "Happy birthday Ann", queue.messages[0].Subject)
	assert.Equal(t, "BDAY-A", queue.messages[0].Body)
	assert.Equal(t, "b@example.com", queue.messages[1].To)
	assert.Equal(t, []string{"notify:1:20270228:10", "notify:1:20270228:11"}, queue.keys)

	require.Len(t, store.coupons, 2)
	assert.Equal(t, date(2027, 3, 13), store.coupons[0].ExpiresOn)
	assert.Equal(t, 2, store.runs[runKey{1, "2027-02-28"}])
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.QueuedMails(string(TriggerBirthday))), 0.001)
}

func TestDispatcherRunsOncePerDay(t *testing.T) {
	store := newFakeDispatchStore()
	store.templates = []Template{{ID: 5, Trigger: TriggerHoliday, Holiday: "HALLOWEEN", Active: true, Subject: "Boo", Body: "Hi {{.Name}}"}}
	store.customers = []Customer{{ID: 1, Email: "x@example.com", Name: "x"}}
	queue := &fakeQueue{}
	d := NewDispatcher(store, queue, nil, nil)
	day := date(2026, 10, 31)

	first, err := d.Run(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Templates)

	second, err := d.Run(context.Background(), day.Add(6*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, second.Templates)
	assert.Equal(t, 1, second.Skipped)
	assert.Len(t, queue.messages, 1)
}

func TestDispatcherSkipsInactiveAndNotDue(t *testing.T) {
	store := newFakeDispatchStore()
	store.templates = []Template{
		{ID: 1, Trigger: TriggerRecurring, Month: 6, Day: 1, Active: true, Subject: "s", Body: "b"},
		{ID: 2, Trigger: TriggerRecurring, Month: 5, Day: 1, Active: false, Subject: "s", Body: "b"},
	}
	store.customers = []Customer{{ID: 1, Email: "x@example.com"}}
	queue := &fakeQueue{}

	summary, err := NewDispatcher(store, queue, nil, nil).Run(context.Background(), date(2026, 5, 1))
	require.NoError(t, err)
	assert.Zero(t, summary.Templates)
	assert.Empty(t, queue.messages)
	assert.Empty(t, store.runs)
}

func TestDispatcherReleasesRunWhenNothingQueued(t *testing.T) {
	store := newFakeDispatchStore()
	store.templates = []Template{{ID: 9, Trigger: TriggerOneTime, OnDate: birthday(2026, 4, 2), Active: true, Subject: "s", Body: "b"}}
	store.customers = []Customer{{ID: 1, Email: "x@example.com"}, {ID: 2, Email: "y@example.com"}}
	queue := &fakeQueue{failAt: 1}
	d := NewDispatcher(store, queue, nil, nil)

	_, err := d.Run(context.Background(), date(2026, 4, 2))
	require.Error(t, err)
	assert.Empty(t, store.runs)

	queue.failAt = 0
	summary, err := d.Run(context.Background(), date(2026, 4, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Queued)
}

func TestDispatcherRetryReachesRemainingRecipients(t *testing.T) {
	store := newFakeDispatchStore()
	store.templates = []Template{{
		ID: 9, Trigger: TriggerOneTime, OnDate: birthday(2026, 4, 2), Active: true,
		Subject: "s", Body: "{{.Coupon}}", CouponPercent: 10, CouponValidDays: 3, CouponPrefix: "SPRING",
	}}
	store.customers = []Customer{{ID: 1, Email: "x@example.com"}, {ID: 2, Email: "y@example.com"}}
	queue := &fakeQueue{failAt: 2}
	d := NewDispatcher(store, queue, nil, nil)
	day := date(2026, 4, 2)

	summary, err := d.Run(context.Background(), day)
	require.Error(t, err)
	assert.Equal(t, 1, summary.Queued)
	assert.Empty(t, store.runs)
	require.Len(t, store.coupons, 2)
	issued := []string{store.coupons[0].Code, store.coupons[1].Code}

	queue.failAt = 0
	summary, err = d.Run(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Templates)
	assert.Zero(t, summary.Skipped)

	require.Len(t, queue.messages, 2)
	assert.Equal(t, []string{"x@example.com", "y@example.com"}, []string{queue.messages[0].To, queue.messages[1].To})
	assert.Equal(t, issued, []string{queue.messages[0].Body, queue.messages[1].Body})
	assert.Len(t, store.coupons, 2)
	assert.Equal(t, 2, store.runs[runKey{9, "2026-04-02"}])

	third, err := d.Run(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 1, third.Skipped)
	assert.Len(t, queue.messages, 2)
}
