package notifications

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Placeholders available to subjects and bodies.
type messageData struct {
	Name      string
	FirstName string
	Coupon    string
	Percent   int
	ExpiresOn string
}

func parse(name, text string) (*template.Template, error) {
	return template.New(name).Option("missingkey=error").Parse(text)
}

// Render fills the template's subject and body for one recipient. coupon may be
// nil.
func Render(t Template, recipientName string, coupon *Coupon) (Rendered, error) {
	data := messageData{Name: displayName(recipientName)}
	data.FirstName = strings.SplitN(data.Name, " ", 2)[0]
	if coupon != nil {
		data.Coupon = coupon.Code
		data.Percent = coupon.Percent
		data.ExpiresOn = coupon.ExpiresOn.Format("January 2, 2006")
	}

	subject, err := execute("subject", t.Subject, data)
	if err != nil {
		return Rendered{}, err
	}
	body, err := execute("body", t.Body, data)
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{Subject: strings.TrimSpace(subject), Body: body}, nil
}

func execute(name, text string, data messageData) (string, error) {
	tpl, err := parse(name, text)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, name, err)
	}
	var b strings.Builder
	if err := tpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, name, err)
	}
	return b.String(), nil
}

// displayName title-cases a customer name; an empty name becomes a neutral
// greeting.
func displayName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return "there"
	}
	return cases.Title(language.English).String(name)
}

// NewCouponCode returns a random code such as BDAY-3F9A1C2B.
func NewCouponCode(prefix string) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		return suffix
	}
	return prefix + "-" + suffix
}

// IssueCoupon prepares a coupon for customerID valid from day for the
// template's validity window. Expiry is inclusive.
func IssueCoupon(t Template, customerID int64, day time.Time, code string) Coupon {
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return Coupon{
		Code:       code,
		TemplateID: t.ID,
		CustomerID: customerID,
		Percent:    t.CouponPercent,
		IssuedOn:   start,
		ExpiresOn:  start.AddDate(0, 0, t.CouponValidDays-1),
	}
}
