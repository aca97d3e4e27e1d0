// Package notifications schedules customer emails from reusable templates:
// birthdays, fixed-date holidays, yearly recurring dates and one-off sends.
package notifications

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the template does not exist.
	ErrNotFound = errors.New("notifications: template not found")
	// ErrInvalidSchedule indicates trigger fields that do not describe a real date.
	ErrInvalidSchedule = errors.New("notifications: invalid schedule")
	// ErrInvalidTemplate indicates a subject or body that does not render.
	ErrInvalidTemplate = errors.New("notifications: template does not render")
)

// TriggerKind selects how a template's send date is computed.
type TriggerKind string

const (
	TriggerBirthday  TriggerKind = "BIRTHDAY"
	TriggerHoliday   TriggerKind = "HOLIDAY"
	TriggerRecurring TriggerKind = "RECURRING"
	TriggerOneTime   TriggerKind = "ONE_TIME"
)

// Template is a stored notification definition.
type Template struct {
	ID              int64       `json:"id"`
	Name            string      `json:"name"`
	Subject         string      `json:"subject"`
	Body            string      `json:"body"`
	Trigger         TriggerKind `json:"trigger"`
	Holiday         string      `json:"holiday,omitempty"`
	Month           int         `json:"month,omitempty"`
	Day             int         `json:"day,omitempty"`
	OnDate          *time.Time  `json:"on_date,omitempty"`
	CouponPercent   int         `json:"coupon_percent,omitempty"`
	CouponValidDays int         `json:"coupon_valid_days,omitempty"`
	CouponPrefix    string      `json:"coupon_prefix,omitempty"`
	Active          bool        `json:"active"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// HasCoupon reports whether each recipient receives a discount code.
func (t Template) HasCoupon() bool {
	return t.CouponPercent > 0
}

// TemplateInput is the create/update payload.
type TemplateInput struct {
	Name            string      `json:"name" validate:"required,max=120"`
	Subject         string      `json:"subject" validate:"required,max=200"`
	Body            string      `json:"body" validate:"required,max=10000"`
	Trigger         TriggerKind `json:"trigger" validate:"required,oneof=BIRTHDAY HOLIDAY RECURRING ONE_TIME"`
	Holiday         string      `json:"holiday" validate:"required_if=Trigger HOLIDAY,omitempty,holiday"`
	Month           int         `json:"month" validate:"required_if=Trigger RECURRING,omitempty,min=1,max=12"`
	Day             int         `json:"day" validate:"required_if=Trigger RECURRING,omitempty,min=1,max=31"`
	OnDate          *time.Time  `json:"on_date" validate:"required_if=Trigger ONE_TIME"`
	CouponPercent   int         `json:"coupon_percent" validate:"omitempty,min=1,max=100"`
	CouponValidDays int         `json:"coupon_valid_days" validate:"required_with=CouponPercent,omitempty,min=1,max=365"`
	CouponPrefix    string      `json:"coupon_prefix" validate:"omitempty,max=12,alphanum"`
	Active          bool        `json:"active"`
}

// Customer is a storefront customer who may receive notifications.
type Customer struct {
	ID       int64
	Email    string
	Name     string
	Birthday *time.Time
}

// Coupon is a single-use discount code issued with a notification.
type Coupon struct {
	Code       string
	TemplateID int64
	CustomerID int64
	Percent    int
	IssuedOn   time.Time
	ExpiresOn  time.Time
}

// Rendered is a notification ready to send.
type Rendered struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
