package model

import (
	"math"
	"time"
)

// Payment status values.  A reservation's payment_status is always one of
// these after normalization.
const (
	PaymentPending   = "pending"
	PaymentConfirmed = "confirmed"
	PaymentCancelled = "cancelled"
	PaymentRefunded  = "refunded"
	PaymentFailed    = "failed"
)

// Review status values.  review_status tracks operator review of the data
// independently of payment.
const (
	ReviewPending     = "pending"
	ReviewNeedsReview = "needs_review"
	ReviewReviewed    = "reviewed"
	ReviewConfirmed   = "confirmed"
	ReviewCancelled   = "cancelled"
)

var paymentStatuses = map[string]bool{
	PaymentPending: true, PaymentConfirmed: true, PaymentCancelled: true,
	PaymentRefunded: true, PaymentFailed: true,
}

var reviewStatuses = map[string]bool{
	ReviewPending: true, ReviewNeedsReview: true, ReviewReviewed: true,
	ReviewConfirmed: true, ReviewCancelled: true,
}

// IsPaymentStatus reports whether s is a recognized payment status.
func IsPaymentStatus(s string) bool { return paymentStatuses[s] }

// IsReviewStatus reports whether s is a recognized review status.
func IsReviewStatus(s string) bool { return reviewStatuses[s] }

// Core holds the fixed business attributes of a reservation.  Nullable
// columns are pointers; nil means "not provided".  Values are expected to
// be normalized before they reach the store.
type Core struct {
	ReservationNumber  string   `json:"reservation_number"`
	ConfirmationNumber *string  `json:"confirmation_number"`
	Channel            string   `json:"channel"`
	PlatformName       *string  `json:"platform_name"`
	ProductName        *string  `json:"product_name"`
	PackageName        *string  `json:"package_name"`
	TotalAmount        *float64 `json:"total_amount"`
	AdultUnitPrice     *float64 `json:"adult_unit_price"`
	ChildUnitPrice     *float64 `json:"child_unit_price"`
	InfantUnitPrice    *float64 `json:"infant_unit_price"`
	PeopleAdult        int      `json:"people_adult"`
	PeopleChild        int      `json:"people_child"`
	PeopleInfant       int      `json:"people_infant"`
	GuestCount         int      `json:"guest_count"`
	KoreanName         *string  `json:"korean_name"`
	EnglishFirstName   *string  `json:"english_first_name"`
	EnglishLastName    *string  `json:"english_last_name"`
	Email              *string  `json:"email"`
	Phone              *string  `json:"phone"`
	KakaoID            *string  `json:"kakao_id"`
	UsageDate          *string  `json:"usage_date"`     // YYYY-MM-DD
	UsageTime          *string  `json:"usage_time"`     // HH:MM
	UsageDatetime      *string  `json:"usage_datetime"` // YYYY-MM-DD HH:MM:SS
	PaymentStatus      string   `json:"payment_status"`
	ReviewStatus       string   `json:"review_status"`
	Memo               *string  `json:"memo"`
}

// CoreFields lists the fixed attribute names in column order.  Diffs,
// quality checks and exports iterate in this order so output is stable.
var CoreFields = []string{
	"reservation_number", "confirmation_number", "channel", "platform_name",
	"product_name", "package_name", "total_amount", "adult_unit_price",
	"child_unit_price", "infant_unit_price", "people_adult", "people_child",
	"people_infant", "guest_count", "korean_name", "english_first_name",
	"english_last_name", "email", "phone", "kakao_id", "usage_date",
	"usage_time", "usage_datetime", "payment_status", "review_status", "memo",
}

// MoneyFields are the monetary attributes; they compare and round at 2dp.
var MoneyFields = map[string]bool{
	"total_amount": true, "adult_unit_price": true,
	"child_unit_price": true, "infant_unit_price": true,
}

// Values flattens the core into a name→value map with pointers
// dereferenced (nil stays nil).  Feeding the result back through the
// normalizer reproduces the same Core.
func (c Core) Values() map[string]any {
	return map[string]any{
		"reservation_number":  c.ReservationNumber,
		"confirmation_number": deref(c.ConfirmationNumber),
		"channel":             c.Channel,
		"platform_name":       deref(c.PlatformName),
		"product_name":        deref(c.ProductName),
		"package_name":        deref(c.PackageName),
		"total_amount":        derefFloat(c.TotalAmount),
		"adult_unit_price":    derefFloat(c.AdultUnitPrice),
		"child_unit_price":    derefFloat(c.ChildUnitPrice),
		"infant_unit_price":   derefFloat(c.InfantUnitPrice),
		"people_adult":        c.PeopleAdult,
		"people_child":        c.PeopleChild,
		"people_infant":       c.PeopleInfant,
		"guest_count":         c.GuestCount,
		"korean_name":         deref(c.KoreanName),
		"english_first_name":  deref(c.EnglishFirstName),
		"english_last_name":   deref(c.EnglishLastName),
		"email":               deref(c.Email),
		"phone":               deref(c.Phone),
		"kakao_id":            deref(c.KakaoID),
		"usage_date":          deref(c.UsageDate),
		"usage_time":          deref(c.UsageTime),
		"usage_datetime":      deref(c.UsageDatetime),
		"payment_status":      c.PaymentStatus,
		"review_status":       c.ReviewStatus,
		"memo":                deref(c.Memo),
	}
}

func deref(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func derefFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

// Flags is the computed data-quality snapshot stored with every record.
// It is recomputed on each write and never edited by hand.
type Flags struct {
	Missing   []string `json:"missing"`
	Ambiguous []string `json:"ambiguous"`
}

// Reservation is a persisted reservation row: the fixed core, the dynamic
// extras bag and the bookkeeping columns used for concurrency, soft
// deletion and import idempotency.
type Reservation struct {
	ID uint64 `json:"id"`
	Core
	Extras      map[string]any `json:"extras"`
	Flags       Flags          `json:"flags"`
	LockVersion int            `json:"lock_version"`
	OriginHash  *string        `json:"origin_hash,omitempty"`
	IsDeleted   bool           `json:"is_deleted"`
	DeletedAt   *time.Time     `json:"deleted_at,omitempty"`
	CreatedBy   string         `json:"created_by"`
	UpdatedBy   string         `json:"updated_by"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// InitialLockVersion is the lock_version of a freshly created record.
const InitialLockVersion = 1

// RoundMoney rounds a monetary amount half away from zero at 2 decimals.
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

// MoneyEqual compares two amounts at cent precision.
func MoneyEqual(a, b float64) bool {
	return math.Round(a*100) == math.Round(b*100)
}
