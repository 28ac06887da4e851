// Package validate checks normalized reservation data.  Hard validation
// returns every violation at once as a list of field errors; the separate
// data-quality check only produces flags and never blocks a write.
package validate

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/iliyamo/booking-record-engine/internal/model"
	"github.com/iliyamo/booking-record-engine/internal/normalize"
)

// Reason codes carried by FieldError.Code.
const (
	CodeRequired = "required"
	CodeType     = "type"
	CodeFormat   = "format"
	CodePattern  = "pattern"
	CodeEnum     = "enum"
	CodeRange    = "range"
	CodeLength   = "length"
)

// FieldError is one violation.  Field is a flat path; extras keys use the
// "extras.<key>" form.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result is the outcome of Core or Extras.
type Result struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors"`
}

// ReservationResult is the outcome of Reservation.  Core and Extras echo
// the data that was checked so callers can persist exactly that.
type ReservationResult struct {
	Valid  bool           `json:"valid"`
	Errors []FieldError   `json:"errors"`
	Core   model.Core     `json:"core_data"`
	Extras map[string]any `json:"extras_data"`
}

// Limits for fixed fields.
const (
	MaxMoney          = 100_000_000
	MaxHeadcount      = 999
	maxNumberLen      = 100
	maxChannelLen     = 50
	maxNameLen        = 100
	maxProductLen     = 255
	maxPhoneLen       = 30
	maxEmailLen       = 255
	maxMemoLen        = 5000
	maxExtrasString   = 1000
	maxExtrasTextarea = 10000
)

var (
	dateRe     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeRe     = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
	datetimeRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} ([01]\d|2[0-3]):[0-5]\d:[0-5]\d$`)
	phoneRe    = regexp.MustCompile(`^[0-9+\-() ]+$`)
)

type collector struct {
	errs []FieldError
}

func (c *collector) add(field, code string) {
	c.errs = append(c.errs, FieldError{Field: field, Code: code, Message: Message(code, field)})
}

func (c *collector) maxLen(field string, s *string, n int) {
	if s != nil && utf8.RuneCountInString(*s) > n {
		c.add(field, CodeLength)
	}
}

func (c *collector) result() Result {
	if c.errs == nil {
		c.errs = []FieldError{}
	}
	return Result{Valid: len(c.errs) == 0, Errors: c.errs}
}

// Core validates the fixed fields.
func Core(core model.Core) Result {
	var c collector

	if core.ReservationNumber == "" {
		c.add("reservation_number", CodeRequired)
	} else {
		c.maxLen("reservation_number", &core.ReservationNumber, maxNumberLen)
	}
	c.maxLen("confirmation_number", core.ConfirmationNumber, maxNumberLen)
	c.maxLen("channel", &core.Channel, maxChannelLen)
	c.maxLen("platform_name", core.PlatformName, maxChannelLen)
	c.maxLen("product_name", core.ProductName, maxProductLen)
	c.maxLen("package_name", core.PackageName, maxProductLen)
	c.maxLen("korean_name", core.KoreanName, maxNameLen)
	c.maxLen("english_first_name", core.EnglishFirstName, maxNameLen)
	c.maxLen("english_last_name", core.EnglishLastName, maxNameLen)
	c.maxLen("kakao_id", core.KakaoID, maxNameLen)
	c.maxLen("memo", core.Memo, maxMemoLen)

	money := []struct {
		field string
		v     *float64
	}{
		{"total_amount", core.TotalAmount},
		{"adult_unit_price", core.AdultUnitPrice},
		{"child_unit_price", core.ChildUnitPrice},
		{"infant_unit_price", core.InfantUnitPrice},
	}
	for _, m := range money {
		if m.v != nil && (*m.v < 0 || *m.v > MaxMoney) {
			c.add(m.field, CodeRange)
		}
	}

	counts := []struct {
		field string
		v     int
	}{
		{"people_adult", core.PeopleAdult},
		{"people_child", core.PeopleChild},
		{"people_infant", core.PeopleInfant},
		{"guest_count", core.GuestCount},
	}
	for _, n := range counts {
		if n.v < 0 || n.v > MaxHeadcount {
			c.add(n.field, CodeRange)
		}
	}
	if core.GuestCount > 0 && core.GuestCount < core.PeopleAdult+core.PeopleChild+core.PeopleInfant {
		c.add("guest_count", CodeRange)
	}

	if core.Email != nil {
		if !normalize.IsEmail(*core.Email) {
			c.add("email", CodeFormat)
		}
		c.maxLen("email", core.Email, maxEmailLen)
	}
	if core.Phone != nil {
		if !phoneRe.MatchString(*core.Phone) {
			c.add("phone", CodeFormat)
		}
		c.maxLen("phone", core.Phone, maxPhoneLen)
	}
	if core.UsageDate != nil && !dateRe.MatchString(*core.UsageDate) {
		c.add("usage_date", CodeFormat)
	}
	if core.UsageTime != nil && !timeRe.MatchString(*core.UsageTime) {
		c.add("usage_time", CodeFormat)
	}
	if core.UsageDatetime != nil && !datetimeRe.MatchString(*core.UsageDatetime) {
		c.add("usage_datetime", CodeFormat)
	}
	if !model.IsPaymentStatus(core.PaymentStatus) {
		c.add("payment_status", CodeEnum)
	}
	if !model.IsReviewStatus(core.ReviewStatus) {
		c.add("review_status", CodeEnum)
	}
	return c.result()
}

// Extras validates the dynamic bag against the active definitions.  Only
// active definitions contribute constraints; required-ness of a disabled
// definition is ignored.
func Extras(extras map[string]any, defs []model.FieldDefinition) Result {
	var c collector
	for _, def := range defs {
		if !def.IsActive {
			continue
		}
		field := "extras." + def.Key
		v, present := extras[def.Key]
		if !present || v == nil || v == "" {
			if def.Required {
				c.add(field, CodeRequired)
			}
			continue
		}
		checkValue(&c, field, def, v)
	}
	return c.result()
}

func checkValue(c *collector, field string, def model.FieldDefinition, v any) {
	switch def.Type {
	case model.FieldNumber:
		if _, ok := v.(float64); !ok {
			c.add(field, CodeType)
		}
		return
	case model.FieldBoolean:
		if _, ok := v.(bool); !ok {
			c.add(field, CodeType)
		}
		return
	case model.FieldMultiselect:
		list, ok := v.([]string)
		if !ok {
			list = normalize.StringList(v)
			if list == nil {
				c.add(field, CodeType)
				return
			}
		}
		for _, item := range list {
			if !contains(def.Options, item) {
				c.add(field, CodeEnum)
				return
			}
		}
		return
	}

	s, ok := v.(string)
	if !ok {
		c.add(field, CodeType)
		return
	}
	switch def.Type {
	case model.FieldDate:
		if !dateRe.MatchString(s) {
			c.add(field, CodeFormat)
		}
	case model.FieldTime:
		if !timeRe.MatchString(s) {
			c.add(field, CodeFormat)
		}
	case model.FieldDatetime:
		if !datetimeRe.MatchString(s) {
			c.add(field, CodeFormat)
		}
	case model.FieldEmail:
		if !normalize.IsEmail(s) {
			c.add(field, CodeFormat)
		}
	case model.FieldPhone:
		if !phoneRe.MatchString(s) {
			c.add(field, CodeFormat)
		}
	case model.FieldSelect:
		if !contains(def.Options, s) {
			c.add(field, CodeEnum)
		}
	case model.FieldTextarea:
		c.maxLen(field, &s, maxExtrasTextarea)
	default:
		c.maxLen(field, &s, maxExtrasString)
	}
	if def.Pattern != nil && *def.Pattern != "" {
		re, err := regexp.Compile(*def.Pattern)
		if err == nil && !re.MatchString(s) {
			c.add(field, CodePattern)
		}
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// Reservation composes Core and Extras.  It is the entry point record
// writes use.
func Reservation(core model.Core, extras map[string]any, defs []model.FieldDefinition) ReservationResult {
	cr := Core(core)
	er := Extras(extras, defs)
	errs := append(append([]FieldError{}, cr.Errors...), er.Errors...)
	return ReservationResult{
		Valid:  len(errs) == 0,
		Errors: errs,
		Core:   core,
		Extras: extras,
	}
}

var messages = map[string]string{
	CodeRequired: "%s is required",
	CodeType:     "%s has the wrong type",
	CodeFormat:   "%s is not in a valid format",
	CodePattern:  "%s does not match the required pattern",
	CodeEnum:     "%s is not one of the allowed values",
	CodeRange:    "%s is out of range",
	CodeLength:   "%s is too long",
}

// Message renders a reason code as a human readable sentence.
func Message(code, field string) string {
	if tmpl, ok := messages[code]; ok {
		return fmt.Sprintf(tmpl, field)
	}
	return fmt.Sprintf("%s is invalid", field)
}
