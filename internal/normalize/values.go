// Package normalize coerces raw reservation input into canonical values.
// Nothing in this package returns an error: input that cannot be read with
// confidence degrades to nil and is left for the validator to judge.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/iliyamo/booking-record-engine/internal/model"
)

// text renders a scalar as trimmed text.  Maps, slices and nil report
// ok=false.
func text(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return strings.TrimSpace(t), true
	case *string:
		if t == nil {
			return "", false
		}
		return strings.TrimSpace(*t), true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	case time.Time:
		return t.Format(time.RFC3339), true
	}
	return "", false
}

// String trims v and returns nil when nothing is left.
func String(v any) *string {
	s, ok := text(v)
	if !ok || s == "" {
		return nil
	}
	return &s
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"20060102",
	"2006-1-2",
	"2006/1/2",
	"2006.1.2",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

var koreanDateRe = regexp.MustCompile(`^(\d{4})\s*년\s*(\d{1,2})\s*월\s*(\d{1,2})\s*일`)

// Date returns v as YYYY-MM-DD, or nil when it is not a calendar date.
func Date(v any) *string {
	if t, ok := v.(time.Time); ok {
		if t.IsZero() {
			return nil
		}
		s := t.Format("2006-01-02")
		return &s
	}
	s, ok := text(v)
	if !ok || s == "" {
		return nil
	}
	if m := koreanDateRe.FindStringSubmatch(s); m != nil {
		s = fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3])
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			out := t.Format("2006-01-02")
			return &out
		}
	}
	return nil
}

var (
	clockRe   = regexp.MustCompile(`(?i)^(오전|오후)?\s*(\d{1,2}):(\d{2})(?::(\d{2}))?\s*(am|pm)?$`)
	compactRe = regexp.MustCompile(`^(\d{2})(\d{2})$`)
)

// Time returns v as 24-hour HH:MM.  Out-of-range clocks give nil.
func Time(v any) *string {
	s, ok := text(v)
	if !ok || s == "" {
		return nil
	}
	var hour, minute int
	meridiem := ""
	if m := clockRe.FindStringSubmatch(s); m != nil {
		hour, _ = strconv.Atoi(m[2])
		minute, _ = strconv.Atoi(m[3])
		switch {
		case m[1] == "오전" || strings.EqualFold(m[5], "am"):
			meridiem = "am"
		case m[1] == "오후" || strings.EqualFold(m[5], "pm"):
			meridiem = "pm"
		}
		if m[4] != "" {
			if sec, _ := strconv.Atoi(m[4]); sec > 59 {
				return nil
			}
		}
	} else if m := compactRe.FindStringSubmatch(s); m != nil {
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
	} else {
		return nil
	}
	if meridiem != "" {
		if hour < 1 || hour > 12 {
			return nil
		}
		if meridiem == "am" && hour == 12 {
			hour = 0
		} else if meridiem == "pm" && hour != 12 {
			hour += 12
		}
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil
	}
	out := fmt.Sprintf("%02d:%02d", hour, minute)
	return &out
}

var datetimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006-01-02",
}

// Datetime returns v as YYYY-MM-DD HH:MM:SS.  Zoned inputs keep their
// wall clock; the stored value carries no zone.
func Datetime(v any) *string {
	if t, ok := v.(time.Time); ok {
		if t.IsZero() {
			return nil
		}
		s := t.Format("2006-01-02 15:04:05")
		return &s
	}
	s, ok := text(v)
	if !ok || s == "" {
		return nil
	}
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			out := t.Format("2006-01-02 15:04:05")
			return &out
		}
	}
	return nil
}

var moneyNoise = strings.NewReplacer(",", "", " ", "", "₩", "", "$", "", "€", "", "¥", "", "원", "", "KRW", "", "USD", "", "krw", "", "usd", "")

// Money parses a monetary amount rounded to 2 decimals.  Negative values
// pass through unchanged; rejecting them is the validator's job.
func Money(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	default:
		s, ok := text(v)
		if !ok {
			return nil
		}
		s = moneyNoise.Replace(s)
		if s == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = parsed
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	f = model.RoundMoney(f)
	return &f
}

// Number parses a plain float without rounding.
func Number(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	default:
		s, ok := text(v)
		if !ok || s == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
		if err != nil {
			return nil
		}
		f = parsed
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// Count parses a headcount.  Absent or unreadable values yield def;
// negatives clamp to zero and fractions truncate.
func Count(v any, def int) int {
	f := Number(v)
	if f == nil {
		return def
	}
	if *f < 0 {
		return 0
	}
	return int(*f)
}

// Bool reads the usual truthy/falsy spellings.
func Bool(v any) *bool {
	var b bool
	switch t := v.(type) {
	case bool:
		b = t
	case float64:
		b = t != 0
	case int:
		b = t != 0
	default:
		s, ok := text(v)
		if !ok {
			return nil
		}
		switch strings.ToLower(s) {
		case "true", "yes", "y", "1", "on", "예", "네":
			b = true
		case "false", "no", "n", "0", "off", "아니오":
			b = false
		default:
			return nil
		}
	}
	return &b
}

var emailRe = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)

// Email lower-cases v and returns nil unless it looks like an address.
func Email(v any) *string {
	s, ok := text(v)
	if !ok {
		return nil
	}
	s = strings.ToLower(s)
	if !emailRe.MatchString(s) {
		return nil
	}
	return &s
}

// IsEmail reports whether s is already a normalized address.
func IsEmail(s string) bool { return emailRe.MatchString(s) }

// Phone keeps digits, '+', '-', '(', ')' and single spaces.
func Phone(v any) *string {
	s, ok := text(v)
	if !ok {
		return nil
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '+', r == '-', r == '(', r == ')':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	out := strings.Join(strings.Fields(b.String()), " ")
	if out == "" {
		return nil
	}
	return &out
}

// TitleName title-cases each space separated word of an English name.
func TitleName(v any) *string {
	s := String(v)
	if s == nil {
		return nil
	}
	words := strings.Fields(*s)
	for i, w := range words {
		rs := []rune(strings.ToLower(w))
		rs[0] = unicode.ToUpper(rs[0])
		words[i] = string(rs)
	}
	out := strings.Join(words, " ")
	return &out
}

// StringList reads a multiselect value from a slice or a comma separated
// string.
func StringList(v any) []string {
	var parts []string
	switch t := v.(type) {
	case []string:
		parts = t
	case []any:
		for _, item := range t {
			if s, ok := text(item); ok {
				parts = append(parts, s)
			}
		}
	default:
		s, ok := text(v)
		if !ok {
			return nil
		}
		parts = strings.Split(s, ",")
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
