package validate

import (
	"regexp"
	"sort"
	"strings"

	"github.com/iliyamo/booking-record-engine/internal/model"
)

// placeholderRe matches values operators type when the real answer is not
// known yet.
var placeholderRe = regexp.MustCompile(`(?i)^(tbd|tba|pending|unknown|n/?a|\?+|-+|\.+)$`)

// criticalFields must be non-empty for a record to be considered complete.
var criticalFields = []string{"product_name", "korean_name"}

// statusFields hold enum values where "pending" is legitimate.
var statusFields = map[string]bool{"payment_status": true, "review_status": true}

// IsPlaceholder reports whether s looks like a stand-in value.
func IsPlaceholder(s string) bool {
	return placeholderRe.MatchString(strings.TrimSpace(s))
}

// CheckDataQuality computes the missing/ambiguous flags for a record.  It
// depends only on its arguments so flags can always be recomputed from the
// stored record and the active catalog.
func CheckDataQuality(core model.Core, extras map[string]any, defs []model.FieldDefinition) model.Flags {
	flags := model.Flags{Missing: []string{}, Ambiguous: []string{}}
	values := core.Values()

	for _, f := range criticalFields {
		if isEmpty(values[f]) {
			flags.Missing = append(flags.Missing, f)
		}
	}
	for _, def := range defs {
		if def.IsActive && def.Required && isEmpty(extras[def.Key]) {
			flags.Missing = append(flags.Missing, "extras."+def.Key)
		}
	}

	for _, f := range model.CoreFields {
		if statusFields[f] {
			continue
		}
		if s, ok := values[f].(string); ok && IsPlaceholder(s) {
			flags.Ambiguous = append(flags.Ambiguous, f)
		}
	}
	keys := make([]string, 0, len(extras))
	for k := range extras {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if placeholderValue(extras[k]) {
			flags.Ambiguous = append(flags.Ambiguous, "extras."+k)
		}
	}
	return flags
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}

func placeholderValue(v any) bool {
	switch t := v.(type) {
	case string:
		return IsPlaceholder(t)
	case []string:
		for _, s := range t {
			if IsPlaceholder(s) {
				return true
			}
		}
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && IsPlaceholder(s) {
				return true
			}
		}
	}
	return false
}
