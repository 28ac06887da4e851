package normalize

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/iliyamo/booking-record-engine/internal/model"
)

// Core normalizes the fixed reservation fields found in raw.  Keys that
// are absent are treated as not provided.  now is used only to
// synthesize a reservation number when none was supplied.
func Core(raw map[string]any, now time.Time) model.Core {
	c := model.Core{
		ConfirmationNumber: String(raw["confirmation_number"]),
		Channel:            Channel(raw["channel"]),
		PlatformName:       Platform(raw["platform_name"]),
		ProductName:        String(raw["product_name"]),
		PackageName:        String(raw["package_name"]),
		TotalAmount:        Money(raw["total_amount"]),
		AdultUnitPrice:     Money(raw["adult_unit_price"]),
		ChildUnitPrice:     Money(raw["child_unit_price"]),
		InfantUnitPrice:    Money(raw["infant_unit_price"]),
		PeopleAdult:        Count(raw["people_adult"], 1),
		PeopleChild:        Count(raw["people_child"], 0),
		PeopleInfant:       Count(raw["people_infant"], 0),
		KoreanName:         String(raw["korean_name"]),
		EnglishFirstName:   TitleName(raw["english_first_name"]),
		EnglishLastName:    TitleName(raw["english_last_name"]),
		Email:              Email(raw["email"]),
		Phone:              Phone(raw["phone"]),
		KakaoID:            String(raw["kakao_id"]),
		UsageDate:          Date(raw["usage_date"]),
		UsageTime:          Time(raw["usage_time"]),
		UsageDatetime:      Datetime(raw["usage_datetime"]),
		PaymentStatus:      PaymentStatus(raw["payment_status"]),
		ReviewStatus:       ReviewStatus(raw["review_status"]),
		Memo:               String(raw["memo"]),
	}

	if rn := String(raw["reservation_number"]); rn != nil {
		c.ReservationNumber = *rn
	} else {
		c.ReservationNumber = ReservationNumber(now)
	}

	sum := c.PeopleAdult + c.PeopleChild + c.PeopleInfant
	c.GuestCount = Count(raw["guest_count"], 0)
	if c.GuestCount < 1 {
		c.GuestCount = sum
	}

	if c.TotalAmount != nil && c.PeopleAdult > 0 {
		if c.AdultUnitPrice == nil {
			p := model.RoundMoney(*c.TotalAmount / float64(c.PeopleAdult))
			c.AdultUnitPrice = &p
		}
		if c.PeopleChild > 0 && c.ChildUnitPrice == nil {
			p := *c.AdultUnitPrice
			c.ChildUnitPrice = &p
		}
	}

	switch {
	case c.UsageDatetime == nil && c.UsageDate != nil:
		clock := "00:00"
		if c.UsageTime != nil {
			clock = *c.UsageTime
		}
		dt := *c.UsageDate + " " + clock + ":00"
		c.UsageDatetime = &dt
	case c.UsageDatetime != nil && c.UsageDate == nil:
		d := (*c.UsageDatetime)[:10]
		c.UsageDate = &d
		if c.UsageTime == nil {
			t := (*c.UsageDatetime)[11:16]
			c.UsageTime = &t
		}
	}
	return c
}

const suffixAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// ReservationNumber synthesizes a business key of the form
// RN<yyyymmddhhmmss><6 random characters>.
func ReservationNumber(now time.Time) string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	out := make([]byte, len(buf))
	for i, b := range buf {
		out[i] = suffixAlphabet[int(b)%len(suffixAlphabet)]
	}
	return "RN" + now.UTC().Format("20060102150405") + string(out)
}

// OriginHash fingerprints raw import text.  Whitespace runs collapse so
// re-pasting the same message with different line breaks still matches.
func OriginHash(rawText string) string {
	collapsed := strings.Join(strings.Fields(rawText), " ")
	sum := sha256.Sum256([]byte(collapsed))
	return hex.EncodeToString(sum[:])
}

// Extras normalizes the dynamic attribute bag against the active field
// definitions.  Keys without an active definition are dropped, as are
// values that normalize to nothing.
func Extras(raw map[string]any, defs []model.FieldDefinition) map[string]any {
	out := make(map[string]any, len(raw))
	if len(raw) == 0 {
		return out
	}
	byKey := make(map[string]model.FieldDefinition, len(defs))
	for _, d := range defs {
		if d.IsActive {
			byKey[d.Key] = d
		}
	}
	for key, v := range raw {
		def, ok := byKey[key]
		if !ok {
			continue
		}
		if nv := Value(def, v); nv != nil {
			out[key] = nv
		}
	}
	return out
}

// Value normalizes one extras value according to def.Type.  The result is
// a string, float64, bool, []string or nil.
func Value(def model.FieldDefinition, v any) any {
	switch def.Type {
	case model.FieldNumber:
		if f := Number(v); f != nil {
			return *f
		}
	case model.FieldBoolean:
		if b := Bool(v); b != nil {
			return *b
		}
	case model.FieldDate:
		if s := Date(v); s != nil {
			return *s
		}
	case model.FieldTime:
		if s := Time(v); s != nil {
			return *s
		}
	case model.FieldDatetime:
		if s := Datetime(v); s != nil {
			return *s
		}
	case model.FieldEmail:
		if s := Email(v); s != nil {
			return *s
		}
	case model.FieldPhone:
		if s := Phone(v); s != nil {
			return *s
		}
	case model.FieldMultiselect:
		if list := StringList(v); list != nil {
			return list
		}
	default:
		if s := String(v); s != nil {
			return *s
		}
	}
	return nil
}
