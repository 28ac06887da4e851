package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/booking-record-engine/internal/model"
)

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

func TestDate(t *testing.T) {
	cases := map[string]struct {
		in   any
		want string
	}{
		"iso":         {"2024-03-05", "2024-03-05"},
		"slashes":     {"2024/3/5", "2024-03-05"},
		"dots":        {"2024.03.05", "2024-03-05"},
		"compact":     {"20240305", "2024-03-05"},
		"korean":      {"2024년 3월 5일", "2024-03-05"},
		"datetime":    {"2024-03-05 14:30:00", "2024-03-05"},
		"bad month":   {"2024-13-01", "<nil>"},
		"impossible":  {"2024-02-30", "<nil>"},
		"garbage":     {"next tuesday", "<nil>"},
		"empty":       {"  ", "<nil>"},
		"nil":         {nil, "<nil>"},
		"time.Time":   {time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), "2024-03-05"},
		"object":      {map[string]any{"d": 1}, "<nil>"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, deref(Date(tc.in)))
		})
	}
}

func TestTime(t *testing.T) {
	cases := map[string]struct {
		in   any
		want string
	}{
		"24h":          {"14:30", "14:30"},
		"single digit": {"9:05", "09:05"},
		"seconds":      {"14:30:59", "14:30"},
		"pm":           {"2:30 PM", "14:30"},
		"noon":         {"12:00 pm", "12:00"},
		"midnight am":  {"12:15 am", "00:15"},
		"korean pm":    {"오후 3:00", "15:00"},
		"korean am":    {"오전 9:30", "09:30"},
		"compact":      {"0930", "09:30"},
		"hour 24":      {"24:00", "<nil>"},
		"minute 60":    {"10:60", "<nil>"},
		"13 pm":        {"13:00 pm", "<nil>"},
		"words":        {"evening", "<nil>"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, deref(Time(tc.in)))
		})
	}
}

func TestDatetime(t *testing.T) {
	assert.Equal(t, "2024-03-05 14:30:00", deref(Datetime("2024-03-05T14:30")))
	assert.Equal(t, "2024-03-05 14:30:00", deref(Datetime("2024-03-05T14:30:00+09:00")))
	assert.Equal(t, "2024-03-05 00:00:00", deref(Datetime("2024-03-05")))
	assert.Nil(t, Datetime("2024-03-05 25:00"))
}

func TestMoney(t *testing.T) {
	cases := map[string]struct {
		in   any
		want *float64
	}{
		"float":        {99.999, ptr(100.0)},
		"int":          {150, ptr(150.0)},
		"commas":       {"1,234,567", ptr(1234567.0)},
		"won sign":     {"₩ 50,000", ptr(50000.0)},
		"korean unit":  {"50000원", ptr(50000.0)},
		"dollar":       {"$12.50", ptr(12.5)},
		"rounding":     {"10.006", ptr(10.01)},
		"negative":     {"-10", ptr(-10.0)},
		"letters":      {"about 10", nil},
		"empty":        {"", nil},
		"nil":          {nil, nil},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got := Money(tc.in)
			if tc.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tc.want, *got, 0.0001)
		})
	}
}

func ptr(f float64) *float64 { return &f }

func TestCountAndBool(t *testing.T) {
	assert.Equal(t, 1, Count(nil, 1))
	assert.Equal(t, 3, Count("3", 1))
	assert.Equal(t, 2, Count(2.7, 0))
	assert.Equal(t, 0, Count(-4, 1))
	assert.Equal(t, 5, Count("abc", 5))

	for _, v := range []any{true, "yes", "Y", "1", "on", "예", 1.0} {
		b := Bool(v)
		require.NotNil(t, b, "%v", v)
		assert.True(t, *b, "%v", v)
	}
	for _, v := range []any{false, "no", "0", "off", "아니오", 0} {
		b := Bool(v)
		require.NotNil(t, b, "%v", v)
		assert.False(t, *b, "%v", v)
	}
	assert.Nil(t, Bool("maybe"))
}

func TestContactFields(t *testing.T) {
	assert.Equal(t, "kim@example.com", deref(Email("  Kim@Example.COM ")))
	assert.Nil(t, Email("not-an-email"))
	assert.Equal(t, "+82 10-1234-5678", deref(Phone(" +82  10-1234-5678 mobile")))
	assert.Nil(t, Phone("call me"))
	assert.Equal(t, "Mary Jane", deref(TitleName("mARY   jane")))
}

func TestLookups(t *testing.T) {
	assert.Equal(t, "웹", Channel("Web"))
	assert.Equal(t, "웹", Channel("웹"))
	assert.Equal(t, "카카오톡", Channel("KakaoTalk"))
	assert.Equal(t, "새채널", Channel(" 새채널 "))

	assert.Equal(t, "KLOOK", deref(Platform("klook")))
	assert.Equal(t, "SOMEOTA", deref(Platform("SomeOTA")))
	assert.Nil(t, Platform(""))

	assert.Equal(t, model.PaymentConfirmed, PaymentStatus("Paid"))
	assert.Equal(t, model.PaymentCancelled, PaymentStatus("canceled"))
	assert.Equal(t, model.PaymentPending, PaymentStatus(nil))
	assert.Equal(t, "bogus", PaymentStatus("BOGUS"))
	assert.Equal(t, model.ReviewNeedsReview, ReviewStatus("needs review"))
}

func TestCoreDerivations(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	c := Core(map[string]any{
		"reservation_number": " R100 ",
		"channel":            "web",
		"total_amount":       "300,000",
		"people_adult":       "2",
		"people_child":       1,
		"usage_date":         "2024/03/05",
		"usage_time":         "오후 2:00",
		"payment_status":     "paid",
	}, now)

	assert.Equal(t, "R100", c.ReservationNumber)
	assert.Equal(t, "웹", c.Channel)
	require.NotNil(t, c.AdultUnitPrice)
	assert.Equal(t, 150000.0, *c.AdultUnitPrice)
	require.NotNil(t, c.ChildUnitPrice)
	assert.Equal(t, 150000.0, *c.ChildUnitPrice)
	assert.Equal(t, 3, c.GuestCount)
	assert.Equal(t, "2024-03-05 14:00:00", deref(c.UsageDatetime))
	assert.Equal(t, model.PaymentConfirmed, c.PaymentStatus)
	assert.Equal(t, model.ReviewPending, c.ReviewStatus)
}

func TestCoreSplitsDatetime(t *testing.T) {
	c := Core(map[string]any{"reservation_number": "R1", "usage_datetime": "2024-03-05T08:15:00"}, time.Now())
	assert.Equal(t, "2024-03-05", deref(c.UsageDate))
	assert.Equal(t, "08:15", deref(c.UsageTime))
	assert.Equal(t, 1, c.PeopleAdult)
	assert.Equal(t, 1, c.GuestCount)
}

func TestCoreSynthesizesReservationNumber(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 30, 15, 0, time.UTC)
	c := Core(map[string]any{}, now)
	assert.Regexp(t, `^RN20240301093015[A-HJ-NP-Z2-9]{6}$`, c.ReservationNumber)
}

func TestCoreIsIdempotent(t *testing.T) {
	now := time.Now()
	first := Core(map[string]any{
		"reservation_number": "R200",
		"channel":            "kakao",
		"platform_name":      "gyg",
		"total_amount":       "₩100,000",
		"people_adult":       2,
		"english_first_name": "john",
		"email":              "JOHN@EXAMPLE.COM",
		"phone":              "010 1234 5678",
		"usage_date":         "2024.05.01",
		"usage_time":         "9:00 am",
		"payment_status":     "결제완료",
	}, now)
	again := Core(first.Values(), now)
	assert.Equal(t, first, again)
}

func TestOriginHashCollapsesWhitespace(t *testing.T) {
	a := OriginHash("예약번호 R100\n이름 김철수")
	b := OriginHash("  예약번호   R100 이름\t김철수 ")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, OriginHash("예약번호 R101 이름 김철수"))
}

func TestExtrasContainment(t *testing.T) {
	defs := []model.FieldDefinition{
		{Key: "visa_number", Type: model.FieldString, IsActive: true},
		{Key: "pickup", Type: model.FieldBoolean, IsActive: true},
		{Key: "luggage", Type: model.FieldNumber, IsActive: true},
		{Key: "diet", Type: model.FieldMultiselect, IsActive: true, Options: []string{"vegan", "halal"}},
		{Key: "retired", Type: model.FieldString, IsActive: false},
	}
	out := Extras(map[string]any{
		"visa_number": " M1234 ",
		"pickup":      "yes",
		"luggage":     "2",
		"diet":        "vegan, halal",
		"retired":     "x",
		"unknown":     "y",
		"blank":       "",
	}, defs)
	assert.Equal(t, map[string]any{
		"visa_number": "M1234",
		"pickup":      true,
		"luggage":     2.0,
		"diet":        []string{"vegan", "halal"},
	}, out)

	assert.Empty(t, Extras(nil, defs))
	// values that cannot be read are dropped, not kept raw
	assert.Empty(t, Extras(map[string]any{"pickup": "perhaps"}, defs))
}
