package normalize

import (
	"strings"

	"github.com/iliyamo/booking-record-engine/internal/model"
)

// channelAliases maps lower-cased spellings onto the canonical channel
// label.  Canonical labels map to themselves so normalization is stable.
var channelAliases = map[string]string{
	"웹":          "웹",
	"web":        "웹",
	"website":    "웹",
	"homepage":   "웹",
	"홈페이지":       "웹",
	"전화":         "전화",
	"phone":      "전화",
	"tel":        "전화",
	"카카오톡":       "카카오톡",
	"카톡":         "카카오톡",
	"kakao":      "카카오톡",
	"kakaotalk":  "카카오톡",
	"이메일":        "이메일",
	"email":      "이메일",
	"mail":       "이메일",
	"방문":         "방문",
	"walkin":     "방문",
	"walk-in":    "방문",
	"파트너":        "파트너",
	"partner":    "파트너",
	"ota":        "OTA",
	"agency":     "파트너",
	"여행사":        "파트너",
}

// platformAliases maps lower-cased platform names onto their canonical
// upper-case label.
var platformAliases = map[string]string{
	"klook":        "KLOOK",
	"kkday":        "KKDAY",
	"myrealtrip":   "MYREALTRIP",
	"마이리얼트립":       "MYREALTRIP",
	"getyourguide": "GETYOURGUIDE",
	"gyg":          "GETYOURGUIDE",
	"viator":       "VIATOR",
	"trip.com":     "TRIP.COM",
	"tripcom":      "TRIP.COM",
	"ctrip":        "TRIP.COM",
	"agoda":        "AGODA",
	"expedia":      "EXPEDIA",
	"naver":        "NAVER",
	"네이버":          "NAVER",
	"direct":       "DIRECT",
	"직접":           "DIRECT",
}

var paymentSynonyms = map[string]string{
	"":           model.PaymentPending,
	"pending":    model.PaymentPending,
	"unpaid":     model.PaymentPending,
	"awaiting":   model.PaymentPending,
	"대기":         model.PaymentPending,
	"confirmed":  model.PaymentConfirmed,
	"confirm":    model.PaymentConfirmed,
	"paid":       model.PaymentConfirmed,
	"completed":  model.PaymentConfirmed,
	"complete":   model.PaymentConfirmed,
	"success":    model.PaymentConfirmed,
	"successful": model.PaymentConfirmed,
	"approved":   model.PaymentConfirmed,
	"결제완료":       model.PaymentConfirmed,
	"확정":         model.PaymentConfirmed,
	"cancelled":  model.PaymentCancelled,
	"canceled":   model.PaymentCancelled,
	"cancel":     model.PaymentCancelled,
	"void":       model.PaymentCancelled,
	"voided":     model.PaymentCancelled,
	"취소":         model.PaymentCancelled,
	"refunded":   model.PaymentRefunded,
	"refund":     model.PaymentRefunded,
	"환불":         model.PaymentRefunded,
	"failed":     model.PaymentFailed,
	"fail":       model.PaymentFailed,
	"failure":    model.PaymentFailed,
	"error":      model.PaymentFailed,
	"declined":   model.PaymentFailed,
	"실패":         model.PaymentFailed,
}

var reviewSynonyms = map[string]string{
	"":             model.ReviewPending,
	"pending":      model.ReviewPending,
	"needs_review": model.ReviewNeedsReview,
	"needs-review": model.ReviewNeedsReview,
	"needs review": model.ReviewNeedsReview,
	"review":       model.ReviewNeedsReview,
	"검토필요":         model.ReviewNeedsReview,
	"reviewed":     model.ReviewReviewed,
	"confirmed":    model.ReviewConfirmed,
	"cancelled":    model.ReviewCancelled,
	"canceled":     model.ReviewCancelled,
}

// Channel maps a channel through the alias table; unknown values are
// returned trimmed but otherwise unchanged.
func Channel(v any) string {
	s, _ := text(v)
	if mapped, ok := channelAliases[strings.ToLower(s)]; ok {
		return mapped
	}
	return s
}

// Platform maps a platform name through the alias table; unknown values
// are upper-cased.
func Platform(v any) *string {
	s := String(v)
	if s == nil {
		return nil
	}
	if mapped, ok := platformAliases[strings.ToLower(*s)]; ok {
		return &mapped
	}
	up := strings.ToUpper(*s)
	return &up
}

// PaymentStatus maps synonyms onto the payment enum.  Unknown spellings
// are returned lower-cased for the validator to reject.
func PaymentStatus(v any) string {
	s, _ := text(v)
	s = strings.ToLower(s)
	if mapped, ok := paymentSynonyms[s]; ok {
		return mapped
	}
	return s
}

// ReviewStatus maps synonyms onto the review enum.
func ReviewStatus(v any) string {
	s, _ := text(v)
	s = strings.ToLower(s)
	if mapped, ok := reviewSynonyms[s]; ok {
		return mapped
	}
	return s
}
