package model

import "time"

// MutationEvent is emitted after a mutation commits.  Delivery to live
// subscribers is owned by the notify and queue packages; the store only
// produces the value.
type MutationEvent struct {
	BookingID         uint64    `json:"booking_id"`
	Action            string    `json:"action"`
	Actor             string    `json:"actor"`
	LockVersion       int       `json:"lock_version"`
	ReservationNumber string    `json:"reservation_number"`
	ChangedFields     []string  `json:"changed_fields,omitempty"`
	RequestID         string    `json:"request_id,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}
