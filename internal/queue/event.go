// Package queue carries mutation events over RabbitMQ.  Events go to a
// durable topic exchange with routing key "booking.<action>"; every
// service instance binds its own queue so each one can feed its local
// subscribers.
package queue

import (
	"encoding/json"
	"fmt"

	"github.com/iliyamo/booking-record-engine/internal/model"
)

// RoutingPrefix starts every routing key.
const RoutingPrefix = "booking."

// BindAll matches every mutation routing key.
const BindAll = RoutingPrefix + "#"

// RoutingKey returns the routing key for ev, e.g. "booking.bulk_cancel".
func RoutingKey(ev model.MutationEvent) string {
	if ev.Action == "" {
		return RoutingPrefix + "unknown"
	}
	return RoutingPrefix + ev.Action
}

// Encode serializes ev for the wire.
func Encode(ev model.MutationEvent) ([]byte, error) {
	return json.Marshal(ev)
}

// Decode parses a message body.
func Decode(body []byte) (model.MutationEvent, error) {
	var ev model.MutationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, fmt.Errorf("unmarshal: %w", err)
	}
	if ev.BookingID == 0 {
		return ev, fmt.Errorf("event without booking_id")
	}
	return ev, nil
}
