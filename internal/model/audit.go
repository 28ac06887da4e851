package model

import "time"

// Audit actions.  Bulk variants carry the "bulk_" prefix so per-record
// history still shows which mutations came from a batch.
const (
	ActionCreate       = "create"
	ActionUpdate       = "update"
	ActionStatusChange = "status_change"
	ActionCancel       = "cancel"
	ActionDelete       = "delete"
	ActionRestore      = "restore"
	ActionBulkCancel   = "bulk_cancel"
	ActionBulkUpdate   = "bulk_update"
	ActionBulkDelete   = "bulk_delete"
)

// Change is one field's before/after pair inside a Diff.
type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Diff maps a flat field path to its change.  Extras keys appear as
// "extras.<key>".
type Diff map[string]Change

// AuditEntry is an immutable ledger row describing one mutation.
type AuditEntry struct {
	ID             uint64         `json:"id"`
	BookingID      uint64         `json:"booking_id"`
	Actor          string         `json:"actor"`
	Action         string         `json:"action"`
	Diff           Diff           `json:"diff"`
	PreviousValues map[string]any `json:"previous_values,omitempty"`
	CurrentValues  map[string]any `json:"current_values,omitempty"`
	Reason         *string        `json:"reason,omitempty"`
	IPAddress      *string        `json:"ip_address,omitempty"`
	UserAgent      *string        `json:"user_agent,omitempty"`
	RequestID      *string        `json:"request_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// RequestMeta identifies who issued a mutation and from where.  It is
// copied onto every audit entry the mutation produces.
type RequestMeta struct {
	Actor     string
	IPAddress string
	UserAgent string
	RequestID string
}

// AuditStatistics summarises audit activity over a window of days.
type AuditStatistics struct {
	Days               int              `json:"days"`
	DailyCounts        []DailyCount     `json:"daily_counts"`
	TopActors          []ActorCount     `json:"top_actors"`
	ActionDistribution map[string]int64 `json:"action_distribution"`
}

// DailyCount is the number of audit entries written on one day.
type DailyCount struct {
	Day   string `json:"day"`
	Count int64  `json:"count"`
}

// ActorCount is the number of audit entries written by one actor.
type ActorCount struct {
	Actor string `json:"actor"`
	Count int64  `json:"count"`
}
