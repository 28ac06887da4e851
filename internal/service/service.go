// Package service composes normalization, validation, persistence, audit
// and notification into the operations the HTTP layer exposes.  Every
// mutation runs in one transaction that covers the row write and its
// audit entry; notifications go out only after commit.
package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/booking-record-engine/internal/model"
	"github.com/iliyamo/booking-record-engine/internal/repository"
)

// Policy holds the tunable record rules.
type Policy struct {
	RestoreWindow   time.Duration
	BulkMaxTargets  int
	AllowHardDelete bool
}

// DefaultPolicy mirrors the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{RestoreWindow: 24 * time.Hour, BulkMaxTargets: 1000, AllowHardDelete: true}
}

// SystemActor is recorded when a request carries no identity.
const SystemActor = "system"

func actorOf(meta model.RequestMeta) string {
	if meta.Actor == "" {
		return SystemActor
	}
	return meta.Actor
}

// withTx runs fn inside a transaction and commits when it returns nil.
// Any error, or a panic, rolls back.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return repository.TranslateDBError(err, "transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return repository.TranslateDBError(err, "transaction")
	}
	committed = true
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// newAuditEntry fills the request metadata every ledger row carries.
func newAuditEntry(bookingID uint64, action string, meta model.RequestMeta, now time.Time) *model.AuditEntry {
	return &model.AuditEntry{
		BookingID: bookingID,
		Actor:     actorOf(meta),
		Action:    action,
		IPAddress: optional(meta.IPAddress),
		UserAgent: optional(meta.UserAgent),
		RequestID: optional(meta.RequestID),
		CreatedAt: now,
	}
}

func mutationEvent(rec model.Reservation, action string, changed []string, meta model.RequestMeta, now time.Time) model.MutationEvent {
	return model.MutationEvent{
		BookingID:         rec.ID,
		Action:            action,
		Actor:             actorOf(meta),
		LockVersion:       rec.LockVersion,
		ReservationNumber: rec.ReservationNumber,
		ChangedFields:     changed,
		RequestID:         meta.RequestID,
		OccurredAt:        now,
	}
}
