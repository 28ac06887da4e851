package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/booking-record-engine/internal/audit"
	"github.com/iliyamo/booking-record-engine/internal/model"
	"github.com/iliyamo/booking-record-engine/internal/normalize"
	"github.com/iliyamo/booking-record-engine/internal/notify"
	"github.com/iliyamo/booking-record-engine/internal/repository"
	"github.com/iliyamo/booking-record-engine/internal/validate"
)

// DetailHistoryLimit is how many audit entries Detail embeds.
const DetailHistoryLimit = 50

// ReservationService owns the single-record operations.
type ReservationService struct {
	db       *sql.DB
	records  *repository.ReservationRepo
	fields   *repository.FieldDefinitionRepo
	audits   *repository.AuditRepo
	notifier notify.Notifier
	log      *zap.Logger
	policy   Policy
	now      func() time.Time
}

// NewReservationService wires the service.  A nil notifier or logger is
// replaced by a no-op.
func NewReservationService(db *sql.DB, records *repository.ReservationRepo, fields *repository.FieldDefinitionRepo,
	audits *repository.AuditRepo, notifier notify.Notifier, log *zap.Logger, policy Policy) *ReservationService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ReservationService{
		db: db, records: records, fields: fields, audits: audits,
		notifier: notifier, log: log, policy: policy,
		now: func() time.Time { return time.Now().UTC().Truncate(time.Second) },
	}
}

// CreateInput is a raw record as received from a client or an import.
type CreateInput struct {
	Fields     map[string]any // fixed fields, unnormalized
	Extras     map[string]any
	OriginHash *string
}

// UpdateInput is a partial update.  Keys absent from Fields keep their
// stored value; in Extras a nil value removes the key.
type UpdateInput struct {
	Fields map[string]any
	Extras map[string]any
}

// Expectation is the optimistic-concurrency token a writer presents.  At
// most one member is normally set; when both are, both are checked.
type Expectation struct {
	LockVersion     *int
	UnmodifiedSince *time.Time
}

// activeDefinitions reads the live catalog.  It is called once per write,
// never cached.
func (s *ReservationService) activeDefinitions(ctx context.Context) ([]model.FieldDefinition, error) {
	defs, err := s.fields.List(ctx, true, "")
	if err != nil {
		return nil, err
	}
	return defs, nil
}

func (s *ReservationService) emit(ctx context.Context, ev model.MutationEvent) {
	s.notifier.Notify(ctx, ev)
	s.log.Debug("mutation committed",
		zap.Uint64("booking_id", ev.BookingID),
		zap.String("action", ev.Action),
		zap.Int("lock_version", ev.LockVersion),
		zap.String("request_id", ev.RequestID))
}

func validationError(res validate.ReservationResult) error {
	return repository.Validation("reservation failed validation", res.Errors)
}

func duplicateError(number, channel string, existing uint64) error {
	e := repository.Conflict(repository.CodeConflictDuplicate,
		fmt.Sprintf("reservation %s already exists on channel %q", number, channel))
	e.Details = map[string]any{"existing_id": existing}
	return e
}

// Create normalizes, validates and stores a new record with its create
// audit entry.  A live record with the same reservation number and
// channel is a CONFLICT_DUPLICATE.
func (s *ReservationService) Create(ctx context.Context, in CreateInput, meta model.RequestMeta) (*model.Reservation, error) {
	now := s.now()
	defs, err := s.activeDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	core := normalize.Core(in.Fields, now)
	extras := normalize.Extras(in.Extras, defs)
	res := validate.Reservation(core, extras, defs)
	if !res.Valid {
		return nil, validationError(res)
	}

	actor := actorOf(meta)
	rec := model.Reservation{
		Core:        core,
		Extras:      extras,
		Flags:       validate.CheckDataQuality(core, extras, defs),
		LockVersion: model.InitialLockVersion,
		OriginHash:  in.OriginHash,
		CreatedBy:   actor,
		UpdatedBy:   actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	diff := audit.Diff(map[string]any{}, audit.Tracked(core, extras))

	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		if id, found, err := s.records.FindActiveDuplicateTx(ctx, tx, core.ReservationNumber, core.Channel, 0); err != nil {
			return err
		} else if found {
			return duplicateError(core.ReservationNumber, core.Channel, id)
		}
		if err := s.records.CreateTx(ctx, tx, &rec); err != nil {
			return err
		}
		entry := newAuditEntry(rec.ID, model.ActionCreate, meta, now)
		entry.Diff = diff
		entry.CurrentValues = audit.Snapshot(rec)
		return s.audits.AppendTx(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, mutationEvent(rec, model.ActionCreate, audit.Fields(diff), meta, now))
	return &rec, nil
}

// Import creates a record from parsed free text.  The raw text is
// fingerprinted; a live record imported from the same text is a conflict
// carrying that record's id.
func (s *ReservationService) Import(ctx context.Context, rawText string, in CreateInput, meta model.RequestMeta) (*model.Reservation, error) {
	if rawText != "" {
		hash := normalize.OriginHash(rawText)
		existing, err := s.records.FindByOriginHash(ctx, hash)
		switch {
		case err == nil:
			e := repository.Conflict(repository.CodeConflictDuplicate, "this text was already imported")
			e.Details = map[string]any{"existing_id": existing.ID}
			return nil, e
		case repository.KindOf(err) != repository.KindNotFound:
			return nil, err
		}
		in.OriginHash = &hash
	}
	return s.Create(ctx, in, meta)
}

// Get returns a live record.
func (s *ReservationService) Get(ctx context.Context, id uint64) (*model.Reservation, error) {
	return s.records.GetByID(ctx, id, false)
}

// DetailMetadata summarises a record for the detail view.
type DetailMetadata struct {
	AuditCount       int64     `json:"audit_count"`
	LockVersion      int       `json:"lock_version"`
	LastModified     time.Time `json:"last_modified"`
	HasQualityIssues bool      `json:"has_quality_issues"`
}

// Detail is a record with its active catalog and recent history.
type Detail struct {
	Reservation      *model.Reservation      `json:"reservation"`
	FieldDefinitions []model.FieldDefinition `json:"field_definitions"`
	AuditHistory     []model.AuditEntry      `json:"audit_history"`
	Metadata         DetailMetadata          `json:"metadata"`
}

// Detail loads a record, the active field definitions and the latest
// audit entries.
func (s *ReservationService) Detail(ctx context.Context, id uint64) (*Detail, error) {
	rec, err := s.records.GetByID(ctx, id, false)
	if err != nil {
		return nil, err
	}
	defs, err := s.activeDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	history, total, err := s.audits.Query(ctx, id, 1, DetailHistoryLimit, "")
	if err != nil {
		return nil, err
	}
	return &Detail{
		Reservation:      rec,
		FieldDefinitions: defs,
		AuditHistory:     history,
		Metadata: DetailMetadata{
			AuditCount:       total,
			LockVersion:      rec.LockVersion,
			LastModified:     rec.UpdatedAt,
			HasQualityIssues: len(rec.Flags.Missing)+len(rec.Flags.Ambiguous) > 0,
		},
	}, nil
}

// List returns a page of live records.
func (s *ReservationService) List(ctx context.Context, q *repository.ListQuery) ([]model.Reservation, int64, error) {
	return s.records.List(ctx, q)
}

// checkExpectation compares the caller's token against the locked row.
func checkExpectation(cur *model.Reservation, expect Expectation) error {
	if expect.LockVersion != nil && *expect.LockVersion != cur.LockVersion {
		e := repository.Conflict(repository.CodeConflictVersion,
			fmt.Sprintf("record is at version %d, not %d; reload and retry", cur.LockVersion, *expect.LockVersion))
		e.Details = map[string]any{"current_version": cur.LockVersion}
		return e
	}
	if expect.UnmodifiedSince != nil {
		stored := cur.UpdatedAt.UTC().Truncate(time.Second)
		if stored.After(expect.UnmodifiedSince.UTC().Truncate(time.Second)) {
			e := repository.Conflict(repository.CodeConflictTimestamp, "record was modified after the supplied timestamp; reload and retry")
			e.Details = map[string]any{"updated_at": cur.UpdatedAt}
			return e
		}
	}
	return nil
}

func has(m map[string]any, k string) bool {
	_, ok := m[k]
	return ok
}

var coreFieldSet = func() map[string]bool {
	m := make(map[string]bool, len(model.CoreFields))
	for _, f := range model.CoreFields {
		m[f] = true
	}
	return m
}()

// mergeCore overlays patch on the stored fixed fields and clears the
// derived values whose inputs changed, so the normalizer derives them
// again.  A value the client sends explicitly always wins.
func mergeCore(cur model.Core, patch map[string]any) map[string]any {
	raw := cur.Values()
	for k, v := range patch {
		if coreFieldSet[k] {
			raw[k] = v
		}
	}

	if !has(patch, "adult_unit_price") && (has(patch, "total_amount") || has(patch, "people_adult")) {
		delete(raw, "adult_unit_price")
		if !has(patch, "child_unit_price") && cur.ChildUnitPrice != nil && cur.AdultUnitPrice != nil &&
			model.MoneyEqual(*cur.ChildUnitPrice, *cur.AdultUnitPrice) {
			delete(raw, "child_unit_price")
		}
	}

	headcountChanged := has(patch, "people_adult") || has(patch, "people_child") || has(patch, "people_infant")
	if headcountChanged && !has(patch, "guest_count") &&
		cur.GuestCount == cur.PeopleAdult+cur.PeopleChild+cur.PeopleInfant {
		delete(raw, "guest_count")
	}

	switch {
	case has(patch, "usage_datetime") && !has(patch, "usage_date") && !has(patch, "usage_time"):
		delete(raw, "usage_date")
		delete(raw, "usage_time")
	case !has(patch, "usage_datetime") && (has(patch, "usage_date") || has(patch, "usage_time")):
		delete(raw, "usage_datetime")
	}
	return raw
}

// mergeExtras deep-merges patch into stored.  A nil patch value deletes
// the key; nested maps merge key by key.
func mergeExtras(stored, patch map[string]any) map[string]any {
	out := make(map[string]any, len(stored)+len(patch))
	for k, v := range stored {
		out[k] = v
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		if pm, ok := v.(map[string]any); ok {
			if sm, ok := out[k].(map[string]any); ok {
				out[k] = mergeExtras(sm, pm)
				continue
			}
		}
		out[k] = v
	}
	return out
}

// patchExtras normalizes only the keys the patch names and overlays them
// on stored.  Stored values the patch leaves alone are kept as written,
// even when their definition has since been deactivated or retyped.  A
// nil patch value, or one that normalizes to nothing, removes the key;
// keys outside the active catalog are ignored.
func patchExtras(stored, patch map[string]any, defs []model.FieldDefinition) map[string]any {
	active := make(map[string]bool, len(defs))
	for _, d := range defs {
		if d.IsActive {
			active[d.Key] = true
		}
	}
	normalized := normalize.Extras(patch, defs)
	overlay := make(map[string]any, len(patch))
	for k, v := range patch {
		switch {
		case v == nil:
			overlay[k] = nil
		case active[k]:
			overlay[k] = normalized[k]
		}
	}
	return mergeExtras(stored, overlay)
}

// untouchedExtrasValid drops value errors on extras keys the patch did not
// name.  Required checks still apply to every active key.
func untouchedExtrasValid(res validate.ReservationResult, patch map[string]any) validate.ReservationResult {
	kept := make([]validate.FieldError, 0, len(res.Errors))
	for _, e := range res.Errors {
		if key, ok := strings.CutPrefix(e.Field, "extras."); ok && e.Code != validate.CodeRequired {
			if _, named := patch[key]; !named {
				continue
			}
		}
		kept = append(kept, e)
	}
	res.Errors = kept
	res.Valid = len(kept) == 0
	return res
}

// withFlags recomputes the quality flags of rec against the live catalog.
func withFlags(rec *model.Reservation, defs []model.FieldDefinition) {
	rec.Flags = validate.CheckDataQuality(rec.Core, rec.Extras, defs)
}

// Update applies a partial update under the row lock.  The stored version
// or timestamp must match expect.  A patch that changes nothing returns
// the record untouched: no version bump, no audit entry, no event.
func (s *ReservationService) Update(ctx context.Context, id uint64, in UpdateInput, expect Expectation, meta model.RequestMeta) (*model.Reservation, error) {
	if has(in.Fields, "reservation_number") && normalize.String(in.Fields["reservation_number"]) == nil {
		return nil, repository.Validation("reservation failed validation", []validate.FieldError{{
			Field: "reservation_number", Code: validate.CodeRequired,
			Message: validate.Message(validate.CodeRequired, "reservation_number"),
		}})
	}
	now := s.now()
	defs, err := s.activeDefinitions(ctx)
	if err != nil {
		return nil, err
	}

	var (
		out  *model.Reservation
		diff model.Diff
	)
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		cur, err := s.records.GetForUpdateTx(ctx, tx, id, false)
		if err != nil {
			return err
		}
		if err := checkExpectation(cur, expect); err != nil {
			return err
		}

		core := normalize.Core(mergeCore(cur.Core, in.Fields), now)
		extras := patchExtras(cur.Extras, in.Extras, defs)
		res := untouchedExtrasValid(validate.Reservation(core, extras, defs), in.Extras)
		if !res.Valid {
			return validationError(res)
		}

		diff = audit.Diff(audit.Tracked(cur.Core, cur.Extras), audit.Tracked(core, extras))
		if len(diff) == 0 {
			out = cur
			return nil
		}
		if core.ReservationNumber != cur.ReservationNumber || core.Channel != cur.Channel {
			if dup, found, err := s.records.FindActiveDuplicateTx(ctx, tx, core.ReservationNumber, core.Channel, id); err != nil {
				return err
			} else if found {
				return duplicateError(core.ReservationNumber, core.Channel, dup)
			}
		}

		updated := *cur
		updated.Core = core
		updated.Extras = extras
		withFlags(&updated, defs)
		updated.UpdatedBy = actorOf(meta)
		updated.UpdatedAt = now
		if err := s.records.UpdateTx(ctx, tx, &updated, cur.LockVersion); err != nil {
			return err
		}
		entry := newAuditEntry(id, model.ActionUpdate, meta, now)
		entry.Diff = diff
		entry.PreviousValues = audit.Snapshot(*cur)
		entry.CurrentValues = audit.Snapshot(updated)
		if err := s.audits.AppendTx(ctx, tx, entry); err != nil {
			return err
		}
		out = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(diff) > 0 {
		s.emit(ctx, mutationEvent(*out, model.ActionUpdate, audit.Fields(diff), meta, now))
	}
	return out, nil
}

// statusDiff records the change of the two status fields.
func statusDiff(before, after model.Core) model.Diff {
	return audit.Diff(
		map[string]any{"payment_status": before.PaymentStatus, "review_status": before.ReviewStatus},
		map[string]any{"payment_status": after.PaymentStatus, "review_status": after.ReviewStatus},
	)
}

// UpdateStatus is the quick status change.  Either status may be nil to
// keep it.  Synonyms are accepted ("paid" becomes "confirmed").
func (s *ReservationService) UpdateStatus(ctx context.Context, id uint64, payment, review *string, expect Expectation, meta model.RequestMeta) (*model.Reservation, error) {
	var errs []validate.FieldError
	if payment != nil {
		p := normalize.PaymentStatus(*payment)
		if !model.IsPaymentStatus(p) {
			errs = append(errs, validate.FieldError{Field: "payment_status", Code: validate.CodeEnum, Message: validate.Message(validate.CodeEnum, "payment_status")})
		}
		payment = &p
	}
	if review != nil {
		r := normalize.ReviewStatus(*review)
		if !model.IsReviewStatus(r) {
			errs = append(errs, validate.FieldError{Field: "review_status", Code: validate.CodeEnum, Message: validate.Message(validate.CodeEnum, "review_status")})
		}
		review = &r
	}
	if len(errs) > 0 {
		return nil, repository.Validation("invalid status", errs)
	}
	if payment == nil && review == nil {
		return nil, repository.Validation("payment_status or review_status is required", nil)
	}

	now := s.now()
	defs, err := s.activeDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	var (
		out  *model.Reservation
		diff model.Diff
	)
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		cur, err := s.records.GetForUpdateTx(ctx, tx, id, false)
		if err != nil {
			return err
		}
		if err := checkExpectation(cur, expect); err != nil {
			return err
		}
		updated := *cur
		if payment != nil {
			updated.PaymentStatus = *payment
		}
		if review != nil {
			updated.ReviewStatus = *review
		}
		diff = statusDiff(cur.Core, updated.Core)
		if len(diff) == 0 {
			out = cur
			return nil
		}
		withFlags(&updated, defs)
		updated.UpdatedBy = actorOf(meta)
		updated.UpdatedAt = now
		if err := s.records.UpdateTx(ctx, tx, &updated, cur.LockVersion); err != nil {
			return err
		}
		entry := newAuditEntry(id, model.ActionStatusChange, meta, now)
		entry.Diff = diff
		entry.PreviousValues = audit.Snapshot(*cur)
		entry.CurrentValues = audit.Snapshot(updated)
		if err := s.audits.AppendTx(ctx, tx, entry); err != nil {
			return err
		}
		out = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(diff) > 0 {
		s.emit(ctx, mutationEvent(*out, model.ActionStatusChange, audit.Fields(diff), meta, now))
	}
	return out, nil
}

// Cancel sets both statuses to cancelled.  Cancelling a record whose
// payment is already cancelled is a business-rule violation.
func (s *ReservationService) Cancel(ctx context.Context, id uint64, reason string, meta model.RequestMeta) (*model.Reservation, error) {
	now := s.now()
	defs, err := s.activeDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	var (
		out  model.Reservation
		diff model.Diff
	)
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		cur, err := s.records.GetForUpdateTx(ctx, tx, id, false)
		if err != nil {
			return err
		}
		if cur.PaymentStatus == model.PaymentCancelled {
			return repository.BusinessRule("reservation is already cancelled")
		}
		out = *cur
		out.PaymentStatus = model.PaymentCancelled
		out.ReviewStatus = model.ReviewCancelled
		withFlags(&out, defs)
		out.UpdatedBy = actorOf(meta)
		out.UpdatedAt = now
		diff = statusDiff(cur.Core, out.Core)
		if err := s.records.UpdateTx(ctx, tx, &out, cur.LockVersion); err != nil {
			return err
		}
		entry := newAuditEntry(id, model.ActionCancel, meta, now)
		entry.Diff = diff
		entry.Reason = optional(reason)
		entry.PreviousValues = audit.Snapshot(*cur)
		entry.CurrentValues = audit.Snapshot(out)
		return s.audits.AppendTx(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, mutationEvent(out, model.ActionCancel, audit.Fields(diff), meta, now))
	return &out, nil
}

// Delete soft-deletes a record, or removes it when hard is set and the
// policy allows it.  Either way one delete audit entry is written; a hard
// delete's entry keeps the full previous snapshot and no current values.
func (s *ReservationService) Delete(ctx context.Context, id uint64, reason string, hard bool, meta model.RequestMeta) error {
	if hard && !s.policy.AllowHardDelete {
		return repository.Forbidden("hard delete is disabled")
	}
	now := s.now()
	var defs []model.FieldDefinition
	if !hard {
		var err error
		if defs, err = s.activeDefinitions(ctx); err != nil {
			return err
		}
	}
	var ev model.MutationEvent
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		// A hard delete may purge a record that is already soft-deleted.
		cur, err := s.records.GetForUpdateTx(ctx, tx, id, hard)
		if err != nil {
			return err
		}
		entry := newAuditEntry(id, model.ActionDelete, meta, now)
		entry.Reason = optional(reason)
		entry.PreviousValues = audit.Snapshot(*cur)

		if hard {
			if err := s.records.HardDeleteTx(ctx, tx, id, cur.LockVersion); err != nil {
				return err
			}
			entry.Diff = model.Diff{"hard_delete": {Old: false, New: true}}
			gone := *cur
			gone.LockVersion = cur.LockVersion + 1
			ev = mutationEvent(gone, model.ActionDelete, []string{"hard_delete"}, meta, now)
			return s.audits.AppendTx(ctx, tx, entry)
		}

		deleted := *cur
		withFlags(&deleted, defs)
		if err := s.records.SoftDeleteTx(ctx, tx, &deleted, actorOf(meta), now); err != nil {
			return err
		}
		entry.Diff = model.Diff{"is_deleted": {Old: false, New: true}}
		entry.CurrentValues = audit.Snapshot(deleted)
		ev = mutationEvent(deleted, model.ActionDelete, []string{"is_deleted"}, meta, now)
		return s.audits.AppendTx(ctx, tx, entry)
	})
	if err != nil {
		return err
	}
	s.emit(ctx, ev)
	return nil
}

// Restore brings a soft-deleted record back within the restore window,
// measured from deleted_at (updated_at for rows deleted before deleted_at
// was tracked).  The record returns with review_status needs_review and
// the requested payment status, pending by default.
func (s *ReservationService) Restore(ctx context.Context, id uint64, newStatus string, meta model.RequestMeta) (*model.Reservation, error) {
	status := model.PaymentPending
	if strings.TrimSpace(newStatus) != "" {
		status = normalize.PaymentStatus(newStatus)
	}
	if !model.IsPaymentStatus(status) {
		return nil, repository.Validation("invalid payment status", []validate.FieldError{{
			Field: "payment_status", Code: validate.CodeEnum, Message: validate.Message(validate.CodeEnum, "payment_status"),
		}})
	}
	now := s.now()
	defs, err := s.activeDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	var (
		out  model.Reservation
		diff model.Diff
	)
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		cur, err := s.records.GetForUpdateTx(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if !cur.IsDeleted {
			return repository.BusinessRule("reservation is not deleted")
		}
		deletedAt := cur.UpdatedAt
		if cur.DeletedAt != nil {
			deletedAt = *cur.DeletedAt
		}
		if now.Sub(deletedAt) > s.policy.RestoreWindow {
			return repository.Forbidden(fmt.Sprintf("restore window of %s has passed", s.policy.RestoreWindow))
		}
		if dup, found, err := s.records.FindActiveDuplicateTx(ctx, tx, cur.ReservationNumber, cur.Channel, id); err != nil {
			return err
		} else if found {
			return duplicateError(cur.ReservationNumber, cur.Channel, dup)
		}

		out = *cur
		out.PaymentStatus = status
		out.ReviewStatus = model.ReviewNeedsReview
		withFlags(&out, defs)
		if err := s.records.RestoreTx(ctx, tx, &out, actorOf(meta), now); err != nil {
			return err
		}
		diff = statusDiff(cur.Core, out.Core)
		diff["is_deleted"] = model.Change{Old: true, New: false}
		entry := newAuditEntry(id, model.ActionRestore, meta, now)
		entry.Diff = diff
		entry.PreviousValues = audit.Snapshot(*cur)
		entry.CurrentValues = audit.Snapshot(out)
		return s.audits.AppendTx(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, mutationEvent(out, model.ActionRestore, audit.Fields(diff), meta, now))
	return &out, nil
}
