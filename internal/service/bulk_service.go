package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/booking-record-engine/internal/audit"
	"github.com/iliyamo/booking-record-engine/internal/export"
	"github.com/iliyamo/booking-record-engine/internal/model"
	"github.com/iliyamo/booking-record-engine/internal/normalize"
	"github.com/iliyamo/booking-record-engine/internal/notify"
	"github.com/iliyamo/booking-record-engine/internal/repository"
	"github.com/iliyamo/booking-record-engine/internal/validate"
)

// Bulk actions.
const (
	BulkCancel = "cancel"
	BulkStatus = "status"
	BulkDelete = "delete"
	BulkExport = "export"
)

// Item outcomes.
const (
	ItemSuccess = "success"
	ItemSkipped = "skipped"
	ItemError   = "error"
)

// BulkRequest is one bulk call.  Targets come from IDs when given,
// otherwise from Filters.
type BulkRequest struct {
	Action       string             `json:"action"`
	IDs          []uint64           `json:"ids"`
	Filters      *repository.Filter `json:"filters"`
	Reason       string             `json:"reason"`
	NewStatus    string             `json:"new_status"`
	ExportFields []string           `json:"export_fields"`
	Format       string             `json:"format"`
}

// ItemResult is the outcome for one target id.
type ItemResult struct {
	ID                uint64  `json:"id"`
	Status            string  `json:"status"`
	ReservationNumber string  `json:"reservation_number,omitempty"`
	KoreanName        *string `json:"korean_name,omitempty"`
	Reason            string  `json:"reason,omitempty"`
}

// BulkResult aggregates a mutating bulk call.
type BulkResult struct {
	BatchID   string       `json:"batch_id"`
	Action    string       `json:"action"`
	Total     int          `json:"total"`
	Succeeded int          `json:"succeeded"`
	Skipped   int          `json:"skipped"`
	Failed    int          `json:"failed"`
	Results   []ItemResult `json:"results"`
}

func (r *BulkResult) add(item ItemResult) {
	switch item.Status {
	case ItemSuccess:
		r.Succeeded++
	case ItemSkipped:
		r.Skipped++
	default:
		r.Failed++
	}
	r.Results = append(r.Results, item)
}

// ExportResult holds everything needed to render an export.
type ExportResult struct {
	Format  string
	Fields  []string
	Records []model.Reservation
}

// BulkService runs operations over many records.
type BulkService struct {
	db       *sql.DB
	records  *repository.ReservationRepo
	fields   *repository.FieldDefinitionRepo
	audits   *repository.AuditRepo
	notifier notify.Notifier
	log      *zap.Logger
	policy   Policy
	now      func() time.Time
}

// NewBulkService wires the service.
func NewBulkService(db *sql.DB, records *repository.ReservationRepo, fields *repository.FieldDefinitionRepo,
	audits *repository.AuditRepo, notifier notify.Notifier, log *zap.Logger, policy Policy) *BulkService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if policy.BulkMaxTargets < 1 {
		policy.BulkMaxTargets = DefaultPolicy().BulkMaxTargets
	}
	return &BulkService{
		db: db, records: records, fields: fields, audits: audits,
		notifier: notifier, log: log, policy: policy,
		now: func() time.Time { return time.Now().UTC().Truncate(time.Second) },
	}
}

// CheckAction rejects unknown actions before any other work happens.
func CheckAction(action string) error {
	switch action {
	case BulkCancel, BulkStatus, BulkDelete, BulkExport:
		return nil
	}
	return repository.Validation(fmt.Sprintf("unknown bulk action %q", action), []validate.FieldError{{
		Field: "action", Code: validate.CodeEnum, Message: validate.Message(validate.CodeEnum, "action"),
	}})
}

// ResolveTargets returns the target ids in ascending order.  Explicit ids
// are deduplicated; a filter resolves at most BulkMaxTargets ids.  Zero
// targets is an error.
func (s *BulkService) ResolveTargets(ctx context.Context, req BulkRequest) ([]uint64, error) {
	limit := s.policy.BulkMaxTargets
	var ids []uint64
	switch {
	case len(req.IDs) > 0:
		seen := make(map[uint64]bool, len(req.IDs))
		for _, id := range req.IDs {
			if id == 0 || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
		if len(ids) > limit {
			return nil, repository.Validation(fmt.Sprintf("at most %d ids per bulk call", limit), nil)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	case req.Filters != nil && !req.Filters.IsEmpty():
		f := *req.Filters
		f.IncludeDeleted = false
		var err error
		if ids, err = s.records.ResolveIDs(ctx, f, limit); err != nil {
			return nil, err
		}
	default:
		return nil, repository.Validation("ids or filters are required", nil)
	}
	if len(ids) == 0 {
		return nil, repository.Validation("no reservations matched the request", nil)
	}
	return ids, nil
}

// Execute runs cancel, status or delete over the targets in one
// transaction.  Items that are already in the target state are skipped
// and items that fail are reported; neither stops the batch, which
// commits with whatever succeeded.  Only a bad request fails the call.
func (s *BulkService) Execute(ctx context.Context, req BulkRequest, meta model.RequestMeta) (*BulkResult, error) {
	if err := CheckAction(req.Action); err != nil {
		return nil, err
	}
	if req.Action == BulkExport {
		return nil, repository.Validation("export does not mutate; use Export", nil)
	}
	var newStatus string
	if req.Action == BulkStatus {
		newStatus = normalize.PaymentStatus(req.NewStatus)
		if req.NewStatus == "" || !model.IsPaymentStatus(newStatus) {
			return nil, repository.Validation("new_status must be a valid payment status", []validate.FieldError{{
				Field: "new_status", Code: validate.CodeEnum, Message: validate.Message(validate.CodeEnum, "new_status"),
			}})
		}
	}
	ids, err := s.ResolveTargets(ctx, req)
	if err != nil {
		return nil, err
	}
	// read once per batch; every item's flags are recomputed against it
	defs, err := s.fields.List(ctx, true, "")
	if err != nil {
		return nil, err
	}

	batchID := meta.RequestID
	if batchID == "" {
		batchID = uuid.NewString()
	}
	now := s.now()
	result := &BulkResult{BatchID: batchID, Action: req.Action, Total: len(ids), Results: make([]ItemResult, 0, len(ids))}
	var events []model.MutationEvent

	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, id := range ids {
			itemMeta := meta
			itemMeta.RequestID = batchID + "-" + strconv.FormatUint(id, 10)

			if _, err := tx.ExecContext(ctx, "SAVEPOINT bulk_item"); err != nil {
				return repository.TranslateDBError(err, "bulk savepoint")
			}
			item, ev, err := s.applyOne(ctx, tx, id, req, newStatus, defs, itemMeta, now)
			if err != nil {
				if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT bulk_item"); rbErr != nil {
					return repository.TranslateDBError(rbErr, "bulk savepoint")
				}
				s.log.Warn("bulk item failed", zap.String("batch_id", batchID), zap.Uint64("id", id), zap.Error(err))
				result.add(ItemResult{ID: id, Status: ItemError, Reason: itemReason(err)})
				continue
			}
			if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT bulk_item"); err != nil {
				return repository.TranslateDBError(err, "bulk savepoint")
			}
			result.add(item)
			if ev != nil {
				events = append(events, *ev)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, ev := range events {
		s.notifier.Notify(ctx, ev)
	}
	s.log.Info("bulk operation committed",
		zap.String("batch_id", batchID), zap.String("action", req.Action),
		zap.Int("total", result.Total), zap.Int("succeeded", result.Succeeded),
		zap.Int("skipped", result.Skipped), zap.Int("failed", result.Failed))
	return result, nil
}

func itemReason(err error) string {
	if repository.KindOf(err) == repository.KindNotFound {
		return "not found"
	}
	var e *repository.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// applyOne mutates a single target.  A returned error means the item
// failed; skipped items return a result and no error.
func (s *BulkService) applyOne(ctx context.Context, tx *sql.Tx, id uint64, req BulkRequest, newStatus string,
	defs []model.FieldDefinition, meta model.RequestMeta, now time.Time) (ItemResult, *model.MutationEvent, error) {
	cur, err := s.records.GetForUpdateTx(ctx, tx, id, true)
	if err != nil {
		return ItemResult{}, nil, err
	}
	item := ItemResult{ID: id, ReservationNumber: cur.ReservationNumber, KoreanName: cur.KoreanName}
	if cur.IsDeleted {
		if req.Action == BulkDelete {
			item.Status, item.Reason = ItemSkipped, "already deleted"
			return item, nil, nil
		}
		return ItemResult{}, nil, repository.NotFound("reservation")
	}

	next := *cur
	withFlags(&next, defs)
	var (
		action string
		diff   model.Diff
	)
	switch req.Action {
	case BulkCancel:
		if cur.PaymentStatus == model.PaymentCancelled {
			item.Status, item.Reason = ItemSkipped, "already cancelled"
			return item, nil, nil
		}
		next.PaymentStatus = model.PaymentCancelled
		next.ReviewStatus = model.ReviewCancelled
		next.UpdatedBy = actorOf(meta)
		next.UpdatedAt = now
		action, diff = model.ActionBulkCancel, statusDiff(cur.Core, next.Core)
		err = s.records.UpdateTx(ctx, tx, &next, cur.LockVersion)
	case BulkStatus:
		if cur.PaymentStatus == newStatus {
			item.Status, item.Reason = ItemSkipped, "already "+newStatus
			return item, nil, nil
		}
		next.PaymentStatus = newStatus
		next.UpdatedBy = actorOf(meta)
		next.UpdatedAt = now
		action, diff = model.ActionBulkUpdate, statusDiff(cur.Core, next.Core)
		err = s.records.UpdateTx(ctx, tx, &next, cur.LockVersion)
	case BulkDelete:
		action, diff = model.ActionBulkDelete, model.Diff{"is_deleted": {Old: false, New: true}}
		err = s.records.SoftDeleteTx(ctx, tx, &next, actorOf(meta), now)
	}
	if err != nil {
		return ItemResult{}, nil, err
	}

	entry := newAuditEntry(id, action, meta, now)
	entry.Diff = diff
	entry.Reason = optional(req.Reason)
	entry.PreviousValues = audit.Snapshot(*cur)
	entry.CurrentValues = audit.Snapshot(next)
	if err := s.audits.AppendTx(ctx, tx, entry); err != nil {
		return ItemResult{}, nil, err
	}
	item.Status = ItemSuccess
	ev := mutationEvent(next, action, audit.Fields(diff), meta, now)
	return item, &ev, nil
}

// Export resolves targets and columns and loads the rows.  Nothing is
// mutated and no transaction is opened.
func (s *BulkService) Export(ctx context.Context, req BulkRequest) (*ExportResult, error) {
	if err := CheckAction(req.Action); err != nil {
		return nil, err
	}
	format := req.Format
	if format == "" {
		format = export.FormatCSV
	}
	if format != export.FormatCSV && format != export.FormatXLSX {
		return nil, repository.Validation(fmt.Sprintf("unsupported export format %q", req.Format), nil)
	}
	defs, err := s.fields.List(ctx, false, "")
	if err != nil {
		return nil, err
	}
	fields, err := export.ResolveFields(req.ExportFields, defs)
	if err != nil {
		return nil, repository.Validation(err.Error(), nil)
	}
	ids, err := s.ResolveTargets(ctx, req)
	if err != nil {
		return nil, err
	}
	recs, err := s.records.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return &ExportResult{Format: format, Fields: fields, Records: recs}, nil
}
