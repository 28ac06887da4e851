package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/booking-record-engine/internal/model"
)

// AuditRepo is the append-only mutation ledger.  AppendTx is the only
// write; there is deliberately no update or delete method.
type AuditRepo struct {
	db *sql.DB
}

// NewAuditRepo returns a new AuditRepo bound to the given database.
func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{db: db} }

// RecentLimit caps the rows Recent returns.
const RecentLimit = 500

// TopActorLimit caps the actor ranking in Statistics.
const TopActorLimit = 10

const auditColumns = `id, booking_id, actor, action, diff, previous_values, current_values,
       reason, ip_address, user_agent, request_id, created_at`

func scanAudit(s rowScanner) (*model.AuditEntry, error) {
	var (
		e                                model.AuditEntry
		diff, prev, cur                  []byte
		reason, ip, userAgent, requestID sql.NullString
	)
	if err := s.Scan(&e.ID, &e.BookingID, &e.Actor, &e.Action, &diff, &prev, &cur,
		&reason, &ip, &userAgent, &requestID, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Diff = model.Diff{}
	if err := decodeJSONColumn(diff, &e.Diff); err != nil {
		return nil, fmt.Errorf("decode diff of audit %d: %w", e.ID, err)
	}
	if err := decodeJSONColumn(prev, &e.PreviousValues); err != nil {
		return nil, fmt.Errorf("decode previous values of audit %d: %w", e.ID, err)
	}
	if err := decodeJSONColumn(cur, &e.CurrentValues); err != nil {
		return nil, fmt.Errorf("decode current values of audit %d: %w", e.ID, err)
	}
	e.Reason = nullString(reason)
	e.IPAddress = nullString(ip)
	e.UserAgent = nullString(userAgent)
	e.RequestID = nullString(requestID)
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

func decodeJSONColumn(b []byte, dst any) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	return json.Unmarshal(b, dst)
}

func optionalString(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

// AppendTx writes e inside tx so the ledger row commits or rolls back with
// the mutation it describes.  e.ID is set on success.
func (r *AuditRepo) AppendTx(ctx context.Context, tx *sql.Tx, e *model.AuditEntry) error {
	if e.Action == "" {
		return Internal("audit entry without action", nil)
	}
	diff, err := nullableJSON(e.Diff)
	if err != nil {
		return Internal("encode diff", err)
	}
	if e.Diff == nil {
		diff = nil
	}
	prev, err := nullableJSON(mapOrNil(e.PreviousValues))
	if err != nil {
		return Internal("encode previous values", err)
	}
	cur, err := nullableJSON(mapOrNil(e.CurrentValues))
	if err != nil {
		return Internal("encode current values", err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	const q = `INSERT INTO reservation_audits
                   (booking_id, actor, action, diff, previous_values, current_values,
                    reason, ip_address, user_agent, request_id, created_at)
               VALUES (?,?,?,?,?,?,?,?,?,?,?)`
	res, err := tx.ExecContext(ctx, q, e.BookingID, e.Actor, e.Action, diff, prev, cur,
		optionalString(e.Reason), optionalString(e.IPAddress), optionalString(e.UserAgent),
		optionalString(e.RequestID), e.CreatedAt.UTC())
	if err != nil {
		return TranslateDBError(err, "audit entry")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return TranslateDBError(err, "audit entry")
	}
	e.ID = uint64(id)
	return nil
}

// mapOrNil keeps nil maps typed as untyped nil so they are stored as NULL.
func mapOrNil(m map[string]any) any {
	if m == nil {
		return nil
	}
	return m
}

func (r *AuditRepo) collect(ctx context.Context, q string, args ...any) ([]model.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, TranslateDBError(err, "audit entry")
	}
	defer rows.Close()
	out := []model.AuditEntry{}
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, TranslateDBError(err, "audit entry")
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, TranslateDBError(err, "audit entry")
	}
	return out, nil
}

// ClampPage applies the paging defaults and the page size cap.
func ClampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// Query returns one record's history, newest first, with the total count.
func (r *AuditRepo) Query(ctx context.Context, bookingID uint64, page, pageSize int, action string) ([]model.AuditEntry, int64, error) {
	page, pageSize = ClampPage(page, pageSize)
	cond := "booking_id = ?"
	args := []any{bookingID}
	if action != "" {
		cond += " AND action = ?"
		args = append(args, action)
	}
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reservation_audits WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, TranslateDBError(err, "audit entry")
	}
	q := `SELECT ` + auditColumns + ` FROM reservation_audits WHERE ` + cond +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := r.collect(ctx, q, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// Recent returns entries from the last hours across all records, newest
// first, capped at RecentLimit.
func (r *AuditRepo) Recent(ctx context.Context, hours int, actor, action string) ([]model.AuditEntry, error) {
	if hours <= 0 {
		hours = 24
	}
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	cond := "created_at >= ?"
	args := []any{since}
	if actor != "" {
		cond += " AND actor = ?"
		args = append(args, actor)
	}
	if action != "" {
		cond += " AND action = ?"
		args = append(args, action)
	}
	q := `SELECT ` + auditColumns + ` FROM reservation_audits WHERE ` + cond +
		` ORDER BY created_at DESC, id DESC LIMIT ?`
	return r.collect(ctx, q, append(args, RecentLimit)...)
}

// SearchCriteria filters Search.  Empty members are ignored.
type SearchCriteria struct {
	BookingIDs []uint64
	Actors     []string
	Actions    []string
	From       *time.Time
	To         *time.Time
	Text       string // reason, reservation_number or confirmation_number
	Page       int
	PageSize   int
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// Search runs a multi-criteria query over the whole ledger.
func (r *AuditRepo) Search(ctx context.Context, c SearchCriteria) ([]model.AuditEntry, int64, error) {
	page, pageSize := ClampPage(c.Page, c.PageSize)
	where := []string{}
	args := []any{}

	if len(c.BookingIDs) > 0 {
		where = append(where, "booking_id IN ("+placeholders(len(c.BookingIDs))+")")
		for _, id := range c.BookingIDs {
			args = append(args, id)
		}
	}
	if len(c.Actors) > 0 {
		where = append(where, "actor IN ("+placeholders(len(c.Actors))+")")
		for _, a := range c.Actors {
			args = append(args, a)
		}
	}
	if len(c.Actions) > 0 {
		where = append(where, "action IN ("+placeholders(len(c.Actions))+")")
		for _, a := range c.Actions {
			args = append(args, a)
		}
	}
	if c.From != nil {
		where = append(where, "created_at >= ?")
		args = append(args, c.From.UTC())
	}
	if c.To != nil {
		where = append(where, "created_at <= ?")
		args = append(args, c.To.UTC())
	}
	if t := strings.TrimSpace(c.Text); t != "" {
		like := "%" + t + "%"
		where = append(where, `(reason LIKE ?
            OR JSON_UNQUOTE(JSON_EXTRACT(current_values, '$.reservation_number')) LIKE ?
            OR JSON_UNQUOTE(JSON_EXTRACT(previous_values, '$.reservation_number')) LIKE ?
            OR JSON_UNQUOTE(JSON_EXTRACT(current_values, '$.confirmation_number')) LIKE ?
            OR JSON_UNQUOTE(JSON_EXTRACT(previous_values, '$.confirmation_number')) LIKE ?)`)
		args = append(args, like, like, like, like, like)
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reservation_audits WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, TranslateDBError(err, "audit entry")
	}
	q := `SELECT ` + auditColumns + ` FROM reservation_audits WHERE ` + cond +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := r.collect(ctx, q, append(append([]any{}, args...), pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// Statistics aggregates the last days of activity.
func (r *AuditRepo) Statistics(ctx context.Context, days int) (*model.AuditStatistics, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	stats := &model.AuditStatistics{
		Days:               days,
		DailyCounts:        []model.DailyCount{},
		TopActors:          []model.ActorCount{},
		ActionDistribution: map[string]int64{},
	}

	rows, err := r.db.QueryContext(ctx, `SELECT DATE_FORMAT(created_at, '%Y-%m-%d') AS day, COUNT(*)
        FROM reservation_audits WHERE created_at >= ?
        GROUP BY day ORDER BY day ASC`, since)
	if err != nil {
		return nil, TranslateDBError(err, "audit statistics")
	}
	for rows.Next() {
		var d model.DailyCount
		if err := rows.Scan(&d.Day, &d.Count); err != nil {
			rows.Close()
			return nil, TranslateDBError(err, "audit statistics")
		}
		stats.DailyCounts = append(stats.DailyCounts, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, TranslateDBError(err, "audit statistics")
	}

	rows, err = r.db.QueryContext(ctx, `SELECT actor, COUNT(*) AS n
        FROM reservation_audits WHERE created_at >= ?
        GROUP BY actor ORDER BY n DESC, actor ASC LIMIT ?`, since, TopActorLimit)
	if err != nil {
		return nil, TranslateDBError(err, "audit statistics")
	}
	for rows.Next() {
		var a model.ActorCount
		if err := rows.Scan(&a.Actor, &a.Count); err != nil {
			rows.Close()
			return nil, TranslateDBError(err, "audit statistics")
		}
		stats.TopActors = append(stats.TopActors, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, TranslateDBError(err, "audit statistics")
	}

	rows, err = r.db.QueryContext(ctx, `SELECT action, COUNT(*)
        FROM reservation_audits WHERE created_at >= ?
        GROUP BY action`, since)
	if err != nil {
		return nil, TranslateDBError(err, "audit statistics")
	}
	defer rows.Close()
	for rows.Next() {
		var action string
		var n int64
		if err := rows.Scan(&action, &n); err != nil {
			return nil, TranslateDBError(err, "audit statistics")
		}
		stats.ActionDistribution[action] = n
	}
	if err := rows.Err(); err != nil {
		return nil, TranslateDBError(err, "audit statistics")
	}
	return stats, nil
}
