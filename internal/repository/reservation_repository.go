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

// ReservationRepo persists reservation records.  Every read excludes
// soft-deleted rows unless the caller explicitly asks for them.  Writes
// that change an existing row are versioned: the UPDATE carries the
// lock_version the caller read and fails when another writer got there
// first.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// DB exposes the handle so services can open transactions.
func (r *ReservationRepo) DB() *sql.DB { return r.db }

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// reservationColumns is the SELECT list shared by every read.  Dates are
// formatted in SQL so they come back exactly as the API renders them.
const reservationColumns = `id, reservation_number, confirmation_number, channel, platform_name,
       product_name, package_name, total_amount, adult_unit_price, child_unit_price,
       infant_unit_price, people_adult, people_child, people_infant, guest_count,
       korean_name, english_first_name, english_last_name, email, phone, kakao_id,
       DATE_FORMAT(usage_date, '%Y-%m-%d'), usage_time,
       DATE_FORMAT(usage_datetime, '%Y-%m-%d %T'), payment_status, review_status, memo,
       extras, flags, lock_version, origin_hash, is_deleted, deleted_at,
       created_by, updated_by, created_at, updated_at`

// ReservationColumnCount is the number of columns in reservationColumns.
const ReservationColumnCount = 37

func scanReservation(s rowScanner) (*model.Reservation, error) {
	var (
		rec                                           model.Reservation
		confirmation, platform, product, pkg          sql.NullString
		total, adultPrice, childPrice, infantPrice    sql.NullFloat64
		korean, first, last, email, phone, kakao      sql.NullString
		usageDate, usageTime, usageDatetime, memo     sql.NullString
		extras, flags                                 []byte
		originHash                                    sql.NullString
		deletedAt                                     sql.NullTime
	)
	if err := s.Scan(
		&rec.ID, &rec.ReservationNumber, &confirmation, &rec.Channel, &platform,
		&product, &pkg, &total, &adultPrice, &childPrice,
		&infantPrice, &rec.PeopleAdult, &rec.PeopleChild, &rec.PeopleInfant, &rec.GuestCount,
		&korean, &first, &last, &email, &phone, &kakao,
		&usageDate, &usageTime,
		&usageDatetime, &rec.PaymentStatus, &rec.ReviewStatus, &memo,
		&extras, &flags, &rec.LockVersion, &originHash, &rec.IsDeleted, &deletedAt,
		&rec.CreatedBy, &rec.UpdatedBy, &rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.ConfirmationNumber = nullString(confirmation)
	rec.PlatformName = nullString(platform)
	rec.ProductName = nullString(product)
	rec.PackageName = nullString(pkg)
	rec.TotalAmount = nullFloat(total)
	rec.AdultUnitPrice = nullFloat(adultPrice)
	rec.ChildUnitPrice = nullFloat(childPrice)
	rec.InfantUnitPrice = nullFloat(infantPrice)
	rec.KoreanName = nullString(korean)
	rec.EnglishFirstName = nullString(first)
	rec.EnglishLastName = nullString(last)
	rec.Email = nullString(email)
	rec.Phone = nullString(phone)
	rec.KakaoID = nullString(kakao)
	rec.UsageDate = nullString(usageDate)
	rec.UsageTime = nullString(usageTime)
	rec.UsageDatetime = nullString(usageDatetime)
	rec.Memo = nullString(memo)
	rec.OriginHash = nullString(originHash)
	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		rec.DeletedAt = &t
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()

	rec.Extras = map[string]any{}
	if len(extras) > 0 {
		if err := json.Unmarshal(extras, &rec.Extras); err != nil {
			return nil, fmt.Errorf("decode extras of reservation %d: %w", rec.ID, err)
		}
	}
	rec.Flags = model.Flags{Missing: []string{}, Ambiguous: []string{}}
	if len(flags) > 0 {
		if err := json.Unmarshal(flags, &rec.Flags); err != nil {
			return nil, fmt.Errorf("decode flags of reservation %d: %w", rec.ID, err)
		}
	}
	return &rec, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullFloat(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}

func strArg(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func floatArg(f *float64) any {
	if f == nil {
		return nil
	}
	return model.RoundMoney(*f)
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// jsonArg encodes a JSON column value.
func jsonArg(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// coreArgs returns the fixed field values in column order.
func coreArgs(c model.Core) []any {
	return []any{
		c.ReservationNumber, strArg(c.ConfirmationNumber), c.Channel, strArg(c.PlatformName),
		strArg(c.ProductName), strArg(c.PackageName), floatArg(c.TotalAmount), floatArg(c.AdultUnitPrice),
		floatArg(c.ChildUnitPrice), floatArg(c.InfantUnitPrice), c.PeopleAdult, c.PeopleChild,
		c.PeopleInfant, c.GuestCount, strArg(c.KoreanName), strArg(c.EnglishFirstName),
		strArg(c.EnglishLastName), strArg(c.Email), strArg(c.Phone), strArg(c.KakaoID),
		strArg(c.UsageDate), strArg(c.UsageTime), strArg(c.UsageDatetime),
		c.PaymentStatus, c.ReviewStatus, strArg(c.Memo),
	}
}

// FindActiveDuplicateTx looks for a non-deleted record with the same
// business key.  The row is locked so two concurrent creates for the same
// key serialize here instead of racing to the unique index.  excludeID
// skips the record being edited.
func (r *ReservationRepo) FindActiveDuplicateTx(ctx context.Context, tx *sql.Tx, number, channel string, excludeID uint64) (uint64, bool, error) {
	const q = `SELECT id FROM reservations
               WHERE reservation_number = ? AND channel = ? AND is_deleted = 0 AND id <> ?
               LIMIT 1 FOR UPDATE`
	var id uint64
	err := tx.QueryRowContext(ctx, q, number, channel, excludeID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, TranslateDBError(err, "reservation")
	}
	return id, true, nil
}

// CreateTx inserts rec and sets its ID.  The caller fills timestamps,
// lock_version and the actor columns.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, rec *model.Reservation) error {
	extras, err := jsonArg(rec.Extras)
	if err != nil {
		return Internal("encode extras", err)
	}
	flags, err := jsonArg(rec.Flags)
	if err != nil {
		return Internal("encode flags", err)
	}
	const q = `INSERT INTO reservations (
                   reservation_number, confirmation_number, channel, platform_name,
                   product_name, package_name, total_amount, adult_unit_price,
                   child_unit_price, infant_unit_price, people_adult, people_child,
                   people_infant, guest_count, korean_name, english_first_name,
                   english_last_name, email, phone, kakao_id,
                   usage_date, usage_time, usage_datetime,
                   payment_status, review_status, memo,
                   extras, flags, lock_version, origin_hash, is_deleted, deleted_at,
                   created_by, updated_by, created_at, updated_at)
               VALUES (?,?,?,?, ?,?,?,?, ?,?,?,?, ?,?,?,?, ?,?,?,?, ?,?,?, ?,?,?, ?,?,?,?,?,?, ?,?,?,?)`
	args := append(coreArgs(rec.Core),
		extras, flags, rec.LockVersion, strArg(rec.OriginHash), rec.IsDeleted, timeArg(rec.DeletedAt),
		rec.CreatedBy, rec.UpdatedBy, rec.CreatedAt.UTC(), rec.UpdatedAt.UTC())
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return TranslateDBError(err, "reservation")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return TranslateDBError(err, "reservation")
	}
	rec.ID = uint64(id)
	return nil
}

// GetByID returns a reservation.  Soft-deleted rows are NotFound unless
// includeDeleted is set.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64, includeDeleted bool) (*model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	if !includeDeleted {
		q += ` AND is_deleted = 0`
	}
	rec, err := scanReservation(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, TranslateDBError(err, "reservation")
	}
	return rec, nil
}

// GetForUpdateTx reads the row under an exclusive lock for the rest of tx.
func (r *ReservationRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64, includeDeleted bool) (*model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	if !includeDeleted {
		q += ` AND is_deleted = 0`
	}
	q += ` FOR UPDATE`
	rec, err := scanReservation(tx.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, TranslateDBError(err, "reservation")
	}
	return rec, nil
}

// UpdateTx writes every mutable column of rec provided the stored
// lock_version still equals expectedVersion.  On success rec.LockVersion
// becomes expectedVersion+1.  Zero affected rows means a concurrent writer
// won and ErrVersionConflict is returned with nothing written.
func (r *ReservationRepo) UpdateTx(ctx context.Context, tx *sql.Tx, rec *model.Reservation, expectedVersion int) error {
	extras, err := jsonArg(rec.Extras)
	if err != nil {
		return Internal("encode extras", err)
	}
	flags, err := jsonArg(rec.Flags)
	if err != nil {
		return Internal("encode flags", err)
	}
	const q = `UPDATE reservations SET
                   reservation_number = ?, confirmation_number = ?, channel = ?, platform_name = ?,
                   product_name = ?, package_name = ?, total_amount = ?, adult_unit_price = ?,
                   child_unit_price = ?, infant_unit_price = ?, people_adult = ?, people_child = ?,
                   people_infant = ?, guest_count = ?, korean_name = ?, english_first_name = ?,
                   english_last_name = ?, email = ?, phone = ?, kakao_id = ?,
                   usage_date = ?, usage_time = ?, usage_datetime = ?,
                   payment_status = ?, review_status = ?, memo = ?,
                   extras = ?, flags = ?, is_deleted = ?, deleted_at = ?,
                   updated_by = ?, updated_at = ?, lock_version = lock_version + 1
               WHERE id = ? AND lock_version = ?`
	args := append(coreArgs(rec.Core),
		extras, flags, rec.IsDeleted, timeArg(rec.DeletedAt),
		rec.UpdatedBy, rec.UpdatedAt.UTC(), rec.ID, expectedVersion)
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return TranslateDBError(err, "reservation")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return TranslateDBError(err, "reservation")
	}
	if n == 0 {
		return ErrVersionConflict
	}
	rec.LockVersion = expectedVersion + 1
	return nil
}

// SoftDeleteTx marks rec deleted through the versioned update.
func (r *ReservationRepo) SoftDeleteTx(ctx context.Context, tx *sql.Tx, rec *model.Reservation, actor string, now time.Time) error {
	expected := rec.LockVersion
	rec.IsDeleted = true
	rec.DeletedAt = &now
	rec.UpdatedBy = actor
	rec.UpdatedAt = now
	return r.UpdateTx(ctx, tx, rec, expected)
}

// RestoreTx clears the deleted mark through the versioned update.  The
// caller sets the statuses the record comes back with.
func (r *ReservationRepo) RestoreTx(ctx context.Context, tx *sql.Tx, rec *model.Reservation, actor string, now time.Time) error {
	expected := rec.LockVersion
	rec.IsDeleted = false
	rec.DeletedAt = nil
	rec.UpdatedBy = actor
	rec.UpdatedAt = now
	return r.UpdateTx(ctx, tx, rec, expected)
}

// HardDeleteTx removes the row, again guarded by the version the caller
// read.  Audit entries are kept; reservation_audits has no foreign key.
func (r *ReservationRepo) HardDeleteTx(ctx context.Context, tx *sql.Tx, id uint64, expectedVersion int) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM reservations WHERE id = ? AND lock_version = ?`, id, expectedVersion)
	if err != nil {
		return TranslateDBError(err, "reservation")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return TranslateDBError(err, "reservation")
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}

// FindByOriginHash returns the live record imported from the same source
// text, or NotFound.
func (r *ReservationRepo) FindByOriginHash(ctx context.Context, hash string) (*model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations
          WHERE origin_hash = ? AND is_deleted = 0
          ORDER BY id ASC LIMIT 1`
	rec, err := scanReservation(r.db.QueryRowContext(ctx, q, hash))
	if err != nil {
		return nil, TranslateDBError(err, "reservation")
	}
	return rec, nil
}

// Filter is the search vocabulary shared by List and bulk target
// resolution.
type Filter struct {
	Q              string `json:"q"`        // free text over identifiers, names, email, phone, product
	Status         string `json:"status"`   // payment_status
	Review         string `json:"review"`   // review_status
	Channel        string `json:"channel"`
	Platform       string `json:"platform"`
	From           string `json:"from"`     // usage_date >= From (YYYY-MM-DD)
	To             string `json:"to"`       // usage_date <= To (YYYY-MM-DD)
	IncludeDeleted bool   `json:"-"`
}

// IsEmpty reports whether no criterion is set.
func (f Filter) IsEmpty() bool {
	return f.Q == "" && f.Status == "" && f.Review == "" && f.Channel == "" &&
		f.Platform == "" && f.From == "" && f.To == ""
}

// ListQuery adds pagination and ordering to a Filter.
type ListQuery struct {
	Filter
	Page     int
	PageSize int
	Sort     string
	Order    string
}

// Pagination defaults.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// sortColumns is the allow-list of sortable columns.  Sort values are
// never interpolated unless they appear here.
var sortColumns = map[string]string{
	"id":                 "id",
	"created_at":         "created_at",
	"updated_at":         "updated_at",
	"usage_date":         "usage_date",
	"total_amount":       "total_amount",
	"reservation_number": "reservation_number",
	"payment_status":     "payment_status",
	"review_status":      "review_status",
	"korean_name":        "korean_name",
}

// IsSortColumn reports whether s may be used as a sort key.
func IsSortColumn(s string) bool {
	_, ok := sortColumns[s]
	return ok
}

// Normalize clamps paging and falls back to created_at desc for unknown
// sort keys.
func (q *ListQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	if !IsSortColumn(q.Sort) {
		q.Sort = "created_at"
	}
	if strings.ToLower(q.Order) == "asc" {
		q.Order = "ASC"
	} else {
		q.Order = "DESC"
	}
}

func buildWhere(f Filter) (string, []any) {
	where := []string{}
	args := []any{}

	if !f.IncludeDeleted {
		where = append(where, "is_deleted = 0")
	}
	if q := strings.TrimSpace(f.Q); q != "" {
		like := "%" + q + "%"
		where = append(where, `(reservation_number LIKE ? OR confirmation_number LIKE ?
            OR korean_name LIKE ? OR CONCAT_WS(' ', english_first_name, english_last_name) LIKE ?
            OR email LIKE ? OR phone LIKE ? OR product_name LIKE ?)`)
		args = append(args, like, like, like, like, like, like, like)
	}
	if f.Status != "" {
		where = append(where, "payment_status = ?")
		args = append(args, f.Status)
	}
	if f.Review != "" {
		where = append(where, "review_status = ?")
		args = append(args, f.Review)
	}
	if f.Channel != "" {
		where = append(where, "channel = ?")
		args = append(args, f.Channel)
	}
	if f.Platform != "" {
		where = append(where, "platform_name = ?")
		args = append(args, f.Platform)
	}
	if f.From != "" {
		where = append(where, "usage_date >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		where = append(where, "usage_date <= ?")
		args = append(args, f.To)
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}
	return cond, args
}

// List returns one page of reservations matching q and the total number of
// matches.  q is normalized in place.
func (r *ReservationRepo) List(ctx context.Context, q *ListQuery) ([]model.Reservation, int64, error) {
	q.Normalize()
	cond, args := buildWhere(q.Filter)

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reservations WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, TranslateDBError(err, "reservation")
	}

	order := sortColumns[q.Sort] + " " + q.Order
	if q.Sort != "id" {
		order += ", id " + q.Order
	}
	dataSQL := `SELECT ` + reservationColumns + `
                FROM reservations
                WHERE ` + cond + `
                ORDER BY ` + order + `
                LIMIT ? OFFSET ?`
	argsData := append(append([]any{}, args...), q.PageSize, (q.Page-1)*q.PageSize)

	rows, err := r.db.QueryContext(ctx, dataSQL, argsData...)
	if err != nil {
		return nil, 0, TranslateDBError(err, "reservation")
	}
	defer rows.Close()

	out := make([]model.Reservation, 0, q.PageSize)
	for rows.Next() {
		rec, err := scanReservation(rows)
		if err != nil {
			return nil, 0, TranslateDBError(err, "reservation")
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, TranslateDBError(err, "reservation")
	}
	return out, total, nil
}

// ResolveIDs returns up to limit ids matching f in ascending order.
func (r *ReservationRepo) ResolveIDs(ctx context.Context, f Filter, limit int) ([]uint64, error) {
	cond, args := buildWhere(f)
	q := `SELECT id FROM reservations WHERE ` + cond + ` ORDER BY id ASC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, append(args, limit)...)
	if err != nil {
		return nil, TranslateDBError(err, "reservation")
	}
	defer rows.Close()
	ids := []uint64{}
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, TranslateDBError(err, "reservation")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, TranslateDBError(err, "reservation")
	}
	return ids, nil
}

// ListByIDs returns the live records among ids in ascending id order.
// Missing and deleted ids are silently absent.
func (r *ReservationRepo) ListByIDs(ctx context.Context, ids []uint64) ([]model.Reservation, error) {
	if len(ids) == 0 {
		return []model.Reservation{}, nil
	}
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	q := `SELECT ` + reservationColumns + ` FROM reservations
          WHERE is_deleted = 0 AND id IN (` + strings.Join(marks, ",") + `)
          ORDER BY id ASC`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, TranslateDBError(err, "reservation")
	}
	defer rows.Close()
	out := make([]model.Reservation, 0, len(ids))
	for rows.Next() {
		rec, err := scanReservation(rows)
		if err != nil {
			return nil, TranslateDBError(err, "reservation")
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, TranslateDBError(err, "reservation")
	}
	return out, nil
}
