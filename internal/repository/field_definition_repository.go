package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iliyamo/booking-record-engine/internal/model"
)

// FieldDefinitionRepo stores the extras catalog.  Nothing here is cached:
// record writes read the live catalog on every call.
type FieldDefinitionRepo struct {
	db *sql.DB
}

// NewFieldDefinitionRepo returns a new FieldDefinitionRepo bound to the given database.
func NewFieldDefinitionRepo(db *sql.DB) *FieldDefinitionRepo { return &FieldDefinitionRepo{db: db} }

const fieldDefinitionColumns = `id, field_key, label, field_type, is_required, pattern, options,
       category, sort_order, is_active, placeholder, help_text, default_value,
       created_at, updated_at`

func scanFieldDefinition(s rowScanner) (*model.FieldDefinition, error) {
	var (
		def                            model.FieldDefinition
		pattern, placeholder, helpText sql.NullString
		options, defaultValue          []byte
	)
	if err := s.Scan(
		&def.ID, &def.Key, &def.Label, &def.Type, &def.Required, &pattern, &options,
		&def.Category, &def.SortOrder, &def.IsActive, &placeholder, &helpText, &defaultValue,
		&def.CreatedAt, &def.UpdatedAt,
	); err != nil {
		return nil, err
	}
	def.Pattern = nullString(pattern)
	def.Placeholder = nullString(placeholder)
	def.HelpText = nullString(helpText)
	if len(options) > 0 && string(options) != "null" {
		if err := json.Unmarshal(options, &def.Options); err != nil {
			return nil, fmt.Errorf("decode options of field %q: %w", def.Key, err)
		}
	}
	if len(defaultValue) > 0 && string(defaultValue) != "null" {
		if err := json.Unmarshal(defaultValue, &def.DefaultValue); err != nil {
			return nil, fmt.Errorf("decode default of field %q: %w", def.Key, err)
		}
	}
	def.CreatedAt = def.CreatedAt.UTC()
	def.UpdatedAt = def.UpdatedAt.UTC()
	return &def, nil
}

// nullableJSON encodes v, mapping nil and empty option lists to SQL NULL.
func nullableJSON(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []string:
		if len(t) == 0 {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// List returns definitions ordered by category, sort_order and key.
// category filters when non-empty.
func (r *FieldDefinitionRepo) List(ctx context.Context, activeOnly bool, category string) ([]model.FieldDefinition, error) {
	q := `SELECT ` + fieldDefinitionColumns + ` FROM field_definitions WHERE 1=1`
	args := []any{}
	if activeOnly {
		q += ` AND is_active = 1`
	}
	if category != "" {
		q += ` AND category = ?`
		args = append(args, category)
	}
	q += ` ORDER BY category ASC, sort_order ASC, field_key ASC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, TranslateDBError(err, "field definition")
	}
	defer rows.Close()
	out := []model.FieldDefinition{}
	for rows.Next() {
		def, err := scanFieldDefinition(rows)
		if err != nil {
			return nil, TranslateDBError(err, "field definition")
		}
		out = append(out, *def)
	}
	if err := rows.Err(); err != nil {
		return nil, TranslateDBError(err, "field definition")
	}
	return out, nil
}

// Get returns the definition for key or NotFound.
func (r *FieldDefinitionRepo) Get(ctx context.Context, key string) (*model.FieldDefinition, error) {
	q := `SELECT ` + fieldDefinitionColumns + ` FROM field_definitions WHERE field_key = ?`
	def, err := scanFieldDefinition(r.db.QueryRowContext(ctx, q, key))
	if err != nil {
		return nil, TranslateDBError(err, "field definition")
	}
	return def, nil
}

// Create inserts def and sets its ID and timestamps.  An existing key is a
// CONFLICT_DUPLICATE via the unique index.
func (r *FieldDefinitionRepo) Create(ctx context.Context, def *model.FieldDefinition) error {
	options, err := nullableJSON(def.Options)
	if err != nil {
		return Internal("encode options", err)
	}
	defaultValue, err := nullableJSON(def.DefaultValue)
	if err != nil {
		return Internal("encode default value", err)
	}
	now := time.Now().UTC().Truncate(time.Second)
	const q = `INSERT INTO field_definitions
                   (field_key, label, field_type, is_required, pattern, options, category,
                    sort_order, is_active, placeholder, help_text, default_value, created_at, updated_at)
               VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`
	res, err := r.db.ExecContext(ctx, q,
		def.Key, def.Label, def.Type, def.Required, strArg(def.Pattern), options, def.Category,
		def.SortOrder, def.IsActive, strArg(def.Placeholder), strArg(def.HelpText), defaultValue, now, now)
	if err != nil {
		return TranslateDBError(err, "field definition "+def.Key)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return TranslateDBError(err, "field definition")
	}
	def.ID = uint64(id)
	def.CreatedAt = now
	def.UpdatedAt = now
	return nil
}

// Update writes every mutable column of def, matched by key.
func (r *FieldDefinitionRepo) Update(ctx context.Context, def *model.FieldDefinition) error {
	options, err := nullableJSON(def.Options)
	if err != nil {
		return Internal("encode options", err)
	}
	defaultValue, err := nullableJSON(def.DefaultValue)
	if err != nil {
		return Internal("encode default value", err)
	}
	now := time.Now().UTC().Truncate(time.Second)
	const q = `UPDATE field_definitions SET
                   label = ?, field_type = ?, is_required = ?, pattern = ?, options = ?,
                   category = ?, sort_order = ?, is_active = ?, placeholder = ?, help_text = ?,
                   default_value = ?, updated_at = ?
               WHERE field_key = ?`
	res, err := r.db.ExecContext(ctx, q,
		def.Label, def.Type, def.Required, strArg(def.Pattern), options,
		def.Category, def.SortOrder, def.IsActive, strArg(def.Placeholder), strArg(def.HelpText),
		defaultValue, now, def.Key)
	if err != nil {
		return TranslateDBError(err, "field definition "+def.Key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return TranslateDBError(err, "field definition")
	}
	if n == 0 {
		return NotFound("field definition " + def.Key)
	}
	def.UpdatedAt = now
	return nil
}

// Deactivate flips is_active off.  Stored extras values stay untouched.
func (r *FieldDefinitionRepo) Deactivate(ctx context.Context, key string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE field_definitions SET is_active = 0, updated_at = ? WHERE field_key = ?`,
		time.Now().UTC().Truncate(time.Second), key)
	if err != nil {
		return TranslateDBError(err, "field definition "+key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return TranslateDBError(err, "field definition")
	}
	if n == 0 {
		return NotFound("field definition " + key)
	}
	return nil
}

// Delete removes the definition row.
func (r *FieldDefinitionRepo) Delete(ctx context.Context, key string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM field_definitions WHERE field_key = ?`, key)
	if err != nil {
		return TranslateDBError(err, "field definition "+key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return TranslateDBError(err, "field definition")
	}
	if n == 0 {
		return NotFound("field definition " + key)
	}
	return nil
}

// HasStoredValues reports whether any live record still carries a value
// for key in its extras.  key has already been checked to be
// identifier-safe, so it is safe inside the JSON path literal.
func (r *FieldDefinitionRepo) HasStoredValues(ctx context.Context, key string) (bool, error) {
	const q = `SELECT EXISTS(
                   SELECT 1 FROM reservations
                   WHERE is_deleted = 0 AND JSON_CONTAINS_PATH(extras, 'one', ?))`
	var exists bool
	if err := r.db.QueryRowContext(ctx, q, "$."+key).Scan(&exists); err != nil {
		return false, TranslateDBError(err, "reservation")
	}
	return exists, nil
}
