// Package export renders reservations as delimited text or a workbook.
// The requested column list is checked against an allow-list before any
// row is read, so a caller can only ever see columns the engine names.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/booking-record-engine/internal/model"
)

// Formats understood by Write.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// bookkeeping columns exportable next to the fixed fields.
var metaColumns = []string{
	"id", "lock_version", "is_deleted", "created_by", "updated_by", "created_at", "updated_at",
	"extras", "flags",
}

// DefaultFields is used when the caller does not name any columns.
func DefaultFields() []string {
	out := []string{"id"}
	out = append(out, model.CoreFields...)
	return append(out, "created_at", "updated_at")
}

// InvalidFieldsError lists requested columns that are not exportable.
type InvalidFieldsError struct {
	Fields []string
}

func (e *InvalidFieldsError) Error() string {
	return "fields not exportable: " + strings.Join(e.Fields, ", ")
}

// ResolveFields checks requested against the allow-list: the fixed fields,
// the bookkeeping columns, "extras" and "extras.<key>" for any key the
// catalog defines (active or not).  Order is preserved and duplicates are
// dropped.  An empty request yields DefaultFields.
func ResolveFields(requested []string, defs []model.FieldDefinition) ([]string, error) {
	if len(requested) == 0 {
		return DefaultFields(), nil
	}
	allowed := map[string]bool{}
	for _, f := range model.CoreFields {
		allowed[f] = true
	}
	for _, f := range metaColumns {
		allowed[f] = true
	}
	for _, d := range defs {
		allowed["extras."+d.Key] = true
	}

	seen := map[string]bool{}
	out := make([]string, 0, len(requested))
	var bad []string
	for _, f := range requested {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		if !allowed[f] {
			bad = append(bad, f)
			continue
		}
		out = append(out, f)
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return nil, &InvalidFieldsError{Fields: bad}
	}
	if len(out) == 0 {
		return DefaultFields(), nil
	}
	return out, nil
}

// Value extracts field from rec.
func Value(rec model.Reservation, field string) any {
	switch field {
	case "id":
		return rec.ID
	case "lock_version":
		return rec.LockVersion
	case "is_deleted":
		return rec.IsDeleted
	case "created_by":
		return rec.CreatedBy
	case "updated_by":
		return rec.UpdatedBy
	case "created_at":
		return rec.CreatedAt
	case "updated_at":
		return rec.UpdatedAt
	case "extras":
		return rec.Extras
	case "flags":
		return rec.Flags
	}
	if key, ok := strings.CutPrefix(field, "extras."); ok {
		return rec.Extras[key]
	}
	return rec.Core.Values()[field]
}

// Cell renders v as flat text: nil is empty, times are RFC 3339, money
// keeps two decimals and maps, slices and structs become JSON.
func Cell(field string, v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float64:
		if model.MoneyFields[field] {
			return strconv.FormatFloat(t, 'f', 2, 64)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format(time.RFC3339)
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.UTC().Format(time.RFC3339)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// Row renders rec as one line of cells in fields order.
func Row(rec model.Reservation, fields []string) []string {
	row := make([]string, len(fields))
	for i, f := range fields {
		row[i] = Cell(f, Value(rec, f))
	}
	return row
}

// WriteCSV writes a header row followed by one row per record.  Quoting
// follows RFC 4180.
func WriteCSV(w io.Writer, fields []string, recs []model.Reservation) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(fields); err != nil {
		return err
	}
	for _, rec := range recs {
		if err := cw.Write(Row(rec, fields)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Write dispatches on format.
func Write(w io.Writer, format string, fields []string, recs []model.Reservation) error {
	switch format {
	case FormatXLSX:
		return WriteXLSX(w, fields, recs)
	case FormatCSV, "":
		return WriteCSV(w, fields, recs)
	}
	return fmt.Errorf("unsupported export format %q", format)
}

// ContentType returns the MIME type and file extension for format.
func ContentType(format string) (string, string) {
	if format == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx"
	}
	return "text/csv; charset=utf-8", "csv"
}
