package service

import (
	"context"
	"database/sql"
	"strconv"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/booking-record-engine/internal/export"
	"github.com/iliyamo/booking-record-engine/internal/model"
	"github.com/iliyamo/booking-record-engine/internal/repository"
)

func TestBulkCancelMixedOutcomes(t *testing.T) {
	f := setup(t, DefaultPolicy())
	cancelled := map[int64]bool{3: true, 6: true, 9: true}

	f.expectNoDefinitions()
	f.mock.ExpectBegin()
	for id := int64(1); id <= 10; id++ {
		f.mock.ExpectExec(`^SAVEPOINT bulk_item$`).WillReturnResult(sqlmock.NewResult(0, 0))
		r := stored{id: id, number: "R" + strconv.FormatInt(id, 10), version: 1}
		if cancelled[id] {
			r.payment = model.PaymentCancelled
		}
		f.expectLocked(r, true)
		if !cancelled[id] {
			f.mock.ExpectExec(`UPDATE reservations SET`).WillReturnResult(sqlmock.NewResult(0, 1))
			audit := f.mock.ExpectExec(`INSERT INTO reservation_audits`)
			if id == 1 {
				audit = audit.WithArgs(uint64(1), "kim", model.ActionBulkCancel, sqlmock.AnyArg(),
					sqlmock.AnyArg(), sqlmock.AnyArg(), "weather", nil, nil, "batch-1-1", fixedNow)
			}
			audit.WillReturnResult(sqlmock.NewResult(id, 1))
		}
		f.mock.ExpectExec(`^RELEASE SAVEPOINT bulk_item$`).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	f.mock.ExpectCommit()

	req := BulkRequest{Action: BulkCancel, IDs: []uint64{10, 9, 8, 7, 6, 5, 4, 3, 2, 1, 1, 0}, Reason: "weather"}
	res, err := f.bulk.Execute(context.Background(), req, model.RequestMeta{Actor: "kim", RequestID: "batch-1"})
	require.NoError(t, err)

	assert.Equal(t, "batch-1", res.BatchID)
	assert.Equal(t, 10, res.Total)
	assert.Equal(t, 7, res.Succeeded)
	assert.Equal(t, 3, res.Skipped)
	assert.Zero(t, res.Failed)
	require.Len(t, res.Results, 10)
	for i, item := range res.Results {
		assert.Equal(t, uint64(i+1), item.ID)
	}
	assert.Equal(t, ItemSkipped, res.Results[2].Status)
	assert.Equal(t, "already cancelled", res.Results[2].Reason)
	assert.Equal(t, "김철수", *res.Results[0].KoreanName)

	require.Len(t, f.rec.events, 7)
	assert.Equal(t, "batch-1-1", f.rec.events[0].RequestID)
	assert.Equal(t, model.ActionBulkCancel, f.rec.events[0].Action)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestBulkItemFailureRollsBackToSavepoint(t *testing.T) {
	f := setup(t, DefaultPolicy())

	f.expectNoDefinitions()
	f.mock.ExpectBegin()
	f.mock.ExpectExec(`^SAVEPOINT bulk_item$`).WillReturnResult(sqlmock.NewResult(0, 0))
	f.expectLocked(stored{id: 1, number: "R1", version: 1}, true)
	f.mock.ExpectExec(`UPDATE reservations SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(`INSERT INTO reservation_audits`).WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectExec(`^RELEASE SAVEPOINT bulk_item$`).WillReturnResult(sqlmock.NewResult(0, 0))

	f.mock.ExpectExec(`^SAVEPOINT bulk_item$`).WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectQuery(`FROM reservations WHERE id = \? FOR UPDATE`).
		WithArgs(uint64(2)).
		WillReturnError(sql.ErrNoRows)
	f.mock.ExpectExec(`^ROLLBACK TO SAVEPOINT bulk_item$`).WillReturnResult(sqlmock.NewResult(0, 0))

	f.mock.ExpectExec(`^SAVEPOINT bulk_item$`).WillReturnResult(sqlmock.NewResult(0, 0))
	f.expectLocked(stored{id: 3, number: "R3", version: 4, deleted: true}, true)
	f.mock.ExpectExec(`^ROLLBACK TO SAVEPOINT bulk_item$`).WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectCommit()

	req := BulkRequest{Action: BulkStatus, IDs: []uint64{1, 2, 3}, NewStatus: "paid"}
	res, err := f.bulk.Execute(context.Background(), req, model.RequestMeta{})
	require.NoError(t, err)
	assert.NotEmpty(t, res.BatchID)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, ItemError, res.Results[1].Status)
	assert.Equal(t, "not found", res.Results[1].Reason)
	assert.Equal(t, "not found", res.Results[2].Reason)
	require.Len(t, f.rec.events, 1)
	assert.Equal(t, model.ActionBulkUpdate, f.rec.events[0].Action)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestBulkDeleteSkipsDeleted(t *testing.T) {
	f := setup(t, DefaultPolicy())

	f.expectNoDefinitions()
	f.mock.ExpectBegin()
	f.mock.ExpectExec(`^SAVEPOINT bulk_item$`).WillReturnResult(sqlmock.NewResult(0, 0))
	f.expectLocked(stored{id: 4, number: "R4", version: 2, deleted: true}, true)
	f.mock.ExpectExec(`^RELEASE SAVEPOINT bulk_item$`).WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectCommit()

	res, err := f.bulk.Execute(context.Background(), BulkRequest{Action: BulkDelete, IDs: []uint64{4}}, model.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, "already deleted", res.Results[0].Reason)
	assert.Empty(t, f.rec.events)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestBulkRejectsBadRequests(t *testing.T) {
	f := setup(t, Policy{BulkMaxTargets: 2})
	ctx := context.Background()

	_, err := f.bulk.Execute(ctx, BulkRequest{Action: "archive", IDs: []uint64{1}}, model.RequestMeta{})
	assert.Equal(t, repository.KindValidation, repository.KindOf(err))

	_, err = f.bulk.Execute(ctx, BulkRequest{Action: BulkCancel}, model.RequestMeta{})
	assert.Equal(t, repository.KindValidation, repository.KindOf(err))

	_, err = f.bulk.Execute(ctx, BulkRequest{Action: BulkCancel, Filters: &repository.Filter{}}, model.RequestMeta{})
	assert.Equal(t, repository.KindValidation, repository.KindOf(err))

	_, err = f.bulk.Execute(ctx, BulkRequest{Action: BulkCancel, IDs: []uint64{1, 2, 3}}, model.RequestMeta{})
	assert.Equal(t, repository.KindValidation, repository.KindOf(err))

	_, err = f.bulk.Execute(ctx, BulkRequest{Action: BulkStatus, IDs: []uint64{1}}, model.RequestMeta{})
	assert.Equal(t, repository.KindValidation, repository.KindOf(err))

	_, err = f.bulk.Execute(ctx, BulkRequest{Action: BulkExport, IDs: []uint64{1}}, model.RequestMeta{})
	assert.Equal(t, repository.KindValidation, repository.KindOf(err))

	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestBulkFilterWithNoMatches(t *testing.T) {
	f := setup(t, DefaultPolicy())
	f.mock.ExpectQuery(`SELECT id FROM reservations WHERE is_deleted = 0 AND channel = \? ORDER BY id ASC LIMIT \?`).
		WithArgs("웹", 1000).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := f.bulk.Execute(context.Background(),
		BulkRequest{Action: BulkCancel, Filters: &repository.Filter{Channel: "웹", IncludeDeleted: true}}, model.RequestMeta{})
	assert.Equal(t, repository.KindValidation, repository.KindOf(err))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestExportResolvesFieldsAndRows(t *testing.T) {
	f := setup(t, DefaultPolicy())
	f.mock.ExpectQuery(`SELECT .+ FROM field_definitions WHERE 1=1 ORDER BY`).
		WillReturnRows(sqlmock.NewRows(fieldCols))
	f.mock.ExpectQuery(`WHERE is_deleted = 0 AND id IN \(\?,\?\)`).
		WithArgs(uint64(2), uint64(5)).
		WillReturnRows(sqlmock.NewRows(reservationCols).
			AddRow(stored{id: 2, number: "R2", version: 1}.row()...).
			AddRow(stored{id: 5, number: "R5", version: 1}.row()...))

	out, err := f.bulk.Export(context.Background(), BulkRequest{
		Action:       BulkExport,
		IDs:          []uint64{5, 2},
		ExportFields: []string{"reservation_number", "korean_name"},
	})
	require.NoError(t, err)
	assert.Equal(t, export.FormatCSV, out.Format)
	assert.Equal(t, []string{"reservation_number", "korean_name"}, out.Fields)
	require.Len(t, out.Records, 2)
	assert.Equal(t, "R5", out.Records[1].ReservationNumber)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestExportRejectsFormat(t *testing.T) {
	f := setup(t, DefaultPolicy())
	_, err := f.bulk.Export(context.Background(), BulkRequest{Action: BulkExport, IDs: []uint64{1}, Format: "pdf"})
	assert.Equal(t, repository.KindValidation, repository.KindOf(err))
}

func TestFieldDefinitionBulkImport(t *testing.T) {
	f := setup(t, DefaultPolicy())
	ts := fixedNow

	f.mock.ExpectQuery(`FROM field_definitions WHERE field_key = \?`).
		WithArgs("visa_number").
		WillReturnError(sql.ErrNoRows)
	f.mock.ExpectExec(`INSERT INTO field_definitions`).WillReturnResult(sqlmock.NewResult(11, 1))
	f.mock.ExpectQuery(`FROM field_definitions WHERE field_key = \?`).
		WithArgs("diet").
		WillReturnRows(sqlmock.NewRows(fieldCols).
			AddRow(3, "diet", "Diet", "multiselect", false, nil, `["vegan"]`, "travel", 1, true, nil, nil, nil, ts, ts))
	f.mock.ExpectExec(`UPDATE field_definitions SET`).WillReturnResult(sqlmock.NewResult(0, 1))

	inactive := false
	items := []DefinitionInput{
		{FieldDefinition: model.FieldDefinition{Key: "Bad Key", Label: "x", Type: "string"}},
		{FieldDefinition: model.FieldDefinition{Key: "visa_number", Label: "Visa", Type: "String"}},
		{FieldDefinition: model.FieldDefinition{Key: "diet", Label: "Diet", Type: "multiselect",
			Options: []string{"vegan", "halal"}}, Active: &inactive},
		{FieldDefinition: model.FieldDefinition{Key: "hotel_class", Label: "Hotel", Type: "select"}},
	}
	res, err := f.defs.BulkImport(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 1, res.Updated)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 0, res.Errors[0].Index)
	assert.Equal(t, 3, res.Errors[1].Index)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestFieldDefinitionCreateChecksEveryProblem(t *testing.T) {
	f := setup(t, DefaultPolicy())
	bad := "("
	_, err := f.defs.Create(context.Background(), model.FieldDefinition{Key: "9x", Type: "colour", Pattern: &bad})
	require.Equal(t, repository.KindValidation, repository.KindOf(err))
	var e *repository.Error
	require.ErrorAs(t, err, &e)
	assert.Len(t, e.Details, 4)
}

func TestFieldDefinitionHardDeleteInUse(t *testing.T) {
	f := setup(t, DefaultPolicy())
	ts := fixedNow
	f.mock.ExpectQuery(`FROM field_definitions WHERE field_key = \?`).
		WithArgs("pickup").
		WillReturnRows(sqlmock.NewRows(fieldCols).
			AddRow(4, "pickup", "Pickup", "boolean", false, nil, nil, "general", 0, true, nil, nil, nil, ts, ts))
	f.mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("$.pickup").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := f.defs.Deactivate(context.Background(), "pickup", true)
	assert.Equal(t, repository.CodeConflict, codeOf(t, err))
	require.NoError(t, f.mock.ExpectationsWereMet())
}
