package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/iliyamo/booking-record-engine/internal/model"
)

const sheetName = "Reservations"

// WriteXLSX renders the same rows as WriteCSV into a single-sheet workbook
// with a styled, frozen header row.
func WriteXLSX(w io.Writer, fields []string, recs []model.Reservation) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	_ = f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	for col, name := range fields {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, name); err != nil {
			return fmt.Errorf("set header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("style header %s: %w", cell, err)
		}
		colName, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheetName, colName, colName, columnWidth(name)); err != nil {
			return err
		}
	}

	for i, rec := range recs {
		for col, name := range fields {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, xlsxValue(name, Value(rec, name))); err != nil {
				return fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	_, err = f.WriteTo(w)
	return err
}

// xlsxValue keeps numbers numeric so spreadsheets can sum them; everything
// else goes through Cell.
func xlsxValue(field string, v any) any {
	switch t := v.(type) {
	case float64:
		if model.MoneyFields[field] {
			return model.RoundMoney(t)
		}
		return t
	case int, int64, uint64, bool:
		return t
	}
	return Cell(field, v)
}

func columnWidth(field string) float64 {
	switch field {
	case "memo", "extras", "flags", "product_name", "package_name":
		return 40
	case "id", "people_adult", "people_child", "people_infant", "guest_count", "lock_version":
		return 10
	}
	return 20
}
