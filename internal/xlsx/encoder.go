// Package xlsx encodes datasets as XLSX workbooks.
package xlsx

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/jmarchand/boamp-extractor/internal/extract"
)

// ContentType is the MIME type for XLSX payloads.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Encoder produces one worksheet per dataset: a header row of column names
// followed by one row per dataset row, preserving column and row order
// exactly. An empty dataset yields a header-only sheet.
type Encoder struct{}

// New constructs an Encoder.
func New() Encoder {
	return Encoder{}
}

// Encode writes the dataset into a workbook and returns its bytes.
func (Encoder) Encode(ds extract.Dataset, sheetName string) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return nil, fmt.Errorf("name worksheet: %w", err)
	}

	for i, col := range ds.Columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, fmt.Errorf("header cell %d: %w", i, err)
		}
		if err := f.SetCellValue(sheetName, cell, col); err != nil {
			return nil, fmt.Errorf("write header %q: %w", col, err)
		}
	}

	for r, row := range ds.Rows {
		for c, col := range ds.Columns {
			value, ok := row[col]
			if !ok || value == nil {
				// Rows missing a column read as empty cells.
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return nil, fmt.Errorf("cell %d,%d: %w", c, r, err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return nil, fmt.Errorf("write cell %s: %w", cell, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
