// Package sheet extracts header and sample rows from spreadsheet files.
// Spreadsheets keep their directory at the end of the archive, so unlike
// delimited text they must be fetched in full before any cell can be read.
package sheet

import (
	"bytes"

	"github.com/guillermoBallester/strata/internal/core/domain"
	"github.com/xuri/excelize/v2"
)

// ExcelExtractor implements port.SheetExtractor for XLSX workbooks. Only the
// first sheet is examined.
type ExcelExtractor struct{}

func NewExcelExtractor() *ExcelExtractor {
	return &ExcelExtractor{}
}

// Extract opens data as a workbook and returns the first sheet's first row as
// the header plus up to wantRows following rows.
func (e *ExcelExtractor) Extract(data []byte, wantRows int) ([]string, [][]string, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, domain.WrapDetectError(domain.ErrDecodeFailed, err, "opening workbook")
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, domain.NewDetectError(domain.ErrDecodeFailed, "workbook has no sheets")
	}

	iter, err := wb.Rows(sheets[0])
	if err != nil {
		return nil, nil, domain.WrapDetectError(domain.ErrDecodeFailed, err, "reading sheet %q", sheets[0])
	}
	defer iter.Close()

	var header []string
	var rows [][]string
	for iter.Next() {
		cells, err := iter.Columns()
		if err != nil {
			return nil, nil, domain.WrapDetectError(domain.ErrDecodeFailed, err, "reading row of sheet %q", sheets[0])
		}
		if header == nil {
			if len(cells) == 0 {
				continue // leading blank rows before the header
			}
			header = cells
			continue
		}
		rows = append(rows, cells)
		if len(rows) >= wantRows {
			break
		}
	}

	if header == nil {
		return nil, nil, domain.NewDetectError(domain.ErrDecodeFailed, "sheet %q has no header row", sheets[0])
	}
	return header, rows, nil
}
