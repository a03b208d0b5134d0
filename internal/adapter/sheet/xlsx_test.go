package sheet

import (
	"bytes"
	"testing"

	"github.com/guillermoBallester/strata/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	wb := excelize.NewFile()
	defer wb.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, wb.SetSheetRow("Sheet1", cell, &row))
	}

	var buf bytes.Buffer
	require.NoError(t, wb.Write(&buf))
	return buf.Bytes()
}

func TestExtract(t *testing.T) {
	t.Parallel()
	data := buildWorkbook(t, [][]any{
		{"api_number", "county", "depth"},
		{"3700112345", "Greene", 8200},
		{"3700167890", "Washington", 7950},
		{"3700122222", "Fayette", 8100},
	})

	header, rows, err := NewExcelExtractor().Extract(data, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"api_number", "county", "depth"}, header)
	require.Len(t, rows, 2, "row budget is honored")
	assert.Equal(t, []string{"3700112345", "Greene", "8200"}, rows[0])
}

func TestExtract_SkipsLeadingBlankRows(t *testing.T) {
	t.Parallel()
	data := buildWorkbook(t, [][]any{
		{},
		{},
		{"name", "value"},
		{"a", 1},
	})

	header, rows, err := NewExcelExtractor().Extract(data, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "value"}, header)
	require.Len(t, rows, 1)
}

func TestExtract_EmptySheet(t *testing.T) {
	t.Parallel()
	data := buildWorkbook(t, nil)

	_, _, err := NewExcelExtractor().Extract(data, 5)
	require.Error(t, err)
	assert.Equal(t, domain.ErrDecodeFailed, domain.KindOf(err))
}

func TestExtract_NotAWorkbook(t *testing.T) {
	t.Parallel()
	_, _, err := NewExcelExtractor().Extract([]byte("id,name\n1,alice\n"), 5)
	require.Error(t, err)
	assert.Equal(t, domain.ErrDecodeFailed, domain.KindOf(err))
}
