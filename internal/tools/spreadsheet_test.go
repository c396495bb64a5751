package tools_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/gnan1985/You-Only-Do-Once/internal/tools"
)

func people() []any {
	return []any{
		map[string]any{"name": "Bob", "age": 30.0, "city": "Oslo"},
		map[string]any{"name": "Al", "age": 25.0, "city": "Rome"},
		map[string]any{"name": "Cy", "age": 41.0, "city": "Lima"},
	}
}

func TestSpreadsheetRoundTrip(t *testing.T) {
	for _, file := range []string{"people.csv", "people.xlsx", "people.tsv"} {
		t.Run(file, func(t *testing.T) {
			reg, _ := fsRegistry(t, false)

			out := call(t, reg, "spreadsheet", "write_spreadsheet", map[string]any{
				"path":    file,
				"data":    people(),
				"headers": []any{"name", "age", "city"},
			})
			assert.Equal(t, 3, out["rowCount"])

			out = call(t, reg, "excel", "read_spreadsheet", map[string]any{
				"path": file,
			})
			assert.Equal(t, []string{"name", "age", "city"}, out["headers"])
			rows := out["rows"].([]map[string]any)
			require.Len(t, rows, 3)
			assert.Equal(t, "Bob", rows[0]["name"])
			assert.Equal(t, "30", rows[0]["age"])

			call(t, reg, "spreadsheet", "sort_spreadsheet", map[string]any{
				"path": file, "column": "Age", "order": "desc",
			})
			out = call(t, reg, "spreadsheet", "read_spreadsheet", map[string]any{
				"path": file,
			})
			rows = out["rows"].([]map[string]any)
			assert.Equal(t, "Cy", rows[0]["name"])
			assert.Equal(t, "Al", rows[2]["name"])

			out = call(t, reg, "spreadsheet", "get_cell", map[string]any{
				"path": file, "cell": "a2",
			})
			assert.Equal(t, "Cy", out["value"])
		})
	}
}

func TestSpreadsheetFilter(t *testing.T) {
	reg, root := fsRegistry(t, false)
	call(t, reg, "spreadsheet", "write_spreadsheet", map[string]any{
		"path":    "p.csv",
		"data":    people(),
		"headers": []any{"name", "age", "city"},
	})

	out := call(t, reg, "spreadsheet", "filter_spreadsheet", map[string]any{
		"path":       "p.csv",
		"column":     "age",
		"operator":   "greater_than",
		"value":      26,
		"outputPath": "older.csv",
	})
	assert.Equal(t, 2, out["matchedRows"])
	assert.Equal(t, 3, out["originalRows"])
	assert.FileExists(t, filepath.Join(root, "older.csv"))

	out = call(t, reg, "spreadsheet", "read_spreadsheet", map[string]any{
		"path": "p.csv",
	})
	assert.Equal(t, 3, out["rowCount"])

	out = call(t, reg, "spreadsheet", "filter_spreadsheet", map[string]any{
		"path": "p.csv", "column": "city", "operator": "contains", "value": "o",
	})
	assert.Equal(t, 2, out["matchedRows"])

	res := reg.Call(context.Background(), "spreadsheet", "filter_spreadsheet",
		map[string]any{"path": "p.csv", "column": "city", "operator": "like", "value": "x"},
	)
	assert.Equal(t, tools.KindValidation, tools.KindOf(res.Err))

	res = reg.Call(context.Background(), "spreadsheet", "sort_spreadsheet",
		map[string]any{"path": "p.csv", "column": "salary"},
	)
	assert.Equal(t, tools.KindValidation, tools.KindOf(res.Err))
}

func TestSpreadsheetAppendRows(t *testing.T) {
	reg, _ := fsRegistry(t, false)

	out := call(t, reg, "spreadsheet", "append_rows", map[string]any{
		"path": "log.xlsx",
		"rows": []any{[]any{"when", "what"}, []any{"mon", "start"}},
	})
	assert.Equal(t, true, out["created"])
	assert.Equal(t, 1, out["rowCount"])

	out = call(t, reg, "spreadsheet", "append_rows", map[string]any{
		"path": "log.xlsx",
		"rows": []any{
			map[string]any{"what": "stop", "when": "tue"},
			[]any{"wed", "pause"},
		},
	})
	assert.Equal(t, false, out["created"])
	assert.Equal(t, 2, out["appendedRows"])
	assert.Equal(t, 3, out["rowCount"])

	out = call(t, reg, "spreadsheet", "read_spreadsheet", map[string]any{
		"path": "log.xlsx",
	})
	rows := out["rows"].([]map[string]any)
	assert.Equal(t, map[string]any{"when": "tue", "what": "stop"}, rows[1])
	assert.Equal(t, map[string]any{"when": "wed", "what": "pause"}, rows[2])
}

func TestSpreadsheetPreservesOtherSheets(t *testing.T) {
	reg, root := fsRegistry(t, false)
	path := filepath.Join(root, "book.xlsx")

	f := excelize.NewFile()
	_, err := f.NewSheet("Notes")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Notes", "A1", "keep me"))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	call(t, reg, "spreadsheet", "write_spreadsheet", map[string]any{
		"path":  "book.xlsx",
		"sheet": "Data",
		"data":  []any{[]any{"k", "v"}, []any{"a", 1}},
	})

	out := call(t, reg, "spreadsheet", "get_cell", map[string]any{
		"path": "book.xlsx", "sheet": "Notes", "cell": "A1",
	})
	assert.Equal(t, "keep me", out["value"])

	out = call(t, reg, "spreadsheet", "read_spreadsheet", map[string]any{
		"path": "book.xlsx", "sheet": "Data",
	})
	assert.Equal(t, 1, out["rowCount"])
	assert.Contains(t, out["sheets"], "Notes")
}

func TestSpreadsheetErrors(t *testing.T) {
	reg, root := fsRegistry(t, false)
	require.NoError(t, os.WriteFile(filepath.Join(root, "x.doc"), nil, 0644))

	res := reg.Call(context.Background(), "spreadsheet", "read_spreadsheet",
		map[string]any{"path": "x.doc"},
	)
	assert.Equal(t, tools.KindValidation, tools.KindOf(res.Err))

	res = reg.Call(context.Background(), "spreadsheet", "read_spreadsheet",
		map[string]any{"path": "missing.csv"},
	)
	assert.Equal(t, tools.KindExecution, tools.KindOf(res.Err))

	res = reg.Call(context.Background(), "spreadsheet", "write_spreadsheet",
		map[string]any{"path": "a.csv", "data": []any{"scalar"}},
	)
	assert.Equal(t, tools.KindValidation, tools.KindOf(res.Err))
}

func TestSpreadsheetKeepsNumericLookingText(t *testing.T) {
	reg, _ := fsRegistry(t, false)

	call(t, reg, "spreadsheet", "write_spreadsheet", map[string]any{
		"path": "contacts.xlsx",
		"data": []any{
			[]any{"phone", "code", "n", "zip", "qty"},
			[]any{"+15551234567", "1e3", "12345678901234567890", "007", 12},
		},
	})

	out := call(t, reg, "spreadsheet", "read_spreadsheet", map[string]any{
		"path": "contacts.xlsx",
	})
	rows := out["rows"].([]map[string]any)
	require.Len(t, rows, 1)
	assert.Equal(t, map[string]any{
		"phone": "+15551234567",
		"code":  "1e3",
		"n":     "12345678901234567890",
		"zip":   "007",
		"qty":   "12",
	}, rows[0])
}

func TestSpreadsheetSortKeepsOtherCells(t *testing.T) {
	reg, root := fsRegistry(t, false)
	path := filepath.Join(root, "orders.xlsx")

	f := excelize.NewFile()
	rows := [][]any{
		{"id", "phone", "amount", "paid"},
		{2, "+4711", 1234.5, true},
		{1, "007", 12345678901234567890.0, false},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	big, err := f.GetCellValue("Sheet1", "C3", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	call(t, reg, "spreadsheet", "sort_spreadsheet", map[string]any{
		"path": "orders.xlsx", "column": "id",
	})

	f, err = excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	raw := func(cell string) string {
		v, err := f.GetCellValue("Sheet1", cell, excelize.Options{RawCellValue: true})
		require.NoError(t, err)
		return v
	}
	kind := func(cell string) excelize.CellType {
		typ, err := f.GetCellType("Sheet1", cell)
		require.NoError(t, err)
		return typ
	}

	assert.Equal(t, "1", raw("A2"))
	assert.Equal(t, "2", raw("A3"))

	v, err := f.GetCellValue("Sheet1", "B2")
	require.NoError(t, err)
	assert.Equal(t, "007", v)
	assert.NotContains(t,
		[]excelize.CellType{excelize.CellTypeUnset, excelize.CellTypeNumber},
		kind("B2"),
	)
	v, err = f.GetCellValue("Sheet1", "B3")
	require.NoError(t, err)
	assert.Equal(t, "+4711", v)

	assert.Equal(t, big, raw("C2"))
	assert.Equal(t, "1234.5", raw("C3"))
	assert.Equal(t, excelize.CellTypeBool, kind("D3"))
	assert.Equal(t, excelize.CellTypeBool, kind("D2"))
}
