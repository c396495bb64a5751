package tools

import (
	"context"
	"encoding/csv"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// SpreadsheetTool reads and rewrites tabular files. The first row of a
// sheet is its header. Every mutating operation reads the whole sheet and
// writes the whole sheet back; there are no partial updates.
type SpreadsheetTool struct {
	files *FilesystemTool
}

// table is a header row plus data rows. For workbooks, values holds the
// typed cell values read from the file, parallel to rows, so rewriting a
// sheet keeps numbers as numbers and text as text.
type table struct {
	headers []string
	rows    [][]string
	values  [][]any
}

type sheetFormat int

const (
	formatXLSX sheetFormat = iota
	formatCSV
	formatTSV
)

func NewSpreadsheetTool(files *FilesystemTool) *SpreadsheetTool {
	return &SpreadsheetTool{files: files}
}

func (s *SpreadsheetTool) Name() Category {
	return Spreadsheet
}

func (s *SpreadsheetTool) Description() string {
	return "Read and modify .xlsx, .csv and .tsv spreadsheets whose first row holds the column headers."
}

func (s *SpreadsheetTool) Operations() []Operation {
	path := required("path", TypeString, "Spreadsheet file (.xlsx, .csv, .tsv)")
	sheet := optional("sheet", TypeString, "Worksheet name (xlsx only)")
	return []Operation{
		{
			Name:        "read_spreadsheet",
			Description: "Read all rows of a sheet as objects keyed by header",
			Parameters:  []Parameter{path, sheet},
			Run:         s.read,
		},
		{
			Name:        "write_spreadsheet",
			Description: "Replace a sheet's contents",
			Parameters: []Parameter{
				path,
				required("data", TypeArray, "Rows as objects, or as arrays with the header first"),
				optional("headers", TypeArray, "Column order; required when rows are arrays without a header row"),
				sheet,
			},
			Run: s.write,
		},
		{
			Name:        "sort_spreadsheet",
			Description: "Sort the rows of a sheet by one column",
			Parameters: []Parameter{
				path,
				required("column", TypeString, "Header of the sort column"),
				optional("order", TypeString, "asc (default) or desc"),
				sheet,
			},
			Run: s.sort,
		},
		{
			Name:        "filter_spreadsheet",
			Description: "Keep only the rows matching a condition",
			Parameters: []Parameter{
				path,
				required("column", TypeString, "Header of the column to test"),
				required("value", TypeAny, "Value to compare against"),
				optional("operator", TypeString, "equals (default), not_equals, contains, greater_than, less_than"),
				optional("outputPath", TypeString, "Write matches here instead of in place"),
				sheet,
			},
			Run: s.filter,
		},
		{
			Name:        "append_rows",
			Description: "Append rows to a sheet, creating the file if needed",
			Parameters: []Parameter{
				path,
				required("rows", TypeArray, "Rows as objects keyed by header, or as arrays"),
				sheet,
			},
			Run: s.append,
		},
		{
			Name:        "get_cell",
			Description: "Read one cell in A1 notation",
			Parameters: []Parameter{
				path,
				required("cell", TypeString, "Cell reference such as B2"),
				sheet,
			},
			Run: s.cell,
		},
	}
}

func (s *SpreadsheetTool) read(_ context.Context, args Args) (Output, error) {
	path, sheet, err := s.target(args)
	if err != nil {
		return nil, err
	}
	t, sheet, err := loadTable(path, sheet)
	if err != nil {
		return nil, err
	}
	out := succeed(Output{
		"path":     path,
		"sheet":    sheet,
		"headers":  t.headers,
		"rows":     t.records(),
		"rowCount": len(t.rows),
	})
	if sheets, err := sheetNames(path); err == nil {
		out["sheets"] = sheets
	}
	return out, nil
}

func (s *SpreadsheetTool) write(_ context.Context, args Args) (Output, error) {
	path, sheet, err := s.target(args)
	if err != nil {
		return nil, err
	}
	data, err := args.List("data")
	if err != nil {
		return nil, err
	}
	headers, err := args.OptStrings("headers")
	if err != nil {
		return nil, err
	}
	t, err := tableFrom(data, headers)
	if err != nil {
		return nil, err
	}
	if err := saveTable(path, sheet, t); err != nil {
		return nil, err
	}
	return succeed(Output{
		"path":     path,
		"headers":  t.headers,
		"rowCount": len(t.rows),
	}), nil
}

func (s *SpreadsheetTool) sort(_ context.Context, args Args) (Output, error) {
	path, sheet, err := s.target(args)
	if err != nil {
		return nil, err
	}
	column, err := args.String("column")
	if err != nil {
		return nil, err
	}
	order, err := args.OptString("order", "asc")
	if err != nil {
		return nil, err
	}
	order = strings.ToLower(order)
	if order != "asc" && order != "desc" {
		return nil, validationError(
			"%w: order must be asc or desc", ErrInvalidParameter,
		)
	}

	t, sheet, err := loadTable(path, sheet)
	if err != nil {
		return nil, err
	}
	idx, err := t.column(column)
	if err != nil {
		return nil, err
	}
	t.sortBy(func(a, b []string) int {
		c := compareCells(cellAt(a, idx), cellAt(b, idx))
		if order == "desc" {
			return -c
		}
		return c
	})
	if err := saveTable(path, sheet, t); err != nil {
		return nil, err
	}
	return succeed(Output{
		"path":     path,
		"column":   column,
		"order":    order,
		"rowCount": len(t.rows),
	}), nil
}

func (s *SpreadsheetTool) filter(_ context.Context, args Args) (Output, error) {
	path, sheet, err := s.target(args)
	if err != nil {
		return nil, err
	}
	column, err := args.String("column")
	if err != nil {
		return nil, err
	}
	if !args.Has("value") {
		return nil, validationError("%w: value", ErrMissingParameter)
	}
	value := stringify(args["value"])
	operator, err := args.OptString("operator", "equals")
	if err != nil {
		return nil, err
	}
	match, err := matcher(operator, value)
	if err != nil {
		return nil, err
	}
	outPath := path
	if args.Has("outputPath") {
		if outPath, err = s.files.pathArg(args, "outputPath"); err != nil {
			return nil, err
		}
	}

	t, sheet, err := loadTable(path, sheet)
	if err != nil {
		return nil, err
	}
	idx, err := t.column(column)
	if err != nil {
		return nil, err
	}
	total := len(t.rows)
	kept := t.keep(func(row []string) bool {
		return match(cellAt(row, idx))
	})
	if err := saveTable(outPath, sheet, t); err != nil {
		return nil, err
	}
	return succeed(Output{
		"path":         outPath,
		"column":       column,
		"operator":     operator,
		"matchedRows":  kept,
		"originalRows": total,
	}), nil
}

func (s *SpreadsheetTool) append(_ context.Context, args Args) (Output, error) {
	path, sheet, err := s.target(args)
	if err != nil {
		return nil, err
	}
	rows, err := args.List("rows")
	if err != nil {
		return nil, err
	}

	t, sheet, err := loadTable(path, sheet)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if t, err = tableFrom(rows, nil); err != nil {
			return nil, err
		}
		if err := saveTable(path, sheet, t); err != nil {
			return nil, err
		}
		return succeed(Output{
			"path":         path,
			"appendedRows": len(t.rows),
			"rowCount":     len(t.rows),
			"created":      true,
		}), nil
	case err != nil:
		return nil, err
	}

	added, err := tableFrom(rows, t.headers)
	if err != nil {
		return nil, err
	}
	t.rows = append(t.rows, added.rows...)
	if err := saveTable(path, sheet, t); err != nil {
		return nil, err
	}
	return succeed(Output{
		"path":         path,
		"appendedRows": len(added.rows),
		"rowCount":     len(t.rows),
		"created":      false,
	}), nil
}

func (s *SpreadsheetTool) cell(_ context.Context, args Args) (Output, error) {
	path, sheet, err := s.target(args)
	if err != nil {
		return nil, err
	}
	ref, err := args.String("cell")
	if err != nil {
		return nil, err
	}
	ref = strings.ToUpper(strings.TrimSpace(ref))
	col, row, err := excelize.CellNameToCoordinates(ref)
	if err != nil {
		return nil, validationError("%w: cell: %v", ErrInvalidParameter, err)
	}

	var value string
	if formatOf(path) == formatXLSX {
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, executionError("failed to open spreadsheet: %w", err)
		}
		defer f.Close()
		if sheet == "" {
			sheet = f.GetSheetName(f.GetActiveSheetIndex())
		}
		if value, err = f.GetCellValue(sheet, ref); err != nil {
			return nil, executionError("failed to read cell: %w", err)
		}
	} else {
		records, err := readDelimited(path)
		if err != nil {
			return nil, err
		}
		if row <= len(records) {
			value = cellAt(records[row-1], col-1)
		}
	}
	return succeed(Output{
		"path":  path,
		"sheet": sheet,
		"cell":  ref,
		"value": value,
	}), nil
}

func (s *SpreadsheetTool) target(args Args) (string, string, error) {
	path, err := s.files.pathArg(args, "path")
	if err != nil {
		return "", "", err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".csv", ".tsv":
	default:
		return "", "", validationError(
			"%w: unsupported spreadsheet format: %s", ErrInvalidParameter, path,
		)
	}
	sheet, err := args.OptString("sheet", "")
	if err != nil {
		return "", "", err
	}
	return path, sheet, nil
}

func formatOf(path string) sheetFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return formatCSV
	case ".tsv":
		return formatTSV
	default:
		return formatXLSX
	}
}

// loadTable reads a whole sheet. For workbooks an empty sheet name means
// the active sheet; the resolved name is returned.
func loadTable(path, sheet string) (*table, string, error) {
	var records [][]string
	var values [][]any
	if formatOf(path) == formatXLSX {
		if _, err := os.Stat(path); err != nil {
			return nil, sheet, executionError("failed to open spreadsheet: %w", err)
		}
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, sheet, executionError("failed to open spreadsheet: %w", err)
		}
		defer f.Close()
		if sheet == "" {
			sheet = f.GetSheetName(f.GetActiveSheetIndex())
		}
		if records, err = f.GetRows(sheet); err != nil {
			return nil, sheet, executionError("failed to read sheet %q: %w", sheet, err)
		}
		if values, err = typedValues(f, sheet, records); err != nil {
			return nil, sheet, err
		}
	} else {
		var err error
		if records, err = readDelimited(path); err != nil {
			return nil, sheet, err
		}
	}

	t := &table{headers: []string{}, rows: [][]string{}}
	if len(records) > 0 {
		t.headers = records[0]
		t.rows = records[1:]
	}
	if len(values) > 0 {
		t.values = values[1:]
	}
	return t, sheet, nil
}

// typedValues returns the stored value of every cell in records: numbers
// and booleans as Go values, everything else as the displayed text.
// Numeric cells whose display is not a plain number, such as dates or
// percentages, keep their text.
func typedValues(f *excelize.File, sheet string, records [][]string) ([][]any, error) {
	res := make([][]any, len(records))
	for i, row := range records {
		res[i] = make([]any, len(row))
		for j, text := range row {
			res[i][j] = text
			if text == "" {
				continue
			}
			name, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return nil, executionError("failed to address cell: %w", err)
			}
			typ, err := f.GetCellType(sheet, name)
			if err != nil {
				return nil, executionError("failed to read cell %s: %w", name, err)
			}
			switch typ {
			case excelize.CellTypeBool:
				res[i][j] = text == "TRUE" || text == "1"
			case excelize.CellTypeUnset, excelize.CellTypeNumber:
				if _, err := strconv.ParseFloat(text, 64); err != nil {
					continue
				}
				raw, err := f.GetCellValue(sheet, name, excelize.Options{RawCellValue: true})
				if err != nil {
					return nil, executionError("failed to read cell %s: %w", name, err)
				}
				if v, err := strconv.ParseFloat(raw, 64); err == nil {
					res[i][j] = v
				}
			}
		}
	}
	return res, nil
}

// saveTable replaces a sheet with the table. Other sheets of an existing
// workbook are preserved.
func saveTable(path, sheet string, t *table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return executionError("failed to create directory: %w", err)
	}
	if formatOf(path) != formatXLSX {
		return writeDelimited(path, t)
	}

	var f *excelize.File
	if _, err := os.Stat(path); err == nil {
		if f, err = excelize.OpenFile(path); err != nil {
			return executionError("failed to open spreadsheet: %w", err)
		}
	} else {
		f = excelize.NewFile()
		if sheet != "" && sheet != defaultSheet {
			if err := f.SetSheetName(defaultSheet, sheet); err != nil {
				return executionError("failed to name sheet: %w", err)
			}
		}
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	if err := clearSheet(f, sheet); err != nil {
		return err
	}
	for i, row := range append([][]string{t.headers}, t.rows...) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return executionError("failed to address row: %w", err)
		}
		values := make([]any, len(row))
		for j, v := range row {
			if i == 0 {
				values[j] = v
			} else {
				values[j] = t.value(i-1, j)
			}
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return executionError("failed to write row: %w", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return executionError("failed to save spreadsheet: %w", err)
	}
	return nil
}

func clearSheet(f *excelize.File, sheet string) error {
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return executionError("failed to find sheet: %w", err)
	}
	if idx < 0 {
		if _, err := f.NewSheet(sheet); err != nil {
			return executionError("failed to create sheet: %w", err)
		}
		return nil
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return executionError("failed to read sheet: %w", err)
	}
	for i := len(rows); i >= 1; i-- {
		if err := f.RemoveRow(sheet, i); err != nil {
			return executionError("failed to clear sheet: %w", err)
		}
	}
	return nil
}

func sheetNames(path string) ([]string, error) {
	if formatOf(path) != formatXLSX {
		return nil, errors.New("not a workbook")
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

func readDelimited(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, executionError("failed to open spreadsheet: %w", err)
	}
	defer file.Close()
	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	if formatOf(path) == formatTSV {
		r.Comma = '\t'
	}
	records, err := r.ReadAll()
	if err != nil {
		return nil, executionError("failed to parse spreadsheet: %w", err)
	}
	return records, nil
}

func writeDelimited(path string, t *table) error {
	file, err := os.Create(path)
	if err != nil {
		return executionError("failed to write spreadsheet: %w", err)
	}
	w := csv.NewWriter(file)
	if formatOf(path) == formatTSV {
		w.Comma = '\t'
	}
	if err := w.WriteAll(append([][]string{t.headers}, t.rows...)); err != nil {
		_ = file.Close()
		return executionError("failed to write spreadsheet: %w", err)
	}
	if err := file.Close(); err != nil {
		return executionError("failed to write spreadsheet: %w", err)
	}
	return nil
}

// tableFrom converts step data into a table. Object rows are laid out by
// headers (derived from the objects when none are given); array rows use
// the first row as the header when no headers are given.
func tableFrom(data []any, headers []string) (*table, error) {
	t := &table{headers: slices.Clone(headers), rows: [][]string{}}
	for i, item := range data {
		switch row := item.(type) {
		case []any:
			cells := make([]string, len(row))
			for j, v := range row {
				cells[j] = stringify(v)
			}
			if len(t.headers) == 0 && i == 0 {
				t.headers = cells
				continue
			}
			t.rows = append(t.rows, cells)
		default:
			obj, ok := asMap(item)
			if !ok {
				return nil, validationError(
					"%w: row %d must be an object or an array",
					ErrInvalidParameter, i+1,
				)
			}
			t.headers = mergeHeaders(t.headers, obj, len(headers) == 0)
			cells := make([]string, len(t.headers))
			for j, h := range t.headers {
				cells[j] = stringify(obj[h])
			}
			t.rows = append(t.rows, cells)
		}
	}
	if t.headers == nil {
		t.headers = []string{}
	}
	return t, nil
}

// mergeHeaders adds unseen keys of obj, sorted, when growing is allowed
func mergeHeaders(headers []string, obj map[string]any, grow bool) []string {
	if !grow && headers != nil {
		return headers
	}
	var extra []string
	for k := range obj {
		if !slices.Contains(headers, k) {
			extra = append(extra, k)
		}
	}
	slices.Sort(extra)
	return append(headers, extra...)
}

// value is the typed value to write for a data cell: the value read from
// the workbook when there is one, otherwise the text converted by cellValue
func (t *table) value(row, col int) any {
	if row < len(t.values) && col < len(t.values[row]) {
		if v := t.values[row][col]; v != nil {
			return v
		}
	}
	return cellValue(cellAt(t.rows[row], col))
}

// sortBy stably reorders rows, keeping values aligned with them
func (t *table) sortBy(cmp func(a, b []string) int) {
	order := make([]int, len(t.rows))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp(t.rows[a], t.rows[b])
	})
	t.pick(order)
}

// keep drops the rows match rejects and returns how many remain
func (t *table) keep(match func([]string) bool) int {
	var order []int
	for i, row := range t.rows {
		if match(row) {
			order = append(order, i)
		}
	}
	t.pick(order)
	return len(order)
}

func (t *table) pick(order []int) {
	rows := make([][]string, 0, len(order))
	var values [][]any
	for _, i := range order {
		rows = append(rows, t.rows[i])
		if i < len(t.values) {
			values = append(values, t.values[i])
		} else if t.values != nil {
			values = append(values, nil)
		}
	}
	t.rows = rows
	t.values = values
}

func (t *table) column(name string) (int, error) {
	for i, h := range t.headers {
		if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(name)) {
			return i, nil
		}
	}
	return -1, validationError(
		"%w: no column named %q", ErrInvalidParameter, name,
	)
}

func (t *table) records() []map[string]any {
	res := make([]map[string]any, 0, len(t.rows))
	for _, row := range t.rows {
		rec := make(map[string]any, len(t.headers))
		for i, h := range t.headers {
			rec[h] = cellAt(row, i)
		}
		res = append(res, rec)
	}
	return res
}

func matcher(operator, value string) (func(string) bool, error) {
	switch strings.ToLower(operator) {
	case "equals", "eq", "==":
		return func(c string) bool { return compareCells(c, value) == 0 }, nil
	case "not_equals", "ne", "!=":
		return func(c string) bool { return compareCells(c, value) != 0 }, nil
	case "contains":
		v := strings.ToLower(value)
		return func(c string) bool {
			return strings.Contains(strings.ToLower(c), v)
		}, nil
	case "greater_than", "gt", ">":
		return func(c string) bool { return compareCells(c, value) > 0 }, nil
	case "less_than", "lt", "<":
		return func(c string) bool { return compareCells(c, value) < 0 }, nil
	default:
		return nil, validationError(
			"%w: unknown operator %q", ErrInvalidParameter, operator,
		)
	}
}

// compareCells orders numerically when both cells are numbers, otherwise
// case-insensitively as text
func compareCells(a, b string) int {
	fa, errA := strconv.ParseFloat(strings.TrimSpace(a), 64)
	fb, errB := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func cellAt(row []string, i int) string {
	if i >= 0 && i < len(row) {
		return row[i]
	}
	return ""
}

// cellValue stores text as a number only when the number prints back as
// exactly the same text. Leading zeros, signs, exponents and digits beyond
// float precision stay text.
func cellValue(s string) any {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || strconv.FormatFloat(f, 'f', -1, 64) != s {
		return s
	}
	return f
}
