// Package workbook loads sales spreadsheets into an ordered list of named sheets.
package workbook

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrEmptyWorkbook is returned when a file contains no sheets.
var ErrEmptyWorkbook = errors.New("workbook has no sheets")

// Sheet is one named grid: a header row followed by data rows.
// Every data row has exactly len(Header) cells.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]string

	// RowNumbers holds the 1-based spreadsheet row of each entry in Rows.
	RowNumbers []int
}

// RowNumber returns the spreadsheet row number of Rows[i].
func (s *Sheet) RowNumber(i int) int {
	if i < len(s.RowNumbers) {
		return s.RowNumbers[i]
	}
	return i + 2
}

// Workbook is an ordered collection of named sheets.
type Workbook struct {
	Name   string // Source file name, if any
	Sheets []Sheet

	// SheetErrors holds sheets that were listed but could not be read.
	SheetErrors []SheetError
}

// SheetError records a sheet that could not be read.
type SheetError struct {
	Sheet string
	Err   error
}

func (e SheetError) Error() string {
	return fmt.Sprintf("sheet %q: %v", e.Sheet, e.Err)
}

func (e SheetError) Unwrap() error { return e.Err }

// New builds a workbook in memory. Each sheet's first row is its header.
func New(name string, sheets ...Sheet) *Workbook {
	wb := &Workbook{Name: name}
	for _, s := range sheets {
		wb.Sheets = append(wb.Sheets, normalizeSheet(s.Name, append([][]string{s.Header}, s.Rows...)))
	}
	return wb
}

// SheetNames returns sheet names in workbook order.
func (w *Workbook) SheetNames() []string {
	names := make([]string, len(w.Sheets))
	for i, s := range w.Sheets {
		names[i] = s.Name
	}
	return names
}

// Sheet returns the sheet with the given name, compared case-insensitively.
func (w *Workbook) Sheet(name string) (*Sheet, bool) {
	for i := range w.Sheets {
		if strings.EqualFold(strings.TrimSpace(w.Sheets[i].Name), strings.TrimSpace(name)) {
			return &w.Sheets[i], true
		}
	}
	return nil, false
}

// TotalRows counts data rows across all sheets.
func (w *Workbook) TotalRows() int {
	n := 0
	for _, s := range w.Sheets {
		n += len(s.Rows)
	}
	return n
}

// Open reads an xlsx file from disk.
func Open(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	return load(f, filepath.Base(path))
}

// Read reads an xlsx workbook from r. name is recorded as the workbook's file name.
func Read(r io.Reader, name string) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("read workbook %s: %w", name, err)
	}
	defer f.Close()

	return load(f, name)
}

func load(f *excelize.File, name string) (*Workbook, error) {
	list := f.GetSheetList()
	if len(list) == 0 {
		return nil, ErrEmptyWorkbook
	}

	wb := &Workbook{Name: name}
	for _, sheetName := range list {
		// Raw values keep dates as Excel serial numbers instead of display strings.
		rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
		if err != nil {
			wb.SheetErrors = append(wb.SheetErrors, SheetError{Sheet: sheetName, Err: err})
			continue
		}
		wb.Sheets = append(wb.Sheets, normalizeSheet(sheetName, rows))
	}
	return wb, nil
}

// normalizeSheet finds the header (first non-empty row), drops blank rows and pads
// or trims every data row to the header width.
func normalizeSheet(name string, rows [][]string) Sheet {
	sheet := Sheet{Name: name}

	headerAt := -1
	for i, row := range rows {
		if !blank(row) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return sheet
	}

	header := trimTrailingEmpty(rows[headerAt])
	sheet.Header = make([]string, len(header))
	for i, h := range header {
		sheet.Header[i] = strings.TrimSpace(h)
	}

	for i := headerAt + 1; i < len(rows); i++ {
		if blank(rows[i]) {
			continue
		}
		sheet.RowNumbers = append(sheet.RowNumbers, i+1)
		cells := make([]string, len(sheet.Header))
		copy(cells, rows[i])
		sheet.Rows = append(sheet.Rows, cells)
	}
	return sheet
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func trimTrailingEmpty(row []string) []string {
	end := len(row)
	for end > 0 && strings.TrimSpace(row[end-1]) == "" {
		end--
	}
	return row[:end]
}
