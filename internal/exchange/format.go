// Package exchange reads and writes the delimited and XLSX item sheets used to
// bulk load the catalog and to hand unmapped invoice items to bookkeepers.
package exchange

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Format is a sheet encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatXLSX Format = "xlsx"
)

// ErrUnsupportedFormat is returned for unknown format names.
var ErrUnsupportedFormat = errors.New("exchange: unsupported format")

// ParseFormat accepts csv, tsv and xlsx. Empty means csv.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatTSV:
		return FormatTSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, value)
}

// ContentType is the HTTP media type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatTSV:
		return "text/tab-separated-values"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv"
	}
}

// Extension is the file extension without the dot.
func (f Format) Extension() string { return string(f) }

const sheetName = "Items"

// Column headers, in sheet order.
const (
	ColName             = "Name"
	ColMeasure          = "Measure"
	ColReportingUnit    = "Reporting Unit"
	ColCategory         = "Category"
	ColItemNumber       = "Item Number"
	ColCostAccount      = "Cost Account"
	ColInventoryAccount = "Inventory Account"
	ColInventoryLevel   = "Inventory Level"
	ColCostUpdateMethod = "Cost Update Method"
	ColKeyItem          = "Key Item"
	ColVendor           = "Vendor"
	ColLastCost         = "Last Cost"
	ColOccurrences      = "Occurrences"
)

// Columns is the fixed column set of every item sheet.
var Columns = []string{
	ColName,
	ColMeasure,
	ColReportingUnit,
	ColCategory,
	ColItemNumber,
	ColCostAccount,
	ColInventoryAccount,
	ColInventoryLevel,
	ColCostUpdateMethod,
	ColKeyItem,
	ColVendor,
	ColLastCost,
	ColOccurrences,
}

// Row is one item sheet line. ReportingUnit holds either a bare unit ("ml")
// or a pack description ("6 x 750ml").
type Row struct {
	Line             int
	Name             string
	Measure          string
	ReportingUnit    string
	Category         string
	ItemNumber       string
	CostAccount      string
	InventoryAccount string
	InventoryLevel   string
	CostUpdateMethod string
	KeyItem          bool
	Vendor           string
	LastCost         *decimal.Decimal
	Occurrences      int
}

func (r Row) values() []string {
	lastCost := ""
	if r.LastCost != nil {
		lastCost = r.LastCost.StringFixed(2)
	}
	occurrences := ""
	if r.Occurrences > 0 {
		occurrences = strconv.Itoa(r.Occurrences)
	}
	keyItem := "N"
	if r.KeyItem {
		keyItem = "Y"
	}
	return []string{
		r.Name,
		r.Measure,
		r.ReportingUnit,
		r.Category,
		r.ItemNumber,
		r.CostAccount,
		r.InventoryAccount,
		r.InventoryLevel,
		r.CostUpdateMethod,
		keyItem,
		r.Vendor,
		lastCost,
		occurrences,
	}
}

// Write encodes rows with a header line.
func Write(w io.Writer, format Format, rows []Row) error {
	switch format {
	case FormatCSV, FormatTSV:
		return writeDelimited(w, delimiter(format), rows)
	case FormatXLSX:
		return writeXLSX(w, rows)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func delimiter(format Format) rune {
	if format == FormatTSV {
		return '\t'
	}
	return ','
}

func writeDelimited(w io.Writer, comma rune, rows []Row) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(r.values()); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}
	write := func(col, row int, v any) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return f.SetCellValue(sheetName, cell, v)
	}

	for i, h := range Columns {
		if err := write(i+1, 1, h); err != nil {
			return fmt.Errorf("xlsx header: %w", err)
		}
	}
	for i, r := range rows {
		for j, v := range r.values() {
			if err := write(j+1, i+2, v); err != nil {
				return fmt.Errorf("xlsx row %d: %w", i+2, err)
			}
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 36)
	_ = f.SetColWidth(sheetName, "B", "J", 16)
	_ = f.SetColWidth(sheetName, "K", "K", 38)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

// Read decodes an item sheet. Headers are matched case-insensitively and may
// appear in any order; Name is the only required column. Rows that fail to
// parse are returned as RowErrors alongside the good rows.
func Read(r io.Reader, format Format) ([]Row, []RowError, error) {
	var records [][]string
	switch format {
	case FormatCSV, FormatTSV:
		cr := csv.NewReader(bufio.NewReader(r))
		cr.Comma = delimiter(format)
		cr.FieldsPerRecord = -1
		cr.TrimLeadingSpace = true
		all, err := cr.ReadAll()
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", format, err)
		}
		records = all
	case FormatXLSX:
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("open xlsx: %w", err)
		}
		defer f.Close()
		all, err := f.GetRows(f.GetSheetName(0))
		if err != nil {
			return nil, nil, fmt.Errorf("read xlsx: %w", err)
		}
		records = all
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	if len(records) == 0 {
		return nil, nil, errors.New("exchange: sheet has no header row")
	}
	columns, err := columnMap(records[0])
	if err != nil {
		return nil, nil, err
	}

	rows := []Row{}
	var rowErrs []RowError
	for i, rec := range records[1:] {
		line := i + 2
		if blank(rec) {
			continue
		}
		row, err := parseRow(rec, columns)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Message: err.Error()})
			continue
		}
		row.Line = line
		rows = append(rows, row)
	}
	return rows, rowErrs, nil
}

// RowError reports a sheet line that could not be used.
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

func columnMap(header []string) (map[string]int, error) {
	known := make(map[string]string, len(Columns))
	for _, c := range Columns {
		known[headerKey(c)] = c
	}
	out := map[string]int{}
	for i, h := range header {
		if col, ok := known[headerKey(h)]; ok {
			out[col] = i
		}
	}
	if _, ok := out[ColName]; !ok {
		return nil, fmt.Errorf("exchange: required column %q not found", ColName)
	}
	return out, nil
}

func headerKey(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.Join(strings.Fields(strings.ToLower(h)), " ")
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseRow(rec []string, columns map[string]int) (Row, error) {
	get := func(col string) string {
		i, ok := columns[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	row := Row{
		Name:             get(ColName),
		Measure:          get(ColMeasure),
		ReportingUnit:    get(ColReportingUnit),
		Category:         get(ColCategory),
		ItemNumber:       get(ColItemNumber),
		CostAccount:      get(ColCostAccount),
		InventoryAccount: get(ColInventoryAccount),
		InventoryLevel:   get(ColInventoryLevel),
		CostUpdateMethod: get(ColCostUpdateMethod),
		Vendor:           get(ColVendor),
	}
	if row.Name == "" {
		return Row{}, errors.New("name is required")
	}

	switch strings.ToLower(get(ColKeyItem)) {
	case "", "n", "no", "false", "0":
	case "y", "yes", "true", "1":
		row.KeyItem = true
	default:
		return Row{}, fmt.Errorf("key item must be Y or N, got %q", get(ColKeyItem))
	}

	if raw := strings.TrimPrefix(get(ColLastCost), "$"); raw != "" {
		cost, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
		if err != nil {
			return Row{}, fmt.Errorf("last cost %q is not a number", raw)
		}
		if cost.IsNegative() {
			return Row{}, fmt.Errorf("last cost %q is negative", raw)
		}
		row.LastCost = &cost
	}

	if raw := get(ColOccurrences); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Row{}, fmt.Errorf("occurrences %q is not a count", raw)
		}
		row.Occurrences = n
	}
	return row, nil
}
