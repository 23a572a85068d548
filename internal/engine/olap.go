package engine

import (
	"strings"

	"datavista/internal/models"
)

// Operation selects one of the cube views.
type Operation string

const (
	OpOriginal  Operation = "original"
	OpDrillDown Operation = "drilldown"
	OpRollUp    Operation = "rollup"
	OpSlice     Operation = "slice"
	OpDice      Operation = "dice"
	OpPivot     Operation = "pivot"
)

// Operations lists every supported operation with the request parameters it reads.
var Operations = map[Operation][]string{
	OpOriginal:  nil,
	OpDrillDown: nil,
	OpRollUp:    nil,
	OpSlice:     {"field", "value"},
	OpDice:      {"field1", "values1", "field2", "values2"},
	OpPivot:     nil,
}

// ParseOperation falls back to OpOriginal for anything it does not know.
func ParseOperation(name string) Operation {
	op := Operation(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := Operations[op]; ok {
		return op
	}
	return OpOriginal
}

// Params carries the slice and dice selections. Field names stay strings so
// an unknown name can be passed through and simply match nothing.
type Params struct {
	Field   string
	Value   string
	Field1  string
	Values1 string
	Field2  string
	Values2 string
}

// Result is a derived view of the record set.
type Result struct {
	Operation Operation
	Columns   []string
	Rows      []Row
	// Records is set for operations whose rows are source records
	// (original, drilldown, slice, dice) and for rollup, whose records
	// have City cleared.
	Records []models.Record
}

var (
	displayFields = []Field{FieldDate, FieldCountry, FieldState, FieldCity, FieldProduct, FieldSales}
	rollupFields  = []Field{FieldDate, FieldCountry, FieldState, FieldProduct, FieldSales}
)

// rollupSep joins the grouping values into a single key.
const rollupSep = "|"

// Transform derives the view for op from records. It never modifies records
// and never fails: parameters naming unknown fields select nothing.
func Transform(records []models.Record, op Operation, p Params) *Result {
	switch op {
	case OpRollUp:
		return rollUp(records)
	case OpSlice:
		return slice(records, p.Field, p.Value)
	case OpDice:
		return dice(records, p.Field1, SplitValues(p.Values1), p.Field2, SplitValues(p.Values2))
	case OpPivot:
		return pivot(records)
	case OpDrillDown:
		return recordResult(OpDrillDown, displayFields, records)
	default:
		return recordResult(OpOriginal, displayFields, records)
	}
}

func recordResult(op Operation, fields []Field, records []models.Record) *Result {
	out := make([]models.Record, len(records))
	copy(out, records)

	res := &Result{
		Operation: op,
		Columns:   columnNames(fields),
		Rows:      make([]Row, 0, len(out)),
		Records:   out,
	}
	for _, r := range out {
		res.Rows = append(res.Rows, recordRow(fields, r))
	}
	return res
}

func recordRow(fields []Field, r models.Record) Row {
	row := make(Row, len(fields))
	for i, f := range fields {
		if f == FieldSales {
			row[i] = Number(r.Sales)
		} else {
			row[i] = Text(f.Value(r))
		}
	}
	return row
}

func columnNames(fields []Field) []string {
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name()
	}
	return cols
}

// rollUp drops city and sums sales per (date, country, state, product).
// Groups keep the order in which their key first appears.
func rollUp(records []models.Record) *Result {
	index := make(map[string]int)
	grouped := make([]models.Record, 0)

	for _, r := range records {
		key := strings.Join([]string{r.Date, r.Country, r.State, r.Product}, rollupSep)
		if i, ok := index[key]; ok {
			grouped[i].Sales += r.Sales
			continue
		}
		r.City = ""
		index[key] = len(grouped)
		grouped = append(grouped, r)
	}

	res := recordResult(OpRollUp, rollupFields, grouped)
	res.Records = grouped
	return res
}

func slice(records []models.Record, field, value string) *Result {
	kept := make([]models.Record, 0)
	if f, ok := ParseField(field); ok {
		for _, r := range records {
			if f.Value(r) == value {
				kept = append(kept, r)
			}
		}
	}
	res := recordResult(OpSlice, displayFields, kept)
	res.Records = kept
	return res
}

func dice(records []models.Record, field1 string, values1 []string, field2 string, values2 []string) *Result {
	kept := make([]models.Record, 0)
	f1, ok1 := ParseField(field1)
	f2, ok2 := ParseField(field2)
	if ok1 && ok2 && len(values1) > 0 && len(values2) > 0 {
		set1, set2 := toSet(values1), toSet(values2)
		for _, r := range records {
			if set1[f1.Value(r)] && set2[f2.Value(r)] {
				kept = append(kept, r)
			}
		}
	}
	res := recordResult(OpDice, displayFields, kept)
	res.Records = kept
	return res
}

// SplitValues parses a comma-separated value list. Blank tokens are dropped,
// so "" and " , " both yield an empty list.
func SplitValues(list string) []string {
	var out []string
	for _, tok := range strings.Split(list, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

// pivot turns products into columns, one row per date. Every product in
// records gets a column; a date with no sale for a product leaves it blank.
func pivot(records []models.Record) *Result {
	products := DistinctValues(records, FieldProduct)
	productCol := make(map[string]int, len(products))
	for i, p := range products {
		productCol[p] = i + 1
	}

	dateRow := make(map[string]int)
	rows := make([]Row, 0)
	for _, r := range records {
		i, ok := dateRow[r.Date]
		if !ok {
			row := make(Row, len(products)+1)
			row[0] = Text(r.Date)
			i = len(rows)
			dateRow[r.Date] = i
			rows = append(rows, row)
		}
		c := &rows[i][productCol[r.Product]]
		if c.Kind == CellNumber {
			c.Num += r.Sales
		} else {
			*c = Number(r.Sales)
		}
	}

	return &Result{
		Operation: OpPivot,
		Columns:   append([]string{FieldDate.Name()}, products...),
		Rows:      rows,
	}
}

// DistinctValues returns the values of f in first-occurrence order.
func DistinctValues(records []models.Record, f Field) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		v := f.Value(r)
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// TotalSales sums the sales measure over records.
func TotalSales(records []models.Record) float64 {
	var total float64
	for _, r := range records {
		total += r.Sales
	}
	return total
}
