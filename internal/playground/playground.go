// Package playground turns an uploaded JSON or CSV document into a generic
// table and profiles its columns for the chart feeds.
package playground

import (
	"bytes"
	stdjson "encoding/json"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// ErrUnparseable is the cause of every parse failure.
var ErrUnparseable = errors.New("unparseable upload")

// Dataset is an uploaded table. Values are kept in their display form.
type Dataset struct {
	Format  string     `json:"format"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Parse decodes data as JSON when name ends in .json or the content opens
// with '{' or '['; anything else is read as CSV.
func Parse(name string, data []byte) (*Dataset, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.Wrap(ErrUnparseable, "empty document")
	}
	if strings.EqualFold(filepath.Ext(name), ".json") || trimmed[0] == '{' || trimmed[0] == '[' {
		return parseJSON(trimmed)
	}
	return parseCSV(trimmed)
}

func parseJSON(data []byte) (*Dataset, error) {
	var objects []json.RawMessage
	if data[0] == '{' {
		objects = []json.RawMessage{data}
	} else if err := json.Unmarshal(data, &objects); err != nil {
		return nil, errors.Wrap(ErrUnparseable, err.Error())
	}

	ds := &Dataset{Format: "json", Rows: make([][]string, 0, len(objects))}
	if len(objects) == 0 {
		ds.Columns = []string{}
		return ds, nil
	}

	cols, err := objectKeys(objects[0])
	if err != nil {
		return nil, errors.Wrap(ErrUnparseable, err.Error())
	}
	ds.Columns = cols

	for i, raw := range objects {
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrapf(ErrUnparseable, "record %d: %v", i, err)
		}
		// Non-object records have no keys and show as blank rows.
		obj, _ := v.(map[string]interface{})
		row := make([]string, len(cols))
		for j, c := range cols {
			row[j] = display(obj[c])
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}

// objectKeys lists the top-level keys of a JSON object in document order.
// Any other JSON value has no keys.
func objectKeys(raw []byte) ([]string, error) {
	dec := stdjson.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	keys := []string{}
	if d, ok := tok.(stdjson.Delim); !ok || d != '{' {
		return keys, nil
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		keys = append(keys, tok.(string))
		var skip stdjson.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// display renders a decoded JSON value; missing and null values are blank.
func display(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// parseCSV treats the first line as the header and splits every line on
// commas. Quoted fields are not recognised.
func parseCSV(data []byte) (*Dataset, error) {
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if bytes.IndexByte(data, 0) >= 0 {
		return nil, errors.Wrap(ErrUnparseable, "binary content")
	}
	header := splitLine(lines[0])
	for i, h := range header {
		if h == "" {
			return nil, errors.Wrapf(ErrUnparseable, "header column %d is blank", i+1)
		}
	}

	ds := &Dataset{Format: "csv", Columns: header, Rows: make([][]string, 0, len(lines)-1)}
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		vals := splitLine(line)
		row := make([]string, len(header))
		copy(row, vals)
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}

func splitLine(line string) []string {
	parts := strings.Split(line, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// ColumnProfile summarises one column.
type ColumnProfile struct {
	Name    string  `json:"name"`
	Numeric bool    `json:"numeric"`
	Count   int     `json:"count"`
	Sum     float64 `json:"sum"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Mean    float64 `json:"mean"`
}

// Profile classifies every column. A column is numeric when it has at least
// one non-blank value and every non-blank value parses as a number.
func (ds *Dataset) Profile() []ColumnProfile {
	out := make([]ColumnProfile, len(ds.Columns))
	for j, name := range ds.Columns {
		p := ColumnProfile{Name: name, Numeric: true, Min: math.Inf(1), Max: math.Inf(-1)}
		for _, row := range ds.Rows {
			v := row[j]
			if v == "" {
				continue
			}
			p.Count++
			f, ok := parseNumber(v)
			if !ok {
				p.Numeric = false
				continue
			}
			p.Sum += f
			p.Min = math.Min(p.Min, f)
			p.Max = math.Max(p.Max, f)
		}
		if !p.Numeric || p.Count == 0 || math.IsInf(p.Sum, 0) {
			p = ColumnProfile{Name: name, Count: p.Count}
		} else {
			p.Mean = p.Sum / float64(p.Count)
		}
		out[j] = p
	}
	return out
}

// parseNumber accepts finite numbers only; "NaN" and "Inf" are text.
func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Point is one labelled value of a chart series.
type Point struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Series pairs a label column with a value column, summing repeated labels
// in first-occurrence order. Values that do not parse count as zero.
func (ds *Dataset) Series(label, value string) ([]Point, bool) {
	li, vi := ds.index(label), ds.index(value)
	if li < 0 || vi < 0 {
		return nil, false
	}
	pos := make(map[string]int)
	points := make([]Point, 0)
	for _, row := range ds.Rows {
		f, _ := parseNumber(row[vi])
		if i, ok := pos[row[li]]; ok {
			points[i].Value += f
			continue
		}
		pos[row[li]] = len(points)
		points = append(points, Point{Label: row[li], Value: f})
	}
	return points, true
}

// DefaultSeries picks the first text column as labels and the first numeric
// column as values.
func (ds *Dataset) DefaultSeries() (label, value string, points []Point) {
	for _, p := range ds.Profile() {
		if p.Numeric && value == "" {
			value = p.Name
		} else if !p.Numeric && label == "" {
			label = p.Name
		}
	}
	if label == "" || value == "" {
		return label, value, nil
	}
	points, _ = ds.Series(label, value)
	return label, value, points
}

func (ds *Dataset) index(col string) int {
	for i, c := range ds.Columns {
		if c == col {
			return i
		}
	}
	return -1
}
