package engine

import (
	"strconv"

	"github.com/goccy/go-json"
)

type CellKind uint8

const (
	CellBlank CellKind = iota
	CellText
	CellNumber
)

// Cell is one value of a result row.
type Cell struct {
	Kind CellKind
	Text string
	Num  float64
}

func Text(s string) Cell    { return Cell{Kind: CellText, Text: s} }
func Number(v float64) Cell { return Cell{Kind: CellNumber, Num: v} }

// String renders the cell the way a table shows it; blank cells are empty.
func (c Cell) String() string {
	switch c.Kind {
	case CellText:
		return c.Text
	case CellNumber:
		return formatSales(c.Num)
	}
	return ""
}

func (c Cell) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case CellNumber:
		return strconv.AppendFloat(nil, c.Num, 'f', -1, 64), nil
	case CellText:
		return json.Marshal(c.Text)
	}
	return []byte(`""`), nil
}

// Row is aligned with Result.Columns.
type Row []Cell
