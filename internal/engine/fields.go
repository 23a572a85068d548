package engine

import (
	"math"
	"strconv"
	"strings"

	"datavista/internal/models"

	"github.com/pkg/errors"
)

// Field is one column of the fixed sales schema.
type Field int

const (
	FieldDate Field = iota
	FieldCountry
	FieldState
	FieldCity
	FieldProduct
	FieldCategory
	FieldSales
)

var fieldNames = [...]string{"date", "country", "state", "city", "product", "category", "sales"}

// AllFields lists the schema in declaration order.
var AllFields = []Field{FieldDate, FieldCountry, FieldState, FieldCity, FieldProduct, FieldCategory, FieldSales}

func (f Field) Name() string {
	if f < 0 || int(f) >= len(fieldNames) {
		return ""
	}
	return fieldNames[f]
}

func (f Field) String() string { return f.Name() }

// ParseField maps a column name ("State", " city ") to its Field.
func ParseField(name string) (Field, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range fieldNames {
		if n == name {
			return Field(i), true
		}
	}
	return -1, false
}

// Value returns the field of r in its display form. Sales uses the shortest
// decimal representation, so 1000 prints as "1000" and 12.5 as "12.5".
func (f Field) Value(r models.Record) string {
	switch f {
	case FieldDate:
		return r.Date
	case FieldCountry:
		return r.Country
	case FieldState:
		return r.State
	case FieldCity:
		return r.City
	case FieldProduct:
		return r.Product
	case FieldCategory:
		return r.Category
	case FieldSales:
		return formatSales(r.Sales)
	}
	return ""
}

// set assigns a raw string to the field. Only sales can fail.
func (f Field) set(r *models.Record, raw string) error {
	switch f {
	case FieldDate:
		r.Date = raw
	case FieldCountry:
		r.Country = raw
	case FieldState:
		r.State = raw
	case FieldCity:
		r.City = raw
	case FieldProduct:
		r.Product = raw
	case FieldCategory:
		r.Category = raw
	case FieldSales:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Errorf("sales %q is not a finite number", raw)
		}
		r.Sales = v
	}
	return nil
}

func formatSales(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
