package engine

import (
	"io"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/pkg/errors"
)

// numericColumn reports whether column i of res holds sales figures.
func (res *Result) numericColumn(i int) bool {
	if res.Operation == OpPivot {
		return i > 0
	}
	return res.Columns[i] == FieldSales.Name()
}

// ArrowSchema describes res as an Arrow schema: dimensions are utf8, sales
// columns are nullable float64 so blank pivot cells become nulls.
func (res *Result) ArrowSchema() *arrow.Schema {
	fields := make([]arrow.Field, len(res.Columns))
	for i, c := range res.Columns {
		if res.numericColumn(i) {
			fields[i] = arrow.Field{Name: c, Type: arrow.PrimitiveTypes.Float64, Nullable: true}
		} else {
			fields[i] = arrow.Field{Name: c, Type: arrow.BinaryTypes.String}
		}
	}
	md := arrow.NewMetadata([]string{"operation"}, []string{string(res.Operation)})
	return arrow.NewSchema(fields, &md)
}

// ArrowRecord builds a single record batch from res. The caller releases it.
func (res *Result) ArrowRecord(mem memory.Allocator) arrow.Record {
	b := array.NewRecordBuilder(mem, res.ArrowSchema())
	defer b.Release()

	for _, row := range res.Rows {
		for i := range res.Columns {
			var c Cell
			if i < len(row) {
				c = row[i]
			}
			switch fb := b.Field(i).(type) {
			case *array.Float64Builder:
				if c.Kind == CellNumber {
					fb.Append(c.Num)
				} else {
					fb.AppendNull()
				}
			case *array.StringBuilder:
				fb.Append(c.String())
			}
		}
	}
	return b.NewRecord()
}

// WriteArrow streams res to w in the Arrow IPC stream format.
func WriteArrow(w io.Writer, res *Result) error {
	mem := memory.NewGoAllocator()
	rec := res.ArrowRecord(mem)
	defer rec.Release()

	wr := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(mem))
	if err := wr.Write(rec); err != nil {
		wr.Close()
		return errors.Wrap(err, "writing arrow record")
	}
	return errors.Wrap(wr.Close(), "closing arrow stream")
}
