package query

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"
	"github.com/rs/zerolog/log"
)

// frame is a decoded parquet file: flat columns and their rows.
type frame struct {
	columns []models.TableColumn
	rows    [][]any
}

type leaf struct {
	column int // output column index
	typ    parquet.Type
}

// decodeParquet reads every top-level primitive column of a parquet file.
// Nested and repeated columns are skipped.
func decodeParquet(data []byte) (*frame, error) {
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	schema := file.Schema()

	// Map leaf column indexes to output columns.
	leaves := make(map[int]leaf)
	fr := &frame{}
	leafIndex := 0
	for _, field := range schema.Fields() {
		if !field.Leaf() {
			leafIndex += countLeaves(field)
			log.Debug().Str("column", field.Name()).Msg("Skipping nested parquet column")
			continue
		}
		if field.Repeated() {
			leafIndex++
			log.Debug().Str("column", field.Name()).Msg("Skipping repeated parquet column")
			continue
		}
		leaves[leafIndex] = leaf{column: len(fr.columns), typ: field.Type()}
		fr.columns = append(fr.columns, models.TableColumn{Name: field.Name(), Type: typeName(field.Type())})
		leafIndex++
	}
	if len(fr.columns) == 0 {
		return nil, errors.New("parquet file has no flat columns")
	}

	reader := parquet.NewReader(file)
	defer reader.Close()

	buf := make([]parquet.Row, 256)
	for {
		n, err := reader.ReadRows(buf)
		for _, row := range buf[:n] {
			out := make([]any, len(fr.columns))
			for _, v := range row {
				l, ok := leaves[v.Column()]
				if !ok {
					continue
				}
				out[l.column] = convertValue(v, l.typ)
			}
			fr.rows = append(fr.rows, out)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read parquet rows: %w", err)
		}
	}
	return fr, nil
}

func countLeaves(node parquet.Node) int {
	if node.Leaf() {
		return 1
	}
	n := 0
	for _, f := range node.Fields() {
		n += countLeaves(f)
	}
	return n
}

// typeName maps a parquet type to the SQL type name shown in schema tables.
// The names double as SQLite column declarations, whose affinity rules give
// the expected storage class.
func typeName(t parquet.Type) string {
	lt := t.LogicalType()
	switch t.Kind() {
	case parquet.Boolean:
		return "BOOLEAN"
	case parquet.Int32:
		switch {
		case lt != nil && lt.Date != nil:
			return "DATE"
		case lt != nil && lt.Decimal != nil:
			return fmt.Sprintf("DECIMAL(%d,%d)", lt.Decimal.Precision, lt.Decimal.Scale)
		case lt != nil && lt.Integer != nil && lt.Integer.BitWidth == 8:
			return "TINYINT"
		case lt != nil && lt.Integer != nil && lt.Integer.BitWidth == 16:
			return "SMALLINT"
		}
		return "INTEGER"
	case parquet.Int64:
		switch {
		case lt != nil && lt.Timestamp != nil:
			return "TIMESTAMP"
		case lt != nil && lt.Decimal != nil:
			return fmt.Sprintf("DECIMAL(%d,%d)", lt.Decimal.Precision, lt.Decimal.Scale)
		}
		return "BIGINT"
	case parquet.Int96:
		return "TIMESTAMP"
	case parquet.Float:
		return "FLOAT"
	case parquet.Double:
		return "DOUBLE"
	case parquet.ByteArray, parquet.FixedLenByteArray:
		if lt != nil && lt.UTF8 == nil && lt.Enum == nil && lt.Json == nil {
			return "BLOB"
		}
		return "VARCHAR"
	}
	return "VARCHAR"
}

func convertValue(v parquet.Value, t parquet.Type) any {
	if v.IsNull() {
		return nil
	}
	lt := t.LogicalType()
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		switch {
		case lt != nil && lt.Date != nil:
			return time.Unix(int64(v.Int32())*86400, 0).UTC().Format("2006-01-02")
		case lt != nil && lt.Decimal != nil:
			return scaleDecimal(int64(v.Int32()), lt.Decimal)
		}
		return int64(v.Int32())
	case parquet.Int64:
		switch {
		case lt != nil && lt.Timestamp != nil:
			return timestamp(v.Int64(), lt.Timestamp.Unit).Format("2006-01-02 15:04:05")
		case lt != nil && lt.Decimal != nil:
			return scaleDecimal(v.Int64(), lt.Decimal)
		}
		return v.Int64()
	case parquet.Float:
		return finite(float64(v.Float()))
	case parquet.Double:
		return finite(v.Double())
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	}
	return v.String()
}

// finite maps NaN and infinities to null. SQLite stores NaN as NULL anyway.
func finite(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

func scaleDecimal(unscaled int64, d *format.DecimalType) float64 {
	return float64(unscaled) / math.Pow10(int(d.Scale))
}

func timestamp(v int64, unit format.TimeUnit) time.Time {
	switch {
	case unit.Millis != nil:
		return time.UnixMilli(v).UTC()
	case unit.Nanos != nil:
		return time.Unix(0, v).UTC()
	}
	return time.UnixMicro(v).UTC()
}
