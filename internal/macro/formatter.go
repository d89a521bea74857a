// internal/macro/formatter.go
package macro

import (
	"math/big"
	"time"

	duckdb "github.com/duckdb/duckdb-go/v2"
	"github.com/markb/macrolite/internal/catalog"
)

// formatResult shapes the collected rows by the macro's classification,
// never by inspecting the returned value. Scalars take the first column of
// the first row; tables keep rows and column order exactly as the engine
// returned them.
func formatResult(d catalog.Descriptor, columns []string, rows []map[string]any) *Result {
	if d.Kind == catalog.KindTable {
		return &Result{Kind: catalog.KindTable, Rows: rows, Columns: columns}
	}

	var value any
	if len(rows) > 0 && len(columns) > 0 {
		value = rows[0][columns[0]]
	}
	return &Result{Kind: catalog.KindScalar, Value: value}
}

// normalizeValue converts driver-native values into JSON-serializable ones.
// Values are never re-typed beyond what serialization needs.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format("2006-01-02")
		}
		return val.Format(time.RFC3339Nano)
	case duckdb.Decimal:
		return val.Float64()
	case *big.Int:
		if val.IsInt64() {
			return val.Int64()
		}
		return val.String()
	case []byte:
		return string(val)
	default:
		return v
	}
}
