// internal/macro/types.go
package macro

import (
	"time"

	"github.com/markb/macrolite/internal/catalog"
)

// Result is the outcome of one macro invocation. Exactly one of Value or
// Rows is meaningful, chosen by Kind — the macro's classification, not the
// shape of what came back.
type Result struct {
	Kind     catalog.Kind
	Value    any              // scalar result
	Rows     []map[string]any // table result, database order preserved
	Columns  []string         // column names in engine metadata order
	Duration time.Duration
}

// RowCount returns the number of result rows (1 or 0 for scalars).
func (r *Result) RowCount() int {
	if r.Kind == catalog.KindTable {
		return len(r.Rows)
	}
	if r.Value != nil {
		return 1
	}
	return 0
}

// ExecuteRequest is the body of the named execute endpoint.
type ExecuteRequest struct {
	Parameters map[string]any `json:"parameters"`
}

// ExecuteResponse is the envelope returned by the named execute endpoint.
type ExecuteResponse struct {
	Success         bool           `json:"success"`
	Data            any            `json:"data"`
	Columns         []string       `json:"columns,omitempty"`
	RowCount        int            `json:"row_count"`
	ExecutionTimeMS float64        `json:"execution_time_ms"`
	MacroType       catalog.Kind   `json:"macro_type"`
}
