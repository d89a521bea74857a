// internal/macro/executor.go

// Package macro turns cataloged DuckDB macros into executable HTTP
// operations: it validates and coerces parameters, runs the macro through
// the shared database handle, and shapes the result for JSON.
package macro

import (
	"context"
	"strings"
	"time"

	"github.com/markb/macrolite/internal/catalog"
	"github.com/markb/macrolite/internal/coerce"
	"github.com/markb/macrolite/internal/db"
	"github.com/markb/macrolite/internal/log"
)

// MetricsSink receives one record per macro invocation. Injected by the
// server; a nil sink disables recording.
type MetricsSink interface {
	RecordExecution(ctx context.Context, macroName string, duration time.Duration, success bool)
}

// Executor runs macros against the shared database handle.
type Executor struct {
	db      *db.DB
	catalog *catalog.Service
	metrics MetricsSink
}

// NewExecutor creates an Executor. metrics may be nil.
func NewExecutor(database *db.DB, cat *catalog.Service, metrics MetricsSink) *Executor {
	return &Executor{db: database, catalog: cat, metrics: metrics}
}

// Execute resolves name against the current catalog snapshot, coerces the
// supplied parameters, and invokes the macro with positional binds in
// declared order. Unknown supplied keys are ignored; a declared parameter
// with no usable value is an error — the bind list is never padded.
func (e *Executor) Execute(ctx context.Context, name string, supplied map[string]any) (*Result, error) {
	d, ok := e.catalog.Lookup(name)
	if !ok {
		return nil, &NotFoundError{Macro: name}
	}

	binds, err := e.bindParameters(d, supplied)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := e.run(ctx, d, binds)
	duration := time.Since(start)

	if e.metrics != nil {
		e.metrics.RecordExecution(ctx, name, duration, err == nil)
	}
	if err != nil {
		log.Warn("macro execution failed",
			"macro", name,
			"params", len(binds),
			"duration_ms", duration.Milliseconds(),
			"error", err.Error(),
		)
		return nil, err
	}

	result.Duration = duration
	log.Info("macro executed",
		"macro", name,
		"params", len(binds),
		"duration_ms", duration.Milliseconds(),
		"rows", result.RowCount(),
	)
	return result, nil
}

// bindParameters produces the positional bind list in declared order.
// Every declared parameter is required; empty strings count as absent
// rather than being coerced to a default or padded with NULL.
func (e *Executor) bindParameters(d catalog.Descriptor, supplied map[string]any) ([]any, error) {
	binds := make([]any, 0, len(d.Parameters))
	for i, param := range d.Parameters {
		raw, ok := supplied[param]
		if s, isStr := raw.(string); ok && isStr && strings.TrimSpace(s) == "" {
			ok = false
		}
		if !ok || raw == nil {
			return nil, &ParameterError{Macro: d.Name, Parameter: param, Message: "missing required parameter"}
		}

		value, err := coerce.Value(param, raw, d.ParameterTypes[i])
		if err != nil {
			return nil, &ParameterError{Macro: d.Name, Parameter: param, Message: err.Error()}
		}
		binds = append(binds, value)
	}
	return binds, nil
}

// run executes the bound call. Only the validated macro name is ever
// interpolated into SQL text; values always go through parameter binding.
func (e *Executor) run(ctx context.Context, d catalog.Descriptor, binds []any) (*Result, error) {
	var sb strings.Builder
	if d.Kind == catalog.KindTable {
		sb.WriteString("SELECT * FROM ")
	} else {
		sb.WriteString("SELECT ")
	}
	sb.WriteString(d.Name)
	sb.WriteByte('(')
	for i := range binds {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('?')
	}
	sb.WriteByte(')')

	rows, err := e.db.QueryContext(ctx, sb.String(), binds...)
	if err != nil {
		return nil, wrapEngineError(d.Name, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, wrapEngineError(d.Name, err)
	}

	collected := make([]map[string]any, 0, 16)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, wrapEngineError(d.Name, err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		collected = append(collected, row)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapEngineError(d.Name, err)
	}

	return formatResult(d, columns, collected), nil
}

// wrapEngineError classifies a driver error. A macro dropped between
// catalog refresh and execution surfaces as not-found, everything else as
// an execution failure carrying the engine message.
func wrapEngineError(name string, err error) error {
	if strings.Contains(strings.ToLower(err.Error()), "does not exist") {
		return &NotFoundError{Macro: name}
	}
	return &ExecutionError{Macro: name, Err: err}
}
