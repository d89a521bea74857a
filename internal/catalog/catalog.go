// internal/catalog/catalog.go

// Package catalog discovers DuckDB macros through the engine's function
// catalog and caches them as immutable snapshots behind an atomic pointer.
// Readers never block a concurrent refresh; a failed refresh leaves the
// previous snapshot authoritative.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/markb/macrolite/internal/db"
	"github.com/markb/macrolite/internal/log"
)

const introspectQuery = `
SELECT
    function_name,
    parameters,
    parameter_types,
    return_type,
    macro_definition,
    function_type
FROM duckdb_functions()
WHERE function_type IN ('macro', 'table_macro')
  AND NOT internal
ORDER BY function_name`

// CatalogError reports a failed introspection pass. The prior snapshot
// stays authoritative when one occurs.
type CatalogError struct {
	Err error
}

func (e *CatalogError) Error() string {
	return "introspect macro catalog: " + e.Err.Error()
}

func (e *CatalogError) Unwrap() error {
	return e.Err
}

// Service owns the catalog cache.
type Service struct {
	db      *db.DB
	current atomic.Pointer[Snapshot]
}

// NewService creates a catalog service over the shared database handle.
// The cache starts empty; call Refresh before serving requests.
func NewService(database *db.DB) *Service {
	return &Service{db: database}
}

// Refresh re-queries duckdb_functions() and publishes a new snapshot.
// Malformed rows are skipped with a warning; only a failed introspection
// query aborts the refresh, in which case the prior snapshot stays current.
func (s *Service) Refresh(ctx context.Context) (*Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, introspectQuery)
	if err != nil {
		return nil, &CatalogError{Err: err}
	}
	defer rows.Close()

	macros := make(map[string]Descriptor)
	for rows.Next() {
		var (
			name, functionType     string
			returnType, definition sql.NullString
			rawParams, rawTypes    any
		)
		// return_type and macro_definition are NULL for user macros, so
		// they must scan through NullString; a plain string scan would
		// discard every row.
		if err := rows.Scan(&name, &rawParams, &rawTypes, &returnType, &definition, &functionType); err != nil {
			log.Warn("skipping malformed catalog row", "error", err.Error())
			continue
		}

		if !SafeIdentifier(name) {
			log.Warn("excluding macro with unsafe name from catalog", "macro", name)
			continue
		}

		d := Descriptor{
			Name:           name,
			Parameters:     listToStrings(rawParams),
			ParameterTypes: listToStrings(rawTypes),
			ReturnType:     returnType.String,
			Kind:           classify(functionType, returnType.String, definition.String),
		}
		if d.ReturnType == "" {
			d.ReturnType = TypeUnknown
		}
		// Keep parameters and parameter_types index-aligned even when the
		// engine reports fewer (or NULL) types.
		for i := range d.ParameterTypes {
			if d.ParameterTypes[i] == "" {
				d.ParameterTypes[i] = TypeUnknown
			}
		}
		for len(d.ParameterTypes) < len(d.Parameters) {
			d.ParameterTypes = append(d.ParameterTypes, TypeUnknown)
		}
		d.ParameterTypes = d.ParameterTypes[:len(d.Parameters)]

		// Overloads share a name; the first definition wins.
		if _, seen := macros[name]; !seen {
			macros[name] = d
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &CatalogError{Err: err}
	}

	snap := &Snapshot{Macros: macros, CapturedAt: time.Now().UTC()}
	s.current.Store(snap)
	log.Info("macro catalog refreshed", "macros", len(macros))
	return snap, nil
}

// Current returns the most recently published snapshot. It never blocks on
// a concurrent Refresh. Before the first refresh it returns an empty
// snapshot.
func (s *Service) Current() *Snapshot {
	if snap := s.current.Load(); snap != nil {
		return snap
	}
	return &Snapshot{Macros: map[string]Descriptor{}}
}

// Lookup resolves a macro by name against the current snapshot.
func (s *Service) Lookup(name string) (Descriptor, bool) {
	return s.Current().Lookup(name)
}

// classify determines the macro kind. DuckDB reports table macros as
// function_type 'table_macro'; for plain macros fall back to inspecting the
// declared return and definition text.
func classify(functionType, returnType, definition string) Kind {
	if functionType == "table_macro" {
		return KindTable
	}
	def := strings.ToUpper(definition)
	if strings.Contains(def, "TABLE") ||
		strings.HasPrefix(strings.ToUpper(returnType), "TABLE") ||
		strings.Contains(def, "SELECT") {
		return KindTable
	}
	return KindScalar
}

// listToStrings normalizes a scanned LIST column. The driver yields []any
// for list values; older driver versions render them as "[a, b]" text.
func listToStrings(v any) []string {
	switch list := v.(type) {
	case nil:
		return []string{}
	case []string:
		return append([]string{}, list...)
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if item == nil {
				out = append(out, TypeUnknown)
				continue
			}
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	case string:
		trimmed := strings.Trim(strings.TrimSpace(list), "[]")
		if trimmed == "" {
			return []string{}
		}
		parts := strings.Split(trimmed, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			out = append(out, strings.Trim(strings.TrimSpace(p), `'"`))
		}
		return out
	default:
		return []string{}
	}
}
