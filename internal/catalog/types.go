// internal/catalog/types.go
package catalog

import (
	"regexp"
	"sort"
	"time"
)

// Kind classifies a macro by its return shape.
type Kind string

const (
	// KindScalar macros evaluate to a single value.
	KindScalar Kind = "scalar"
	// KindTable macros evaluate to a row set.
	KindTable Kind = "table"
)

// TypeUnknown is the sentinel for a parameter whose declared type the
// engine does not report. Coercion falls back to format sniffing for it.
const TypeUnknown = "UNKNOWN"

// Descriptor describes one discovered macro. Parameters and ParameterTypes
// are index-aligned; parameter order is positional-binding order.
type Descriptor struct {
	Name           string   `json:"name"`
	Parameters     []string `json:"parameters"`
	ParameterTypes []string `json:"parameter_types"`
	ReturnType     string   `json:"return_type"`
	Kind           Kind     `json:"macro_type"`
}

// Snapshot is an immutable point-in-time view of the macro catalog.
// It is published by atomic swap and never mutated after publication.
type Snapshot struct {
	Macros     map[string]Descriptor
	CapturedAt time.Time
}

// Lookup returns the descriptor for name.
func (s *Snapshot) Lookup(name string) (Descriptor, bool) {
	d, ok := s.Macros[name]
	return d, ok
}

// Names returns all macro names in sorted order.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.Macros))
	for name := range s.Macros {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns all descriptors sorted by name.
func (s *Snapshot) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(s.Macros))
	for _, name := range s.Names() {
		out = append(out, s.Macros[name])
	}
	return out
}

// identPattern matches names that are safe to interpolate into SQL text.
// Macro names failing it are excluded from the snapshot entirely.
var identPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// SafeIdentifier reports whether name may appear in generated SQL.
func SafeIdentifier(name string) bool {
	return len(name) <= 100 && identPattern.MatchString(name)
}
