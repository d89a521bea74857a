// internal/coerce/coerce.go

// Package coerce converts caller-supplied parameter values into values the
// DuckDB driver can bind. It is a pure function of the input and the
// declared type; it never touches the database.
package coerce

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// TypeUnknown mirrors the catalog sentinel for an undeclared parameter type.
const TypeUnknown = "UNKNOWN"

// Error describes a value that could not be coerced. It names the parameter
// so the HTTP boundary can report it without a stack trace.
type Error struct {
	Parameter string
	Expected  string
	Value     any
	Reason    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid value for parameter %q: cannot convert %v to %s: %s",
		e.Parameter, e.Value, e.Expected, e.Reason)
}

var (
	// integerPattern matches an integer lexical form: no fractional part,
	// no exponent. Leading zeros are accepted and parsed as decimal.
	integerPattern = regexp.MustCompile(`^-?[0-9]+$`)
	// numberPattern matches the general numeric form with a fraction or
	// exponent. Only '.' is accepted as the decimal separator.
	numberPattern = regexp.MustCompile(`^-?[0-9]*\.?[0-9]+([eE][+-]?[0-9]+)?$`)
	datePattern   = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4})`)
)

var trueWords = map[string]bool{"true": true, "1": true, "yes": true, "on": true, "t": true, "y": true}
var falseWords = map[string]bool{"false": true, "0": true, "no": true, "off": true, "f": true, "n": true}

// Value coerces raw into a bindable value for the declared DuckDB type.
// With an unknown declared type it sniffs, in strict order: integer form,
// then general numeric form, then the string unmodified.
func Value(param string, raw any, declaredType string) (any, error) {
	if raw == nil {
		return nil, nil
	}

	declared := strings.ToUpper(strings.TrimSpace(declaredType))
	if declared == "" {
		declared = TypeUnknown
	}
	// Strip type parameters, e.g. DECIMAL(18,3) or VARCHAR(100).
	if i := strings.IndexByte(declared, '('); i >= 0 {
		declared = declared[:i]
	}

	fail := func(reason string) (any, error) {
		return nil, &Error{Parameter: param, Expected: declared, Value: raw, Reason: reason}
	}

	switch declared {
	case "INTEGER", "BIGINT", "INT", "SMALLINT", "TINYINT", "HUGEINT",
		"UINTEGER", "UBIGINT", "USMALLINT", "UTINYINT":
		switch v := raw.(type) {
		case string:
			s := strings.TrimSpace(v)
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n, nil
			}
			// Accept "1.0" the way the engine would.
			if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) {
				return int64(f), nil
			}
			return fail("not an integer")
		case float64:
			if v != math.Trunc(v) {
				return fail("not an integer")
			}
			return int64(v), nil
		case int, int64:
			return v, nil
		default:
			return fail("not an integer")
		}

	case "DOUBLE", "REAL", "FLOAT", "DECIMAL", "NUMERIC":
		switch v := raw.(type) {
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return fail("not a number")
			}
			return f, nil
		case float64:
			return v, nil
		case int, int64:
			return v, nil
		default:
			return fail("not a number")
		}

	case "VARCHAR", "TEXT", "STRING", "CHAR", "BPCHAR":
		if s, ok := raw.(string); ok {
			return s, nil
		}
		return fmt.Sprintf("%v", raw), nil

	case "BOOLEAN", "BOOL":
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			word := strings.ToLower(strings.TrimSpace(v))
			if trueWords[word] {
				return true, nil
			}
			if falseWords[word] {
				return false, nil
			}
			return fail("not a boolean")
		default:
			return fail("not a boolean")
		}

	case "DATE", "TIMESTAMP", "TIME", "TIMESTAMPTZ", "TIMETZ", "INTERVAL":
		// Keep date/time values as text and let the engine parse them;
		// only the lexical shape of DATE is checked up front.
		s := fmt.Sprintf("%v", raw)
		if declared == "DATE" && !datePattern.MatchString(strings.TrimSpace(s)) {
			return fail("expected YYYY-MM-DD or MM/DD/YYYY")
		}
		return s, nil

	case "JSON", "ARRAY", "LIST", "STRUCT", "MAP":
		switch v := raw.(type) {
		case string:
			var parsed any
			if err := json.Unmarshal([]byte(v), &parsed); err != nil {
				return fail("invalid JSON")
			}
			return v, nil
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return fail("invalid JSON")
			}
			return string(encoded), nil
		}

	default:
		// Unknown declared type: sniff strings, pass everything else
		// through untouched. The precedence (integer, then float, then
		// string) is load-bearing; callers depend on the exact order.
		s, ok := raw.(string)
		if !ok {
			return raw, nil
		}
		s = strings.TrimSpace(s)
		if integerPattern.MatchString(s) {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n, nil
			}
		}
		if numberPattern.MatchString(s) {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f, nil
			}
		}
		return s, nil
	}
}
