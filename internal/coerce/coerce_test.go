// internal/coerce/coerce_test.go
package coerce

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeclaredIntegerTypes(t *testing.T) {
	tests := []struct {
		raw     any
		want    any
		wantErr bool
	}{
		{"42", int64(42), false},
		{"-7", int64(-7), false},
		{"1.0", int64(1), false},
		{float64(5), int64(5), false},
		{"invalid", nil, true},
		{"3.7", nil, true},
		{float64(3.7), nil, true},
		{true, nil, true},
	}
	for _, tt := range tests {
		got, err := Value("n", tt.raw, "INTEGER")
		if tt.wantErr {
			assert.Error(t, err, "raw=%v", tt.raw)
		} else {
			require.NoError(t, err, "raw=%v", tt.raw)
			assert.Equal(t, tt.want, got)
		}
	}
}

func TestDeclaredFloatTypes(t *testing.T) {
	got, err := Value("x", "3.14", "DOUBLE")
	require.NoError(t, err)
	assert.Equal(t, 3.14, got)

	got, err = Value("x", "90000", "DECIMAL(18,3)")
	require.NoError(t, err)
	assert.Equal(t, float64(90000), got)

	_, err = Value("x", "abc", "DOUBLE")
	assert.Error(t, err)
}

func TestDeclaredBoolean(t *testing.T) {
	for _, raw := range []string{"true", "1", "yes", "on", "T", "Y"} {
		got, err := Value("b", raw, "BOOLEAN")
		require.NoError(t, err, "raw=%s", raw)
		assert.Equal(t, true, got)
	}
	for _, raw := range []string{"false", "0", "no", "off", "F", "N"} {
		got, err := Value("b", raw, "BOOLEAN")
		require.NoError(t, err, "raw=%s", raw)
		assert.Equal(t, false, got)
	}
	_, err := Value("b", "maybe", "BOOLEAN")
	assert.Error(t, err)
}

func TestDeclaredDate(t *testing.T) {
	got, err := Value("d", "2020-01-15", "DATE")
	require.NoError(t, err)
	assert.Equal(t, "2020-01-15", got)

	got, err = Value("d", "1/15/2020", "DATE")
	require.NoError(t, err)
	assert.Equal(t, "1/15/2020", got)

	_, err = Value("d", "January 15", "DATE")
	assert.Error(t, err)
}

func TestUnknownTypeSniffing(t *testing.T) {
	// Precedence: integer, then float, then string — exactly this order.
	tests := []struct {
		raw  string
		want any
	}{
		{"42", int64(42)},
		{"-13", int64(-13)},
		{"007", int64(7)},
		{"3.14", 3.14},
		{"1e3", float64(1000)},
		{"-2.5e-1", -0.25},
		{"abc", "abc"},
		{"12abc", "12abc"},
		{"3,14", "3,14"},
		{"", ""},
	}
	for _, tt := range tests {
		got, err := Value("p", tt.raw, TypeUnknown)
		require.NoError(t, err, "raw=%q", tt.raw)
		assert.Equal(t, tt.want, got, "raw=%q", tt.raw)
	}
}

func TestUnknownTypeNonStringPassthrough(t *testing.T) {
	got, err := Value("p", float64(2.5), TypeUnknown)
	require.NoError(t, err)
	assert.Equal(t, 2.5, got)

	got, err = Value("p", true, TypeUnknown)
	require.NoError(t, err)
	assert.Equal(t, true, got)
}

func TestNumericRoundTrip(t *testing.T) {
	// Formatting the coerced value and re-coercing must be stable.
	for _, raw := range []string{"42", "3.14", "-99", "0.5"} {
		first, err := Value("p", raw, TypeUnknown)
		require.NoError(t, err)
		second, err := Value("p", fmt.Sprintf("%v", first), TypeUnknown)
		require.NoError(t, err)
		assert.Equal(t, first, second, "raw=%q", raw)
	}
}

func TestErrorNamesParameter(t *testing.T) {
	_, err := Value("salary", "invalid", "INTEGER")
	require.Error(t, err)

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "salary", cerr.Parameter)
	assert.Equal(t, "INTEGER", cerr.Expected)
	assert.Contains(t, err.Error(), "salary")
}

func TestJSONType(t *testing.T) {
	got, err := Value("j", `{"a": 1}`, "JSON")
	require.NoError(t, err)
	assert.Equal(t, `{"a": 1}`, got)

	_, err = Value("j", `{not json`, "JSON")
	assert.Error(t, err)

	got, err = Value("j", map[string]any{"a": float64(1)}, "JSON")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, got.(string))
}

func TestNilValue(t *testing.T) {
	got, err := Value("p", nil, "INTEGER")
	require.NoError(t, err)
	assert.Nil(t, got)
}
