// internal/macro/executor_test.go
package macro

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/markb/macrolite/internal/catalog"
	"github.com/markb/macrolite/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupFixture opens a writable test database with the sample employees
// table and macros, refreshes the catalog, and returns the pieces.
func setupFixture(t *testing.T) (*db.DB, *catalog.Service, *Executor) {
	t.Helper()
	dir := t.TempDir()
	database, err := db.Open(db.Config{Path: filepath.Join(dir, "test.duckdb"), BaseDir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	stmts := []string{
		`CREATE TABLE employees (
			id INTEGER, name VARCHAR, department VARCHAR, salary DECIMAL(10,2), hire_date DATE
		)`,
		`INSERT INTO employees VALUES
			(1, 'Alice Johnson', 'Engineering', 75000, '2020-01-15'),
			(2, 'Bob Smith', 'Sales', 60000, '2019-03-22'),
			(3, 'Carol Davis', 'Engineering', 80000, '2021-06-10'),
			(4, 'David Wilson', 'Marketing', 55000, '2020-09-05')`,
		`CREATE MACRO greet(name) AS 'Hello, ' || name || '!'`,
		`CREATE MACRO calculate_bonus(salary, percentage) AS salary * percentage / 100`,
		`CREATE MACRO employees_by_department(dept_name) AS TABLE
			SELECT * FROM employees WHERE department = dept_name`,
		`CREATE MACRO high_earners(min_salary) AS TABLE
			SELECT name, salary FROM employees WHERE salary >= min_salary ORDER BY salary DESC`,
		`CREATE MACRO employee_count() AS TABLE
			SELECT COUNT(*) AS total_employees FROM employees`,
	}
	for _, stmt := range stmts {
		_, err := database.Exec(stmt)
		require.NoError(t, err)
	}

	cat := catalog.NewService(database)
	_, err = cat.Refresh(context.Background())
	require.NoError(t, err)

	return database, cat, NewExecutor(database, cat, nil)
}

func TestExecuteScalar(t *testing.T) {
	_, _, exec := setupFixture(t)

	result, err := exec.Execute(context.Background(), "calculate_bonus", map[string]any{
		"salary":     "90000",
		"percentage": "18",
	})
	require.NoError(t, err)

	assert.Equal(t, catalog.KindScalar, result.Kind)
	assert.InDelta(t, 16200, result.Value, 0.001)
	assert.Equal(t, 1, result.RowCount())
}

func TestExecuteScalarString(t *testing.T) {
	_, _, exec := setupFixture(t)

	result, err := exec.Execute(context.Background(), "greet", map[string]any{"name": "World"})
	require.NoError(t, err)
	assert.Equal(t, "Hello, World!", result.Value)
}

func TestExecuteTable(t *testing.T) {
	_, _, exec := setupFixture(t)

	result, err := exec.Execute(context.Background(), "employees_by_department", map[string]any{
		"dept_name": "Marketing",
	})
	require.NoError(t, err)

	assert.Equal(t, catalog.KindTable, result.Kind)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "David Wilson", result.Rows[0]["name"])
	assert.Equal(t, "Marketing", result.Rows[0]["department"])
	assert.Equal(t, []string{"id", "name", "department", "salary", "hire_date"}, result.Columns)
}

func TestExecuteTablePreservesOrder(t *testing.T) {
	_, _, exec := setupFixture(t)

	result, err := exec.Execute(context.Background(), "high_earners", map[string]any{
		"min_salary": "70000",
	})
	require.NoError(t, err)

	require.Len(t, result.Rows, 2)
	assert.Equal(t, "Carol Davis", result.Rows[0]["name"])
	assert.Equal(t, "Alice Johnson", result.Rows[1]["name"])
}

func TestExecuteTableNoParams(t *testing.T) {
	_, _, exec := setupFixture(t)

	result, err := exec.Execute(context.Background(), "employee_count", map[string]any{})
	require.NoError(t, err)

	require.Len(t, result.Rows, 1)
	assert.EqualValues(t, 4, result.Rows[0]["total_employees"])
}

func TestExecuteUnknownMacro(t *testing.T) {
	_, _, exec := setupFixture(t)

	_, err := exec.Execute(context.Background(), "nonexistent", map[string]any{})
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "nonexistent", notFound.Macro)
}

func TestExecuteMissingParameter(t *testing.T) {
	_, _, exec := setupFixture(t)

	_, err := exec.Execute(context.Background(), "calculate_bonus", map[string]any{
		"salary": "90000",
	})
	var paramErr *ParameterError
	require.ErrorAs(t, err, &paramErr)
	assert.Equal(t, "percentage", paramErr.Parameter)
}

func TestExecuteEmptyStringIsAbsent(t *testing.T) {
	_, _, exec := setupFixture(t)

	_, err := exec.Execute(context.Background(), "greet", map[string]any{"name": "  "})
	var paramErr *ParameterError
	require.ErrorAs(t, err, &paramErr)
	assert.Equal(t, "name", paramErr.Parameter)
}

func TestExecuteIgnoresUnknownKeys(t *testing.T) {
	_, _, exec := setupFixture(t)

	result, err := exec.Execute(context.Background(), "greet", map[string]any{
		"name":  "World",
		"extra": "ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello, World!", result.Value)
}

func TestBindParametersDeclaredType(t *testing.T) {
	_, _, exec := setupFixture(t)

	d := catalog.Descriptor{
		Name:           "typed",
		Parameters:     []string{"amount"},
		ParameterTypes: []string{"INTEGER"},
	}

	binds, err := exec.bindParameters(d, map[string]any{"amount": "42"})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(42)}, binds)

	_, err = exec.bindParameters(d, map[string]any{"amount": "invalid"})
	var paramErr *ParameterError
	require.ErrorAs(t, err, &paramErr)
	assert.Equal(t, "amount", paramErr.Parameter)
}

func TestExecuteEngineError(t *testing.T) {
	_, _, exec := setupFixture(t)

	// A value the sniffer keeps as a string makes the arithmetic fail
	// inside the engine; that surfaces as an execution error, verbatim.
	_, err := exec.Execute(context.Background(), "calculate_bonus", map[string]any{
		"salary":     "abc",
		"percentage": "18",
	})
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "calculate_bonus", execErr.Macro)
}

func TestConcurrentExecutions(t *testing.T) {
	_, _, exec := setupFixture(t)

	const workers = 50
	var wg sync.WaitGroup
	errs := make([]error, workers)
	values := make([]any, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				result, err := exec.Execute(context.Background(), "calculate_bonus", map[string]any{
					"salary":     fmt.Sprintf("%d", 1000*(i+1)),
					"percentage": "10",
				})
				errs[i] = err
				if err == nil {
					values[i] = result.Value
				}
			} else {
				result, err := exec.Execute(context.Background(), "employees_by_department", map[string]any{
					"dept_name": "Engineering",
				})
				errs[i] = err
				if err == nil {
					values[i] = len(result.Rows)
				}
			}
		}(i)
	}
	wg.Wait()

	// No cross-request bleed: each result matches its own inputs.
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i], "worker %d", i)
		if i%2 == 0 {
			assert.InDelta(t, float64(1000*(i+1))/10, values[i], 0.001, "worker %d", i)
		} else {
			assert.Equal(t, 2, values[i], "worker %d", i)
		}
	}
}

func TestFormatResultScalarEmpty(t *testing.T) {
	d := catalog.Descriptor{Name: "m", Kind: catalog.KindScalar}
	result := formatResult(d, []string{"v"}, nil)
	assert.Nil(t, result.Value)
	assert.Equal(t, 0, result.RowCount())
}
