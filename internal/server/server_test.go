// internal/server/server_test.go
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/markb/macrolite/internal/db"
	"github.com/markb/macrolite/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer opens a writable test database with sample macros and
// returns a refreshed server.
func newTestServer(t *testing.T, cfg Config) (*db.DB, *Server) {
	t.Helper()
	require.NoError(t, log.Init(log.DefaultConfig()))

	dir := t.TempDir()
	database, err := db.Open(db.Config{Path: filepath.Join(dir, "test.duckdb"), BaseDir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	stmts := []string{
		`CREATE TABLE employees (
			id INTEGER, name VARCHAR, department VARCHAR, salary DECIMAL(10,2)
		)`,
		`INSERT INTO employees VALUES
			(1, 'Alice Johnson', 'Engineering', 75000),
			(2, 'Bob Smith', 'Sales', 60000)`,
		`CREATE MACRO calculate_bonus(salary, percentage) AS salary * percentage / 100`,
		`CREATE MACRO employees_by_department(dept_name) AS TABLE
			SELECT * FROM employees WHERE department = dept_name`,
	}
	for _, stmt := range stmts {
		_, err := database.Exec(stmt)
		require.NoError(t, err)
	}

	srv := New(database, cfg, nil)
	_, _, err = srv.RefreshCatalog(context.Background())
	require.NoError(t, err)

	return database, srv
}

func doRequest(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	_, srv := newTestServer(t, Config{})

	rec := doRequest(t, srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(2), body["macros"])
}

func TestHealthEndpointUnhealthy(t *testing.T) {
	database, srv := newTestServer(t, Config{})
	database.Close()

	rec := doRequest(t, srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body["status"])
}

func TestListMacrosAtRoot(t *testing.T) {
	_, srv := newTestServer(t, Config{})

	rec := doRequest(t, srv, http.MethodGet, "/macros", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 2)
}

func TestPrefixedRoutes(t *testing.T) {
	_, srv := newTestServer(t, Config{Prefix: "/api"})

	rec := doRequest(t, srv, http.MethodGet, "/api/macros", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/execute/calculate_bonus?salary=90000&percentage=18", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.InDelta(t, 16200.0, body["result"], 0.01)

	// Unprefixed path must not resolve.
	rec = doRequest(t, srv, http.MethodGet, "/macros", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDynamicExecuteThroughServer(t *testing.T) {
	_, srv := newTestServer(t, Config{})

	rec := doRequest(t, srv, http.MethodGet, "/execute/employees_by_department?dept_name=Sales", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "Bob Smith", rows[0]["name"])
}

func TestNamedExecuteThroughServer(t *testing.T) {
	_, srv := newTestServer(t, Config{})

	rec := doRequest(t, srv, http.MethodPost, "/macros/calculate_bonus/execute",
		`{"parameters": {"salary": 90000, "percentage": 18}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "scalar", body["macro_type"])
}

func TestAdminRefresh(t *testing.T) {
	database, srv := newTestServer(t, Config{})

	// New macro is invisible until an explicit refresh.
	_, err := database.Exec(`CREATE MACRO double_it(x) AS x * 2`)
	require.NoError(t, err)

	rec := doRequest(t, srv, http.MethodGet, "/execute/double_it?x=4", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/admin/v1/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(3), body["macros"])

	rec = doRequest(t, srv, http.MethodGet, "/execute/double_it?x=4", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, float64(8), result["result"])
}

func TestAdminRefreshFailure(t *testing.T) {
	database, srv := newTestServer(t, Config{})
	database.Close()

	rec := doRequest(t, srv, http.MethodPost, "/admin/v1/refresh", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "EXECUTION_ERROR", body["error_code"])
}

func TestAdminLogs(t *testing.T) {
	_, srv := newTestServer(t, Config{})

	log.Info("server test log line")

	rec := doRequest(t, srv, http.MethodGet, "/admin/v1/logs?n=50", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Lines []string `json:"lines"`
		Count int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, len(body.Lines), body.Count)
	assert.Contains(t, strings.Join(body.Lines, "\n"), "server test log line")
}

func TestAdminLogsBadCount(t *testing.T) {
	_, srv := newTestServer(t, Config{})

	rec := doRequest(t, srv, http.MethodGet, "/admin/v1/logs?n=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNormalizePrefix(t *testing.T) {
	assert.Equal(t, "", normalizePrefix(""))
	assert.Equal(t, "", normalizePrefix("/"))
	assert.Equal(t, "/api", normalizePrefix("api"))
	assert.Equal(t, "/api", normalizePrefix("/api/"))
	assert.Equal(t, "/api/v2", normalizePrefix("api/v2"))
}

func TestShutdownWithoutListen(t *testing.T) {
	_, srv := newTestServer(t, Config{})
	assert.NoError(t, srv.Shutdown(context.Background()))
}
