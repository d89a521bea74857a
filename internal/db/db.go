// internal/db/db.go
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
)

// Config holds database connection settings.
type Config struct {
	Path     string // Path to the DuckDB database file
	BaseDir  string // Directory the path must resolve under ("" = current directory)
	ReadOnly bool   // Open with access_mode=read_only
	// MaxCursors caps the number of pooled connections. Each pooled
	// connection is a cursor on the shared DuckDB handle and is only ever
	// used by one request at a time. 0 means unlimited.
	MaxCursors int
}

// DefaultConfig returns the default connection settings.
func DefaultConfig() Config {
	return Config{
		Path:       "data/database.duckdb",
		ReadOnly:   true,
		MaxCursors: 16,
	}
}

// DB wraps the shared DuckDB handle. The embedded *sql.DB pools driver
// connections, which map onto DuckDB cursors over one database instance:
// they are created lazily, reused across requests, and never handed to two
// goroutines at once.
type DB struct {
	*sql.DB
	cfg Config
}

// ValidatePath rejects paths that escape baseDir. Relative paths are
// resolved against baseDir (or the working directory when baseDir is empty);
// absolute paths must already live under baseDir.
func ValidatePath(baseDir, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("database path is empty")
	}
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == ".." {
			return "", fmt.Errorf("database path %q contains a parent-directory segment", path)
		}
	}

	if baseDir == "" {
		if filepath.IsAbs(path) {
			return "", fmt.Errorf("absolute database path %q not allowed without a base directory", path)
		}
		return filepath.Clean(path), nil
	}

	base, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("resolve base directory: %w", err)
	}
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(base, resolved)
	}
	resolved = filepath.Clean(resolved)
	if resolved != base && !strings.HasPrefix(resolved, base+string(filepath.Separator)) {
		return "", fmt.Errorf("database path %q escapes base directory %q", path, baseDir)
	}
	return resolved, nil
}

// Open validates the path and opens the DuckDB database. In read-only mode
// the file must already exist; opening fails if the engine rejects the file.
func Open(cfg Config) (*DB, error) {
	path, err := ValidatePath(cfg.BaseDir, cfg.Path)
	if err != nil {
		return nil, err
	}

	if cfg.ReadOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("database file not readable: %w", err)
		}
	}

	dsn := path
	if cfg.ReadOnly {
		dsn += "?access_mode=read_only"
	}

	sqldb, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxCursors > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxCursors)
		sqldb.SetMaxIdleConns(cfg.MaxCursors)
	}

	// Fail now, not on the first request, if the file is corrupt or locked.
	if err := sqldb.Ping(); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &DB{DB: sqldb, cfg: cfg}, nil
}

// ReadOnly reports whether the database was opened read-only.
func (d *DB) ReadOnly() bool {
	return d.cfg.ReadOnly
}

// Path returns the resolved database file path.
func (d *DB) Path() string {
	path, _ := ValidatePath(d.cfg.BaseDir, d.cfg.Path)
	return path
}

// Healthy runs a trivial query and reports whether the engine answered.
func (d *DB) Healthy(ctx context.Context) bool {
	var one int
	if err := d.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return false
	}
	return one == 1
}
