// cmd/serve.go
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/markb/macrolite/internal/db"
	"github.com/markb/macrolite/internal/log"
	"github.com/markb/macrolite/internal/observability"
	"github.com/markb/macrolite/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the macrolite server",
	Long:  `Discovers the macros in the database and starts the HTTP server with one endpoint per macro.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		host, _ := cmd.Flags().GetString("host")

		dbCfg := buildDBConfig(cmd)

		prefix := "/api/v1"
		if env := os.Getenv("MACROLITE_PREFIX"); env != "" {
			prefix = env
		}
		if cmd.Flags().Changed("prefix") {
			prefix, _ = cmd.Flags().GetString("prefix")
		}

		logCfg := buildLogConfig(cmd)
		if err := log.Init(logCfg); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		database, err := db.Open(dbCfg)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()

		otelCfg := buildOtelConfig(cmd)
		tel, cleanup, err := observability.Init(cmd.Context(), otelCfg)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer cleanup()

		srv := server.New(database, server.Config{Prefix: prefix}, tel)

		snap, count, err := srv.RefreshCatalog(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to read macro catalog: %w", err)
		}
		log.Info("macro catalog loaded",
			"macros", count,
			"captured_at", snap.CapturedAt.UTC().Format(time.RFC3339),
		)

		addr := fmt.Sprintf("%s:%d", host, port)
		fmt.Printf("Starting macrolite on %s\n", addr)
		fmt.Printf("  Database:  %s (read_only=%v)\n", database.Path(), database.ReadOnly())
		fmt.Printf("  Macros:    %d discovered\n", count)
		fmt.Printf("  Endpoints: http://%s%s/execute/{macro}\n", addr, prefix)
		fmt.Printf("  Admin API: http://%s/admin/v1\n", addr)

		// Serve in the background so we can wait for shutdown signals.
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.ListenAndServe(addr)
		}()

		sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		select {
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		case <-sigCtx.Done():
		}

		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

// buildDBConfig creates a db.Config from environment variables and CLI flags.
// Priority: CLI flags > environment variables > defaults
func buildDBConfig(cmd *cobra.Command) db.Config {
	cfg := db.DefaultConfig()

	// Read environment variables first
	if path := os.Getenv("MACROLITE_DB"); path != "" {
		cfg.Path = path
	}
	if baseDir := os.Getenv("MACROLITE_BASE_DIR"); baseDir != "" {
		cfg.BaseDir = baseDir
	}
	if readOnly := os.Getenv("MACROLITE_READ_ONLY"); readOnly != "" {
		cfg.ReadOnly = readOnly != "false"
	}
	if cursors := os.Getenv("MACROLITE_MAX_CURSORS"); cursors != "" {
		if n, err := strconv.Atoi(cursors); err == nil && n > 0 {
			cfg.MaxCursors = n
		}
	}

	// CLI flags override environment variables
	if cmd.Flags().Changed("db") {
		cfg.Path, _ = cmd.Flags().GetString("db")
	}
	if cmd.Flags().Changed("base-dir") {
		cfg.BaseDir, _ = cmd.Flags().GetString("base-dir")
	}
	if cmd.Flags().Changed("read-only") {
		cfg.ReadOnly, _ = cmd.Flags().GetBool("read-only")
	}
	if cmd.Flags().Changed("max-cursors") {
		cfg.MaxCursors, _ = cmd.Flags().GetInt("max-cursors")
	}

	return cfg
}

// buildLogConfig creates a log.Config from environment variables and CLI flags.
func buildLogConfig(cmd *cobra.Command) *log.Config {
	cfg := log.DefaultConfig()

	if mode := os.Getenv("MACROLITE_LOG_MODE"); mode != "" {
		cfg.Mode = mode
	}
	if level := os.Getenv("MACROLITE_LOG_LEVEL"); level != "" {
		cfg.Level = level
	}
	if format := os.Getenv("MACROLITE_LOG_FORMAT"); format != "" {
		cfg.Format = format
	}
	if path := os.Getenv("MACROLITE_LOG_FILE"); path != "" {
		cfg.FilePath = path
	}

	if cmd.Flags().Changed("log-mode") {
		cfg.Mode, _ = cmd.Flags().GetString("log-mode")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Format, _ = cmd.Flags().GetString("log-format")
	}
	if cmd.Flags().Changed("log-file") {
		cfg.FilePath, _ = cmd.Flags().GetString("log-file")
	}

	return cfg
}

// buildOtelConfig creates an observability.Config from environment variables and CLI flags.
func buildOtelConfig(cmd *cobra.Command) *observability.Config {
	cfg := observability.NewConfig()

	if exporter := os.Getenv("MACROLITE_OTEL_EXPORTER"); exporter != "" {
		cfg.Exporter = exporter
	}
	if endpoint := os.Getenv("MACROLITE_OTEL_ENDPOINT"); endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if rate := os.Getenv("MACROLITE_OTEL_SAMPLE_RATE"); rate != "" {
		if f, err := strconv.ParseFloat(rate, 64); err == nil && f >= 0 && f <= 1 {
			cfg.SampleRate = f
		}
	}

	if cmd.Flags().Changed("otel-exporter") {
		cfg.Exporter, _ = cmd.Flags().GetString("otel-exporter")
	}
	if cmd.Flags().Changed("otel-endpoint") {
		cfg.Endpoint, _ = cmd.Flags().GetString("otel-endpoint")
	}

	// Enabling any exporter turns on both signals unless narrowed.
	if cfg.Exporter != "none" {
		cfg.MetricsEnabled = true
		cfg.TracesEnabled = true
	}
	if cmd.Flags().Changed("otel-metrics") {
		cfg.MetricsEnabled, _ = cmd.Flags().GetBool("otel-metrics")
	}
	if cmd.Flags().Changed("otel-traces") {
		cfg.TracesEnabled, _ = cmd.Flags().GetBool("otel-traces")
	}

	return cfg
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("db", "data/database.duckdb", "Path to DuckDB database file")
	serveCmd.Flags().String("base-dir", "", "Directory the database path must stay within")
	serveCmd.Flags().Bool("read-only", true, "Open the database in read-only mode")
	serveCmd.Flags().Int("max-cursors", 16, "Maximum concurrent database connections")
	serveCmd.Flags().IntP("port", "p", 8000, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().String("prefix", "/api/v1", "Route prefix for macro endpoints")
	serveCmd.Flags().String("log-mode", "", "Log mode: console or file")
	serveCmd.Flags().String("log-level", "", "Log level: debug, info, warn, or error")
	serveCmd.Flags().String("log-format", "", "Log format: text or json")
	serveCmd.Flags().String("log-file", "", "Log file path (file mode)")
	serveCmd.Flags().String("otel-exporter", "", "Telemetry exporter: none, stdout, or otlp")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP collector endpoint")
	serveCmd.Flags().Bool("otel-metrics", false, "Enable metrics collection")
	serveCmd.Flags().Bool("otel-traces", false, "Enable trace collection")
}
