// cmd/macros.go
package cmd

import (
	"fmt"
	"strings"

	"github.com/markb/macrolite/internal/catalog"
	"github.com/markb/macrolite/internal/db"
	"github.com/spf13/cobra"
)

var macrosCmd = &cobra.Command{
	Use:   "macros",
	Short: "List the macros discovered in the database",
	Long:  `Opens the database, introspects its macro catalog, and prints the endpoints that would be served.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := buildDBConfig(cmd)
		prefix, _ := cmd.Flags().GetString("prefix")

		database, err := db.Open(cfg)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()

		cat := catalog.NewService(database)
		snap, err := cat.Refresh(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to read macro catalog: %w", err)
		}

		if len(snap.Macros) == 0 {
			fmt.Println("No macros found.")
			return nil
		}

		fmt.Printf("%d macro(s) in %s:\n\n", len(snap.Macros), database.Path())
		for _, d := range snap.Descriptors() {
			params := strings.Join(d.Parameters, ", ")
			fmt.Printf("  %-8s %s(%s)\n", d.Kind, d.Name, params)
			fmt.Printf("           GET %s/execute/%s\n", prefix, d.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(macrosCmd)
	macrosCmd.Flags().String("db", "data/database.duckdb", "Path to DuckDB database file")
	macrosCmd.Flags().String("base-dir", "", "Directory the database path must stay within")
	macrosCmd.Flags().Bool("read-only", true, "Open the database in read-only mode")
	macrosCmd.Flags().Int("max-cursors", 16, "Maximum concurrent database connections")
	macrosCmd.Flags().String("prefix", "/api/v1", "Route prefix for macro endpoints")
}
