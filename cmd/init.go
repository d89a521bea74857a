// cmd/init.go
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/markb/macrolite/internal/db"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample macrolite database",
	Long:  `Creates a new DuckDB database with a sample table and macros to serve.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("db")

		// Check if file already exists
		if _, err := os.Stat(dbPath); err == nil {
			return fmt.Errorf("database already exists at %s", dbPath)
		}

		if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create database directory: %w", err)
			}
		}

		database, err := db.Open(db.Config{Path: dbPath, ReadOnly: false})
		if err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
		defer database.Close()

		stmts := []string{
			`CREATE TABLE employees (
				id INTEGER,
				name VARCHAR,
				department VARCHAR,
				salary DECIMAL(10,2),
				hire_date DATE
			)`,
			`INSERT INTO employees VALUES
				(1, 'Alice Johnson', 'Engineering', 75000, '2020-01-15'),
				(2, 'Bob Smith', 'Sales', 60000, '2019-03-22'),
				(3, 'Carol Davis', 'Engineering', 80000, '2021-06-10'),
				(4, 'David Wilson', 'Marketing', 55000, '2020-09-05'),
				(5, 'Eve Brown', 'Sales', 65000, '2022-02-14')`,
			`CREATE MACRO greet(name) AS 'Hello, ' || name || '!'`,
			`CREATE MACRO calculate_bonus(salary, percentage) AS salary * percentage / 100`,
			`CREATE MACRO add_numbers(a, b) AS a + b`,
			`CREATE MACRO employees_by_department(dept_name) AS TABLE
				SELECT * FROM employees WHERE department = dept_name`,
			`CREATE MACRO high_earners(min_salary) AS TABLE
				SELECT name, department, salary FROM employees WHERE salary >= min_salary ORDER BY salary DESC`,
			`CREATE MACRO employee_count() AS TABLE
				SELECT COUNT(*) AS total_employees FROM employees`,
			`CREATE MACRO hired_after(cutoff_date) AS TABLE
				SELECT name, hire_date FROM employees WHERE hire_date > CAST(cutoff_date AS DATE) ORDER BY hire_date`,
		}
		for _, stmt := range stmts {
			if _, err := database.Exec(stmt); err != nil {
				return fmt.Errorf("failed to initialize sample data: %w", err)
			}
		}

		fmt.Printf("Initialized sample database at %s\n", dbPath)
		fmt.Println("Start serving with: macrolite serve --db " + dbPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().String("db", "data/database.duckdb", "Path to DuckDB database file")
}
