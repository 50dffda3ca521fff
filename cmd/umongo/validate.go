package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/albmarin/umongo/adapters/sqlite"
	"github.com/albmarin/umongo/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and template declarations",
	Long: `Validate the umongo configuration and schema directory.

Checks:
  - YAML syntax of the config file is valid
  - Template declarations parse, resolve, and compile
  - Database is writable (optional)

Examples:
  umongo validate
  umongo validate --config /etc/umongo/config.yaml`,
	RunE: runValidate,
}

var validateCheckDatabase bool

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckDatabase, "check-database", false, "check if database is writable")
}

func runValidate(cmd *cobra.Command, args []string) error {
	fmt.Printf("Validating %s...\n\n", cfgFile)

	// Check file exists
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Printf("  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}
	fmt.Printf("  %s Config file exists\n", checkMark)

	// Load and validate config
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Printf("  %s Config syntax valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Printf("  %s Config syntax valid\n", checkMark)

	// Show config summary
	fmt.Printf("  %s Store: %s (%s)\n", checkMark, cfg.Store.DSN, cfg.Store.Driver)
	fmt.Printf("  %s Schema dir: %s\n", checkMark, cfg.Schemas.Dir)

	// Compile template declarations
	inst, tpls, err := loadInstance(cfg.Schemas.Dir)
	if err != nil {
		fmt.Printf("  %s Templates compile\n", crossMark)
		return fmt.Errorf("schema error: %w", err)
	}
	fmt.Printf("  %s Templates compile: %d declared\n", checkMark, len(tpls))

	for _, impl := range inst.Implementations() {
		s := impl.Schema()
		if s.Abstract() {
			fmt.Printf("      %s (abstract)\n", s.Name())
			continue
		}
		fmt.Printf("      %s -> collection %q, %d indexes\n", s.Name(), s.Collection(), len(s.IndexSpecs()))
	}

	// Optional: check database
	if validateCheckDatabase && cfg.Store.Driver == "sqlite" {
		if err := checkDatabaseWritable(cfg.Store.DSN); err != nil {
			fmt.Printf("  %s Database writable\n", crossMark)
			fmt.Printf("      Error: %v\n", err)
		} else {
			fmt.Printf("  %s Database writable\n", checkMark)
		}
	}

	fmt.Println()
	fmt.Println("Configuration is valid.")
	return nil
}

func checkDatabaseWritable(dsn string) error {
	db, err := sqlite.Open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return nil
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
