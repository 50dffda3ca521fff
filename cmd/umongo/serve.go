package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/albmarin/umongo/bootstrap"
	"github.com/albmarin/umongo/config"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the document server",
	Long: `Start the umongo document server.

The server will:
  - Load configuration from umongo.yaml (or --config)
  - Or load configuration from UMONGO_* environment variables
  - Open the document store backend
  - Parse and register the template declarations
  - Ensure the planned unique indexes
  - Serve document CRUD over HTTP

Environment variables (for Docker deployments):
  UMONGO_SCHEMAS_DIR     - Template declaration directory (required)
  UMONGO_STORE_DRIVER    - Store driver: memory or sqlite
  UMONGO_STORE_DSN       - Database path (default: umongo.db)
  UMONGO_SERVER_PORT     - Server port (default: 8080)
  UMONGO_LOG_LEVEL       - Log level: debug, info, warn, error

Examples:
  umongo serve
  umongo serve --config /etc/umongo/config.yaml
  umongo serve --hot-reload=false

  # Docker (env vars only):
  UMONGO_SCHEMAS_DIR=/schemas umongo serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	hasEnvConfig := os.Getenv("UMONGO_SCHEMAS_DIR") != ""

	// No configuration at all
	if !hasConfigFile && !hasEnvConfig {
		fmt.Println("No configuration found.")
		fmt.Println()
		fmt.Printf("Option 1: Create %s\n", cfgFile)
		fmt.Println("Option 2: Set UMONGO_SCHEMAS_DIR environment variable")
		fmt.Println()
		fmt.Println("Example (env vars):")
		fmt.Println("  UMONGO_SCHEMAS_DIR=./schemas umongo serve")
		return nil
	}

	// Create application
	var app *bootstrap.App
	var err error

	if hasConfigFile && hotReload {
		// Hot reload only works with a config file
		app, err = bootstrap.NewWithHotReload(cfgFile)
	} else {
		cfg, loadErr := config.LoadWithFallback(cfgFile)
		if loadErr != nil {
			return fmt.Errorf("error loading config: %w", loadErr)
		}

		if !hasConfigFile {
			fmt.Println("Running with environment variables (no config file)")
		}

		app, err = bootstrap.New(cfg)
	}

	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
