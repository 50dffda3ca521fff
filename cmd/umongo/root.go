package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "umongo",
	Short: "Schema-driven document store with validation and inheritance",
	Long: `umongo serves YAML-declared document templates over a generic JSON API.

Templates declare fields, types, constraints, and inheritance; umongo
compiles them into schemas, plans their unique indexes, and exposes
every bound collection as validated CRUD endpoints.

Quick start:
  umongo validate   # Check config and template declarations
  umongo serve      # Start the document server

Inspection:
  umongo indexes    # Show the planned indexes per template
  umongo export     # Print the OpenAPI export of the schemas`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "umongo.yaml", "config file path")
}
