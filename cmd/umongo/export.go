package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/spf13/cobra"

	"github.com/albmarin/umongo/config"
	"github.com/albmarin/umongo/core/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the OpenAPI export of the compiled schemas",
	Long: `Compile the template declarations and print every concrete
schema as an OpenAPI component, ready to feed into code generators or
API documentation tooling.

Examples:
  umongo export
  umongo export --output schemas.json`,
	RunE: runExport,
}

var (
	exportSchemaDir string
	exportOutput    string
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportSchemaDir, "schemas", "", "schema directory (default: from config)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to file instead of stdout")
}

func runExport(cmd *cobra.Command, args []string) error {
	dir := exportSchemaDir
	if dir == "" {
		cfg, err := config.LoadWithFallback(cfgFile)
		if err != nil {
			return err
		}
		dir = cfg.Schemas.Dir
	}

	inst, _, err := loadInstance(dir)
	if err != nil {
		return fmt.Errorf("schema error: %w", err)
	}

	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:   "umongo document API",
			Version: "1.0.0",
		},
		Paths: openapi3.Paths{},
		Components: &openapi3.Components{
			Schemas: export.Components(inst),
		},
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if exportOutput != "" {
		return os.WriteFile(exportOutput, data, 0o644)
	}
	_, err = os.Stdout.Write(data)
	return err
}
