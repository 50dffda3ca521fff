package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/albmarin/umongo/config"
)

var indexesCmd = &cobra.Command{
	Use:   "indexes",
	Short: "Show the planned indexes per template",
	Long: `Compile the template declarations and print the index plan of
every concrete template: implicit unique indexes, declared directives,
and discriminator compounds.

Examples:
  umongo indexes
  umongo indexes --schemas ./schemas
  umongo indexes --json`,
	RunE: runIndexes,
}

var (
	indexesSchemaDir string
	indexesJSON      bool
)

func init() {
	rootCmd.AddCommand(indexesCmd)

	indexesCmd.Flags().StringVar(&indexesSchemaDir, "schemas", "", "schema directory (default: from config)")
	indexesCmd.Flags().BoolVar(&indexesJSON, "json", false, "print the plan as JSON")
}

type indexRow struct {
	Name   string   `json:"name"`
	Keys   []string `json:"keys"`
	Unique bool     `json:"unique,omitempty"`
	Sparse bool     `json:"sparse,omitempty"`
}

func runIndexes(cmd *cobra.Command, args []string) error {
	dir := indexesSchemaDir
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

	plan := make(map[string][]indexRow)
	for _, impl := range inst.Implementations() {
		s := impl.Schema()
		if s.Abstract() {
			continue
		}

		rows := make([]indexRow, 0, len(s.IndexSpecs()))
		for _, spec := range s.IndexSpecs() {
			keys := make([]string, 0, len(spec.Keys))
			for _, k := range spec.Keys {
				keys = append(keys, k.Field+" "+k.Kind.String())
			}
			rows = append(rows, indexRow{Name: spec.Name, Keys: keys, Unique: spec.Unique, Sparse: spec.Sparse})
		}
		plan[s.Name()] = rows
	}

	if indexesJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	}

	for _, impl := range inst.Implementations() {
		s := impl.Schema()
		if s.Abstract() {
			continue
		}
		fmt.Printf("%s (collection %q)\n", s.Name(), s.Collection())
		rows := plan[s.Name()]
		if len(rows) == 0 {
			fmt.Println("  no indexes planned")
			continue
		}
		for _, row := range rows {
			flags := ""
			if row.Unique {
				flags += " unique"
			}
			if row.Sparse {
				flags += " sparse"
			}
			fmt.Printf("  %-30s (%s)%s\n", row.Name, strings.Join(row.Keys, ", "), flags)
		}
	}
	return nil
}
