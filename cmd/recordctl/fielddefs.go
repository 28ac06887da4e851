package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/booking-record-engine/internal/model"
	"github.com/iliyamo/booking-record-engine/internal/repository"
	"github.com/iliyamo/booking-record-engine/internal/service"
)

var (
	flagActiveOnly bool
	flagCategory   string
)

var fieldDefsCmd = &cobra.Command{
	Use:   "fielddefs",
	Short: "Manage the extras field catalog",
}

var fieldDefsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List field definitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		svc := service.NewFieldDefinitionService(repository.NewFieldDefinitionRepo(db), zap.NewNop())
		defs, err := svc.List(cmd.Context(), flagActiveOnly, flagCategory)
		if err != nil {
			return err
		}
		return printDefinitions(cmd.OutOrStdout(), defs, flagJSON)
	},
}

var fieldDefsImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Upsert field definitions from a JSON file",
	Long: `Import reads a JSON array of field definitions, or an object with a
"definitions" array, and upserts each one by key. Items that fail validation
are reported and do not stop the import.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		items, err := parseDefinitions(data)
		if err != nil {
			return err
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		svc := service.NewFieldDefinitionService(repository.NewFieldDefinitionRepo(db), zap.NewNop())
		res, err := svc.BulkImport(cmd.Context(), items)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	fieldDefsListCmd.Flags().BoolVar(&flagActiveOnly, "active", false, "only active definitions")
	fieldDefsListCmd.Flags().StringVar(&flagCategory, "category", "", "filter by category")
	fieldDefsCmd.AddCommand(fieldDefsListCmd)
	fieldDefsCmd.AddCommand(fieldDefsImportCmd)
}

// parseDefinitions accepts either a bare array or {"definitions": [...]}.
func parseDefinitions(data []byte) ([]service.DefinitionInput, error) {
	data = bytes.TrimSpace(data)
	var items []service.DefinitionInput
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("parse definitions: %w", err)
		}
	} else {
		var wrapped struct {
			Definitions []service.DefinitionInput `json:"definitions"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("parse definitions: %w", err)
		}
		items = wrapped.Definitions
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no definitions found")
	}
	return items, nil
}

func printDefinitions(w io.Writer, defs []model.FieldDefinition, asJSON bool) error {
	if asJSON {
		out, err := json.MarshalIndent(defs, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal definitions: %w", err)
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tTYPE\tCATEGORY\tREQUIRED\tACTIVE\tLABEL")
	for _, d := range defs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%t\t%s\n", d.Key, d.Type, d.Category, d.Required, d.IsActive, d.Label)
	}
	return tw.Flush()
}
