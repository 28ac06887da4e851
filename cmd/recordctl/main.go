// Package main provides recordctl, the operator CLI for the booking
// record engine: schema migration, field catalog import and listing,
// audit statistics and access token issuance.
package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iliyamo/booking-record-engine/internal/database"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
)

var (
	// flagConfig is set by --config.
	flagConfig string
	// flagJSON switches list output to JSON.
	flagJSON bool

	// cfg is loaded by PersistentPreRunE.
	cfg *viper.Viper
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUserError)
	}
	os.Exit(exitSuccess)
}

var rootCmd = &cobra.Command{
	Use:           "recordctl",
	Short:         "recordctl administers the booking record engine",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v, err := loadConfig(flagConfig)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = v
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: ./recordctl.yaml when present)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(fieldDefsCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(tokenCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "recordctl v0.1.0")
	},
}

// openDB connects with the configured credentials.
func openDB() (*sql.DB, error) {
	return database.Open(
		cfg.GetString(keyDBUser), cfg.GetString(keyDBPass),
		cfg.GetString(keyDBHost), cfg.GetString(keyDBPort), cfg.GetString(keyDBName),
	)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the engine tables when missing",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		if err := database.Migrate(cmd.Context(), db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d statements\n", len(database.Statements()))
		return nil
	},
}
