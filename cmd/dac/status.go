package main

import (
	"encoding/json"
	"os"

	"github.com/koustreak/dac/internal/dbstatus"
	"github.com/koustreak/dac/internal/errs"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Aggregate the database status once and print it as JSON",
	Long: `status queries the configured database catalog directly, without the
backend API, and prints the status record. On failure it prints the failure
record and exits non-zero.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.DatabaseEnabled() {
		return errs.New(errs.ErrKindInvalidInput, "no database configured (set database.dsn or DAC_DATABASE_URL)")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	agg, db, err := newAggregator(cmd.Context(), cfg.Database, true)
	if err != nil {
		return err
	}
	defer db.Close()

	rec, err := agg.Status(cmd.Context())
	if err != nil {
		log.ErrorWith("status aggregation failed", err, nil)
		_ = enc.Encode(dbstatus.NewFailure(err))
		return err
	}
	return enc.Encode(rec)
}
