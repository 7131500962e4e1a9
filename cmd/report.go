package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/website-growth-analyzer/internal/report"
)

// newStatsCmd creates the 'stats' subcommand, which prints lead statistics as JSON.
func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Prints lead statistics as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			stats := appInstance.Store().Stats(cmd.Context())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(stats); err != nil {
				return fmt.Errorf("encode stats: %w", err)
			}
			return nil
		},
	}
}

// newExportCmd creates the 'export' subcommand, which writes every lead as CSV.
func newExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Exports all leads as CSV",
		Long: `Writes every stored lead, newest first, in the same CSV layout served by
GET /admin/leads/export. Use --out - to write to stdout.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			leads, err := appInstance.Store().List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list leads: %w", err)
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "-" {
				if out == "" {
					out = report.Filename(time.Now())
				}
				f, err := os.Create(out) //nolint:gosec // path chosen by the operator
				if err != nil {
					return fmt.Errorf("create %s: %w", out, err)
				}
				defer func() {
					if cerr := f.Close(); cerr != nil {
						appInstance.Logger().Warn("Failed to close export file", zap.Error(cerr))
					}
				}()
				w = f
			}
			if err := report.WriteCSV(w, leads); err != nil {
				return fmt.Errorf("write csv: %w", err)
			}
			appInstance.Logger().Info("Exported leads", zap.Int("count", len(leads)), zap.String("out", out))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default leads-YYYY-MM-DD.csv, - for stdout)")
	return cmd
}
