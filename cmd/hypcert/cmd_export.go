package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"hypcert/internal/certify"
	"hypcert/internal/report"
	"hypcert/internal/store"
)

func (a *app) exportCmd() *cobra.Command {
	var (
		format  string
		out     string
		outcome string
		batchID string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored results as CSV, JSON or XLSX",
		Long: `Writes the stored results to --out, or to stdout for csv and json.
The format defaults to the extension of --out.

Examples:
  hypcert export --out results.xlsx
  hypcert export --format csv --outcome undetermined`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := exportFormat(format, out)
			if err != nil {
				return err
			}
			if out == "" && f == report.XLSX {
				return fmt.Errorf("xlsx output requires --out")
			}

			results, err := store.Open(a.cfg.Store.DatabasePath)
			if err != nil {
				return err
			}
			defer results.Close()

			records, err := results.List(store.ListOptions{
				Outcome: certify.Outcome(outcome),
				BatchID: batchID,
			})
			if err != nil {
				return err
			}
			if out == "" {
				return report.Write(cmd.OutOrStdout(), f, records)
			}
			if err := report.WriteFile(out, f, records); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d results to %s\n", len(records), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "csv, json or xlsx")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	cmd.Flags().StringVar(&outcome, "outcome", "", "Only export this outcome")
	cmd.Flags().StringVar(&batchID, "batch", "", "Only export this batch")
	return cmd
}

func exportFormat(format, out string) (report.Format, error) {
	switch {
	case format != "":
		return report.ParseFormat(format)
	case out != "":
		return report.FormatFromPath(out)
	}
	return report.CSV, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
