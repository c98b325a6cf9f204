package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"hypcert/internal/certify"
	"hypcert/internal/logging"
	"hypcert/internal/presentation"
	"hypcert/internal/store"
)

// batchSummary counts what a batch did.
type batchSummary struct {
	BatchID   string                  `json:"batch_id"`
	Certified int                     `json:"certified"`
	Skipped   int                     `json:"skipped"`
	Kept      int                     `json:"kept"`
	Failed    int                     `json:"failed"`
	Outcomes  map[certify.Outcome]int `json:"outcomes"`
}

func (a *app) batchCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Certify every relator in a file and store the results",
		Long: `Reads one relator per line ("-" reads stdin). Blank lines and lines
starting with '#' are ignored. Results are saved to the result database.
Relators already stored are skipped unless --force is given, except those
whose tools were missing or failed, or that were certified with other
settings. A stored conclusive verdict is never replaced by an undetermined
one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBatch(cmd, args[0], force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Re-certify relators that are already stored")
	return cmd
}

func (a *app) runBatch(cmd *cobra.Command, path string, force bool) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	var in io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	lines, err := readRelators(in)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	results, err := store.Open(a.cfg.Store.DatabasePath)
	if err != nil {
		return err
	}
	defer results.Close()

	p, err := a.pipeline()
	if err != nil {
		return err
	}

	fingerprint := p.Fingerprint()
	sum := batchSummary{BatchID: store.NewBatchID(), Outcomes: make(map[certify.Outcome]int)}
	out := cmd.OutOrStdout()
	for _, line := range lines {
		pres, err := presentation.Parse(line.text, a.generators)
		if err != nil {
			logging.PipelineWarn("line %d: %v", line.number, err)
			fmt.Fprintf(cmd.ErrOrStderr(), "line %d: %v\n", line.number, err)
			sum.Failed++
			continue
		}

		if !force {
			rec, ok, err := results.Lookup(pres.String())
			if err != nil {
				return err
			}
			if ok && !rec.Stale(fingerprint) {
				logging.PipelineDebug("line %d: %s already stored", line.number, pres)
				sum.Skipped++
				continue
			}
			if ok {
				logging.PipelineDebug("line %d: re-certifying stored %s (%s)", line.number, pres, rec.Outcome)
			}
		}

		res, err := p.Certify(ctx, pres)
		var conflict *certify.ConflictError
		switch {
		case errors.As(err, &conflict):
			fmt.Fprintf(cmd.ErrOrStderr(), "line %d: %v\n", line.number, conflict)
			sum.Failed++
			continue
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			a.printSummary(out, sum)
			return err
		case err != nil:
			return err
		}

		saved, err := results.Save(store.RecordFromResult(res, sum.BatchID))
		if err != nil {
			return err
		}
		if !saved {
			sum.Kept++
		}
		sum.Certified++
		sum.Outcomes[res.Verdict.Outcome]++
		if !a.jsonOutput {
			fmt.Fprintf(out, "%4d  %-16s %s\n", line.number, outcomeText(res.Verdict.Outcome), pres)
		}
	}
	a.printSummary(out, sum)
	return nil
}

func (a *app) printSummary(w io.Writer, sum batchSummary) {
	if a.jsonOutput {
		_ = writeJSON(w, sum)
		return
	}
	fmt.Fprintf(w, "%s %s: %d certified (%d hyperbolic, %d not hyperbolic, %d undetermined), %d skipped, %d failed\n",
		titleStyle.Render("batch"), sum.BatchID, sum.Certified,
		sum.Outcomes[certify.Hyperbolic], sum.Outcomes[certify.NotHyperbolic], sum.Outcomes[certify.Undetermined],
		sum.Skipped, sum.Failed)
	if sum.Kept > 0 {
		fmt.Fprintf(w, "%d stored conclusive verdicts kept over undetermined results\n", sum.Kept)
	}
}

type relatorLine struct {
	number int
	text   string
}

// readRelators returns the non-blank, non-comment lines of r.
func readRelators(r io.Reader) ([]relatorLine, error) {
	var lines []relatorLine
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		lines = append(lines, relatorLine{number: n, text: text})
	}
	return lines, sc.Err()
}
