package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"hypcert/internal/certify"
	"hypcert/internal/logging"
	"hypcert/internal/presentation"
)

func (a *app) certifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "certify <relator>...",
		Short: "Certify one or more relators and print the verdicts",
		Long: `Runs the certification pipeline on each relator and prints the verdict
together with the trail of criteria that were consulted.

Examples:
  hypcert certify abAB
  hypcert certify --no-external "<x, y | x^3*y^-2>"
  hypcert certify --generators s,t "s t S T" --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: a.runCertify,
	}
}

func (a *app) runCertify(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	pres := make([]*presentation.Presentation, len(args))
	for i, arg := range args {
		p, err := presentation.Parse(arg, a.generators)
		if err != nil {
			return fmt.Errorf("%q: %w", arg, err)
		}
		pres[i] = p
	}

	p, err := a.pipeline()
	if err != nil {
		return err
	}

	var results []*certify.Result
	for _, pr := range pres {
		res, err := p.Certify(ctx, pr)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			_ = writeResults(cmd.OutOrStdout(), results, a.jsonOutput)
			if errors.Is(err, context.Canceled) {
				logging.PipelineWarn("interrupted")
			}
			return err
		}
	}
	return writeResults(cmd.OutOrStdout(), results, a.jsonOutput)
}
