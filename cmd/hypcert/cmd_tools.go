package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"hypcert/internal/certify"
)

// errToolsMissing is returned by check-tools when a tool is unusable.
var errToolsMissing = errors.New("some external tools are unavailable")

type toolStatus struct {
	Tool   string `json:"tool"`
	OK     bool   `json:"ok"`
	Class  string `json:"class,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func (a *app) checkToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-tools",
		Short: "Check that GAP/walrus and kbmag can be run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, k, err := a.adapters()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.GetGAPTimeout())
			defer cancel()

			statuses := []toolStatus{
				probeStatus(w.Describe().Name, w.Probe(ctx)),
				probeStatus(k.Describe().Name, k.Probe()),
			}

			allOK := true
			for _, s := range statuses {
				allOK = allOK && s.OK
			}
			out := cmd.OutOrStdout()
			if a.jsonOutput {
				if err := writeJSON(out, statuses); err != nil {
					return err
				}
			} else {
				for _, s := range statuses {
					if s.OK {
						fmt.Fprintf(out, "%-8s %s\n", s.Tool, okStyle.Render("ok"))
						continue
					}
					fmt.Fprintf(out, "%-8s %s %s\n", s.Tool, failedStyle.Render(s.Class), s.Detail)
				}
			}
			if !allOK {
				return errToolsMissing
			}
			return nil
		},
	}
}

func probeStatus(tool string, err error) toolStatus {
	if err == nil {
		return toolStatus{Tool: tool, OK: true}
	}
	s := toolStatus{Tool: tool, Detail: err.Error()}
	var failure *certify.ToolFailure
	if errors.As(err, &failure) {
		s.Class = string(failure.Class)
	} else {
		s.Class = "error"
	}
	return s
}
