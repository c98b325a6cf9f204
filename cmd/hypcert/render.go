package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"hypcert/internal/certify"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	failedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

	outcomeStyles = map[certify.Outcome]lipgloss.Style{
		certify.Hyperbolic:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		certify.NotHyperbolic: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		certify.Undetermined:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220")),
	}

	nameColumn  = lipgloss.NewStyle().Width(20)
	tierColumn  = lipgloss.NewStyle().Width(10)
	valueColumn = lipgloss.NewStyle().Width(16)
	timeColumn  = lipgloss.NewStyle().Width(10).Align(lipgloss.Right).MarginRight(2)
)

func outcomeText(o certify.Outcome) string {
	if s, ok := outcomeStyles[o]; ok {
		return s.Render(string(o))
	}
	return string(o)
}

// renderResult formats one result with its trail.
func renderResult(res *certify.Result) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(res.Input.String()))
	b.WriteByte('\n')

	verdict := outcomeText(res.Verdict.Outcome)
	if res.Verdict.Cause != "" {
		verdict += " (" + string(res.Verdict.Cause) + ")"
	}
	fmt.Fprintf(&b, "  %s %s\n", labelStyle.Render("verdict:  "), verdict)
	reason := res.Verdict.Reason.Criterion
	if res.Verdict.Reason.Detail != "" {
		reason += ": " + res.Verdict.Reason.Detail
	}
	fmt.Fprintf(&b, "  %s %s\n", labelStyle.Render("reason:   "), reason)

	if res.Evaluated != nil && res.Evaluated.String() != res.Input.String() {
		fmt.Fprintf(&b, "  %s %s\n", labelStyle.Render("evaluated:"), res.Evaluated.String())
	}
	if cert := res.Verdict.Reason.Certificate; len(cert) > 0 {
		keys := make([]string, 0, len(cert))
		for k := range cert {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s %s = %s\n", labelStyle.Render("evidence: "), k, cert[k])
		}
	}

	if len(res.Trail) > 0 {
		fmt.Fprintf(&b, "  %s\n", labelStyle.Render("trail:"))
		for i, e := range res.Trail {
			b.WriteString(renderEntry(i+1, e))
			b.WriteByte('\n')
		}
	}
	fmt.Fprintf(&b, "  %s %s  %s %s\n",
		labelStyle.Render("elapsed:  "), res.Elapsed.Round(time.Microsecond),
		labelStyle.Render("run:"), res.RunID)
	return b.String()
}

func renderEntry(n int, e certify.Entry) string {
	value := outcomeText(e.Verdict.Outcome)
	detail := e.Verdict.Reason.Detail
	if e.Failed() {
		value = failedStyle.Render(string(e.Failure.Class))
		detail = e.Failure.Detail
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		fmt.Sprintf("    %2d. ", n),
		nameColumn.Render(e.Criterion),
		tierColumn.Render(e.Tier.String()),
		valueColumn.Render(value),
		timeColumn.Render(e.Elapsed.Round(time.Microsecond).String()),
		detail,
	)
}

// writeResults prints results as styled text or as a JSON array.
func writeResults(w io.Writer, results []*certify.Result, asJSON bool) error {
	if asJSON {
		if results == nil {
			results = []*certify.Result{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	for i, res := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprint(w, renderResult(res))
	}
	return nil
}
