// Package kbmag certifies hyperbolicity with the kbmag programs autgroup
// and gpgeowa: a shortlex automatic structure followed by a geodesic word
// acceptor proves the group hyperbolic.
package kbmag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hypcert/internal/certify"
	"hypcert/internal/freegroup"
	"hypcert/internal/logging"
	"hypcert/internal/presentation"
	"hypcert/internal/subprocess"
	"hypcert/internal/tools"
)

// Name is the criterion name.
const Name = "kbmag"

const (
	autgroup = "autgroup"
	gpgeowa  = "gpgeowa"
	// groupFile is the rewriting system file inside the work directory.
	groupFile = "group"
)

// Config configures the adapter.
type Config struct {
	// BinDir holds the kbmag binaries. Empty means PATH.
	BinDir string `yaml:"bin_dir" json:"bin_dir"`
	// Timeout bounds autgroup and gpgeowa together.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// WorkDir is the parent of the per-call temporary directory. Empty
	// means os.TempDir.
	WorkDir string `yaml:"work_dir" json:"work_dir"`

	// Knuth-Bendix parameters written into the rewriting system. Zero
	// leaves the kbmag default.
	MaxEquations int `yaml:"maxeqns" json:"maxeqns"`
	TidyInterval int `yaml:"tidyint" json:"tidyint"`
	ConfNum      int `yaml:"confnum" json:"confnum"`
}

// DefaultConfig uses binaries from PATH with a ten second budget.
func DefaultConfig() Config {
	return Config{Timeout: 10 * time.Second}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("kbmag: timeout must be positive, got %s", c.Timeout)
	}
	if c.MaxEquations < 0 || c.TidyInterval < 0 || c.ConfNum < 0 {
		return fmt.Errorf("kbmag: maxeqns, tidyint and confnum must not be negative")
	}
	return nil
}

// Binary returns the path of a kbmag program.
func (c Config) Binary(name string) string {
	if c.BinDir == "" {
		return name
	}
	return filepath.Join(c.BinDir, name)
}

// KBMAG is an External criterion backed by kbmag.
type KBMAG struct {
	cfg    Config
	runner subprocess.Runner
}

// New validates cfg and builds the adapter. A relative BinDir is made
// absolute against the current directory. A nil runner uses a
// subprocess.DirectRunner.
func New(cfg Config, runner subprocess.Runner) (*KBMAG, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BinDir != "" && !filepath.IsAbs(cfg.BinDir) {
		abs, err := filepath.Abs(cfg.BinDir)
		if err != nil {
			return nil, fmt.Errorf("kbmag: resolving bin_dir: %w", err)
		}
		cfg.BinDir = abs
	}
	if runner == nil {
		runner = subprocess.NewDirectRunner()
	}
	return &KBMAG{cfg: cfg, runner: runner}, nil
}

// Config returns the adapter configuration.
func (k *KBMAG) Config() Config { return k.cfg }

func (k *KBMAG) Describe() certify.Descriptor {
	return certify.Descriptor{Name: Name, Tier: certify.External, Timeout: k.cfg.Timeout}
}

// Evaluate writes the rewriting system into a fresh directory, runs
// autgroup then gpgeowa, and removes the directory again.
func (k *KBMAG) Evaluate(ctx context.Context, p *presentation.Presentation) (certify.Verdict, error) {
	dir, err := os.MkdirTemp(k.cfg.WorkDir, "hypcert-kbmag-")
	if err != nil {
		return certify.Verdict{}, certify.NewToolFailure(Name, certify.ToolCrashed, "creating work directory", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logging.ToolsWarn("kbmag: removing %s: %v", dir, err)
		}
	}()

	rws := RewritingSystem(p.Rank(), p.Relator(), k.cfg)
	if err := os.WriteFile(filepath.Join(dir, groupFile), []byte(rws), 0o644); err != nil {
		return certify.Verdict{}, certify.NewToolFailure(Name, certify.ToolCrashed, "writing rewriting system", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, k.cfg.Timeout)
	defer cancel()

	for _, step := range []string{autgroup, gpgeowa} {
		res, err := k.runner.Run(runCtx, subprocess.Command{
			Binary:           k.cfg.Binary(step),
			Arguments:        []string{"-silent", groupFile},
			WorkingDirectory: dir,
		})
		if err := tools.RunFailure(ctx, Name, res, err); err != nil {
			return certify.Verdict{}, withStep(err, step)
		}
		if runCtx.Err() != nil {
			return certify.Verdict{}, certify.NewToolFailure(Name, certify.ToolTimedOut,
				fmt.Sprintf("%s: exceeded %s", step, k.cfg.Timeout), runCtx.Err())
		}
		switch res.ExitCode {
		case 0:
		case 1:
			logging.ToolsDebug("kbmag %s gave up on %s", step, p)
			return certify.Inconclusive(Name, step+" found no structure"), nil
		default:
			return certify.Verdict{}, withStep(tools.ExitFailure(Name, res), step)
		}
	}

	if _, err := os.Stat(filepath.Join(dir, groupFile+".geowa")); err != nil {
		return certify.Verdict{}, certify.NewToolFailure(Name, certify.UnparseableOutput,
			"gpgeowa succeeded without writing "+groupFile+".geowa", err)
	}
	return certify.NewVerdict(certify.Hyperbolic, Name,
		"shortlex automatic with a geodesic word acceptor").
		WithCertificate("automatic_structure", "autgroup").
		WithCertificate("geodesic_word_acceptor", "gpgeowa"), nil
}

// Probe checks that both programs can be resolved.
func (k *KBMAG) Probe() error {
	for _, step := range []string{autgroup, gpgeowa} {
		if _, err := subprocess.NewDirectRunner().LookPath(k.cfg.Binary(step)); err != nil {
			return certify.NewToolFailure(Name, certify.ToolNotFound, step, err)
		}
	}
	return nil
}

func withStep(err error, step string) error {
	var failure *certify.ToolFailure
	if errors.As(err, &failure) {
		if failure.Detail == "" {
			failure.Detail = step
		} else {
			failure.Detail = step + ": " + failure.Detail
		}
	}
	return err
}

// Generators returns the kbmag generator order for rank n: the inverses in
// reverse, then the generators, e.g. [B,A,a,b].
func Generators(n int) []freegroup.Letter {
	out := make([]freegroup.Letter, 0, 2*n)
	for g := n; g >= 1; g-- {
		out = append(out, freegroup.Letter(-g))
	}
	for g := 1; g <= n; g++ {
		out = append(out, freegroup.Letter(g))
	}
	return out
}

// RewritingSystem renders the kbmag input file for the one-relator group.
func RewritingSystem(rank int, relator freegroup.Word, cfg Config) string {
	gens := Generators(rank)
	names := make([]string, len(gens))
	inverses := make([]string, len(gens))
	for i, l := range gens {
		names[i] = l.String()
		inverses[i] = l.Inverse().String()
	}
	letters := make([]string, len(relator))
	for i, l := range relator {
		letters[i] = l.String()
	}

	var b strings.Builder
	b.WriteString("_RWS := rec(\n")
	b.WriteString("  isRWS := true,\n")
	b.WriteString("  ordering := \"shortlex\",\n")
	fmt.Fprintf(&b, "  generatorOrder := [%s],\n", strings.Join(names, ","))
	fmt.Fprintf(&b, "  inverses := [%s],\n", strings.Join(inverses, ","))
	for _, param := range []struct {
		name  string
		value int
	}{
		{"maxeqns", cfg.MaxEquations},
		{"tidyint", cfg.TidyInterval},
		{"confnum", cfg.ConfNum},
	} {
		if param.value > 0 {
			fmt.Fprintf(&b, "  %s := %d,\n", param.name, param.value)
		}
	}
	fmt.Fprintf(&b, "  equations := [ [%s, IdWord] ]\n", strings.Join(letters, "*"))
	b.WriteString(");\n")
	return b.String()
}
