// Package walrus certifies hyperbolicity with the walrus package of GAP.
//
// Each evaluation starts one non-interactive GAP process, feeds it a script
// on stdin and reads a single marker line back.
package walrus

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
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
const Name = "walrus"

const (
	resultMarker    = "HYPCERT-RESULT"
	noPackageMarker = "HYPCERT-NOPACKAGE"
	readyMarker     = "HYPCERT-READY"
)

var (
	// ErrNoPackage means GAP ran but could not load walrus.
	ErrNoPackage = errors.New("GAP package walrus is not installed")
	// ErrUnexpectedOutput means the output did not follow the marker grammar.
	ErrUnexpectedOutput = errors.New("unexpected GAP output")
)

// Config configures the adapter.
type Config struct {
	Binary    string        `yaml:"binary" json:"binary"`
	Arguments []string      `yaml:"arguments" json:"arguments"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	// Epsilon is the walrus parameter, a positive rational such as 1/100.
	Epsilon string `yaml:"epsilon" json:"epsilon"`
}

// DefaultConfig runs "gap -q -b" with a one minute timeout.
func DefaultConfig() Config {
	return Config{
		Binary:    "gap",
		Arguments: []string{"-q", "-b"},
		Timeout:   60 * time.Second,
		Epsilon:   "1/100",
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Binary == "" {
		return fmt.Errorf("walrus: binary is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("walrus: timeout must be positive, got %s", c.Timeout)
	}
	eps, ok := new(big.Rat).SetString(c.Epsilon)
	if !ok || eps.Sign() <= 0 {
		return fmt.Errorf("walrus: epsilon %q is not a positive rational", c.Epsilon)
	}
	return nil
}

// Walrus is an External criterion backed by GAP.
type Walrus struct {
	cfg    Config
	runner subprocess.Runner
}

// New validates cfg and builds the adapter. A nil runner uses a
// subprocess.DirectRunner.
func New(cfg Config, runner subprocess.Runner) (*Walrus, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if runner == nil {
		runner = subprocess.NewDirectRunner()
	}
	return &Walrus{cfg: cfg, runner: runner}, nil
}

// Config returns the adapter configuration.
func (w *Walrus) Config() Config { return w.cfg }

func (w *Walrus) Describe() certify.Descriptor {
	return certify.Descriptor{Name: Name, Tier: certify.External, Timeout: w.cfg.Timeout}
}

// Evaluate runs IsHyperbolic on the presentation. "true" is Hyperbolic and
// "fail" is Undetermined; walrus never proves non-hyperbolicity.
func (w *Walrus) Evaluate(ctx context.Context, p *presentation.Presentation) (certify.Verdict, error) {
	script := BuildScript(p.Rank(), p.Relator(), w.cfg.Epsilon)
	res, err := w.runner.Run(ctx, w.command(script))
	if err := tools.RunFailure(ctx, Name, res, err); err != nil {
		return certify.Verdict{}, err
	}

	hyperbolic, err := ParseOutput(res.Stdout)
	switch {
	case errors.Is(err, ErrNoPackage):
		return certify.Verdict{}, certify.NewToolFailure(Name, certify.ToolNotFound, "", err)
	case res.ExitCode != 0:
		return certify.Verdict{}, tools.ExitFailure(Name, res)
	case err != nil:
		return certify.Verdict{}, certify.NewToolFailure(Name, certify.UnparseableOutput, "", err)
	}

	logging.ToolsDebug("walrus answered %t for %s in %s", hyperbolic, p, res.Duration)
	if !hyperbolic {
		return certify.Inconclusive(Name, "IsHyperbolic returned fail"), nil
	}
	return certify.NewVerdict(certify.Hyperbolic, Name,
		fmt.Sprintf("walrus IsHyperbolic with epsilon %s", w.cfg.Epsilon)).
		WithCertificate("epsilon", w.cfg.Epsilon).
		WithCertificate("method", "PregroupPresentationFromFp"), nil
}

// Probe checks that GAP starts and walrus loads.
func (w *Walrus) Probe(ctx context.Context) error {
	script := fmt.Sprintf("%s\nPrint(\"%s\\n\");\nQUIT_GAP(0);\n", loadPackage, readyMarker)
	res, err := w.runner.Run(ctx, w.command(script))
	if err := tools.RunFailure(ctx, Name, res, err); err != nil {
		return err
	}
	out := res.Stdout
	switch {
	case strings.Contains(out, noPackageMarker):
		return certify.NewToolFailure(Name, certify.ToolNotFound, "", ErrNoPackage)
	case res.ExitCode != 0:
		return tools.ExitFailure(Name, res)
	case !strings.Contains(out, readyMarker):
		return certify.NewToolFailure(Name, certify.UnparseableOutput, "", ErrUnexpectedOutput)
	}
	return nil
}

func (w *Walrus) command(script string) subprocess.Command {
	return subprocess.Command{
		Binary:    w.cfg.Binary,
		Arguments: w.cfg.Arguments,
		Stdin:     script,
		Timeout:   w.cfg.Timeout,
	}
}

var loadPackage = fmt.Sprintf(
	"if LoadPackage(\"walrus\") <> true then Print(\"%s\\n\"); QUIT_GAP(3); fi;", noPackageMarker)

// BuildScript returns the GAP program checking the one-relator group of the
// given rank and relator.
func BuildScript(rank int, relator freegroup.Word, epsilon string) string {
	var b strings.Builder
	b.WriteString(loadPackage)
	b.WriteByte('\n')
	fmt.Fprintf(&b, "F := FreeGroup(%d);;\n", rank)
	fmt.Fprintf(&b, "res := IsHyperbolic(PregroupPresentationFromFp(F, [], [%s]), %s);;\n",
		GAPWord("F", relator), epsilon)
	fmt.Fprintf(&b, "Print(\"%s \", res, \"\\n\");\n", resultMarker)
	b.WriteString("QUIT_GAP(0);\n")
	return b.String()
}

// GAPWord renders w over the generators of the free group called group,
// e.g. F.1*F.2^-1.
func GAPWord(group string, w freegroup.Word) string {
	if len(w) == 0 {
		return "One(" + group + ")"
	}
	parts := make([]string, len(w))
	for i, l := range w {
		parts[i] = group + "." + strconv.Itoa(l.Generator())
		if l < 0 {
			parts[i] += "^-1"
		}
	}
	return strings.Join(parts, "*")
}

// ParseOutput reads the answer from GAP's stdout. Blank lines and GAP info
// or warning lines (#I, #W) are ignored; anything else must be exactly one
// result line.
func ParseOutput(stdout string) (bool, error) {
	var answer string
	seen := false
	sc := bufio.NewScanner(strings.NewReader(stdout))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "", strings.HasPrefix(line, "#I"), strings.HasPrefix(line, "#W"):
			continue
		case line == noPackageMarker:
			return false, ErrNoPackage
		case strings.HasPrefix(line, resultMarker+" ") && !seen:
			answer = strings.TrimSpace(strings.TrimPrefix(line, resultMarker))
			seen = true
		default:
			return false, fmt.Errorf("%w: %q", ErrUnexpectedOutput, line)
		}
	}
	if err := sc.Err(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnexpectedOutput, err)
	}
	switch {
	case !seen:
		return false, fmt.Errorf("%w: no result line", ErrUnexpectedOutput)
	case answer == "true":
		return true, nil
	case answer == "fail":
		return false, nil
	}
	return false, fmt.Errorf("%w: result %q", ErrUnexpectedOutput, answer)
}
