// Command hypcert certifies hyperbolicity of one-relator groups.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"hypcert/internal/certify"
	"hypcert/internal/config"
	"hypcert/internal/criteria"
	"hypcert/internal/logging"
	"hypcert/internal/tools/kbmag"
	"hypcert/internal/tools/walrus"
)

// app holds the global flags and the loaded configuration.
type app struct {
	configPath   string
	verbose      bool
	jsonOutput   bool
	noExternal   bool
	crossCheck   bool
	parallel     bool
	noMinimize   bool
	gapTimeout   time.Duration
	kbmagTimeout time.Duration
	generators   []string
	skip         []string
	dbPath       string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "hypcert",
		Short: "Certify hyperbolicity of one-relator groups",
		Long: `hypcert decides whether the group <generators | relator> is word-hyperbolic.

Internal criteria run first, cheapest first: torsion, free, cyclically pinched,
Ivanov-Schupp, small cancellation and Blufstein-Minian. When none is conclusive
GAP's walrus package and kbmag are tried, if installed. Every answer comes
with the trail of criteria that produced it.

Relators are letter strings (upper case is the inverse), tokens such as
"a^2*b^-1", integer lists such as "[1, 1, 2, -1]", or "<a, b | aabb>".`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logging.Sync()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", config.DefaultPath, "Configuration file")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	flags.BoolVar(&a.jsonOutput, "json", false, "Print machine-readable JSON")
	flags.BoolVar(&a.noExternal, "no-external", false, "Do not run GAP/walrus or kbmag")
	flags.BoolVar(&a.crossCheck, "cross-check", false, "Run every internal criterion and fail on disagreement")
	flags.BoolVar(&a.parallel, "parallel", false, "Evaluate the criteria of a tier concurrently")
	flags.BoolVar(&a.noMinimize, "no-minimize", false, "Skip Whitehead minimisation of the relator")
	flags.DurationVar(&a.gapTimeout, "gap-timeout", 0, "GAP/walrus timeout (default from config)")
	flags.DurationVar(&a.kbmagTimeout, "kbmag-timeout", 0, "kbmag timeout (default from config)")
	flags.StringSliceVar(&a.generators, "generators", nil, "Generator names for bare relators, e.g. x,y")
	flags.StringSliceVar(&a.skip, "skip", nil, "Criteria to leave out, e.g. walrus,kbmag")
	flags.StringVar(&a.dbPath, "db", "", "Result database (default from config)")

	rootCmd.AddCommand(
		a.certifyCmd(),
		a.batchCmd(),
		a.exportCmd(),
		a.serveCmd(),
		a.checkToolsCmd(),
	)
	return rootCmd
}

// setup loads the configuration, applies flag overrides and initialises
// logging.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if a.noExternal {
		cfg.Pipeline.ExternalTools = false
	}
	if a.crossCheck {
		cfg.Pipeline.CrossCheck = true
	}
	if a.parallel {
		cfg.Pipeline.Parallel = true
	}
	if a.noMinimize {
		cfg.Pipeline.Minimize = false
	}
	if flags.Changed("gap-timeout") {
		cfg.GAP.Timeout = a.gapTimeout.String()
	}
	if flags.Changed("kbmag-timeout") {
		cfg.KBMAG.Timeout = a.kbmagTimeout.String()
	}
	if a.dbPath != "" {
		cfg.Store.DatabasePath = a.dbPath
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := logging.Initialize(cfg.Logging.Level, cfg.Logging.JSON()); err != nil {
		return err
	}
	logging.BootDebug("configuration loaded from %s", a.configPath)
	a.cfg = cfg
	return nil
}

// adapters builds the external criteria from the configuration.
func (a *app) adapters() (*walrus.Walrus, *kbmag.KBMAG, error) {
	w, err := walrus.New(a.cfg.WalrusConfig(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("walrus: %w", err)
	}
	k, err := kbmag.New(a.cfg.KBMAGAdapterConfig(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("kbmag: %w", err)
	}
	return w, k, nil
}

// criteria returns the built-in criteria followed by the external adapters,
// minus the skipped ones.
func (a *app) criteria() ([]certify.Criterion, error) {
	w, k, err := a.adapters()
	if err != nil {
		return nil, err
	}
	r := criteria.DefaultRegistry()
	for _, c := range []certify.Criterion{w, k} {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r.Without(a.skip...)
}

func (a *app) pipeline() (*certify.Pipeline, error) {
	cs, err := a.criteria()
	if err != nil {
		return nil, err
	}
	return certify.New(cs, a.cfg.PipelineOptions()), nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, strings.TrimSpace(err.Error()))
		os.Exit(1)
	}
}
