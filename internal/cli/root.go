// Package cli wires the mediadesk commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/maauso/mediadesk/internal/bootstrap"
	"github.com/maauso/mediadesk/internal/config"
	"github.com/maauso/mediadesk/internal/job"
	"github.com/maauso/mediadesk/internal/progress"
	"github.com/maauso/mediadesk/internal/tui"
)

// app is the state shared by every subcommand once configuration is loaded.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	deps   *bootstrap.Dependencies

	plain     bool
	logLevel  string
	logFormat string

	// interactive decides whether the animated display is used.
	interactive func(cmd *cobra.Command) bool
}

// NewRootCmd creates the mediadesk command tree.
func NewRootCmd() *cobra.Command {
	a := &app{interactive: stdoutIsTerminal}

	root := &cobra.Command{
		Use:           "mediadesk",
		Short:         "Combine audio, chunk text, download audio and make GIFs",
		Long:          "mediadesk runs small media and text jobs from the terminal or as a local HTTP API.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.BoolVar(&a.plain, "plain", false, "log progress lines instead of the interactive display")
	flags.StringVar(&a.logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "", "override LOG_FORMAT (json, text, pretty)")

	root.AddCommand(
		a.combineCmd(),
		a.chunkCmd(),
		a.downloadCmd(),
		a.gifCmd(),
		a.serveCmd(),
	)

	return root
}

// Execute runs the command tree with os.Args and returns the exit code.
func Execute(ctx context.Context) int {
	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFormat != "" {
		cfg.LogFormat = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = cfg.NewLogger(cmd.ErrOrStderr())
	slog.SetDefault(a.logger)

	deps, err := bootstrap.NewDependencies(cmd.Context(), cfg, a.logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	a.deps = deps
	return nil
}

// execute runs input synchronously, drawing progress when attached to a
// terminal and logging it otherwise.
func (a *app) execute(cmd *cobra.Command, title string, input job.Input) (*job.Result, error) {
	task := func(ctx context.Context, report progress.Func) (*job.Result, error) {
		return a.deps.Service.Run(ctx, input, report)
	}

	if !a.plain && a.interactive(cmd) {
		return tui.Run(cmd.Context(), title, task, tui.WithOutput(cmd.OutOrStdout()))
	}

	res, err := tui.RunPlain(cmd.Context(), title, task, a.logger)
	if err != nil {
		return nil, err
	}
	printSummary(cmd.OutOrStdout(), res)
	return res, nil
}

func printSummary(w io.Writer, res *job.Result) {
	for _, out := range res.Outputs {
		fmt.Fprintln(w, out)
	}
	for _, u := range res.URLs {
		fmt.Fprintln(w, u)
	}
}

func stdoutIsTerminal(cmd *cobra.Command) bool {
	f, ok := cmd.OutOrStdout().(*os.File)
	return ok && tui.Interactive(f)
}
