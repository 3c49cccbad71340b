package tui

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/maauso/mediadesk/internal/job"
	"github.com/maauso/mediadesk/internal/progress"
)

// Task is the blocking operation shown by Run.
type Task func(ctx context.Context, report progress.Func) (*job.Result, error)

type runOptions struct {
	in  io.Reader
	out io.Writer
}

// Option configures Run.
type Option func(*runOptions)

// WithInput reads key presses from r. Nil disables input.
func WithInput(r io.Reader) Option {
	return func(o *runOptions) {
		o.in = r
	}
}

// WithOutput renders to w instead of stdout.
func WithOutput(w io.Writer) Option {
	return func(o *runOptions) {
		o.out = w
	}
}

// Run executes task on a background goroutine while rendering its
// progress. It returns once the task has finished or the user pressed
// ctrl+c, whichever comes first.
func Run(ctx context.Context, title string, task Task, opts ...Option) (*job.Result, error) {
	o := runOptions{in: os.Stdin, out: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	p := tea.NewProgram(NewModel(title),
		tea.WithContext(ctx),
		tea.WithInput(o.in),
		tea.WithOutput(o.out),
	)

	go func() {
		res, err := task(ctx, func(u progress.Update) {
			p.Send(progressMsg(u))
		})
		p.Send(doneMsg{result: res, err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("run terminal ui: %w", err)
	}
	return final.(Model).Result()
}

// RunPlain executes task on the calling goroutine and logs progress
// instead of drawing it. Percentages are logged in steps of 10.
func RunPlain(ctx context.Context, title string, task Task, logger *slog.Logger) (*job.Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info(title)

	lastStage := ""
	lastStep := -1
	report := func(u progress.Update) {
		step := -1
		if u.Percent >= 0 {
			step = int(math.Floor(u.Percent / 10))
		}
		if u.Stage == lastStage && step == lastStep {
			return
		}
		lastStage, lastStep = u.Stage, step

		attrs := []any{slog.String("stage", u.Stage)}
		if u.Percent >= 0 {
			attrs = append(attrs, slog.Int("percent", int(math.Round(u.Percent))))
		}
		if u.Total > 0 {
			attrs = append(attrs, slog.Int("current", u.Current), slog.Int("total", u.Total))
		}
		if u.Message != "" {
			attrs = append(attrs, slog.String("message", u.Message))
		}
		logger.Info("progress", attrs...)
	}

	return task(ctx, report)
}

// Interactive reports whether f is a terminal suitable for the animated UI.
func Interactive(f *os.File) bool {
	fd := f.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	term := os.Getenv("TERM")
	return term != "" && term != "dumb"
}
