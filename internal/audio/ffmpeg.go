package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/maauso/mediadesk/internal/apperr"
	"github.com/maauso/mediadesk/internal/progress"
)

const opCombine = "combine"

// stderrTail is how much of ffmpeg's stderr is kept for error messages.
const stderrTail = 4096

// maxProbeConcurrency bounds the number of ffmpeg probes run at once.
const maxProbeConcurrency = 4

// FFmpegCombiner implements Combiner using the ffmpeg CLI.
type FFmpegCombiner struct {
	ffmpegPath string
}

// NewFFmpegCombiner creates a new FFmpegCombiner.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
func NewFFmpegCombiner(ffmpegPath string) *FFmpegCombiner {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegCombiner{ffmpegPath: ffmpegPath}
}

// Combine implements Combiner.Combine with a single ffmpeg filter graph:
// every clip is resampled to a common format, all but the last are padded
// with silence, and the results are concatenated and encoded to MP3.
func (c *FFmpegCombiner) Combine(ctx context.Context, clips []string, output string, opts CombineOpts, report progress.Func) error {
	opts = opts.withDefaults()
	if err := validateCombine(clips, output, opts); err != nil {
		return err
	}

	report.Report(progress.Update{Stage: progress.StageProbing, Total: len(clips), Percent: 0})

	durations, err := c.probeDurations(ctx, clips)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(output), 0750); err != nil {
		return apperr.New(apperr.KindPermission, opCombine, output, "cannot create output directory", err)
	}

	bounds := clipBoundaries(durations, opts.GapMs)
	total := bounds[len(bounds)-1]
	args := buildCombineArgs(clips, output, opts)

	err = c.run(ctx, args, func(line string) {
		t, ok := progress.ParseFFmpegTime(line)
		if !ok {
			return
		}
		report.Report(progress.Update{
			Stage:   progress.StageCombining,
			File:    filepath.Base(output),
			Current: clipsCompleted(bounds, t),
			Total:   len(clips),
			Percent: progress.Percent(t, total),
		})
	})
	if err != nil {
		return err
	}

	if _, err := os.Stat(output); err != nil {
		return apperr.New(apperr.KindConversion, opCombine, output, "output file was not created", err)
	}

	report.Report(progress.Update{
		Stage:   progress.StageFinished,
		File:    filepath.Base(output),
		Current: len(clips),
		Total:   len(clips),
		Percent: 100,
	})
	return nil
}

func validateCombine(clips []string, output string, opts CombineOpts) error {
	if len(clips) == 0 {
		return apperr.New(apperr.KindInvalidInput, opCombine, "", "no clips provided", nil)
	}
	if opts.GapMs < 0 {
		return apperr.New(apperr.KindInvalidInput, opCombine, "", fmt.Sprintf("gap must not be negative: %d ms", opts.GapMs), nil)
	}
	if output == "" {
		return apperr.New(apperr.KindOutput, opCombine, "", "output path cannot be empty", nil)
	}
	if !strings.EqualFold(filepath.Ext(output), ".mp3") {
		return apperr.New(apperr.KindOutput, opCombine, output, "output file name must end in .mp3", nil)
	}
	for _, clip := range clips {
		info, err := os.Stat(clip)
		if err != nil {
			if os.IsPermission(err) {
				return apperr.New(apperr.KindPermission, opCombine, clip, "no read permission for clip", err)
			}
			return apperr.New(apperr.KindInvalidInput, opCombine, clip, "clip does not exist", err)
		}
		if !info.Mode().IsRegular() {
			return apperr.New(apperr.KindInvalidInput, opCombine, clip, "clip is not a file", nil)
		}
	}
	return nil
}

// probeDurations reads the duration of every clip, a few at a time.
func (c *FFmpegCombiner) probeDurations(ctx context.Context, clips []string) ([]float64, error) {
	durations := make([]float64, len(clips))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxProbeConcurrency)
	for i, clip := range clips {
		i, clip := i, clip
		g.Go(func() error {
			d, err := c.getAudioDuration(gctx, clip)
			if err != nil {
				return err
			}
			durations[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return durations, nil
}

// getAudioDuration returns the duration of an audio file in seconds.
func (c *FFmpegCombiner) getAudioDuration(ctx context.Context, inputPath string) (float64, error) {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, c.ffmpegPath, "-hide_banner", "-nostdin", "-i", inputPath)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	// ffmpeg exits non-zero without an output file but still prints the header
	runErr := cmd.Run()
	if isNotFound(runErr) {
		return 0, apperr.New(apperr.KindToolMissing, opCombine, c.ffmpegPath, "ffmpeg is not available", runErr)
	}
	if ctx.Err() != nil {
		return 0, fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
	}

	d, err := parseDuration(stderr.String())
	if err != nil {
		return 0, apperr.New(apperr.KindInvalidInput, opCombine, inputPath, "cannot read audio clip", err)
	}
	return d, nil
}

var durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+)\.(\d+)`)

// parseDuration extracts "Duration: HH:MM:SS.ms" from ffmpeg's input banner.
func parseDuration(output string) (float64, error) {
	matches := durationRe.FindStringSubmatch(output)
	if len(matches) < 5 {
		return 0, errors.New("could not parse duration from ffmpeg output")
	}

	hours, _ := strconv.ParseFloat(matches[1], 64)
	minutes, _ := strconv.ParseFloat(matches[2], 64)
	seconds, _ := strconv.ParseFloat(matches[3], 64)
	frac, _ := strconv.ParseFloat(matches[4], 64)

	// Fractional part precision varies between builds
	divisor := 1.0
	for i := 0; i < len(matches[4]); i++ {
		divisor *= 10
	}

	return hours*3600 + minutes*60 + seconds + frac/divisor, nil
}

// clipBoundaries returns the output timestamp at which each clip (including
// its trailing gap) ends. The last element is the total output duration.
func clipBoundaries(durations []float64, gapMs int) []float64 {
	gap := float64(gapMs) / 1000
	bounds := make([]float64, len(durations))
	var t float64
	for i, d := range durations {
		t += d
		if i < len(durations)-1 {
			t += gap
		}
		bounds[i] = t
	}
	return bounds
}

// clipsCompleted counts the clips whose end lies at or before t.
func clipsCompleted(bounds []float64, t float64) int {
	n := 0
	for _, b := range bounds {
		if t+0.001 < b {
			break
		}
		n++
	}
	return n
}

// buildCombineFilter builds the filter_complex graph joining n inputs.
func buildCombineFilter(n int, opts CombineOpts) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "[%d:a]aresample=%d,aformat=sample_fmts=fltp:channel_layouts=stereo", i, opts.SampleRate)
		if i < n-1 && opts.GapMs > 0 {
			fmt.Fprintf(&b, ",apad=pad_dur=%.3f", float64(opts.GapMs)/1000)
		}
		fmt.Fprintf(&b, "[a%d];", i)
	}
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "[a%d]", i)
	}
	fmt.Fprintf(&b, "concat=n=%d:v=0:a=1[out]", n)
	return b.String()
}

func buildCombineArgs(clips []string, output string, opts CombineOpts) []string {
	args := []string{"-y", "-hide_banner", "-nostdin"}
	for _, clip := range clips {
		args = append(args, "-i", clip)
	}
	args = append(args,
		"-filter_complex", buildCombineFilter(len(clips), opts),
		"-map", "[out]",
		"-c:a", "libmp3lame",
		"-b:a", opts.Bitrate,
		output,
	)
	return args
}

// run executes ffmpeg, feeding each stderr line to onLine.
func (c *FFmpegCombiner) run(ctx context.Context, args []string, onLine func(string)) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		if isNotFound(err) {
			return apperr.New(apperr.KindToolMissing, opCombine, c.ffmpegPath, "ffmpeg is not available", err)
		}
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	stderr := progress.NewTailBuffer(stderrTail)
	_ = progress.ScanLines(io.TeeReader(stderrPipe, stderr), onLine)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return apperr.New(apperr.KindConversion, opCombine, "", "ffmpeg failed",
			fmt.Errorf("%w, stderr: %s", err, stderr.String()))
	}
	return nil
}

// isNotFound reports whether err means the executable itself is missing.
func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}

// Verify interface implementation at compile time.
var _ Combiner = (*FFmpegCombiner)(nil)
