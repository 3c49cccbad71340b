package media

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
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/maauso/mediadesk/internal/apperr"
	"github.com/maauso/mediadesk/internal/progress"
)

const opConvert = "convert"

// stderrTail is how much of ffmpeg's stderr is kept for error messages.
const stderrTail = 4096

// Static errors for media operations.
var (
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
	// ErrNotVideo is returned when a file's content is not a video container.
	ErrNotVideo = errors.New("content is not a video")
)

// videoExtensions lists the accepted input file extensions.
var videoExtensions = map[string]bool{
	".mp4": true,
	".avi": true,
	".mov": true,
	".mkv": true,
}

// FFmpegProcessor implements Converter using the ffmpeg CLI.
type FFmpegProcessor struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
}

// Option configures an FFmpegProcessor.
type Option func(*FFmpegProcessor)

// WithFFprobePath sets the ffprobe binary used for duration probes.
func WithFFprobePath(path string) Option {
	return func(p *FFmpegProcessor) {
		if path != "" {
			p.ffprobePath = path
		}
	}
}

// NewFFmpegProcessor creates a new FFmpegProcessor.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegProcessor(ffmpegPath string, opts ...Option) *FFmpegProcessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	p := &FFmpegProcessor{ffmpegPath: ffmpegPath, ffprobePath: "ffprobe"}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckAvailable runs "ffmpeg -version".
func (p *FFmpegProcessor) CheckAvailable(ctx context.Context) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, "-version")
	if out, err := cmd.CombinedOutput(); err != nil {
		return apperr.New(apperr.KindToolMissing, "check", p.ffmpegPath,
			"ffmpeg is not available, install ffmpeg to use media features",
			fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out))))
	}
	return nil
}

// ConvertToGIF converts a video file into an animated GIF scaled to the
// requested width.
func (p *FFmpegProcessor) ConvertToGIF(ctx context.Context, input, outputDir string, opts GIFOpts, report progress.Func) (string, error) {
	opts = opts.withDefaults()

	width, ok := Resolutions[opts.Resolution]
	if !ok {
		return "", apperr.New(apperr.KindInvalidInput, opConvert, "",
			fmt.Sprintf("invalid resolution %q, valid options: %s", opts.Resolution, strings.Join(ResolutionNames(), ", ")), nil)
	}
	if opts.FPS < MinFPS || opts.FPS > MaxFPS {
		return "", apperr.New(apperr.KindInvalidInput, opConvert, "",
			fmt.Sprintf("fps must be between %d and %d, got %d", MinFPS, MaxFPS, opts.FPS), nil)
	}
	if err := validateVideo(input); err != nil {
		return "", err
	}
	if err := ensureWritableDir(outputDir); err != nil {
		return "", err
	}

	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	output := filepath.Join(outputDir, stem+".gif")
	name := filepath.Base(input)

	report.Report(progress.Update{Stage: progress.StageProbing, File: name, Percent: -1})

	// Unknown duration only costs us a percentage
	duration, err := p.GetMediaDuration(ctx, input)
	if err != nil {
		duration = 0
	}

	args := buildGIFArgs(input, output, width, opts.FPS)
	err = p.runFFmpeg(ctx, args, func(line string) {
		t, ok := progress.ParseFFmpegTime(line)
		if !ok {
			return
		}
		report.Report(progress.Update{
			Stage:   progress.StageConverting,
			File:    name,
			Percent: progress.Percent(t, duration),
		})
	})
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(output); err != nil {
		return "", apperr.New(apperr.KindConversion, opConvert, output, "output file was not created", err)
	}

	report.Report(progress.Update{Stage: progress.StageFinished, File: name, Percent: 100})
	return output, nil
}

// buildGIFArgs builds the ffmpeg arguments for a GIF conversion.
// A width of 0 keeps the source size.
func buildGIFArgs(input, output string, width, fps int) []string {
	args := []string{
		"-y",        // Overwrite output file without asking
		"-i", input, // Input file
	}
	if width > 0 {
		// Height is derived from the aspect ratio
		args = append(args, "-vf", fmt.Sprintf("scale=%d:-1:flags=lanczos", width))
	}
	return append(args,
		"-r", strconv.Itoa(fps),
		"-f", "gif",
		output,
	)
}

// validateVideo checks that path names a readable video file.
func validateVideo(path string) error {
	if path == "" {
		return apperr.New(apperr.KindInvalidInput, opConvert, "", "input file path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsPermission(err) {
			return apperr.New(apperr.KindPermission, opConvert, path, "no read permission for input file", err)
		}
		return apperr.New(apperr.KindInvalidInput, opConvert, path, "input file does not exist", err)
	}
	if !info.Mode().IsRegular() {
		return apperr.New(apperr.KindInvalidInput, opConvert, path, "input path is not a file", nil)
	}
	if !videoExtensions[strings.ToLower(filepath.Ext(path))] {
		return apperr.New(apperr.KindInvalidInput, opConvert, path, "input file must be a video file (MP4, AVI, MOV, MKV)", nil)
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return apperr.New(apperr.KindPermission, opConvert, path, "no read permission for input file", err)
		}
		return apperr.New(apperr.KindInvalidInput, opConvert, path, "cannot read input file", err)
	}
	if !strings.HasPrefix(mtype.String(), "video/") {
		return apperr.New(apperr.KindInvalidInput, opConvert, path, "input file is not a video",
			fmt.Errorf("%w: detected %s", ErrNotVideo, mtype.String()))
	}
	return nil
}

// ensureWritableDir creates dir if needed and checks it accepts new files.
func ensureWritableDir(dir string) error {
	if dir == "" {
		return apperr.New(apperr.KindOutput, opConvert, "", "output directory path cannot be empty", nil)
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return apperr.New(apperr.KindPermission, opConvert, dir, "cannot create output directory", err)
	}
	f, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		return apperr.New(apperr.KindPermission, opConvert, dir, "no write permission for output directory", err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return nil
}

// runFFmpeg executes ffmpeg with the given arguments, passing every stderr
// line to onLine. On failure the error wraps an FFmpegError carrying stderr.
func (p *FFmpegProcessor) runFFmpeg(ctx context.Context, args []string, onLine func(string)) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return apperr.New(apperr.KindToolMissing, opConvert, p.ffmpegPath, "ffmpeg is not available", err)
		}
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	stderr := progress.NewTailBuffer(stderrTail)
	_ = progress.ScanLines(io.TeeReader(stderrPipe, stderr), onLine)

	if err := cmd.Wait(); err != nil {
		// Check if context was cancelled
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return apperr.New(apperr.KindConversion, opConvert, "", "ffmpeg conversion failed", &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		})
	}

	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// GetMediaDuration returns the duration in seconds of a media file.
// It uses ffprobe to extract the duration metadata.
func (p *FFmpegProcessor) GetMediaDuration(ctx context.Context, path string) (float64, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return 0, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	var duration float64
	_, err = fmt.Sscanf(strings.TrimSpace(stdout.String()), "%f", &duration)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}

	return duration, nil
}

// Verify interface implementation at compile time.
var _ Converter = (*FFmpegProcessor)(nil)
