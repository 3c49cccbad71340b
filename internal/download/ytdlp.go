package download

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/maauso/mediadesk/internal/apperr"
	"github.com/maauso/mediadesk/internal/progress"
)

const (
	opDownload = "download"
	opInfo     = "info"

	connectivityHost = "www.youtube.com"

	defaultInfoRetries = 3
)

// DefaultBackoff is the initial wait before a metadata request is retried.
const DefaultBackoff = 500 * time.Millisecond

// YTDLPFetcher implements Fetcher using the yt-dlp CLI.
type YTDLPFetcher struct {
	ytdlpPath  string
	ffmpegPath string
	lookupHost func(ctx context.Context, host string) ([]string, error)
	retries    uint64
	backoff    time.Duration
}

// Option configures a YTDLPFetcher.
type Option func(*YTDLPFetcher)

// WithFFmpegPath sets the ffmpeg binary yt-dlp uses to extract audio.
func WithFFmpegPath(path string) Option {
	return func(f *YTDLPFetcher) {
		f.ffmpegPath = path
	}
}

// WithLookupHost replaces the resolver used for the connectivity check.
func WithLookupHost(fn func(ctx context.Context, host string) ([]string, error)) Option {
	return func(f *YTDLPFetcher) {
		f.lookupHost = fn
	}
}

// WithRetry sets how often, and with which initial backoff, a metadata
// request failing with a network error is retried.
func WithRetry(retries uint64, backoff time.Duration) Option {
	return func(f *YTDLPFetcher) {
		f.retries = retries
		f.backoff = backoff
	}
}

// NewYTDLPFetcher creates a new YTDLPFetcher.
// If ytdlpPath is empty, it defaults to "yt-dlp" (found via PATH).
func NewYTDLPFetcher(ytdlpPath string, opts ...Option) *YTDLPFetcher {
	if ytdlpPath == "" {
		ytdlpPath = "yt-dlp"
	}
	f := &YTDLPFetcher{
		ytdlpPath:  ytdlpPath,
		lookupHost: net.DefaultResolver.LookupHost,
		retries:    defaultInfoRetries,
		backoff:    DefaultBackoff,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Info implements Fetcher.Info.
func (f *YTDLPFetcher) Info(ctx context.Context, url string) (*VideoInfo, error) {
	if err := ValidateURL(url); err != nil {
		return nil, err
	}
	if err := f.checkConnectivity(ctx); err != nil {
		return nil, err
	}
	info, err := f.fetchInfo(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := validateInfo(info, url); err != nil {
		return nil, err
	}
	return info, nil
}

// FetchAudio implements Fetcher.FetchAudio.
func (f *YTDLPFetcher) FetchAudio(ctx context.Context, url, outputDir string, opts Options, report progress.Func) (string, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return "", err
	}
	if err := ValidateURL(url); err != nil {
		return "", err
	}
	if err := ensureOutputDir(outputDir); err != nil {
		return "", err
	}

	report.Report(progress.Update{Stage: progress.StageProbing, Message: "checking video", Percent: -1})

	if err := f.checkConnectivity(ctx); err != nil {
		return "", err
	}
	info, err := f.fetchInfo(ctx, url)
	if err != nil {
		return "", err
	}
	if err := validateInfo(info, url); err != nil {
		return "", err
	}
	if !info.HasAudio() {
		return "", apperr.New(apperr.KindFormat, opDownload, url, "no audio streams available for this video", nil)
	}

	started := time.Now()
	var printed string

	args := f.downloadArgs(url, outputDir, opts)
	_, stderr, err := f.run(ctx, args, func(line string) {
		if pct, ok := parseDownloadPercent(line); ok {
			report.Report(progress.Update{
				Stage:   progress.StageDownloading,
				File:    info.Title,
				Percent: pct,
			})
			return
		}
		if strings.HasPrefix(line, "[ExtractAudio]") {
			report.Report(progress.Update{
				Stage:   progress.StageConverting,
				File:    info.Title,
				Message: "extracting audio",
				Percent: -1,
			})
			return
		}
		if !strings.HasPrefix(line, "[") {
			if p := strings.TrimSpace(line); p != "" {
				printed = p
			}
		}
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("yt-dlp cancelled: %w", ctx.Err())
		}
		if apperr.KindOf(err) == apperr.KindToolMissing {
			return "", err
		}
		return "", classifyError(opDownload, url, stderr, err)
	}

	output, err := resolveOutput(printed, outputDir, info.Title, opts.Format, started)
	if err != nil {
		return "", err
	}

	report.Report(progress.Update{Stage: progress.StageFinished, File: filepath.Base(output), Percent: 100})
	return output, nil
}

func (f *YTDLPFetcher) downloadArgs(url, outputDir string, opts Options) []string {
	args := []string{
		"-f", "bestaudio/best",
		"-x",
		"--audio-format", opts.Format,
		"--audio-quality", qualityArg(opts.Quality),
		"--no-playlist",
		"--socket-timeout", "30",
		"--retries", "3",
		"--newline",
		"--progress",
		"--print", "after_move:filepath",
		"-o", filepath.Join(outputDir, "%(title)s.%(ext)s"),
	}
	if f.ffmpegPath != "" {
		args = append(args, "--ffmpeg-location", f.ffmpegPath)
	}
	return append(args, url)
}

// qualityArg converts a quality name into yt-dlp's --audio-quality value.
func qualityArg(q string) string {
	if q == "best" {
		return "0"
	}
	return q + "K"
}

func (f *YTDLPFetcher) checkConnectivity(ctx context.Context) error {
	if _, err := f.lookupHost(ctx, connectivityHost); err != nil {
		return apperr.New(apperr.KindNetwork, opDownload, connectivityHost,
			"cannot connect to YouTube, check your internet connection", err)
	}
	return nil
}

// fetchInfo runs yt-dlp for metadata, retrying on network errors.
func (f *YTDLPFetcher) fetchInfo(ctx context.Context, url string) (*VideoInfo, error) {
	var info *VideoInfo
	backoff := retry.WithMaxRetries(f.retries, retry.NewExponential(f.backoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		got, err := f.runInfo(ctx, url)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindNetwork {
				return retry.RetryableError(err)
			}
			return err
		}
		info = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (f *YTDLPFetcher) runInfo(ctx context.Context, url string) (*VideoInfo, error) {
	args := []string{"--dump-single-json", "--no-playlist", "--skip-download", "--socket-timeout", "15", url}

	stdout, stderr, err := f.run(ctx, args, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("yt-dlp cancelled: %w", ctx.Err())
		}
		if apperr.KindOf(err) == apperr.KindToolMissing {
			return nil, err
		}
		return nil, classifyError(opInfo, url, stderr, err)
	}

	var info VideoInfo
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		return nil, apperr.New(apperr.KindUnavailable, opInfo, url, "video information could not be retrieved", err)
	}
	return &info, nil
}

// run executes yt-dlp and returns its stderr. With a nil onLine, stdout is
// returned whole; otherwise each stdout line is passed to onLine.
func (f *YTDLPFetcher) run(ctx context.Context, args []string, onLine func(string)) (stdout, stderr string, err error) {
	// #nosec G204 - ytdlpPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, f.ytdlpPath, args...)

	var errBuf bytes.Buffer
	cmd.Stderr = &errBuf

	if onLine == nil {
		var outBuf bytes.Buffer
		cmd.Stdout = &outBuf
		if err := cmd.Start(); err != nil {
			return "", "", f.startError(err)
		}
		err = cmd.Wait()
		return outBuf.String(), errBuf.String(), err
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", "", fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", "", f.startError(err)
	}

	_ = progress.ScanLines(stdoutPipe, onLine)

	err = cmd.Wait()
	return "", errBuf.String(), err
}

func (f *YTDLPFetcher) startError(err error) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return apperr.New(apperr.KindToolMissing, opDownload, f.ytdlpPath, "yt-dlp is not available", err)
	}
	return fmt.Errorf("start yt-dlp: %w", err)
}

// validateInfo rejects videos that cannot be downloaded anonymously.
func validateInfo(info *VideoInfo, url string) error {
	if info == nil {
		return apperr.New(apperr.KindUnavailable, opInfo, url, "video information could not be retrieved", nil)
	}
	switch info.Availability {
	case "private", "premium_only", "subscriber_only", "needs_auth":
		return apperr.New(apperr.KindUnavailable, opInfo, url, "video is not publicly available: "+info.Availability, nil)
	}
	if info.LiveStatus == "is_live" {
		return apperr.New(apperr.KindUnavailable, opInfo, url, "cannot download ongoing live streams", nil)
	}
	if info.Title == "[Deleted video]" {
		return apperr.New(apperr.KindUnavailable, opInfo, url, "video has been deleted", nil)
	}
	return nil
}

var (
	unavailableKeywords = []string{"private", "unavailable", "removed", "deleted", "sign in", "login", "geo", "country"}
	networkKeywords     = []string{"network", "connection", "timeout", "timed out", "unreachable", "resolve", "name resolution"}
	formatKeywords      = []string{"format", "codec", "no audio"}
)

// classifyError maps yt-dlp's stderr to an error kind.
func classifyError(op, url, stderr string, cause error) error {
	msg := strings.ToLower(stderr)
	detail := lastErrorLine(stderr)
	if detail != "" {
		cause = fmt.Errorf("%w: %s", cause, detail)
	}

	switch {
	case containsAny(msg, unavailableKeywords):
		return apperr.New(apperr.KindUnavailable, op, url, "video is unavailable", cause)
	case containsAny(msg, networkKeywords):
		return apperr.New(apperr.KindNetwork, op, url, "network error", cause)
	case containsAny(msg, formatKeywords):
		return apperr.New(apperr.KindFormat, op, url, "audio format not available", cause)
	default:
		return apperr.New(apperr.KindInternal, op, url, "download failed", cause)
	}
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// lastErrorLine returns the last "ERROR:" line of yt-dlp's stderr, or the
// last non-empty line.
func lastErrorLine(stderr string) string {
	var last string
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "ERROR:") {
			return line
		}
		last = line
	}
	return last
}

var downloadPercentRe = regexp.MustCompile(`^\[download\]\s+(\d+(?:\.\d+)?)%`)

// parseDownloadPercent extracts the percentage from a "[download]  42.0% of ..." line.
func parseDownloadPercent(line string) (float64, bool) {
	m := downloadPercentRe.FindStringSubmatch(strings.TrimSpace(line))
	if len(m) < 2 {
		return 0, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return progress.Percent(pct, 100), true
}

// extensions returns the file extensions yt-dlp may produce for format.
func extensions(format string) []string {
	switch format {
	case "aac":
		return []string{".aac", ".m4a"}
	case "ogg":
		return []string{".ogg", ".opus"}
	default:
		return []string{"." + format}
	}
}

// resolveOutput finds the downloaded file. yt-dlp prints the final path,
// but titles are sanitized on disk, so fall back to scanning outputDir.
func resolveOutput(printed, outputDir, title, format string, since time.Time) (string, error) {
	if printed != "" {
		if info, err := os.Stat(printed); err == nil && info.Mode().IsRegular() {
			return printed, nil
		}
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return "", apperr.New(apperr.KindOutput, opDownload, outputDir, "cannot read output directory", err)
	}

	// Files older than this download are leftovers, even when the title matches.
	exts := extensions(format)
	var newest, titled string
	var newestMod, titledMod time.Time
	for _, e := range entries {
		if e.IsDir() || !contains(exts, strings.ToLower(filepath.Ext(e.Name()))) {
			continue
		}
		fi, err := e.Info()
		if err != nil || fi.ModTime().Before(since.Add(-time.Second)) {
			continue
		}
		p := filepath.Join(outputDir, e.Name())
		if title != "" && strings.HasPrefix(e.Name(), title) && fi.ModTime().After(titledMod) {
			titled, titledMod = p, fi.ModTime()
		}
		if fi.ModTime().After(newestMod) {
			newest, newestMod = p, fi.ModTime()
		}
	}
	switch {
	case titled != "":
		return titled, nil
	case newest != "":
		return newest, nil
	}
	return "", apperr.New(apperr.KindOutput, opDownload, outputDir, "downloaded file not found", nil)
}

func ensureOutputDir(dir string) error {
	if dir == "" {
		return apperr.New(apperr.KindPermission, opDownload, "", "output path cannot be empty", nil)
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return apperr.New(apperr.KindPermission, opDownload, dir, "cannot create output directory", err)
	}
	probe, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		return apperr.New(apperr.KindPermission, opDownload, dir, "no write permission for output directory", err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}

// Verify interface implementation at compile time.
var _ Fetcher = (*YTDLPFetcher)(nil)
