// Package download fetches the audio track of online videos.
package download

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/maauso/mediadesk/internal/apperr"
	"github.com/maauso/mediadesk/internal/progress"
)

// Formats lists the accepted audio formats.
var Formats = []string{"mp3", "wav", "flac", "aac", "m4a", "ogg"}

// Qualities lists the accepted audio qualities, in kbit/s or "best".
var Qualities = []string{"best", "320", "256", "192", "128", "96", "64"}

// Options selects the format and quality of a download.
type Options struct {
	Format  string
	Quality string
}

// DefaultOptions returns mp3 at 192 kbit/s.
func DefaultOptions() Options {
	return Options{Format: "mp3", Quality: "192"}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Format == "" {
		o.Format = def.Format
	}
	if o.Quality == "" {
		o.Quality = def.Quality
	}
	return o
}

// Validate reports a format error for an unknown format or quality.
func (o Options) Validate() error {
	o = o.withDefaults()
	if !contains(Formats, o.Format) {
		return apperr.New(apperr.KindFormat, opDownload, "",
			fmt.Sprintf("invalid audio format %q, valid options: %s", o.Format, strings.Join(Formats, ", ")), nil)
	}
	if !contains(Qualities, o.Quality) {
		return apperr.New(apperr.KindFormat, opDownload, "",
			fmt.Sprintf("invalid audio quality %q, valid options: %s", o.Quality, strings.Join(Qualities, ", ")), nil)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

var urlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?youtube\.com/watch\?v=([\w-]+)`),
	regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?youtube\.com/embed/([\w-]+)`),
	regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?youtube\.com/v/([\w-]+)`),
	regexp.MustCompile(`(?i)(?:https?://)?youtu\.be/([\w-]+)`),
	regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?youtube\.com/shorts/([\w-]+)`),
}

// ValidateURL returns an invalid_url error unless url looks like a YouTube
// video link.
func ValidateURL(url string) error {
	if strings.TrimSpace(url) == "" {
		return apperr.New(apperr.KindInvalidURL, opDownload, "", "URL cannot be empty", nil)
	}
	for _, re := range urlPatterns {
		if re.MatchString(url) {
			return nil
		}
	}
	return apperr.New(apperr.KindInvalidURL, opDownload, url, "invalid YouTube URL format", nil)
}

// VideoInfo is the metadata of a single video.
type VideoInfo struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Duration     float64       `json:"duration"`
	Uploader     string        `json:"uploader"`
	ViewCount    int64         `json:"view_count"`
	UploadDate   string        `json:"upload_date"`
	Description  string        `json:"description"`
	Availability string        `json:"availability"`
	LiveStatus   string        `json:"live_status"`
	Formats      []MediaFormat `json:"formats,omitempty"`
}

// MediaFormat is one stream variant offered for a video.
type MediaFormat struct {
	FormatID string `json:"format_id"`
	ACodec   string `json:"acodec"`
}

// HasAudio reports whether any format carries an audio codec.
func (v *VideoInfo) HasAudio() bool {
	for _, f := range v.Formats {
		if f.ACodec != "" && f.ACodec != "none" {
			return true
		}
	}
	return false
}

// Fetcher downloads audio from online videos.
type Fetcher interface {
	// FetchAudio downloads the audio of url into outputDir and returns the
	// path of the written file.
	FetchAudio(ctx context.Context, url, outputDir string, opts Options, report progress.Func) (string, error)

	// Info returns the metadata of url without downloading it.
	Info(ctx context.Context, url string) (*VideoInfo, error)
}
