// Package media provides video processing capabilities.
package media

import (
	"context"
	"sort"

	"github.com/maauso/mediadesk/internal/progress"
)

// ResolutionOriginal keeps the source width.
const ResolutionOriginal = "Original"

// Resolutions maps a resolution name to the output width in pixels.
// The height follows from the source aspect ratio.
var Resolutions = map[string]int{
	"240p":             320,
	"360p":             480,
	"480p":             640,
	"720p":             1280,
	ResolutionOriginal: 0,
}

// FPS bounds accepted by ConvertToGIF.
const (
	MinFPS = 1
	MaxFPS = 50
)

// GIFOpts configures a video to GIF conversion.
type GIFOpts struct {
	// Resolution is a key of Resolutions. Default: "480p".
	Resolution string
	// FPS is the output frame rate. Default: 10.
	FPS int
}

// DefaultGIFOpts returns the default conversion options.
func DefaultGIFOpts() GIFOpts {
	return GIFOpts{Resolution: "480p", FPS: 10}
}

func (o GIFOpts) withDefaults() GIFOpts {
	def := DefaultGIFOpts()
	if o.Resolution == "" {
		o.Resolution = def.Resolution
	}
	if o.FPS == 0 {
		o.FPS = def.FPS
	}
	return o
}

// ResolutionNames returns the accepted resolution names in ascending width,
// with ResolutionOriginal last.
func ResolutionNames() []string {
	names := make([]string, 0, len(Resolutions))
	for name := range Resolutions {
		if name != ResolutionOriginal {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool { return Resolutions[names[i]] < Resolutions[names[j]] })
	return append(names, ResolutionOriginal)
}

// Converter turns video files into animated GIFs.
type Converter interface {
	// ConvertToGIF converts input into <outputDir>/<stem>.gif and returns
	// the path of the written file. outputDir is created if needed.
	ConvertToGIF(ctx context.Context, input, outputDir string, opts GIFOpts, report progress.Func) (string, error)

	// CheckAvailable returns an error if the ffmpeg binary cannot be run.
	CheckAvailable(ctx context.Context) error
}
