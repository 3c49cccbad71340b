// Package audio provides interfaces and implementations for audio processing.
package audio

import (
	"context"

	"github.com/maauso/mediadesk/internal/progress"
)

// CombineOpts configures how clips are joined.
type CombineOpts struct {
	// GapMs is the silence inserted between consecutive clips, in milliseconds.
	// Default: 1000.
	GapMs int

	// Bitrate is the MP3 bitrate of the combined output.
	// Default: "192k".
	Bitrate string

	// SampleRate every clip is resampled to before joining.
	// Default: 44100.
	SampleRate int
}

// DefaultCombineOpts returns the default options for combining clips.
func DefaultCombineOpts() CombineOpts {
	return CombineOpts{
		GapMs:      1000,
		Bitrate:    "192k",
		SampleRate: 44100,
	}
}

func (o CombineOpts) withDefaults() CombineOpts {
	def := DefaultCombineOpts()
	if o.Bitrate == "" {
		o.Bitrate = def.Bitrate
	}
	if o.SampleRate <= 0 {
		o.SampleRate = def.SampleRate
	}
	return o
}

// Combiner joins audio clips into a single file.
type Combiner interface {
	// Combine concatenates clips in order, separated by opts.GapMs of
	// silence, and writes the result to output. The output directory is
	// created if needed. Progress is reported per clip.
	Combine(ctx context.Context, clips []string, output string, opts CombineOpts, report progress.Func) error
}
