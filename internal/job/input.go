package job

import (
	"fmt"

	"github.com/maauso/mediadesk/internal/apperr"
	"github.com/maauso/mediadesk/internal/audio"
	"github.com/maauso/mediadesk/internal/download"
	"github.com/maauso/mediadesk/internal/media"
	"github.com/maauso/mediadesk/internal/text"
)

// CombineInput joins Clips into Output.
type CombineInput struct {
	Clips  []string
	Output string
	Opts   audio.CombineOpts
}

// ChunkInput splits Text. When Persist is set the original and the chunks
// are written to Dir using Base as the file name prefix.
type ChunkInput struct {
	Text    string
	Config  text.Config
	Persist bool
	Dir     string
	Base    string
}

// DownloadInput fetches the audio of URL into OutputDir.
type DownloadInput struct {
	URL       string
	OutputDir string
	Opts      download.Options
}

// GIFInput converts Input into a GIF inside OutputDir.
type GIFInput struct {
	Input     string
	OutputDir string
	Opts      media.GIFOpts
}

// Input describes one unit of work. Exactly the field matching Kind is set.
type Input struct {
	Kind     Kind
	Combine  *CombineInput
	Chunk    *ChunkInput
	Download *DownloadInput
	GIF      *GIFInput

	// Publish uploads the outputs after success.
	Publish bool
	// TempPaths are scratch files owned by the job, removed when it ends.
	TempPaths []string
}

// Validate checks that the payload matches the kind.
func (in Input) Validate() error {
	set := 0
	for _, present := range []bool{in.Combine != nil, in.Chunk != nil, in.Download != nil, in.GIF != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return apperr.New(apperr.KindInvalidInput, "submit", string(in.Kind),
			fmt.Sprintf("expected exactly one payload, got %d", set), nil)
	}

	var ok bool
	switch in.Kind {
	case KindCombine:
		ok = in.Combine != nil
	case KindChunk:
		ok = in.Chunk != nil
	case KindDownload:
		ok = in.Download != nil
	case KindGIF:
		ok = in.GIF != nil
	default:
		return apperr.New(apperr.KindInvalidInput, "submit", string(in.Kind), "unknown job kind", nil)
	}
	if !ok {
		return apperr.New(apperr.KindInvalidInput, "submit", string(in.Kind), "payload does not match job kind", nil)
	}
	return nil
}

// Result is what a finished job produced.
type Result struct {
	// Outputs are local file paths.
	Outputs []string
	// Chunks are the text chunks of a chunk job.
	Chunks []string
	// URLs are the published copies of Outputs.
	URLs []string
}
