package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maauso/mediadesk/internal/apperr"
	"github.com/maauso/mediadesk/internal/download"
	"github.com/maauso/mediadesk/internal/job"
	"github.com/maauso/mediadesk/internal/media"
	"github.com/maauso/mediadesk/internal/text"
)

func (a *app) combineCmd() *cobra.Command {
	var (
		output  string
		gapMs   int
		bitrate string
		publish bool
	)

	cmd := &cobra.Command{
		Use:   "combine CLIP [CLIP...]",
		Short: "Join audio clips into one MP3 with silence between them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := a.cfg.CombineOpts()
			if cmd.Flags().Changed("gap-ms") {
				opts.GapMs = gapMs
			}
			if bitrate != "" {
				opts.Bitrate = bitrate
			}
			if output == "" {
				output = filepath.Join(a.cfg.OutputDir, "combined.mp3")
			}

			_, err := a.execute(cmd, "Combining audio", job.Input{
				Kind:    job.KindCombine,
				Combine: &job.CombineInput{Clips: args, Output: output, Opts: opts},
				Publish: publish,
			})
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output MP3 file (default $OUTPUT_DIR/combined.mp3)")
	cmd.Flags().IntVar(&gapMs, "gap-ms", 0, "silence between clips in milliseconds (default $GAP_MS)")
	cmd.Flags().StringVar(&bitrate, "bitrate", "", "MP3 bitrate, e.g. 192k (default $AUDIO_BITRATE)")
	cmd.Flags().BoolVar(&publish, "publish", false, "upload the result to the configured bucket")
	return cmd
}

func (a *app) chunkCmd() *cobra.Command {
	var (
		maxLength  string
		terminator string
		persist    bool
		dir        string
		base       string
		printOut   bool
	)

	cmd := &cobra.Command{
		Use:   "chunk [FILE]",
		Short: "Split text into chunks at sentence boundaries",
		Long: "Split text read from FILE, or stdin when FILE is omitted or \"-\", into chunks " +
			"of at most --max-length characters. Cuts prefer the terminator, then whitespace.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := "-"
			if len(args) == 1 {
				src = args[0]
			}
			input, err := readText(cmd.InOrStdin(), src)
			if err != nil {
				return err
			}

			cfg := a.cfg.ChunkConfig()
			if maxLength != "" {
				cfg.MaxLength = text.ParseMaxLength(maxLength)
			}
			if terminator != "" {
				r := []rune(terminator)
				if len(r) != 1 {
					return apperr.New(apperr.KindInvalidInput, "chunk", terminator, "terminator must be a single character", nil)
				}
				cfg.Terminator = r[0]
			}
			if dir == "" {
				dir = a.cfg.OutputDir
			}

			res, err := a.execute(cmd, "Chunking text", job.Input{
				Kind: job.KindChunk,
				Chunk: &job.ChunkInput{
					Text:    input,
					Config:  cfg,
					Persist: persist,
					Dir:     dir,
					Base:    base,
				},
			})
			if err != nil {
				return err
			}

			if printOut {
				out := cmd.OutOrStdout()
				for i, c := range res.Chunks {
					if i > 0 {
						fmt.Fprintln(out)
					}
					fmt.Fprintln(out, c)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&maxLength, "max-length", "m", "", "maximum chunk length in characters (default $CHUNK_MAX_LENGTH, minimum 100)")
	cmd.Flags().StringVar(&terminator, "terminator", "", `preferred cut character (default ".")`)
	cmd.Flags().BoolVar(&persist, "persist", true, "write the original and each chunk to files")
	cmd.Flags().StringVar(&dir, "dir", "", "directory for persisted files (default $OUTPUT_DIR)")
	cmd.Flags().StringVar(&base, "base", text.DefaultBaseName, "file name prefix for persisted files")
	cmd.Flags().BoolVar(&printOut, "print", false, "print the chunks to stdout, separated by blank lines")
	return cmd
}

func (a *app) downloadCmd() *cobra.Command {
	var (
		format    string
		quality   string
		outputDir string
		publish   bool
		info      bool
	)

	cmd := &cobra.Command{
		Use:   "download URL",
		Short: "Download the audio track of a YouTube video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if info {
				return a.printInfo(cmd, args[0])
			}

			opts := a.cfg.DownloadOpts()
			if format != "" {
				opts.Format = strings.ToLower(format)
			}
			if quality != "" {
				opts.Quality = strings.ToLower(quality)
			}
			if outputDir == "" {
				outputDir = a.cfg.OutputDir
			}

			_, err := a.execute(cmd, "Downloading audio", job.Input{
				Kind:     job.KindDownload,
				Download: &job.DownloadInput{URL: args[0], OutputDir: outputDir, Opts: opts},
				Publish:  publish,
			})
			return err
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "",
		"audio format: "+strings.Join(download.Formats, ", ")+" (default $AUDIO_FORMAT)")
	cmd.Flags().StringVarP(&quality, "quality", "q", "",
		"audio quality: "+strings.Join(download.Qualities, ", ")+" (default $AUDIO_QUALITY)")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "directory for the downloaded file (default $OUTPUT_DIR)")
	cmd.Flags().BoolVar(&publish, "publish", false, "upload the result to the configured bucket")
	cmd.Flags().BoolVar(&info, "info", false, "print the video metadata as JSON instead of downloading")
	return cmd
}

func (a *app) printInfo(cmd *cobra.Command, url string) error {
	info, err := a.deps.Service.Inspect(cmd.Context(), url)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		ID         string  `json:"id"`
		Title      string  `json:"title"`
		Duration   float64 `json:"duration"`
		Uploader   string  `json:"uploader,omitempty"`
		ViewCount  int64   `json:"view_count,omitempty"`
		UploadDate string  `json:"upload_date,omitempty"`
		HasAudio   bool    `json:"has_audio"`
	}{info.ID, info.Title, info.Duration, info.Uploader, info.ViewCount, info.UploadDate, info.HasAudio()})
}

func (a *app) gifCmd() *cobra.Command {
	var (
		resolution string
		fps        int
		outputDir  string
		publish    bool
	)

	cmd := &cobra.Command{
		Use:   "gif VIDEO",
		Short: "Convert a video clip into an animated GIF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := a.cfg.GIFOpts()
			if resolution != "" {
				opts.Resolution = resolution
			}
			if cmd.Flags().Changed("fps") {
				opts.FPS = fps
			}
			if outputDir == "" {
				outputDir = a.cfg.OutputDir
			}

			_, err := a.execute(cmd, "Converting to GIF", job.Input{
				Kind:    job.KindGIF,
				GIF:     &job.GIFInput{Input: args[0], OutputDir: outputDir, Opts: opts},
				Publish: publish,
			})
			return err
		},
	}

	cmd.Flags().StringVarP(&resolution, "resolution", "r", "",
		"output size: "+strings.Join(media.ResolutionNames(), ", ")+" (default $GIF_RESOLUTION)")
	cmd.Flags().IntVar(&fps, "fps", 0, fmt.Sprintf("frame rate, %d-%d (default $GIF_FPS)", media.MinFPS, media.MaxFPS))
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "directory for the GIF (default $OUTPUT_DIR)")
	cmd.Flags().BoolVar(&publish, "publish", false, "upload the result to the configured bucket")
	return cmd
}

// readText reads src, or r when src is "-".
func readText(r io.Reader, src string) (string, error) {
	var (
		data []byte
		err  error
	)
	if src == "-" {
		data, err = io.ReadAll(r)
	} else {
		data, err = os.ReadFile(src) // #nosec G304 - path given by the user on the command line
	}
	if err != nil {
		kind := apperr.KindInvalidInput
		if os.IsPermission(err) {
			kind = apperr.KindPermission
		}
		return "", apperr.New(kind, "chunk", src, "cannot read text", err)
	}
	return string(data), nil
}
