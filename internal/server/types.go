// Package server provides the HTTP API for mediadesk.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"bytes"
	"encoding/json"
	"time"
)

// FileUpload is a base64 encoded file sent inline with a request.
type FileUpload struct {
	// Name is the original file name. Its extension is kept on disk.
	Name string `json:"name" validate:"required,max=255"`
	// DataBase64 is the base64 encoded file content.
	DataBase64 string `json:"data_base64" validate:"required,base64"`
}

// CombineRequest is the HTTP request body for joining audio clips.
type CombineRequest struct {
	// Clips are joined in the given order.
	Clips []FileUpload `json:"clips" validate:"required,min=1,dive"`
	// OutputName is the file name of the result inside the output directory.
	OutputName string `json:"output_name" validate:"omitempty,endswith=.mp3,excludesall=/\\"`
	// GapMs is the silence between clips. Nil uses the server default.
	GapMs *int `json:"gap_ms" validate:"omitempty,min=0,max=60000"`
	// Bitrate of the MP3 output, e.g. "192k".
	Bitrate string `json:"bitrate" validate:"omitempty,endswith=k"`
	// Publish uploads the result after success.
	Publish bool `json:"publish"`
}

// ChunkRequest is the HTTP request body for splitting text.
type ChunkRequest struct {
	// Text may be empty or blank, which yields no chunks.
	Text string `json:"text"`
	// MaxLength is the raw user value. Malformed or small values are normalised.
	MaxLength MaxLength `json:"max_length"`
	// Terminator is a single character. Default ".".
	Terminator string `json:"terminator" validate:"omitempty,len=1"`
	// Persist writes the original and the chunks to the output directory.
	Persist bool `json:"persist"`
	// BaseName prefixes the persisted file names. Default "story".
	BaseName string `json:"base_name" validate:"omitempty,max=100,excludesall=/\\"`
}

// MaxLength is a chunk length limit sent as a JSON number or string.
// Its text is normalised by text.ParseMaxLength, so any value is accepted.
type MaxLength string

// UnmarshalJSON implements json.Unmarshaler.
func (m *MaxLength) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	switch {
	case bytes.Equal(raw, []byte("null")):
		*m = ""
	case len(raw) > 0 && raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*m = MaxLength(s)
	default:
		*m = MaxLength(raw)
	}
	return nil
}

// ChunkResponse is the HTTP response for a chunk request.
type ChunkResponse struct {
	Count  int      `json:"count"`
	Chunks []string `json:"chunks"`
	// Files are the persisted paths, original first.
	Files []string `json:"files,omitempty"`
}

// DownloadRequest is the HTTP request body for fetching audio from a video URL.
type DownloadRequest struct {
	URL     string `json:"url" validate:"required,url"`
	Format  string `json:"format" validate:"omitempty,oneof=mp3 wav flac aac m4a ogg"`
	Quality string `json:"quality" validate:"omitempty,oneof=best 320 256 192 128 96 64"`
	Publish bool   `json:"publish"`
}

// GIFRequest is the HTTP request body for converting a video to a GIF.
type GIFRequest struct {
	Video      FileUpload `json:"video"`
	Resolution string     `json:"resolution" validate:"omitempty,oneof=240p 360p 480p 720p Original"`
	FPS        int        `json:"fps" validate:"omitempty,min=1,max=50"`
	Publish    bool       `json:"publish"`
}

// SubmitResponse is the HTTP response after submitting a job.
type SubmitResponse struct {
	// ID is the unique identifier for the created job.
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Status string `json:"status"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Stage    string `json:"stage,omitempty"`
	Message  string `json:"message,omitempty"`
	// Outputs are local paths on the server.
	Outputs []string `json:"outputs,omitempty"`
	// URLs are set when the job published its outputs.
	URLs   []string `json:"urls,omitempty"`
	Chunks []string `json:"chunks,omitempty"`
	// OutputBase64 carries the single output inline when requested with ?inline=true.
	OutputBase64 string    `json:"output_base64,omitempty"`
	Error        string    `json:"error,omitempty"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// JobListResponse is the HTTP response for listing jobs.
type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// VideoInfoResponse describes an online video.
type VideoInfoResponse struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Duration   float64 `json:"duration"`
	Uploader   string  `json:"uploader,omitempty"`
	ViewCount  int64   `json:"view_count,omitempty"`
	UploadDate string  `json:"upload_date,omitempty"`
	HasAudio   bool    `json:"has_audio"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
	// FFmpeg is false when the ffmpeg binary cannot be run.
	FFmpeg bool `json:"ffmpeg"`
}
