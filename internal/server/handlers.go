package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/mediadesk/internal/apperr"
	"github.com/maauso/mediadesk/internal/audio"
	"github.com/maauso/mediadesk/internal/download"
	"github.com/maauso/mediadesk/internal/job"
	"github.com/maauso/mediadesk/internal/media"
	"github.com/maauso/mediadesk/internal/storage"
	"github.com/maauso/mediadesk/internal/text"
)

// Defaults are applied to request fields the client leaves empty.
type Defaults struct {
	// OutputDir receives every file the server produces.
	OutputDir string
	Combine   audio.CombineOpts
	GIF       media.GIFOpts
	Download  download.Options
	Chunk     text.Config
}

// DefaultDefaults returns the package defaults writing to ./output.
func DefaultDefaults() Defaults {
	return Defaults{
		OutputDir: "output",
		Combine:   audio.DefaultCombineOpts(),
		GIF:       media.DefaultGIFOpts(),
		Download:  download.DefaultOptions(),
		Chunk:     text.DefaultConfig(),
	}
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service   *job.Service
	store     storage.Storage
	validator *validator.Validate
	logger    *slog.Logger
	defaults  Defaults
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithDefaults sets the values used for omitted request fields.
func WithDefaults(d Defaults) HandlerOption {
	return func(h *Handlers) {
		h.defaults = d
	}
}

// NewHandlers creates a new Handlers instance. Uploaded files are written
// through store and handed to the submitted job for cleanup.
func NewHandlers(service *job.Service, store storage.Storage, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:   service,
		store:     store,
		validator: validator.New(),
		logger:    logger,
		defaults:  DefaultDefaults(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", FFmpeg: true}
	if err := h.service.CheckTools(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.FFmpeg = false
	}
	writeJSON(w, http.StatusOK, resp)
}

// Combine handles POST /jobs/combine requests.
func (h *Handlers) Combine(w http.ResponseWriter, r *http.Request) {
	var req CombineRequest
	if !h.decode(w, r, &req) {
		return
	}

	clips, err := h.saveUploads(r.Context(), req.Clips...)
	if err != nil {
		h.logger.Error("failed to save uploaded clips", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to store uploaded clips", "UPLOAD_FAILED")
		return
	}

	opts := h.defaults.Combine
	if req.GapMs != nil {
		opts.GapMs = *req.GapMs
	}
	if req.Bitrate != "" {
		opts.Bitrate = req.Bitrate
	}
	name := req.OutputName
	if name == "" {
		name = fmt.Sprintf("combined_%s.mp3", time.Now().Format("20060102_150405"))
	}

	h.submit(w, r, job.Input{
		Kind: job.KindCombine,
		Combine: &job.CombineInput{
			Clips:  clips,
			Output: filepath.Join(h.defaults.OutputDir, name),
			Opts:   opts,
		},
		Publish:   req.Publish,
		TempPaths: clips,
	})
}

// Download handles POST /jobs/download requests.
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if !h.decode(w, r, &req) {
		return
	}

	opts := h.defaults.Download
	if req.Format != "" {
		opts.Format = req.Format
	}
	if req.Quality != "" {
		opts.Quality = req.Quality
	}

	h.submit(w, r, job.Input{
		Kind: job.KindDownload,
		Download: &job.DownloadInput{
			URL:       req.URL,
			OutputDir: h.defaults.OutputDir,
			Opts:      opts,
		},
		Publish: req.Publish,
	})
}

// GIF handles POST /jobs/gif requests.
func (h *Handlers) GIF(w http.ResponseWriter, r *http.Request) {
	var req GIFRequest
	if !h.decode(w, r, &req) {
		return
	}

	paths, err := h.saveUploads(r.Context(), req.Video)
	if err != nil {
		h.logger.Error("failed to save uploaded video", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to store uploaded video", "UPLOAD_FAILED")
		return
	}

	opts := h.defaults.GIF
	if req.Resolution != "" {
		opts.Resolution = req.Resolution
	}
	if req.FPS != 0 {
		opts.FPS = req.FPS
	}

	h.submit(w, r, job.Input{
		Kind: job.KindGIF,
		GIF: &job.GIFInput{
			Input:     paths[0],
			OutputDir: h.defaults.OutputDir,
			Opts:      opts,
		},
		Publish:   req.Publish,
		TempPaths: paths,
	})
}

// Chunk handles POST /text/chunks requests. Chunking is fast, so the
// result is returned directly instead of through a job.
func (h *Handlers) Chunk(w http.ResponseWriter, r *http.Request) {
	var req ChunkRequest
	if !h.decode(w, r, &req) {
		return
	}

	cfg := h.defaults.Chunk
	if req.MaxLength != "" {
		cfg.MaxLength = text.ParseMaxLength(string(req.MaxLength))
	}
	if req.Terminator != "" {
		cfg.Terminator = []rune(req.Terminator)[0]
	}

	res, err := h.service.Run(r.Context(), job.Input{
		Kind: job.KindChunk,
		Chunk: &job.ChunkInput{
			Text:    req.Text,
			Config:  cfg,
			Persist: req.Persist,
			Dir:     h.defaults.OutputDir,
			Base:    req.BaseName,
		},
	}, nil)
	if err != nil {
		h.writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ChunkResponse{
		Count:  len(res.Chunks),
		Chunks: append([]string{}, res.Chunks...),
		Files:  res.Outputs,
	})
}

// VideoInfo handles GET /download/info?url=... requests.
func (h *Handlers) VideoInfo(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required", "MISSING_URL")
		return
	}

	info, err := h.service.Inspect(r.Context(), url)
	if err != nil {
		h.writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, VideoInfoResponse{
		ID:         info.ID,
		Title:      info.Title,
		Duration:   info.Duration,
		Uploader:   info.Uploader,
		ViewCount:  info.ViewCount,
		UploadDate: info.UploadDate,
		HasAudio:   info.HasAudio(),
	})
}

// ListJobs handles GET /jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_FETCH_FAILED")
		return
	}

	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeJobError(w, jobID, err)
		return
	}

	resp := toJobResponse(foundJob)

	// Inline the output if asked and it was not published
	if r.URL.Query().Get("inline") == "true" &&
		foundJob.Status == job.StatusCompleted &&
		len(foundJob.URLs) == 0 && len(foundJob.Outputs) == 1 {
		data, err := os.ReadFile(foundJob.Outputs[0])
		if err != nil {
			h.logger.Error("failed to read job output",
				slog.String("job_id", jobID),
				slog.String("path", foundJob.Outputs[0]),
				slog.String("error", err.Error()),
			)
		} else {
			resp.OutputBase64 = base64.StdEncoding.EncodeToString(data)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// DeleteJob handles DELETE /jobs/{id} requests.
func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	if err := h.service.DeleteJob(r.Context(), jobID); err != nil {
		h.writeJobError(w, jobID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode reads and validates a JSON body, writing the error response itself.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), "BODY_TOO_LARGE")
			return false
		}
		h.logger.Warn("failed to decode request body",
			slog.String("request_id", RequestID(r.Context())),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

func (h *Handlers) submit(w http.ResponseWriter, r *http.Request, input job.Input) {
	created, err := h.service.Submit(r.Context(), input)
	if err != nil {
		h.writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitResponse{
		ID:     created.ID,
		Kind:   string(created.Kind),
		Status: string(created.Status),
	})
}

// saveUploads decodes each upload into a temp file. On failure the files
// already written are removed.
func (h *Handlers) saveUploads(ctx context.Context, uploads ...FileUpload) ([]string, error) {
	paths := make([]string, 0, len(uploads))
	for _, u := range uploads {
		dec := base64.NewDecoder(base64.StdEncoding, strings.NewReader(u.DataBase64))
		p, err := h.store.SaveTemp(ctx, u.Name, dec)
		if err != nil {
			_ = h.store.CleanupTemp(ctx, paths)
			return nil, fmt.Errorf("save %s: %w", u.Name, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func (h *Handlers) writeJobError(w http.ResponseWriter, jobID string, err error) {
	if errors.Is(err, job.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	}
	if apperr.KindOf(err) == apperr.KindBusy {
		writeError(w, http.StatusConflict, err.Error(), "BUSY")
		return
	}
	h.logger.Error("failed to get job",
		slog.String("job_id", jobID),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
}

// writeAppError maps an apperr kind to an HTTP status.
func (h *Handlers) writeAppError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			slog.String("error_kind", string(kind)),
			slog.String("error", err.Error()),
		)
	}
	writeError(w, status, err.Error(), strings.ToUpper(string(kind)))
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidInput, apperr.KindInvalidURL, apperr.KindFormat:
		return http.StatusBadRequest
	case apperr.KindBusy:
		return http.StatusConflict
	case apperr.KindUnavailable:
		return http.StatusUnprocessableEntity
	case apperr.KindNetwork:
		return http.StatusBadGateway
	case apperr.KindToolMissing:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func toJobResponse(j *job.Job) JobResponse {
	return JobResponse{
		ID:        j.ID,
		Kind:      string(j.Kind),
		Status:    string(j.Status),
		Progress:  j.Progress,
		Stage:     j.Stage,
		Message:   j.Message,
		Outputs:   j.Outputs,
		URLs:      j.URLs,
		Chunks:    j.Chunks,
		Error:     j.Error,
		ErrorKind: j.ErrorKind,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
