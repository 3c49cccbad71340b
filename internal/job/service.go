package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/maauso/mediadesk/internal/apperr"
	"github.com/maauso/mediadesk/internal/audio"
	"github.com/maauso/mediadesk/internal/download"
	"github.com/maauso/mediadesk/internal/job/id"
	"github.com/maauso/mediadesk/internal/media"
	"github.com/maauso/mediadesk/internal/progress"
	"github.com/maauso/mediadesk/internal/storage"
	"github.com/maauso/mediadesk/internal/text"
)

// EventType identifies what happened to a job.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// Event is sent to the notifier whenever a submitted job changes.
type Event struct {
	Type  EventType
	JobID string
	Kind  Kind
	// Update is set for EventProgress.
	Update progress.Update
	// Result is set for EventCompleted.
	Result *Result
	// Err is set for EventFailed.
	Err error
}

// Notifier receives job events. It is called from the job's goroutine and
// must not block.
type Notifier func(Event)

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithNotifier registers a function that receives job events.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) {
		s.notify = n
	}
}

// Service runs jobs against the media and text collaborators. At most one
// job per Kind is in flight at a time.
type Service struct {
	repo      Repository
	combiner  audio.Combiner
	converter media.Converter
	fetcher   download.Fetcher
	store     storage.Storage
	logger    *slog.Logger
	notify    Notifier

	mu       sync.Mutex
	inFlight map[Kind]string
	wg       sync.WaitGroup
}

// NewService creates a new Service.
func NewService(
	repo Repository,
	combiner audio.Combiner,
	converter media.Converter,
	fetcher download.Fetcher,
	store storage.Storage,
	logger *slog.Logger,
	opts ...ServiceOption,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:      repo,
		combiner:  combiner,
		converter: converter,
		fetcher:   fetcher,
		store:     store,
		logger:    logger,
		inFlight:  make(map[Kind]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes input synchronously on the caller's goroutine, reporting
// progress to report. No job record is kept.
func (s *Service) Run(ctx context.Context, input Input, report progress.Func) (*Result, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	defer s.cleanup(input.TempPaths)

	res, err := s.execute(ctx, input, report)
	if err != nil {
		return nil, err
	}
	if input.Publish {
		urls, err := s.publish(ctx, id.Generate(), res.Outputs)
		if err != nil {
			return nil, err
		}
		res.URLs = urls
	}
	return res, nil
}

// Submit records a new job and starts it in the background. It returns an
// apperr.KindBusy error while another job of the same kind is running.
// The job outlives ctx's cancellation.
func (s *Service) Submit(ctx context.Context, input Input) (*Job, error) {
	if err := input.Validate(); err != nil {
		s.cleanup(input.TempPaths)
		return nil, err
	}

	s.mu.Lock()
	if running, busy := s.inFlight[input.Kind]; busy {
		s.mu.Unlock()
		s.cleanup(input.TempPaths)
		return nil, apperr.New(apperr.KindBusy, "submit", string(input.Kind),
			fmt.Sprintf("a %s job is already running (%s)", input.Kind, running), nil)
	}

	j := New(input.Kind)
	j.Publish = input.Publish
	j.AddTempPaths(input.TempPaths...)

	if err := s.repo.Save(ctx, j); err != nil {
		s.mu.Unlock()
		s.cleanup(input.TempPaths)
		s.logger.Error("failed to save job",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	s.inFlight[input.Kind] = j.ID
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("job submitted",
		slog.String("job_id", j.ID),
		slog.String("kind", string(j.Kind)),
		slog.Bool("publish", j.Publish),
	)

	go s.process(context.WithoutCancel(ctx), j, input)

	return j.Clone(), nil
}

// process drives a submitted job to a terminal state.
func (s *Service) process(ctx context.Context, j *Job, input Input) {
	defer s.wg.Done()
	defer s.release(j.Kind)
	defer s.cleanup(input.TempPaths)

	logger := s.logger.With(slog.String("job_id", j.ID), slog.String("kind", string(j.Kind)))

	if err := j.Start(); err != nil {
		logger.Error("failed to start job", slog.String("error", err.Error()))
		return
	}
	s.save(ctx, j, logger)

	report := func(u progress.Update) {
		pct := -1
		if u.Percent >= 0 {
			pct = int(math.Round(u.Percent))
		}
		if !j.UpdateProgress(u.Stage, u.Message, pct) {
			return
		}
		s.save(ctx, j, logger)
		s.emit(Event{Type: EventProgress, JobID: j.ID, Kind: j.Kind, Update: u})
	}

	res, err := s.execute(ctx, input, report)
	if err == nil && input.Publish {
		var urls []string
		urls, err = s.publish(ctx, j.ID, res.Outputs)
		res.URLs = urls
	}

	if err != nil {
		_ = j.Fail(string(apperr.KindOf(err)), err.Error())
		s.save(ctx, j, logger)
		logger.Error("job failed",
			slog.String("error_kind", string(apperr.KindOf(err))),
			slog.String("error", err.Error()),
		)
		s.emit(Event{Type: EventFailed, JobID: j.ID, Kind: j.Kind, Err: err})
		return
	}

	_ = j.Complete(res.Outputs, res.URLs, res.Chunks)
	s.save(ctx, j, logger)
	logger.Info("job completed",
		slog.Int("outputs", len(res.Outputs)),
		slog.Int("published", len(res.URLs)),
	)
	s.emit(Event{Type: EventCompleted, JobID: j.ID, Kind: j.Kind, Result: res})
}

// execute dispatches input to the matching collaborator.
func (s *Service) execute(ctx context.Context, input Input, report progress.Func) (*Result, error) {
	switch input.Kind {
	case KindCombine:
		in := input.Combine
		if err := s.combiner.Combine(ctx, in.Clips, in.Output, in.Opts, report); err != nil {
			return nil, err
		}
		return &Result{Outputs: []string{in.Output}}, nil

	case KindChunk:
		return s.chunk(input.Chunk, report)

	case KindDownload:
		in := input.Download
		out, err := s.fetcher.FetchAudio(ctx, in.URL, in.OutputDir, in.Opts, report)
		if err != nil {
			return nil, err
		}
		return &Result{Outputs: []string{out}}, nil

	case KindGIF:
		in := input.GIF
		out, err := s.converter.ConvertToGIF(ctx, in.Input, in.OutputDir, in.Opts, report)
		if err != nil {
			return nil, err
		}
		return &Result{Outputs: []string{out}}, nil
	}
	return nil, apperr.New(apperr.KindInvalidInput, "run", string(input.Kind), "unknown job kind", nil)
}

func (s *Service) chunk(in *ChunkInput, report progress.Func) (*Result, error) {
	chunks := text.Split(in.Text, in.Config)
	res := &Result{Chunks: chunks}
	if !in.Persist {
		report.Report(progress.Update{Stage: progress.StageFinished, Current: len(chunks), Total: len(chunks), Percent: 100})
		return res, nil
	}

	report.Report(progress.Update{Stage: progress.StageWriting, Total: len(chunks), Percent: -1})
	paths, err := text.Persist(in.Text, chunks, in.Dir, in.Base)
	if err != nil {
		kind := apperr.KindOutput
		if errors.Is(err, os.ErrPermission) {
			kind = apperr.KindPermission
		}
		return nil, apperr.New(kind, "chunk", in.Dir, "cannot write chunk files", err)
	}
	res.Outputs = paths
	report.Report(progress.Update{Stage: progress.StageFinished, Current: len(chunks), Total: len(chunks), Percent: 100})
	return res, nil
}

// publish uploads each output under <prefix>/<file name>.
func (s *Service) publish(ctx context.Context, prefix string, outputs []string) ([]string, error) {
	urls := make([]string, 0, len(outputs))
	for _, out := range outputs {
		url, err := s.publishFile(ctx, path.Join(prefix, filepath.Base(out)), out)
		if err != nil {
			if errors.Is(err, storage.ErrPublishNotConfigured) {
				return nil, apperr.New(apperr.KindOutput, "publish", out, "publishing is not configured", err)
			}
			return nil, apperr.New(apperr.KindNetwork, "publish", out, "upload failed", err)
		}
		urls = append(urls, url)
	}
	return urls, nil
}

func (s *Service) publishFile(ctx context.Context, key, file string) (string, error) {
	f, err := os.Open(file) // #nosec G304 - file is an output this service produced
	if err != nil {
		return "", fmt.Errorf("open output: %w", err)
	}
	defer func() { _ = f.Close() }()
	return s.store.Publish(ctx, key, f)
}

// Inspect returns the metadata of an online video without downloading it.
func (s *Service) Inspect(ctx context.Context, url string) (*download.VideoInfo, error) {
	return s.fetcher.Info(ctx, url)
}

// CheckTools reports whether the ffmpeg binary can be run.
func (s *Service) CheckTools(ctx context.Context) error {
	return s.converter.CheckAvailable(ctx)
}

// GetJob retrieves a job by ID.
func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns all jobs, newest first.
func (s *Service) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// DeleteJob forgets a finished job. Running jobs cannot be deleted.
func (s *Service) DeleteJob(ctx context.Context, id string) error {
	j, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !j.IsTerminal() {
		return apperr.New(apperr.KindBusy, "delete", id, "job is still running", nil)
	}
	return s.repo.Delete(ctx, id)
}

// Busy reports whether a job of kind is in flight.
func (s *Service) Busy(kind Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[kind]
	return ok
}

// Wait blocks until every submitted job has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) release(kind Kind) {
	s.mu.Lock()
	delete(s.inFlight, kind)
	s.mu.Unlock()
}

func (s *Service) save(ctx context.Context, j *Job, logger *slog.Logger) {
	if err := s.repo.Save(ctx, j); err != nil {
		logger.Error("failed to save job", slog.String("error", err.Error()))
	}
}

func (s *Service) cleanup(paths []string) {
	if len(paths) == 0 || s.store == nil {
		return
	}
	if err := s.store.CleanupTemp(context.Background(), paths); err != nil {
		s.logger.Warn("failed to remove temp files", slog.String("error", err.Error()))
	}
}

func (s *Service) emit(e Event) {
	if s.notify != nil {
		s.notify(e)
	}
}
