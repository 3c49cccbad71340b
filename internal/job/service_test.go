package job

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mediadesk/internal/apperr"
	"github.com/maauso/mediadesk/internal/audio"
	"github.com/maauso/mediadesk/internal/download"
	"github.com/maauso/mediadesk/internal/media"
	"github.com/maauso/mediadesk/internal/progress"
	"github.com/maauso/mediadesk/internal/storage"
	"github.com/maauso/mediadesk/internal/text"
)

type mockCombiner struct {
	mock.Mock
}

func (m *mockCombiner) Combine(ctx context.Context, clips []string, output string, opts audio.CombineOpts, report progress.Func) error {
	args := m.Called(ctx, clips, output, opts, report)
	return args.Error(0)
}

type mockConverter struct {
	mock.Mock
}

func (m *mockConverter) ConvertToGIF(ctx context.Context, input, outputDir string, opts media.GIFOpts, report progress.Func) (string, error) {
	args := m.Called(ctx, input, outputDir, opts, report)
	return args.String(0), args.Error(1)
}

func (m *mockConverter) CheckAvailable(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) FetchAudio(ctx context.Context, url, outputDir string, opts download.Options, report progress.Func) (string, error) {
	args := m.Called(ctx, url, outputDir, opts, report)
	return args.String(0), args.Error(1)
}

func (m *mockFetcher) Info(ctx context.Context, url string) (*download.VideoInfo, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*download.VideoInfo), args.Error(1)
}

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) SaveTemp(ctx context.Context, name string, data io.Reader) (string, error) {
	args := m.Called(ctx, name, data)
	return args.String(0), args.Error(1)
}

func (m *mockStorage) LoadTemp(ctx context.Context, path string) (io.ReadCloser, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *mockStorage) CleanupTemp(ctx context.Context, paths []string) error {
	return m.Called(ctx, paths).Error(0)
}

func (m *mockStorage) Publish(ctx context.Context, key string, data io.Reader) (string, error) {
	args := m.Called(ctx, key, data)
	return args.String(0), args.Error(1)
}

type testDeps struct {
	combiner  *mockCombiner
	converter *mockConverter
	fetcher   *mockFetcher
	store     *mockStorage
}

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *testDeps) {
	t.Helper()
	d := &testDeps{
		combiner:  new(mockCombiner),
		converter: new(mockConverter),
		fetcher:   new(mockFetcher),
		store:     new(mockStorage),
	}
	svc := NewService(NewMemoryRepository(), d.combiner, d.converter, d.fetcher, d.store, nil, opts...)
	return svc, d
}

func waitForStatus(t *testing.T, svc *Service, jobID string, want Status) *Job {
	t.Helper()
	var got *Job
	require.Eventually(t, func() bool {
		j, err := svc.GetJob(context.Background(), jobID)
		if err != nil {
			return false
		}
		got = j
		return j.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestNewService(t *testing.T) {
	svc, _ := newTestService(t)
	assert.NotNil(t, svc.logger)
	assert.NotNil(t, svc.inFlight)
	assert.Nil(t, svc.notify)
}

func TestService_RunChunk(t *testing.T) {
	svc, d := newTestService(t)

	var updates []progress.Update
	res, err := svc.Run(context.Background(), Input{
		Kind:  KindChunk,
		Chunk: &ChunkInput{Text: "abc def ghi", Config: text.Config{MaxLength: 4}},
	}, func(u progress.Update) { updates = append(updates, u) })

	require.NoError(t, err)
	assert.Equal(t, []string{"abc", "def", "ghi"}, res.Chunks)
	assert.Empty(t, res.Outputs)
	require.NotEmpty(t, updates)
	assert.Equal(t, progress.StageFinished, updates[len(updates)-1].Stage)
	d.store.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_RunChunkPersist(t *testing.T) {
	svc, _ := newTestService(t)
	dir := filepath.Join(t.TempDir(), "chunks")

	res, err := svc.Run(context.Background(), Input{
		Kind: KindChunk,
		Chunk: &ChunkInput{
			Text:    "One. Two.",
			Config:  text.Config{MaxLength: 5},
			Persist: true,
			Dir:     dir,
			Base:    "tale",
		},
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"One.", "Two."}, res.Chunks)
	assert.Equal(t, []string{
		filepath.Join(dir, "tale.txt"),
		filepath.Join(dir, "tale1.txt"),
		filepath.Join(dir, "tale2.txt"),
	}, res.Outputs)
}

func TestService_RunCombine(t *testing.T) {
	svc, d := newTestService(t)
	clips := []string{"/in/a.mp3", "/in/b.mp3"}
	opts := audio.CombineOpts{GapMs: 250}

	d.combiner.On("Combine", mock.Anything, clips, "/out/all.mp3", opts, mock.Anything).
		Run(func(args mock.Arguments) {
			report := args.Get(4).(progress.Func)
			report.Report(progress.Update{Stage: progress.StageCombining, Percent: 50})
		}).
		Return(nil)

	var got []progress.Update
	res, err := svc.Run(context.Background(), Input{
		Kind:    KindCombine,
		Combine: &CombineInput{Clips: clips, Output: "/out/all.mp3", Opts: opts},
	}, func(u progress.Update) { got = append(got, u) })

	require.NoError(t, err)
	assert.Equal(t, []string{"/out/all.mp3"}, res.Outputs)
	require.Len(t, got, 1)
	assert.Equal(t, float64(50), got[0].Percent)
	d.combiner.AssertExpectations(t)
}

func TestService_RunRejectsMismatchedInput(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []Input{
		{Kind: KindGIF, Combine: &CombineInput{}},
		{Kind: KindGIF},
		{Kind: KindGIF, GIF: &GIFInput{}, Chunk: &ChunkInput{}},
		{Kind: "resize", GIF: &GIFInput{}},
	}
	for _, in := range tests {
		_, err := svc.Run(context.Background(), in, nil)
		assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err), "%+v", in)
	}
}

func TestService_RunPublish(t *testing.T) {
	svc, d := newTestService(t)
	out := filepath.Join(t.TempDir(), "clip.gif")
	require.NoError(t, os.WriteFile(out, []byte("GIF89a"), 0600))

	d.converter.On("ConvertToGIF", mock.Anything, "/in/clip.mp4", "/out", media.GIFOpts{}, mock.Anything).
		Return(out, nil)
	d.store.On("Publish", mock.Anything, mock.MatchedBy(func(key string) bool {
		return filepath.Base(key) == "clip.gif"
	}), mock.Anything).Return("https://bucket/clip.gif", nil)

	res, err := svc.Run(context.Background(), Input{
		Kind:    KindGIF,
		GIF:     &GIFInput{Input: "/in/clip.mp4", OutputDir: "/out"},
		Publish: true,
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{out}, res.Outputs)
	assert.Equal(t, []string{"https://bucket/clip.gif"}, res.URLs)
	d.store.AssertExpectations(t)
}

func TestService_RunPublishNotConfigured(t *testing.T) {
	svc, d := newTestService(t)
	out := filepath.Join(t.TempDir(), "song.mp3")
	require.NoError(t, os.WriteFile(out, []byte("ID3"), 0600))

	d.fetcher.On("FetchAudio", mock.Anything, "https://youtu.be/x", "/out", download.Options{}, mock.Anything).
		Return(out, nil)
	d.store.On("Publish", mock.Anything, mock.Anything, mock.Anything).
		Return("", storage.ErrPublishNotConfigured)

	_, err := svc.Run(context.Background(), Input{
		Kind:     KindDownload,
		Download: &DownloadInput{URL: "https://youtu.be/x", OutputDir: "/out"},
		Publish:  true,
	}, nil)

	assert.Equal(t, apperr.KindOutput, apperr.KindOf(err))
	assert.ErrorIs(t, err, storage.ErrPublishNotConfigured)
}

func TestService_RunCleansUpTempPaths(t *testing.T) {
	svc, d := newTestService(t)
	temps := []string{"/tmp/mediadesk/a_1.mp3"}

	d.combiner.On("Combine", mock.Anything, temps, "/out/x.mp3", mock.Anything, mock.Anything).
		Return(apperr.New(apperr.KindConversion, "combine", "", "ffmpeg failed", nil))
	d.store.On("CleanupTemp", mock.Anything, temps).Return(nil).Once()

	_, err := svc.Run(context.Background(), Input{
		Kind:      KindCombine,
		Combine:   &CombineInput{Clips: temps, Output: "/out/x.mp3"},
		TempPaths: temps,
	}, nil)

	assert.Equal(t, apperr.KindConversion, apperr.KindOf(err))
	d.store.AssertExpectations(t)
}

func TestService_SubmitCompletes(t *testing.T) {
	var mu sync.Mutex
	var events []Event
	svc, d := newTestService(t, WithNotifier(func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}))

	d.converter.On("ConvertToGIF", mock.Anything, "/in/v.mp4", "/out", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			report := args.Get(4).(progress.Func)
			report.Report(progress.Update{Stage: progress.StageConverting, Percent: 33.4})
			report.Report(progress.Update{Stage: progress.StageConverting, Percent: 33.2})
		}).
		Return("/out/v.gif", nil)

	submitted, err := svc.Submit(context.Background(), Input{
		Kind: KindGIF,
		GIF:  &GIFInput{Input: "/in/v.mp4", OutputDir: "/out"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusInQueue, submitted.Status)
	assert.Equal(t, KindGIF, submitted.Kind)

	svc.Wait()

	done := waitForStatus(t, svc, submitted.ID, StatusCompleted)
	assert.Equal(t, []string{"/out/v.gif"}, done.Outputs)
	assert.Equal(t, 100, done.Progress)
	assert.False(t, svc.Busy(KindGIF))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2, "duplicate rounded progress is coalesced")
	assert.Equal(t, EventProgress, events[0].Type)
	assert.Equal(t, EventCompleted, events[1].Type)
	assert.Equal(t, submitted.ID, events[1].JobID)
}

func TestService_SubmitFails(t *testing.T) {
	svc, d := newTestService(t)

	d.fetcher.On("FetchAudio", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", apperr.New(apperr.KindUnavailable, "download", "u", "video is unavailable", nil))

	submitted, err := svc.Submit(context.Background(), Input{
		Kind:     KindDownload,
		Download: &DownloadInput{URL: "https://youtu.be/gone", OutputDir: "/out"},
	})
	require.NoError(t, err)
	svc.Wait()

	failed := waitForStatus(t, svc, submitted.ID, StatusFailed)
	assert.Equal(t, string(apperr.KindUnavailable), failed.ErrorKind)
	assert.Contains(t, failed.Error, "video is unavailable")
}

func TestService_SubmitBusyPerKind(t *testing.T) {
	svc, d := newTestService(t)

	release := make(chan struct{})
	d.combiner.On("Combine", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(nil)

	combine := Input{Kind: KindCombine, Combine: &CombineInput{Clips: []string{"a.mp3"}, Output: "o.mp3"}}

	first, err := svc.Submit(context.Background(), combine)
	require.NoError(t, err)
	assert.True(t, svc.Busy(KindCombine))

	_, err = svc.Submit(context.Background(), combine)
	assert.True(t, errors.Is(err, apperr.E(apperr.KindBusy)), "%v", err)

	// other kinds are unaffected
	other, err := svc.Submit(context.Background(), Input{Kind: KindChunk, Chunk: &ChunkInput{Text: "hello"}})
	require.NoError(t, err)

	close(release)
	svc.Wait()

	waitForStatus(t, svc, first.ID, StatusCompleted)
	waitForStatus(t, svc, other.ID, StatusCompleted)
	assert.False(t, svc.Busy(KindCombine))

	again, err := svc.Submit(context.Background(), combine)
	require.NoError(t, err)
	svc.Wait()
	waitForStatus(t, svc, again.ID, StatusCompleted)

	jobs, err := svc.ListJobs(context.Background())
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}

func TestService_SubmitBusyCleansUpRejectedTemps(t *testing.T) {
	svc, d := newTestService(t)

	release := make(chan struct{})
	d.combiner.On("Combine", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(nil)
	d.store.On("CleanupTemp", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.Submit(context.Background(), Input{
		Kind:      KindCombine,
		Combine:   &CombineInput{Clips: []string{"/tmp/a.mp3"}, Output: "o.mp3"},
		TempPaths: []string{"/tmp/a.mp3"},
	})
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), Input{
		Kind:      KindCombine,
		Combine:   &CombineInput{Clips: []string{"/tmp/b.mp3"}, Output: "o.mp3"},
		TempPaths: []string{"/tmp/b.mp3"},
	})
	require.Error(t, err)
	d.store.AssertCalled(t, "CleanupTemp", mock.Anything, []string{"/tmp/b.mp3"})

	close(release)
	svc.Wait()
	d.store.AssertCalled(t, "CleanupTemp", mock.Anything, []string{"/tmp/a.mp3"})
}

func TestService_SubmitSurvivesRequestCancel(t *testing.T) {
	svc, d := newTestService(t)
	d.converter.On("ConvertToGIF", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			assert.NoError(t, ctx.Err())
		}).
		Return("/out/v.gif", nil)

	ctx, cancel := context.WithCancel(context.Background())
	submitted, err := svc.Submit(ctx, Input{Kind: KindGIF, GIF: &GIFInput{Input: "v.mp4"}})
	cancel()
	require.NoError(t, err)

	svc.Wait()
	waitForStatus(t, svc, submitted.ID, StatusCompleted)
}

func TestService_GetJobNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestService_DeleteJob(t *testing.T) {
	svc, d := newTestService(t)

	release := make(chan struct{})
	d.converter.On("ConvertToGIF", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return("/out/v.gif", nil)

	submitted, err := svc.Submit(context.Background(), Input{Kind: KindGIF, GIF: &GIFInput{Input: "v.mp4"}})
	require.NoError(t, err)

	err = svc.DeleteJob(context.Background(), submitted.ID)
	assert.Equal(t, apperr.KindBusy, apperr.KindOf(err))

	close(release)
	svc.Wait()
	waitForStatus(t, svc, submitted.ID, StatusCompleted)

	require.NoError(t, svc.DeleteJob(context.Background(), submitted.ID))
	_, err = svc.GetJob(context.Background(), submitted.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)

	assert.ErrorIs(t, svc.DeleteJob(context.Background(), "missing"), ErrJobNotFound)
}

func TestService_Inspect(t *testing.T) {
	svc, d := newTestService(t)
	info := &download.VideoInfo{ID: "abc", Title: "Song"}
	d.fetcher.On("Info", mock.Anything, "https://youtu.be/abc").Return(info, nil)

	got, err := svc.Inspect(context.Background(), "https://youtu.be/abc")
	require.NoError(t, err)
	assert.Equal(t, "Song", got.Title)
}
