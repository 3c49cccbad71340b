package job

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	j := New(KindGIF)

	assert.True(t, strings.HasPrefix(j.ID, "gif-"), j.ID)
	assert.Equal(t, KindGIF, j.Kind)
	assert.Equal(t, StatusInQueue, j.Status)
	assert.False(t, j.CreatedAt.IsZero())
	assert.Equal(t, j.CreatedAt, j.UpdatedAt)
}

func TestNewWithID(t *testing.T) {
	j := NewWithID("custom-id", KindChunk)
	assert.Equal(t, "custom-id", j.ID)
	assert.Equal(t, KindChunk, j.Kind)
	assert.Equal(t, StatusInQueue, j.Status)
}

func TestKind_IsValid(t *testing.T) {
	for _, k := range []Kind{KindCombine, KindChunk, KindDownload, KindGIF} {
		assert.True(t, k.IsValid(), k)
	}
	assert.False(t, Kind("transcode").IsValid())
	assert.False(t, Kind("").IsValid())
}

func TestJob_Transitions(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusInQueue, StatusRunning, true},
		{StatusInQueue, StatusFailed, true},
		{StatusInQueue, StatusCompleted, false},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusInQueue, false},
		{StatusCompleted, StatusFailed, false},
		{StatusCompleted, StatusRunning, false},
		{StatusFailed, StatusRunning, false},
		{StatusFailed, StatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			j := NewWithID("j", KindCombine)
			j.Status = tt.from

			err := j.TransitionTo(tt.to)
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, tt.to, j.Status)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, tt.from, j.Status)
			}
		})
	}
}

func TestJob_Start(t *testing.T) {
	j := New(KindDownload)
	require.NoError(t, j.Start())
	assert.Equal(t, StatusRunning, j.GetStatus())
	assert.False(t, j.StartedAt.IsZero())

	assert.ErrorIs(t, j.Start(), ErrInvalidTransition)
}

func TestJob_Complete(t *testing.T) {
	j := New(KindChunk)
	require.NoError(t, j.Start())

	outputs := []string{"/out/story.txt", "/out/story1.txt"}
	require.NoError(t, j.Complete(outputs, []string{"https://b/story.txt"}, []string{"one"}))

	assert.Equal(t, StatusCompleted, j.Status)
	assert.Equal(t, 100, j.Progress)
	assert.Equal(t, outputs, j.Outputs)
	assert.Equal(t, []string{"https://b/story.txt"}, j.URLs)
	assert.Equal(t, []string{"one"}, j.Chunks)
	assert.False(t, j.CompletedAt.IsZero())

	// caller's slice is copied
	outputs[0] = "changed"
	assert.Equal(t, "/out/story.txt", j.Outputs[0])
}

func TestJob_CompleteRequiresRunning(t *testing.T) {
	j := New(KindChunk)
	assert.ErrorIs(t, j.Complete(nil, nil, nil), ErrInvalidTransition)
	assert.Empty(t, j.Outputs)
}

func TestJob_Fail(t *testing.T) {
	j := New(KindGIF)
	require.NoError(t, j.Start())
	require.NoError(t, j.Fail("conversion", "ffmpeg conversion failed"))

	assert.Equal(t, StatusFailed, j.Status)
	assert.Equal(t, "conversion", j.ErrorKind)
	assert.Equal(t, "ffmpeg conversion failed", j.Error)
	assert.True(t, j.IsTerminal())

	assert.ErrorIs(t, j.Fail("internal", "again"), ErrInvalidTransition)
	assert.Equal(t, "ffmpeg conversion failed", j.Error)
}

func TestJob_IsTerminal(t *testing.T) {
	j := New(KindCombine)
	assert.False(t, j.IsTerminal())
	_ = j.Start()
	assert.False(t, j.IsTerminal())
	_ = j.Complete(nil, nil, nil)
	assert.True(t, j.IsTerminal())
}

func TestJob_UpdateProgress(t *testing.T) {
	j := New(KindCombine)

	assert.True(t, j.UpdateProgress("combining", "", 40))
	assert.Equal(t, 40, j.Progress)
	assert.Equal(t, "combining", j.Stage)

	assert.False(t, j.UpdateProgress("combining", "", 40), "unchanged report")

	assert.True(t, j.UpdateProgress("converting", "extracting audio", -1))
	assert.Equal(t, 40, j.Progress, "indeterminate keeps percentage")
	assert.Equal(t, "extracting audio", j.Message)

	j.UpdateProgress("combining", "", 150)
	assert.Equal(t, 100, j.Progress)
}

func TestJob_AddTempPaths(t *testing.T) {
	j := New(KindCombine)
	j.AddTempPaths("/tmp/a.mp3")
	j.AddTempPaths("/tmp/b.mp3", "/tmp/c.mp3")
	assert.Equal(t, []string{"/tmp/a.mp3", "/tmp/b.mp3", "/tmp/c.mp3"}, j.TempPaths)
}

func TestJob_Clone(t *testing.T) {
	j := New(KindChunk)
	j.Publish = true
	j.AddTempPaths("/tmp/x")
	_ = j.Start()
	_ = j.Complete([]string{"a"}, []string{"u"}, []string{"c"})

	c := j.Clone()
	assert.Equal(t, j.ID, c.ID)
	assert.Equal(t, j.Kind, c.Kind)
	assert.Equal(t, j.Status, c.Status)
	assert.Equal(t, j.Outputs, c.Outputs)
	assert.Equal(t, j.CompletedAt, c.CompletedAt)
	assert.True(t, c.Publish)

	c.Outputs[0] = "changed"
	c.TempPaths[0] = "changed"
	c.Chunks[0] = "changed"
	assert.Equal(t, "a", j.Outputs[0])
	assert.Equal(t, "/tmp/x", j.TempPaths[0])
	assert.Equal(t, "c", j.Chunks[0])
}

func TestJob_ConcurrentProgress(t *testing.T) {
	j := New(KindDownload)
	_ = j.Start()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := 0; p <= 100; p++ {
				j.UpdateProgress("downloading", "", p)
				_ = j.Clone()
				_ = j.GetStatus()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, StatusRunning, j.GetStatus())
}
