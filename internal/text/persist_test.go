package text

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersist(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	original := "  One. Two.  "
	chunks := []string{"One.", "Two."}

	paths, err := Persist(original, chunks, dir, "chapter")
	require.NoError(t, err)

	want := []string{
		filepath.Join(dir, "chapter.txt"),
		filepath.Join(dir, "chapter1.txt"),
		filepath.Join(dir, "chapter2.txt"),
	}
	assert.Equal(t, want, paths)

	content, err := os.ReadFile(want[0])
	require.NoError(t, err)
	assert.Equal(t, original, string(content), "original must be written untouched")

	for i, chunk := range chunks {
		content, err := os.ReadFile(want[i+1])
		require.NoError(t, err)
		assert.Equal(t, chunk, string(content))
	}
}

func TestPersist_DefaultBaseName(t *testing.T) {
	dir := t.TempDir()

	paths, err := Persist("text", []string{"text"}, dir, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "story.txt"), paths[0])
	assert.Equal(t, filepath.Join(dir, "story1.txt"), paths[1])
}

func TestPersist_NoChunks(t *testing.T) {
	dir := t.TempDir()

	paths, err := Persist("", nil, dir, "empty")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "empty.txt")}, paths)
}

func TestPersist_UnwritableDirectory(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for this user")
	}

	parent := t.TempDir()
	require.NoError(t, os.Chmod(parent, 0500))
	t.Cleanup(func() { _ = os.Chmod(parent, 0750) })

	_, err := Persist("text", []string{"text"}, filepath.Join(parent, "out"), "story")
	require.Error(t, err)
}
