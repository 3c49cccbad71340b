package apperr

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	err := New(KindInvalidInput, "convert", "/tmp/in.txt", "input must be a video file", nil)
	assert.Equal(t, "convert: input must be a video file (/tmp/in.txt)", err.Error())

	wrapped := New(KindPermission, "download", "/out", "cannot create directory", os.ErrPermission)
	assert.Equal(t, "download: cannot create directory (/out): permission denied", wrapped.Error())

	bare := E(KindNetwork)
	assert.Equal(t, "network", bare.Error())
}

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("job failed: %w", New(KindNetwork, "download", "", "timeout", nil))

	assert.True(t, errors.Is(err, E(KindNetwork)))
	assert.False(t, errors.Is(err, E(KindFormat)))
}

func TestError_UnwrapsCause(t *testing.T) {
	err := New(KindPermission, "write", "/x", "denied", os.ErrPermission)
	assert.True(t, errors.Is(err, os.ErrPermission))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, KindFormat, KindOf(fmt.Errorf("wrap: %w", E(KindFormat))))
}
