package download

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/maauso/mediadesk/internal/apperr"
)

func TestValidateURL(t *testing.T) {
	valid := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"http://youtube.com/watch?v=dQw4w9WgXcQ&t=42",
		"youtube.com/embed/dQw4w9WgXcQ",
		"https://www.youtube.com/v/dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ",
		"https://www.youtube.com/shorts/abc_DEF-123",
		"HTTPS://WWW.YOUTUBE.COM/WATCH?V=abc",
	}
	for _, url := range valid {
		assert.NoError(t, ValidateURL(url), url)
	}

	invalid := []string{
		"",
		"   ",
		"https://vimeo.com/12345",
		"https://www.youtube.com/",
		"https://www.youtube.com/playlist?list=PL123",
		"not a url",
	}
	for _, url := range invalid {
		err := ValidateURL(url)
		assert.True(t, errors.Is(err, apperr.E(apperr.KindInvalidURL)), "%q: %v", url, err)
	}
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"defaults", Options{}, false},
		{"flac best", Options{Format: "flac", Quality: "best"}, false},
		{"ogg 64", Options{Format: "ogg", Quality: "64"}, false},
		{"unknown format", Options{Format: "wma"}, true},
		{"unknown quality", Options{Quality: "512"}, true},
		{"uppercase format", Options{Format: "MP3"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				assert.Equal(t, apperr.KindFormat, apperr.KindOf(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultOptions(t *testing.T) {
	assert.Equal(t, Options{Format: "mp3", Quality: "192"}, DefaultOptions())
}

func TestVideoInfo_HasAudio(t *testing.T) {
	assert.False(t, (&VideoInfo{}).HasAudio())
	assert.False(t, (&VideoInfo{Formats: []MediaFormat{{FormatID: "137", ACodec: "none"}}}).HasAudio())
	assert.True(t, (&VideoInfo{Formats: []MediaFormat{
		{FormatID: "137", ACodec: "none"},
		{FormatID: "140", ACodec: "mp4a.40.2"},
	}}).HasAudio())
}
