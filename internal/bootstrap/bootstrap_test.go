package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mediadesk/internal/config"
	"github.com/maauso/mediadesk/internal/storage"
)

func testConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	env["TEMP_DIR"] = t.TempDir()
	cfg, err := config.LoadFrom(context.Background(), envconfig.MapLookuper(env))
	require.NoError(t, err)
	return cfg
}

func TestNewDependencies_LocalStorage(t *testing.T) {
	cfg := testConfig(t, map[string]string{})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	deps, err := NewDependencies(context.Background(), cfg, logger)
	require.NoError(t, err)

	require.NotNil(t, deps.Service)
	assert.IsType(t, &storage.LocalStorage{}, deps.Store)
}

func TestNewDependencies_S3Storage(t *testing.T) {
	cfg := testConfig(t, map[string]string{
		"S3_BUCKET":             "bucket",
		"S3_REGION":             "eu-west-1",
		"S3_ENDPOINT":           "http://localhost:9000",
		"AWS_ACCESS_KEY_ID":     "key",
		"AWS_SECRET_ACCESS_KEY": "secret",
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	deps, err := NewDependencies(context.Background(), cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &storage.S3Storage{}, deps.Store)
}

func TestHandlerDefaults(t *testing.T) {
	cfg := testConfig(t, map[string]string{
		"OUTPUT_DIR":     "/srv/out",
		"GAP_MS":         "500",
		"GIF_RESOLUTION": "360p",
		"AUDIO_FORMAT":   "ogg",
	})

	d := HandlerDefaults(cfg)
	assert.Equal(t, "/srv/out", d.OutputDir)
	assert.Equal(t, 500, d.Combine.GapMs)
	assert.Equal(t, "360p", d.GIF.Resolution)
	assert.Equal(t, "ogg", d.Download.Format)
	assert.Equal(t, 2500, d.Chunk.MaxLength)
}
