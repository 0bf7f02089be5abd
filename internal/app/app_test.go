package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/schemetrust/internal/model"
	"github.com/ppiankov/schemetrust/internal/verify"
)

func testConfig(t *testing.T) model.Config {
	t.Helper()
	dir := t.TempDir()

	catalogPath := filepath.Join(dir, "schemes.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(`schemes:
  - id: pm-kisan
    name: Pradhan Mantri Kisan Samman Nidhi
`), 0o644))

	cfg := model.DefaultConfig()
	cfg.Catalog.Path = catalogPath
	cfg.Store.Path = filepath.Join(dir, "engine.db")
	cfg.Cache.Backend = "memory"
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.ShutdownTimeout = 2 * time.Second
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), quietLogger())
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	assert.Equal(t, 4, a.Sources.Len(), "data.gov.in stays disabled without an API key")
	_, ok := a.Catalog.Get("pm-kisan")
	assert.True(t, ok)
	require.NoError(t, a.Store.Ping(context.Background()))

	_, err = a.Orchestrator.RunVerification(context.Background(), "unknown")
	assert.True(t, errors.Is(err, verify.ErrUnknownScheme))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scoring.LowThreshold = 0.9
	cfg.Scoring.HighThreshold = 0.5

	_, err := New(context.Background(), cfg, quietLogger())
	assert.Error(t, err)
}

func TestNew_MissingCatalogue(t *testing.T) {
	cfg := testConfig(t)
	cfg.Catalog.Path = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := New(context.Background(), cfg, quietLogger())
	assert.Error(t, err)
}

func TestServe_ShutsDownWithContext(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), quietLogger())
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
	assert.Equal(t, 1, a.Dashboard.Snapshot().TotalSchemes)
}
