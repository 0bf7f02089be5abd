package cli

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/ppiankov/schemetrust/internal/model"
	"github.com/ppiankov/schemetrust/internal/worker"
)

func newTestViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	if err := setDefaults(v, model.DefaultConfig()); err != nil {
		t.Fatalf("setDefaults: %v", err)
	}
	configureEnv(v)
	return v
}

func TestDecodeConfig_Defaults(t *testing.T) {
	cfg, err := decodeConfig(newTestViper(t))
	if err != nil {
		t.Fatalf("decodeConfig: %v", err)
	}
	want := model.DefaultConfig()

	if cfg.Scoring.HalfLife != want.Scoring.HalfLife {
		t.Errorf("half life = %v, want %v", cfg.Scoring.HalfLife, want.Scoring.HalfLife)
	}
	if cfg.Sources.Gazette.Weight != 1.0 || !cfg.Sources.Gazette.Enabled {
		t.Errorf("gazette config = %+v", cfg.Sources.Gazette)
	}
	if len(cfg.HTTP.AllowedHosts) != len(want.HTTP.AllowedHosts) {
		t.Errorf("allowed hosts = %v", cfg.HTTP.AllowedHosts)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
}

func TestDecodeConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SCHEMETRUST_SERVER_ADDR", ":9090")
	t.Setenv("SCHEMETRUST_SCORING_HALF_LIFE", "720h")
	t.Setenv("SCHEMETRUST_SOURCES_MYSCHEME_GOV_WEIGHT", "0.6")
	t.Setenv("SCHEMETRUST_SERVER_ADMIN_API_KEY", "s3cret")
	t.Setenv("SCHEMETRUST_SOURCES_DATA_GOV_IN_API_KEY", "datakey")

	cfg, err := decodeConfig(newTestViper(t))
	if err != nil {
		t.Fatalf("decodeConfig: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Scoring.HalfLife != 720*time.Hour {
		t.Errorf("half life = %v", cfg.Scoring.HalfLife)
	}
	if cfg.Sources.MyScheme.Weight != 0.6 {
		t.Errorf("myscheme weight = %v", cfg.Sources.MyScheme.Weight)
	}
	if cfg.Server.AdminAPIKey != "s3cret" {
		t.Errorf("admin key = %q", cfg.Server.AdminAPIKey)
	}
	if cfg.Sources.DataGovIn.APIKey != "datakey" {
		t.Errorf("data.gov.in key = %q", cfg.Sources.DataGovIn.APIKey)
	}
}

func TestDecodeConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `scoring:
  high_threshold: 0.8
verify:
  stale_after: 24h
cache:
  backend: layered
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	v := newTestViper(t)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("read config: %v", err)
	}

	cfg, err := decodeConfig(v)
	if err != nil {
		t.Fatalf("decodeConfig: %v", err)
	}
	if cfg.Scoring.HighThreshold != 0.8 || cfg.Scoring.LowThreshold != 0.35 {
		t.Errorf("thresholds = %v/%v", cfg.Scoring.LowThreshold, cfg.Scoring.HighThreshold)
	}
	if cfg.Verify.StaleAfter != 24*time.Hour {
		t.Errorf("stale after = %v", cfg.Verify.StaleAfter)
	}
	if cfg.Cache.Backend != "layered" {
		t.Errorf("backend = %q", cfg.Cache.Backend)
	}
}

func TestDecodeConfig_Invalid(t *testing.T) {
	t.Setenv("SCHEMETRUST_CACHE_BACKEND", "memcached")

	if _, err := decodeConfig(newTestViper(t)); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	if err := writeDefaultConfig(path); err != nil {
		t.Fatalf("writeDefaultConfig: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"# SchemeTrust configuration", "gazette_of_india:", "half_life: 4320h0m0s"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("config file missing %q", want)
		}
	}

	v := newTestViper(t)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("generated config does not parse: %v", err)
	}
	if _, err := decodeConfig(v); err != nil {
		t.Fatalf("generated config is invalid: %v", err)
	}

	if err := writeDefaultConfig(path); err == nil {
		t.Error("expected error when the file already exists")
	}
}

func TestRedact(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Server.AdminAPIKey = "s3cret"
	redact(&cfg)

	if cfg.Server.AdminAPIKey == "s3cret" {
		t.Error("admin key not redacted")
	}
	if cfg.Cache.RedisPassword != "" {
		t.Error("empty secrets should stay empty")
	}
}

func TestSummarize(t *testing.T) {
	verified := &model.VerificationStatus{Status: model.StatusVerified}
	results := []*worker.VerifyResult{
		{SchemeID: "a", Run: &model.RunResult{Status: verified}},
		{SchemeID: "b", Run: &model.RunResult{Status: verified}},
		{SchemeID: "c", Run: &model.RunResult{Err: errors.New("all sources failed")}},
		{SchemeID: "d", Error: errors.New("unknown scheme")},
	}

	s := summarize(results)
	if s.succeeded != 2 || s.failed != 2 {
		t.Errorf("succeeded=%d failed=%d", s.succeeded, s.failed)
	}
	if s.byStatus[model.StatusVerified] != 2 {
		t.Errorf("byStatus = %v", s.byStatus)
	}
}

func TestFlatten(t *testing.T) {
	got := map[string]any{}
	flatten("", map[string]any{
		"a": map[string]any{"b": 1, "c": map[string]any{"d": "x"}},
		"e": true,
	}, func(k string, v any) { got[k] = v })

	if len(got) != 3 || got["a.b"] != 1 || got["a.c.d"] != "x" || got["e"] != true {
		t.Errorf("flatten = %v", got)
	}
}
