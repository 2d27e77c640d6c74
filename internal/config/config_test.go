package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sample = `
server:
  port: "9090"
redis:
  addr: localhost:6379
  ttl: 5m
match:
  default_question_set: default
  grace_period: 2s
  wrong_answer_penalty: 30
`

func TestLoadFileWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("BB_REDIS_ADDR", "redis:6380")
	t.Setenv("BB_MATCH_TIMEOUT_PENALTY", "10")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Match.DefaultQuestionSet != "default" || cfg.Match.WrongAnswerPenalty != 30 {
		t.Fatalf("file values not loaded: %+v", cfg)
	}
	if cfg.Redis.Addr != "redis:6380" || cfg.Match.TimeoutPenalty != 10 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if Duration(cfg.Redis.TTL, time.Minute) != 5*time.Minute {
		t.Fatalf("unexpected ttl %q", cfg.Redis.TTL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"":      time.Second,
		"bogus": time.Second,
		"-3s":   time.Second,
		"250ms": 250 * time.Millisecond,
	}
	for raw, want := range cases {
		if got := Duration(raw, time.Second); got != want {
			t.Fatalf("Duration(%q) = %v, want %v", raw, got, want)
		}
	}
}
