package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. BB_REDIS_ADDR.
const EnvPrefix = "BB_"

type Config struct {
	Server struct {
		Port string `yaml:"port" env:"PORT"`
	} `yaml:"server" envPrefix:"SERVER_"`
	Redis struct {
		Addr     string `yaml:"addr" env:"ADDR"`
		Password string `yaml:"password" env:"PASSWORD"`
		DB       int    `yaml:"db" env:"DB"`
		TTL      string `yaml:"ttl" env:"TTL"`
	} `yaml:"redis" envPrefix:"REDIS_"`
	Postgres struct {
		URL string `yaml:"url" env:"URL"`
	} `yaml:"postgres" envPrefix:"POSTGRES_"`
	Questions struct {
		TTL string `yaml:"ttl" env:"TTL"`
	} `yaml:"questions" envPrefix:"QUESTIONS_"`
	Match Match `yaml:"match" envPrefix:"MATCH_"`
}

// Match tunes the coordinator. Durations are Go duration strings.
type Match struct {
	DefaultQuestionSet string `yaml:"default_question_set" env:"DEFAULT_QUESTION_SET"`
	GracePeriod        string `yaml:"grace_period" env:"GRACE_PERIOD"`
	TickInterval       string `yaml:"tick_interval" env:"TICK_INTERVAL"`
	WrongAnswerPenalty int    `yaml:"wrong_answer_penalty" env:"WRONG_ANSWER_PENALTY"`
	TimeoutPenalty     int    `yaml:"timeout_penalty" env:"TIMEOUT_PENALTY"`
	CodeAttempts       int    `yaml:"code_attempts" env:"CODE_ATTEMPTS"`
	IdleTTL            string `yaml:"idle_ttl" env:"IDLE_TTL"`
	SweepInterval      string `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
	WriteQueue         int    `yaml:"write_queue" env:"WRITE_QUEUE"`
}

// Load reads YAML config from path, then applies BB_* environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	return fallback
}
