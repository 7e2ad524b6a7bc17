// Package settings loads reviewpipe's runtime configuration from an
// optional YAML file, a .env file and REVIEWPIPE_ environment variables.
package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nesting levels: REVIEWPIPE_CODEHOST__BASE_URL sets codehost.base_url.
const EnvPrefix = "REVIEWPIPE_"

// DefaultFile is read when no path is given.
const DefaultFile = "reviewpipe.yaml"

type Settings struct {
	Server    ServerSettings    `koanf:"server"`
	Log       LogSettings       `koanf:"log"`
	Tracing   TracingSettings   `koanf:"tracing"`
	Database  DatabaseSettings  `koanf:"database"`
	CodeHost  CodeHostSettings  `koanf:"codehost"`
	Kafka     KafkaSettings     `koanf:"kafka"`
	Approval  ApprovalSettings  `koanf:"approval"`
	Pipelines PipelinesSettings `koanf:"pipelines"`
}

type ServerSettings struct {
	Port int `koanf:"port"`
}

type LogSettings struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type TracingSettings struct {
	Exporter    string `koanf:"exporter"` // none, stdout
	ServiceName string `koanf:"service_name"`
}

type DatabaseSettings struct {
	DSN string `koanf:"dsn"`
}

type CodeHostSettings struct {
	BaseURL string        `koanf:"base_url"`
	Token   string        `koanf:"token"`
	Timeout time.Duration `koanf:"timeout"`
}

type KafkaSettings struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
	GroupID string   `koanf:"group_id"`
}

type ApprovalSettings struct {
	Concurrency int `koanf:"concurrency"`
}

// PipelinesSettings points at a YAML file overriding the built-in
// team and pull request pipeline definitions.
type PipelinesSettings struct {
	File string `koanf:"file"`
}

var defaults = map[string]any{
	"server.port":          8080,
	"log.level":            "info",
	"log.format":           "json",
	"tracing.exporter":     "none",
	"tracing.service_name": "reviewpipe",
	"codehost.timeout":     "30s",
	"kafka.topic":          "reviewpipe.approval-checks",
	"kafka.group_id":       "reviewpipe",
	"approval.concurrency": 4,
}

// LoadEnv reads a .env file into the process environment if one exists.
func LoadEnv(logger *slog.Logger) {
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found, using process environment")
	}
}

// Load reads path (DefaultFile when empty; a missing file is fine), applies
// environment overrides and fills defaults.
func Load(path string) (*Settings, error) {
	if path == "" {
		path = DefaultFile
	}
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}

	// Comma separated brokers are accepted from the environment.
	if raw, ok := k.Get("kafka.brokers").(string); ok {
		k.Set("kafka.brokers", splitList(raw))
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks values that cannot be defaulted.
func (s *Settings) Validate() error {
	if s.Server.Port <= 0 || s.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", s.Server.Port)
	}
	if s.Approval.Concurrency < 1 {
		return fmt.Errorf("approval.concurrency must be at least 1, got %d", s.Approval.Concurrency)
	}
	if s.CodeHost.Timeout < 0 {
		return fmt.Errorf("codehost.timeout must not be negative")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (s *Settings) Addr() string {
	return fmt.Sprintf(":%d", s.Server.Port)
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
