// Package config assembles the freezer configuration from an optional YAML
// file and FREEZER_* environment variables. Environment values win.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/animus-labs/freezer/internal/notify"
	"github.com/animus-labs/freezer/internal/platform/env"
	"github.com/animus-labs/freezer/internal/platform/objectstore"
)

const (
	StateBackendFile   = "file"
	StateBackendSQLite = "sqlite"
)

// File is the YAML document accepted by --config.
type File struct {
	MountPath string `yaml:"mountPath"`
	ScanRoot  string `yaml:"scanRoot"`
	LogLevel  string `yaml:"logLevel"`

	S3 struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"accessKey"`
		SecretKey string `yaml:"secretKey"`
		Region    string `yaml:"region"`
		UseSSL    *bool  `yaml:"useSSL"`
		PathStyle bool   `yaml:"pathStyle"`
		Bucket    string `yaml:"bucket"`
	} `yaml:"s3"`

	State struct {
		Backend string `yaml:"backend"`
		DSN     string `yaml:"dsn"`
	} `yaml:"state"`

	Telegram struct {
		Token  string `yaml:"token"`
		ChatID string `yaml:"chatId"`
		APIURL string `yaml:"apiUrl"`
	} `yaml:"telegram"`

	DatabaseURL string `yaml:"databaseUrl"`

	Watch struct {
		Interval string `yaml:"interval"`
		Addr     string `yaml:"addr"`
	} `yaml:"watch"`
}

// LoadFile reads a YAML config file. An empty path yields an empty File.
func LoadFile(path string) (File, error) {
	var f File
	if strings.TrimSpace(path) == "" {
		return f, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return f, nil
}

// Namespace locates the local mirror and its state records.
type Namespace struct {
	MountPath    string
	ScanRoot     string
	StateBackend string
	StateDSN     string
}

func NamespaceFromEnv(f File) (Namespace, error) {
	cfg := Namespace{
		MountPath:    env.String("FREEZER_MOUNT_PATH", f.MountPath),
		ScanRoot:     env.String("FREEZER_SCAN_ROOT", orDefault(f.ScanRoot, "/")),
		StateBackend: env.String("FREEZER_STATE_BACKEND", orDefault(f.State.Backend, StateBackendFile)),
		StateDSN:     env.String("FREEZER_STATE_DSN", f.State.DSN),
	}
	if err := cfg.Validate(); err != nil {
		return Namespace{}, err
	}
	cfg.MountPath = filepath.Clean(cfg.MountPath)
	return cfg, nil
}

func (c Namespace) Validate() error {
	if strings.TrimSpace(c.MountPath) == "" {
		return errors.New("FREEZER_MOUNT_PATH is required")
	}
	if !filepath.IsAbs(c.MountPath) {
		return fmt.Errorf("FREEZER_MOUNT_PATH must be absolute: %q", c.MountPath)
	}
	switch c.StateBackend {
	case StateBackendFile:
	case StateBackendSQLite:
		if strings.TrimSpace(c.StateDSN) == "" {
			return errors.New("FREEZER_STATE_DSN is required for the sqlite state backend")
		}
	default:
		return fmt.Errorf("unknown FREEZER_STATE_BACKEND %q", c.StateBackend)
	}
	return nil
}

func S3Base(f File) objectstore.Config {
	cfg := objectstore.DefaultConfig()
	cfg.Endpoint = orDefault(f.S3.Endpoint, cfg.Endpoint)
	cfg.AccessKey = f.S3.AccessKey
	cfg.SecretKey = f.S3.SecretKey
	cfg.Region = orDefault(f.S3.Region, cfg.Region)
	cfg.Bucket = f.S3.Bucket
	cfg.PathStyle = f.S3.PathStyle
	if f.S3.UseSSL != nil {
		cfg.UseSSL = *f.S3.UseSSL
	}
	return cfg
}

func TelegramBase(f File) notify.TelegramConfig {
	return notify.TelegramConfig{
		Token:   f.Telegram.Token,
		ChatID:  f.Telegram.ChatID,
		BaseURL: f.Telegram.APIURL,
	}
}

type Watch struct {
	Interval time.Duration
	Addr     string
}

func WatchFromEnv(f File) (Watch, error) {
	def := 15 * time.Minute
	if strings.TrimSpace(f.Watch.Interval) != "" {
		d, err := time.ParseDuration(f.Watch.Interval)
		if err != nil {
			return Watch{}, fmt.Errorf("parse watch.interval: %w", err)
		}
		def = d
	}
	interval, err := env.Duration("FREEZER_WATCH_INTERVAL", def)
	if err != nil {
		return Watch{}, err
	}
	if interval <= 0 {
		return Watch{}, errors.New("FREEZER_WATCH_INTERVAL must be positive")
	}
	return Watch{
		Interval: interval,
		Addr:     env.String("FREEZER_HTTP_ADDR", orDefault(f.Watch.Addr, ":8090")),
	}, nil
}

func LogLevel(f File) string {
	return env.String("FREEZER_LOG_LEVEL", orDefault(f.LogLevel, "info"))
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
