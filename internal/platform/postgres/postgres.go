// Package postgres opens the optional ledger database through pgx's
// database/sql adapter.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/animus-labs/freezer/internal/platform/env"
)

const applicationName = "freezer"

type Config struct {
	URL          string
	PingTimeout  time.Duration
	MaxOpenConns int
	MaxIdleTime  time.Duration
}

// ConfigFromEnv returns ok=false when neither FREEZER_DATABASE_URL nor
// defaultURL is set.
func ConfigFromEnv(defaultURL string) (Config, bool, error) {
	cfg := Config{URL: env.String("FREEZER_DATABASE_URL", defaultURL)}
	if strings.TrimSpace(cfg.URL) == "" {
		return Config{}, false, nil
	}

	var err error
	if cfg.PingTimeout, err = env.Duration("FREEZER_DATABASE_PING_TIMEOUT", 2*time.Second); err != nil {
		return Config{}, false, err
	}
	if cfg.MaxOpenConns, err = env.Int("FREEZER_DATABASE_MAX_OPEN_CONNS", 2); err != nil {
		return Config{}, false, err
	}
	if cfg.MaxIdleTime, err = env.Duration("FREEZER_DATABASE_MAX_IDLE_TIME", 5*time.Minute); err != nil {
		return Config{}, false, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, false, err
	}
	return cfg, true, nil
}

func (c Config) Validate() error {
	if _, err := c.connConfig(); err != nil {
		return err
	}
	switch {
	case c.PingTimeout <= 0:
		return fmt.Errorf("FREEZER_DATABASE_PING_TIMEOUT must be positive, got %s", c.PingTimeout)
	case c.MaxOpenConns < 1:
		return fmt.Errorf("FREEZER_DATABASE_MAX_OPEN_CONNS must be >= 1, got %d", c.MaxOpenConns)
	case c.MaxIdleTime < 0:
		return fmt.Errorf("FREEZER_DATABASE_MAX_IDLE_TIME must be >= 0, got %s", c.MaxIdleTime)
	}
	return nil
}

func (c Config) connConfig() (*pgx.ConnConfig, error) {
	cc, err := pgx.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("FREEZER_DATABASE_URL: %w", err)
	}
	if _, ok := cc.RuntimeParams["application_name"]; !ok {
		cc.RuntimeParams["application_name"] = applicationName
	}
	return cc, nil
}

// Open connects and pings within cfg.PingTimeout. A pass writes a handful of
// rows, so the pool stays small and idle connections are dropped.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cc, err := cfg.connConfig()
	if err != nil {
		return nil, err
	}

	db := stdlib.OpenDB(*cc)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cc.Host, err)
	}
	return db, nil
}
