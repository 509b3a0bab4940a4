package objectstore

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/animus-labs/freezer/internal/platform/env"
)

// Config describes the bucket whose objects get tagged.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	PathStyle bool
	Bucket    string
}

// DefaultConfig targets AWS S3 over TLS.
func DefaultConfig() Config {
	return Config{
		Endpoint: "s3.amazonaws.com",
		Region:   "us-east-1",
		UseSSL:   true,
	}
}

// ConfigFromEnv overlays FREEZER_S3_* variables onto base.
func ConfigFromEnv(base Config) (Config, error) {
	cfg := base
	cfg.Endpoint = env.String("FREEZER_S3_ENDPOINT", base.Endpoint)
	cfg.AccessKey = env.String("FREEZER_S3_ACCESS_KEY", base.AccessKey)
	cfg.SecretKey = env.String("FREEZER_S3_SECRET_KEY", base.SecretKey)
	cfg.Region = env.String("FREEZER_S3_REGION", base.Region)
	cfg.Bucket = env.String("FREEZER_S3_BUCKET", base.Bucket)

	var err error
	if cfg.UseSSL, err = env.Bool("FREEZER_S3_USE_SSL", base.UseSSL); err != nil {
		return Config{}, err
	}
	if cfg.PathStyle, err = env.Bool("FREEZER_S3_PATH_STYLE", base.PathStyle); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// HasStaticKeys reports whether an access key pair was configured.
func (c Config) HasStaticKeys() bool {
	return c.AccessKey != "" && c.SecretKey != ""
}

func (c Config) Validate() error {
	var missing []string
	for name, value := range map[string]string{
		"endpoint": c.Endpoint,
		"region":   c.Region,
		"bucket":   c.Bucket,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("%s required", strings.Join(missing, ", "))
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return errors.New("access key and secret key must be set together")
	}
	return nil
}

