package objectstore

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// NewClient builds a minio client for cfg. Static keys win; without them the
// client falls back to the environment, the shared credentials file and then
// the instance role.
func NewClient(cfg Config) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	lookup := minio.BucketLookupAuto
	if cfg.PathStyle {
		lookup = minio.BucketLookupPath
	}
	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentialsFor(cfg),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: lookup,
		Transport:    tagTransport(),
	})
}

func credentialsFor(cfg Config) *credentials.Credentials {
	if cfg.HasStaticKeys() {
		return credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	}
	return credentials.NewChainCredentials([]credentials.Provider{
		&credentials.EnvAWS{},
		&credentials.FileAWSCredentials{},
		&credentials.IAM{Client: &http.Client{Transport: http.DefaultTransport}},
	})
}

// CheckBucket fails when the configured bucket is missing or unreachable.
// Buckets are never created here.
func CheckBucket(ctx context.Context, client *minio.Client, cfg Config) error {
	ok, err := client.BucketExists(ctx, cfg.Bucket)
	switch {
	case err != nil:
		return fmt.Errorf("probe bucket %s: %w", cfg.Bucket, err)
	case !ok:
		return fmt.Errorf("bucket %s does not exist", cfg.Bucket)
	}
	return nil
}

// Tagging issues many tiny requests against one host, so idle connections
// are kept per host rather than pooled globally.
func tagTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}
