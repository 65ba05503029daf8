package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tessera-labs/tessera-go/internal/platform/env"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("TESSERA_S3_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:  env.String("TESSERA_S3_ENDPOINT", ""),
		AccessKey: env.String("TESSERA_S3_ACCESS_KEY", ""),
		SecretKey: env.String("TESSERA_S3_SECRET_KEY", ""),
		Region:    env.String("TESSERA_S3_REGION", "us-east-1"),
		UseSSL:    useSSL,
	}
	if !cfg.Configured() {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Configured reports whether object storage was set up at all. Without it
// the SDK still works; only s3 dataitem paths stop resolving.
func (c Config) Configured() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
