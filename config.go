package tessera

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tessera-labs/tessera-go/backend"
	"github.com/tessera-labs/tessera-go/internal/platform/env"
	"github.com/tessera-labs/tessera-go/internal/platform/objectstore"
	"github.com/tessera-labs/tessera-go/internal/platform/postgres"
)

// Config collects everything the client needs. Only Endpoint switches the
// SDK out of local mode; Warehouse and ObjectStore enable the transform
// runtime and s3 dataitem paths respectively.
type Config struct {
	// Endpoint is the platform API base URL. Empty keeps the SDK local:
	// entities live in memory and runs cannot be built or persisted.
	Endpoint string

	// AuthToken, Username/Password and the OIDC fields select the
	// authentication scheme, in that order of precedence when several are
	// set. All empty means anonymous requests.
	AuthToken        string
	Username         string
	Password         string
	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCScopes       []string

	// Timeout bounds each API request. Zero means 30s.
	Timeout time.Duration
	// CacheSize bounds the read-through entity cache. Zero means 256.
	CacheSize int

	Warehouse   postgres.Config
	ObjectStore objectstore.Config

	// Logger receives structured logs. Nil means JSON to stdout.
	Logger *slog.Logger
}

// ConfigFromEnv loads the configuration from TESSERA_* environment
// variables, reading a .env file first when one is present.
func ConfigFromEnv() (Config, error) {
	_ = godotenv.Load()

	timeout, err := env.Duration("TESSERA_TIMEOUT", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	cacheSize, err := env.Int("TESSERA_CACHE_SIZE", 256)
	if err != nil {
		return Config{}, err
	}
	warehouse, err := postgres.ConfigFromEnv()
	if err != nil {
		return Config{}, err
	}
	objects, err := objectstore.ConfigFromEnv()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Endpoint:         env.String("TESSERA_ENDPOINT", ""),
		AuthToken:        env.String("TESSERA_AUTH_TOKEN", ""),
		Username:         env.String("TESSERA_AUTH_USERNAME", ""),
		Password:         env.String("TESSERA_AUTH_PASSWORD", ""),
		OIDCIssuer:       env.String("TESSERA_OIDC_ISSUER", ""),
		OIDCClientID:     env.String("TESSERA_OIDC_CLIENT_ID", ""),
		OIDCClientSecret: env.String("TESSERA_OIDC_CLIENT_SECRET", ""),
		Timeout:          timeout,
		CacheSize:        cacheSize,
		Warehouse:        warehouse,
		ObjectStore:      objects,
	}
	if scopes := strings.TrimSpace(env.String("TESSERA_OIDC_SCOPES", "")); scopes != "" {
		cfg.OIDCScopes = strings.Fields(scopes)
	}
	return cfg, nil
}

// tokens builds the token provider for the configured auth scheme.
func (c Config) tokens(ctx context.Context) (backend.TokenProvider, error) {
	switch {
	case strings.TrimSpace(c.AuthToken) != "":
		return backend.StaticToken(c.AuthToken)
	case strings.TrimSpace(c.Username) != "":
		return backend.BasicAuth(c.Username, c.Password)
	case strings.TrimSpace(c.OIDCIssuer) != "":
		return backend.OIDCClientCredentials(ctx, c.OIDCIssuer, c.OIDCClientID, c.OIDCClientSecret, c.OIDCScopes)
	default:
		return nil, nil
	}
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}
