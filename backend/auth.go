package backend

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenProvider supplies the Authorization header value for backend
// requests.
type TokenProvider interface {
	AuthHeader(ctx context.Context) (string, error)
}

type staticToken string

func (t staticToken) AuthHeader(context.Context) (string, error) {
	return "Bearer " + string(t), nil
}

// StaticToken authenticates with a fixed bearer token.
func StaticToken(token string) (TokenProvider, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("token is required")
	}
	return staticToken(token), nil
}

type basicAuth string

func (b basicAuth) AuthHeader(context.Context) (string, error) {
	return "Basic " + string(b), nil
}

// BasicAuth authenticates with a username/password pair.
func BasicAuth(username, password string) (TokenProvider, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("username is required")
	}
	raw := username + ":" + password
	return basicAuth(base64.StdEncoding.EncodeToString([]byte(raw))), nil
}

type oidcTokens struct {
	source oauth2.TokenSource
}

func (o *oidcTokens) AuthHeader(ctx context.Context) (string, error) {
	token, err := o.source.Token()
	if err != nil {
		return "", fmt.Errorf("oidc token: %w", err)
	}
	return "Bearer " + token.AccessToken, nil
}

// OIDCClientCredentials authenticates through the issuer's token endpoint
// with the client-credentials grant. The endpoint is discovered from the
// issuer; tokens are cached and refreshed by the underlying source.
func OIDCClientCredentials(ctx context.Context, issuer, clientID, clientSecret string, scopes []string) (TokenProvider, error) {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, errors.New("oidc issuer is required")
	}
	if strings.TrimSpace(clientID) == "" {
		return nil, errors.New("oidc client id is required")
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: %w", err)
	}

	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     provider.Endpoint().TokenURL,
		Scopes:       scopes,
	}
	return &oidcTokens{source: cfg.TokenSource(ctx)}, nil
}
