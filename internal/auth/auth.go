// Package auth supplies access tokens to the OCR and AI provider clients.
// Key material always arrives through configuration; nothing here reads the
// environment or the filesystem.
package auth

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Scopes used by the provider clients.
const (
	ScopeCloudPlatform = "https://www.googleapis.com/auth/cloud-platform"
	ScopeCloudVision   = "https://www.googleapis.com/auth/cloud-vision"
)

// ErrNoCredentials is returned when a provider has no key material.
var ErrNoCredentials = errors.New("no credentials configured")

// TokenProvider yields a bearer token for one provider. Implementations must
// be safe for concurrent use and cache tokens until shortly before expiry.
type TokenProvider interface {
	GetToken(ctx context.Context) (string, error)
}

// StaticKey is an API key used verbatim as the bearer token.
type StaticKey string

// GetToken implements TokenProvider.
func (k StaticKey) GetToken(context.Context) (string, error) {
	key := strings.TrimSpace(string(k))
	if key == "" {
		return "", ErrNoCredentials
	}
	return key, nil
}

// ServiceAccountProvider signs a JWT with a service-account key and exchanges
// it for an access token at the key's token endpoint.
type ServiceAccountProvider struct {
	email string
	ts    oauth2.TokenSource
}

// NewServiceAccountProvider parses service-account JSON key material.
func NewServiceAccountProvider(credentialsJSON []byte, scopes ...string) (*ServiceAccountProvider, error) {
	if len(credentialsJSON) == 0 {
		return nil, ErrNoCredentials
	}
	if len(scopes) == 0 {
		scopes = []string{ScopeCloudPlatform}
	}
	cfg, err := google.JWTConfigFromJSON(credentialsJSON, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}
	if cfg.Email == "" {
		return nil, errors.New("parse service account key: client_email is empty")
	}
	if err := checkPrivateKey(cfg.PrivateKey); err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}
	// the token source outlives any single request, so it is not bound to one
	return &ServiceAccountProvider{
		email: cfg.Email,
		ts:    oauth2.ReuseTokenSource(nil, cfg.TokenSource(context.Background())),
	}, nil
}

// checkPrivateKey fails fast on key material the token exchange would only
// reject at the first request.
func checkPrivateKey(key []byte) error {
	if len(key) == 0 {
		return errors.New("private_key is empty")
	}
	block, _ := pem.Decode(key)
	if block == nil {
		return errors.New("private_key is not PEM encoded")
	}
	if _, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return nil
	}
	if _, err := x509.ParsePKCS1PrivateKey(block.Bytes); err != nil {
		return fmt.Errorf("private_key: %w", err)
	}
	return nil
}

// Email is the service account's identity.
func (p *ServiceAccountProvider) Email() string { return p.email }

// GetToken implements TokenProvider.
func (p *ServiceAccountProvider) GetToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tok, err := p.ts.Token()
	if err != nil {
		return "", fmt.Errorf("fetch access token: %w", err)
	}
	return tok.AccessToken, nil
}

// TokenSource exposes the underlying oauth2 source for Google API clients.
func (p *ServiceAccountProvider) TokenSource() oauth2.TokenSource { return p.ts }

// TokenSourceAdapter adapts a TokenProvider to oauth2.TokenSource, so any
// provider can be handed to option.WithTokenSource.
type TokenSourceAdapter struct {
	provider TokenProvider
	ctx      context.Context
}

// NewTokenSource creates an oauth2.TokenSource from a TokenProvider.
func NewTokenSource(ctx context.Context, provider TokenProvider) oauth2.TokenSource {
	return &TokenSourceAdapter{provider: provider, ctx: ctx}
}

// Token implements oauth2.TokenSource.
func (t *TokenSourceAdapter) Token() (*oauth2.Token, error) {
	accessToken, err := t.provider.GetToken(t.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}, nil
}
