// Package auth resolves bearer credentials for the Google Tasks API and links
// external accounts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/harrisonrobin/tasklink/pkg/model"
)

var (
	ErrNoRefreshCredential = errors.New("no refresh credential stored for user")
	ErrTokenExchangeFailed = errors.New("refresh credential exchange failed")
)

// Credential is a short-lived bearer access credential. It is never persisted.
type Credential struct {
	AccessToken string
	Expiry      time.Time
}

// TokenSource returns a source that always yields this credential.
func (c Credential) TokenSource() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: c.AccessToken,
		TokenType:   "Bearer",
		Expiry:      c.Expiry,
	})
}

// RefreshTokenStore persists long-lived refresh credentials per user.
type RefreshTokenStore interface {
	GetRefreshToken(ctx context.Context, userID string) (string, error)
	SetRefreshToken(ctx context.Context, userID, token string) error
}

type Provider struct {
	log    *slog.Logger
	config *oauth2.Config
	tokens RefreshTokenStore
	cache  *TokenCache
}

func NewProvider(log *slog.Logger, config *oauth2.Config, tokens RefreshTokenStore) *Provider {
	return &Provider{
		log:    log,
		config: config,
		tokens: tokens,
		cache:  NewTokenCache(),
	}
}

// ResolveInteractive wraps a caller-supplied access token. No network call.
func (p *Provider) ResolveInteractive(accessToken string) (Credential, error) {
	if accessToken == "" {
		return Credential{}, fmt.Errorf("%w: access token is required", model.ErrInvalidArgument)
	}
	return Credential{AccessToken: accessToken}, nil
}

// ResolveScheduled exchanges the user's stored refresh credential for an
// access credential. A failed exchange is not worth retrying in the same tick.
func (p *Provider) ResolveScheduled(ctx context.Context, userID string) (Credential, error) {
	refreshToken, err := p.tokens.GetRefreshToken(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return Credential{}, fmt.Errorf("%w: %s", ErrNoRefreshCredential, userID)
		}
		return Credential{}, fmt.Errorf("load refresh credential of %s: %w", userID, err)
	}
	if refreshToken == "" {
		return Credential{}, fmt.Errorf("%w: %s", ErrNoRefreshCredential, userID)
	}

	source := p.cache.Get(userID, refreshToken)
	if source == nil {
		// The source outlives this call, so it must not inherit its cancellation.
		source = p.config.TokenSource(context.WithoutCancel(ctx), &oauth2.Token{RefreshToken: refreshToken})
		p.cache.Set(userID, refreshToken, source)
	}

	tok, err := source.Token()
	if err != nil {
		p.cache.Remove(userID)
		return Credential{}, fmt.Errorf("%w: user %s: %w", ErrTokenExchangeFailed, userID, err)
	}

	if tok.RefreshToken != "" && tok.RefreshToken != refreshToken {
		p.log.Info("refresh credential rotated, saving", "user_id", userID)
		if err := p.tokens.SetRefreshToken(ctx, userID, tok.RefreshToken); err != nil {
			p.log.Warn("could not save rotated refresh credential", "user_id", userID, "error", err)
		} else {
			p.cache.Set(userID, tok.RefreshToken, source)
		}
	}

	return Credential{AccessToken: tok.AccessToken, Expiry: tok.Expiry}, nil
}

// LinkAccount runs the consent flow for userID and stores the resulting
// refresh credential.
func (p *Provider) LinkAccount(ctx context.Context, userID string, prompt func(authURL string)) error {
	tok, err := ConsentFlow(ctx, p.log, p.config, prompt)
	if err != nil {
		return fmt.Errorf("consent flow: %w", err)
	}
	if err := p.tokens.SetRefreshToken(ctx, userID, tok.RefreshToken); err != nil {
		return fmt.Errorf("store refresh credential: %w", err)
	}
	p.cache.Remove(userID)
	return nil
}
