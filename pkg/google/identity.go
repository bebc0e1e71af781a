package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/harrisonrobin/tasklink/pkg/model"
)

// UserLookup resolves local accounts by email.
type UserLookup interface {
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
}

// TokenInfoAuthenticator identifies interactive callers by asking Google who
// owns their access token. Only tokens issued to clientID are accepted.
type TokenInfoAuthenticator struct {
	log      *slog.Logger
	users    UserLookup
	clientID string
	opts     []option.ClientOption
}

func NewTokenInfoAuthenticator(log *slog.Logger, users UserLookup, clientID string, opts ...option.ClientOption) *TokenInfoAuthenticator {
	return &TokenInfoAuthenticator{log: log, users: users, clientID: clientID, opts: opts}
}

// Authenticate returns the local user owning accessToken. A rejected token
// is reported as model.ErrUnauthenticated; a tokeninfo outage is returned as
// a transient *APIError.
func (a *TokenInfoAuthenticator) Authenticate(ctx context.Context, accessToken string) (model.User, error) {
	if accessToken == "" {
		return model.User{}, fmt.Errorf("%w: missing access token", model.ErrUnauthenticated)
	}

	opts := append([]option.ClientOption{option.WithoutAuthentication()}, a.opts...)
	srv, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return model.User{}, fmt.Errorf("unable to create oauth2 service: %w", err)
	}

	info, err := srv.Tokeninfo().AccessToken(accessToken).Context(ctx).Do()
	if err != nil {
		wrapped := wrapError("tokeninfo", err)
		var apiErr *APIError
		if errors.As(wrapped, &apiErr) && apiErr.IsTransient() {
			a.log.Warn("tokeninfo unavailable", "error", err)
			return model.User{}, wrapped
		}
		a.log.Debug("tokeninfo rejected access token", "error", err)
		return model.User{}, fmt.Errorf("%w: %w", model.ErrUnauthenticated, wrapped)
	}
	if !a.issuedToClient(info) {
		a.log.Debug("access token issued to another client", "audience", info.Audience, "issued_to", info.IssuedTo)
		return model.User{}, fmt.Errorf("%w: token was not issued to this application", model.ErrUnauthenticated)
	}
	if info.Email == "" || !info.VerifiedEmail {
		return model.User{}, fmt.Errorf("%w: token carries no verified email", model.ErrUnauthenticated)
	}

	user, err := a.users.GetUserByEmail(ctx, info.Email)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.User{}, fmt.Errorf("%w: no account for %s", model.ErrUnauthenticated, info.Email)
		}
		return model.User{}, err
	}
	return user, nil
}

// issuedToClient requires every audience field tokeninfo reports to name
// clientID, and at least one to be present.
func (a *TokenInfoAuthenticator) issuedToClient(info *oauth2api.Tokeninfo) bool {
	if a.clientID == "" || (info.Audience == "" && info.IssuedTo == "") {
		return false
	}
	if info.Audience != "" && info.Audience != a.clientID {
		return false
	}
	if info.IssuedTo != "" && info.IssuedTo != a.clientID {
		return false
	}
	return true
}
