package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/tasks/v1"
)

const (
	// LocalhostAuthPort is the port the consent flow listens on to capture
	// the OAuth redirect.
	LocalhostAuthPort = "6789"

	consentTimeout = 5 * time.Minute
)

// Scopes are the OAuth scopes requested when linking an external account.
var Scopes = []string{tasks.TasksScope}

// LoadConfig creates an oauth2.Config from a downloaded client secrets file.
func LoadConfig(log *slog.Logger, clientSecretsFile string, scopes ...string) (*oauth2.Config, error) {
	b, err := os.ReadFile(clientSecretsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file %s: %w", clientSecretsFile, err)
	}
	return ConfigFromJSON(log, b, scopes...)
}

// ConfigFromJSON parses client secrets and forces localhost redirects onto
// LocalhostAuthPort so the consent flow can capture them.
func ConfigFromJSON(log *slog.Logger, b []byte, scopes ...string) (*oauth2.Config, error) {
	if len(scopes) == 0 {
		scopes = Scopes
	}
	config, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}

	if config.RedirectURL == "urn:ietf:wg:oauth:2.0:oob" || config.RedirectURL == "" {
		config.RedirectURL = fmt.Sprintf("http://localhost:%s/oauth2callback", LocalhostAuthPort)
		return config, nil
	}

	parsedURL, err := url.Parse(config.RedirectURL)
	if err != nil {
		log.Warn("could not parse redirect URL, using it as is", "redirect_url", config.RedirectURL, "error", err)
		return config, nil
	}
	if parsedURL.Hostname() == "localhost" || parsedURL.Hostname() == "127.0.0.1" {
		if parsedURL.Port() != LocalhostAuthPort {
			parsedURL.Host = net.JoinHostPort(parsedURL.Hostname(), LocalhostAuthPort)
			config.RedirectURL = parsedURL.String()
			log.Debug("forcing localhost redirect port", "redirect_url", config.RedirectURL)
		}
	} else {
		log.Warn("redirect URL is not a localhost callback; make sure it is reachable", "redirect_url", config.RedirectURL)
	}
	return config, nil
}

// ConsentFlow runs the authorization code flow through a local web server and
// returns a token carrying a refresh credential. The caller prints or opens
// the URL passed to prompt.
func ConsentFlow(ctx context.Context, log *slog.Logger, config *oauth2.Config, prompt func(authURL string)) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	state := uuid.NewString()

	listener, err := net.Listen("tcp", ":"+LocalhostAuthPort)
	if err != nil {
		return nil, fmt.Errorf("failed to start listener on port %s: %w", LocalhostAuthPort, err)
	}
	defer listener.Close()

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("state") != state {
				http.Error(w, "State mismatch", http.StatusBadRequest)
				return
			}
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Authorization code not found", http.StatusBadRequest)
				select {
				case errCh <- errors.New("authorization code not found in redirect URL"):
				default:
				}
				return
			}
			fmt.Fprintf(w, "Account linked! You can close this window.")
			// Only the first redirect counts; repeats must not block the handler.
			select {
			case codeCh <- code:
			default:
			}
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	defer server.Shutdown(context.Background())

	go func() {
		log.Info("listening for OAuth2 redirect", "redirect_url", config.RedirectURL)
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// AccessTypeOffline plus a forced consent prompt guarantees a refresh token.
	prompt(config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent")))

	select {
	case code := <-codeCh:
		exchangeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		tok, err := config.Exchange(exchangeCtx, code)
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve token from Google: %w", err)
		}
		if tok.RefreshToken == "" {
			return nil, errors.New("provider did not return a refresh token")
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(consentTimeout):
		return nil, errors.New("authorization timed out, please try again")
	}
}
