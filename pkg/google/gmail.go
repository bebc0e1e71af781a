package google

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"strings"
	"sync"

	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailDialer opens an authenticated Gmail service.
type GmailDialer func(ctx context.Context) (*gmail.Service, error)

// ServiceAccountDialer returns a dialer that impersonates sender through a
// domain-wide delegated service account key.
func ServiceAccountDialer(keyFile, sender string, opts ...option.ClientOption) GmailDialer {
	return func(ctx context.Context) (*gmail.Service, error) {
		b, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key: %w", err)
		}
		cfg, err := googleoauth.JWTConfigFromJSON(b, gmail.GmailSendScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}
		cfg.Subject = sender

		// The service is cached past this call.
		ts := cfg.TokenSource(context.WithoutCancel(ctx))
		srv, err := gmail.NewService(ctx, append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)...)
		if err != nil {
			return nil, fmt.Errorf("unable to create Gmail service: %w", err)
		}
		return srv, nil
	}
}

// GmailMailer sends HTML mail from a fixed sender. The underlying service is
// built on first use and dropped after any failed send so the next send
// starts from a fresh handle.
type GmailMailer struct {
	log    *slog.Logger
	sender string
	dial   GmailDialer

	mu  sync.Mutex
	srv *gmail.Service
}

func NewGmailMailer(log *slog.Logger, sender string, dial GmailDialer) *GmailMailer {
	return &GmailMailer{log: log, sender: sender, dial: dial}
}

func (m *GmailMailer) Send(ctx context.Context, to, subject, html string) error {
	srv, err := m.service(ctx)
	if err != nil {
		return err
	}

	raw := base64.URLEncoding.EncodeToString(buildMessage(m.sender, to, subject, html))
	if _, err := srv.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do(); err != nil {
		m.Invalidate()
		return wrapError("send mail", err)
	}
	return nil
}

// Invalidate drops the cached service.
func (m *GmailMailer) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.srv != nil {
		m.log.Debug("dropping cached gmail service")
	}
	m.srv = nil
}

func (m *GmailMailer) service(ctx context.Context) (*gmail.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.srv != nil {
		return m.srv, nil
	}
	srv, err := m.dial(ctx)
	if err != nil {
		return nil, err
	}
	m.srv = srv
	return srv, nil
}

func buildMessage(from, to, subject, html string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", headerValue(from))
	fmt.Fprintf(&b, "To: %s\r\n", headerValue(to))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.BEncoding.Encode("UTF-8", headerValue(subject)))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")

	body := base64.StdEncoding.EncodeToString([]byte(html))
	for len(body) > 76 {
		b.WriteString(body[:76])
		b.WriteString("\r\n")
		body = body[76:]
	}
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// headerValue strips line breaks so a value cannot inject headers.
func headerValue(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}
