// Package sms implements a notifier.Notifier for a Twilio-compatible SMS
// REST API.
package sms

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Strob0t/conductor/internal/port/notifier"
)

const (
	providerName   = "sms"
	defaultBaseURL = "https://api.twilio.com/2010-04-01"
	maxBody        = 1600
)

// Config holds the SMS provider credentials.
type Config struct {
	BaseURL    string
	AccountSID string
	Token      string
	From       string
	To         string
}

// Notifier sends text messages through the provider's Messages endpoint.
type Notifier struct {
	cfg        Config
	httpClient *http.Client
}

// NewNotifier creates an SMS notifier.
func NewNotifier(cfg Config) *Notifier {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Notifier{cfg: cfg, httpClient: http.DefaultClient}
}

func (n *Notifier) Name() string { return providerName }

func (n *Notifier) Capabilities() notifier.Capabilities {
	return notifier.Capabilities{MaxLength: maxBody}
}

func (n *Notifier) Send(ctx context.Context, notification notifier.Notification) error {
	to := n.cfg.To
	if notification.Target != "" {
		to = notification.Target
	}
	if n.cfg.AccountSID == "" || n.cfg.Token == "" || n.cfg.From == "" || to == "" {
		return notifier.ErrNotConfigured
	}

	text := notification.Title
	if notification.Body != "" {
		text += "\n" + notification.Body
	}
	if len(text) > maxBody {
		text = text[:maxBody-3] + "..."
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", n.cfg.From)
	form.Set("Body", text)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", strings.TrimRight(n.cfg.BaseURL, "/"), url.PathEscape(n.cfg.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(n.cfg.AccountSID, n.cfg.Token)

	resp, err := n.httpClient.Do(req) //nolint:gosec // provider URL from trusted config
	if err != nil {
		return fmt.Errorf("sms send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sms API %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
