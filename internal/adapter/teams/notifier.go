// Package teams implements a notifier.Notifier for Microsoft Teams
// incoming webhooks using the MessageCard format.
package teams

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/Strob0t/conductor/internal/port/notifier"
)

const providerName = "teams"

// Notifier posts MessageCards to a Teams webhook.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
}

// NewNotifier creates a Teams notifier with the given webhook URL.
func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: http.DefaultClient,
	}
}

func (n *Notifier) Name() string { return providerName }

func (n *Notifier) Capabilities() notifier.Capabilities {
	return notifier.Capabilities{RichFormatting: true}
}

type messageCard struct {
	Type       string        `json:"@type"`
	Context    string        `json:"@context"`
	ThemeColor string        `json:"themeColor"`
	Summary    string        `json:"summary"`
	Sections   []cardSection `json:"sections"`
}

type cardSection struct {
	ActivityTitle string     `json:"activityTitle"`
	Text          string     `json:"text,omitempty"`
	Facts         []cardFact `json:"facts,omitempty"`
}

type cardFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (n *Notifier) Send(ctx context.Context, notification notifier.Notification) error {
	if n.webhookURL == "" {
		return notifier.ErrNotConfigured
	}

	section := cardSection{ActivityTitle: notification.Title, Text: notification.Body}
	keys := make([]string, 0, len(notification.Data))
	for k := range notification.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		section.Facts = append(section.Facts, cardFact{Name: k, Value: fmt.Sprint(notification.Data[k])})
	}

	card := messageCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: severityColor(notification.Severity),
		Summary:    notification.Title,
		Sections:   []cardSection{section},
	}
	body, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("teams marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("teams request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req) //nolint:gosec // webhook URL from trusted config
	if err != nil {
		return fmt.Errorf("teams send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("teams API %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func severityColor(severity string) string {
	switch severity {
	case "critical":
		return "8E44AD"
	case "high":
		return "E74C3C"
	case "medium":
		return "F39C12"
	default:
		return "3498DB"
	}
}
