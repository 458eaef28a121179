// Package email implements a notifier.Notifier that delivers alerts over SMTP.
package email

import (
	"context"
	"fmt"
	"net/smtp"
	"sort"
	"strings"

	"github.com/Strob0t/conductor/internal/port/notifier"
)

const providerName = "email"

// SMTPConfig holds the configuration for SMTP connections.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
	To       []string
}

// Notifier sends email notifications via SMTP.
type Notifier struct {
	cfg      SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewNotifier creates a new email notifier.
func NewNotifier(cfg SMTPConfig) *Notifier {
	return &Notifier{cfg: cfg, sendMail: smtp.SendMail}
}

func (n *Notifier) Name() string { return providerName }

func (n *Notifier) Capabilities() notifier.Capabilities {
	return notifier.Capabilities{RichFormatting: false}
}

// Send mails the notification. The subject is the notification title, which
// the alert engine renders as "[SEVERITY] message".
func (n *Notifier) Send(ctx context.Context, notification notifier.Notification) error {
	to := n.cfg.To
	if notification.Target != "" {
		to = splitList(notification.Target)
	}
	if n.cfg.Host == "" || n.cfg.From == "" || len(to) == 0 {
		return notifier.ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	msg := buildMessage(n.cfg.From, to, notification)

	var auth smtp.Auth
	if n.cfg.Password != "" {
		user := n.cfg.Username
		if user == "" {
			user = n.cfg.From
		}
		auth = smtp.PlainAuth("", user, n.cfg.Password, n.cfg.Host)
	}

	if err := n.sendMail(addr, auth, n.cfg.From, to, msg); err != nil {
		return fmt.Errorf("email send: %w", err)
	}
	return nil
}

func buildMessage(from string, to []string, notification notifier.Notification) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", notification.Title)
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(notification.Body)
	b.WriteString("\r\n")

	if len(notification.Data) > 0 {
		keys := make([]string, 0, len(notification.Data))
		for k := range notification.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\r\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %v\r\n", k, notification.Data[k])
		}
	}
	return []byte(b.String())
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
