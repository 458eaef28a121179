package sms

import "github.com/Strob0t/conductor/internal/port/notifier"

func init() {
	notifier.Register(providerName, func(config map[string]string) (notifier.Notifier, error) {
		cfg := Config{
			BaseURL:    config["url"],
			AccountSID: config["account_sid"],
			Token:      config["token"],
			From:       config["from"],
			To:         config["target"],
		}
		if cfg.AccountSID == "" || cfg.Token == "" {
			return nil, notifier.ErrNotConfigured
		}
		return NewNotifier(cfg), nil
	})
}
