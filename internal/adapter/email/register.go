package email

import (
	"fmt"
	"strconv"

	"github.com/Strob0t/conductor/internal/port/notifier"
)

func init() {
	notifier.Register(providerName, func(config map[string]string) (notifier.Notifier, error) {
		port := 587
		if p := config["port"]; p != "" {
			v, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("email: invalid port %q: %w", p, err)
			}
			port = v
		}
		cfg := SMTPConfig{
			Host:     config["host"],
			Port:     port,
			From:     config["from"],
			Username: config["username"],
			Password: config["password"],
			To:       splitList(config["target"]),
		}
		if cfg.Host == "" || cfg.From == "" {
			return nil, notifier.ErrNotConfigured
		}
		return NewNotifier(cfg), nil
	})
}
