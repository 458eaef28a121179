package teams

import "github.com/Strob0t/conductor/internal/port/notifier"

func init() {
	notifier.Register(providerName, func(config map[string]string) (notifier.Notifier, error) {
		if config["url"] == "" {
			return nil, notifier.ErrNotConfigured
		}
		return NewNotifier(config["url"]), nil
	})
}
