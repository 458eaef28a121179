package httpagent

import (
	"fmt"

	"github.com/Strob0t/conductor/internal/port/agentbackend"
)

func init() {
	agentbackend.Register(transportName, func(config map[string]string) (agentbackend.Backend, error) {
		if config["endpoint"] == "" {
			return nil, fmt.Errorf("http agent %s: endpoint is required", config["agent_id"])
		}
		return NewBackend(config["agent_id"], config["endpoint"], agentbackend.Tools(config)), nil
	})
}
