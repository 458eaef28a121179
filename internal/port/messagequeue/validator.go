package messagequeue

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

var (
	errMissingType    = errors.New("missing type")
	errMissingAgentID = errors.New("missing agent_id")
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch {
	case strings.HasPrefix(subject, SubjectEvents+"."), strings.HasPrefix(subject, SubjectIngest+"."):
		var p EventPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.Type == "" {
			return fmt.Errorf("schema validation failed for %s: %w", subject, errMissingType)
		}
	case subject == SubjectHeartbeat:
		var p HeartbeatPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.AgentID == "" {
			return fmt.Errorf("schema validation failed for %s: %w", subject, errMissingAgentID)
		}
	case strings.HasPrefix(subject, SubjectAgentCall+"."):
		var p AgentCallPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
	}
	return nil
}
