package alert

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ruleFile is the on-disk shape: a list under "rules". JSON and YAML files
// may also hold a single rule object.
type ruleFile struct {
	Rules []CreateRuleRequest `json:"rules" yaml:"rules" toml:"rules"`
}

// LoadRulesFromFile reads rule definitions from a JSON, YAML or TOML file.
func LoadRulesFromFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("read rule file %s: %w", path, err)
	}

	var (
		file   ruleFile
		single CreateRuleRequest
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &file)
	case ".json":
		if err = json.Unmarshal(data, &file); err == nil && len(file.Rules) == 0 {
			err = json.Unmarshal(data, &single)
		}
	default:
		if err = yaml.Unmarshal(data, &file); err == nil && len(file.Rules) == 0 {
			err = yaml.Unmarshal(data, &single)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("parse rule file %s: %w", path, err)
	}
	if len(file.Rules) == 0 && single.ID != "" {
		file.Rules = []CreateRuleRequest{single}
	}

	rules := make([]Rule, 0, len(file.Rules))
	for i := range file.Rules {
		r, err := file.Rules[i].Rule()
		if err != nil {
			return nil, fmt.Errorf("rule file %s: %w", path, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}
