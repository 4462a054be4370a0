package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// SecurityRules extends the built-in abuse heuristics.
// Lists are easier to maintain in YAML than in env vars.
type SecurityRules struct {
	BotSignatures   []string `yaml:"bot_signatures"`   // case-insensitive user-agent substrings
	ContentPatterns []string `yaml:"content_patterns"` // regular expressions matched against submitted names
}

// LoadSecurityRules loads the YAML security rules file at path.
// Returns nil without error if the file doesn't exist.
func LoadSecurityRules(path string) (*SecurityRules, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Rules file is optional
			return nil, nil
		}
		return nil, err
	}

	var rules SecurityRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, err
	}

	return &rules, nil
}
