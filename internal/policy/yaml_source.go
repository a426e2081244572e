package policy

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlSource loads the rule set from a YAML file on disk. This is the
// gateway's default Source; operators who back the policy set with a
// database or admin API can supply their own Source implementation instead.
type yamlSource struct {
	path string
}

// NewFileSource builds a Source that re-reads path on every Load call, so
// operators can update the policy file between refresh ticks without
// restarting the gateway.
func NewFileSource(path string) Source {
	return &yamlSource{path: path}
}

type yamlRule struct {
	Pattern            string `yaml:"pattern"`
	Method             string `yaml:"method"`
	RequiredPermission string `yaml:"required_permission"`
	Public             bool   `yaml:"public"`
	Priority           int    `yaml:"priority"`
}

type yamlDocument struct {
	Rules []yamlRule `yaml:"rules"`
}

func (s *yamlSource) Load(_ context.Context) ([]Rule, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", s.path, err)
	}

	var doc yamlDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("policy: parse %s: %w", s.path, err)
	}

	rules := make([]Rule, 0, len(doc.Rules))
	for _, r := range doc.Rules {
		rules = append(rules, Rule{
			Pattern:            r.Pattern,
			Method:             r.Method,
			RequiredPermission: r.RequiredPermission,
			Public:             r.Public,
			Priority:           r.Priority,
		})
	}
	return rules, nil
}
