package config

import (
	"fmt"
	"os"
	"time"

	"action-limiter/actionlimit/domain"

	"gopkg.in/yaml.v3"
)

// Formato do arquivo:
//
//	policies:
//	  likeActions:
//	    limit: 30
//	    windowMs: 60000
//	  movieUpload:
//	    limit: 10
//	    window: 24h

type policyFile struct {
	Policies map[string]policyEntry `yaml:"policies"`
}

type policyEntry struct {
	Limit    int    `yaml:"limit"`
	WindowMs int64  `yaml:"windowMs"`
	Window   string `yaml:"window"`
}

func LoadPoliciesFile(path string) (domain.PolicyTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policies file: %w", err)
	}
	return ParsePolicies(raw)
}

// ParsePolicies aceita windowMs (inteiro) ou window (duração Go, ex: "1h").
func ParsePolicies(raw []byte) (domain.PolicyTable, error) {
	var f policyFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse policies: %w", err)
	}

	out := make(domain.PolicyTable, len(f.Policies))
	for name, e := range f.Policies {
		window := time.Duration(e.WindowMs) * time.Millisecond
		if e.Window != "" {
			d, err := time.ParseDuration(e.Window)
			if err != nil {
				return nil, fmt.Errorf("policy %q: window: %w", name, err)
			}
			window = d
		}
		p := domain.Policy{Limit: e.Limit, Window: window}
		if !p.Valid() {
			return nil, fmt.Errorf("policy %q: limit and window must be > 0", name)
		}
		out[domain.Category(name)] = p
	}
	return out, nil
}
