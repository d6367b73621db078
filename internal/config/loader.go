package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// varPattern matches ${VAR} and ${VAR:-default} references in raw YAML.
var varPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Load reads the YAML configuration at path, substitutes environment
// variable references, and decodes the result. Secrets like the Lark app
// secret and the gateway token are normally injected this way rather than
// written into the file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	expanded, err := substituteVars(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// substituteVars resolves every ${VAR} and ${VAR:-default} reference. A
// reference with neither an environment value nor a default is an error;
// all unresolved names are reported together.
func substituteVars(raw []byte) ([]byte, error) {
	var unresolved []error

	result := varPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		groups := varPattern.FindSubmatch(match)
		name := string(groups[1])

		if value, ok := os.LookupEnv(name); ok {
			return []byte(value)
		}
		if groups[2] != nil {
			return groups[2]
		}

		unresolved = append(unresolved, fmt.Errorf("unresolved variable: %s", name))
		return match
	})

	return result, errors.Join(unresolved...)
}
