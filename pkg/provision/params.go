package provision

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadParams reads an environment parameter document. The document is YAML
// (JSON is accepted, being a YAML subset) and decodes straight into the flat
// parameter contract.
func LoadParams(path string) (EnvironmentParams, error) {
	var params EnvironmentParams
	raw, err := os.ReadFile(path)
	if err != nil {
		return params, fmt.Errorf("cannot read environment parameters '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &params); err != nil {
		return params, fmt.Errorf("cannot parse environment parameters '%s': %w", path, err)
	}
	return params, nil
}
