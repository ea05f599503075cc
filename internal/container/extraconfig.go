package container

import (
	"encoding/json"
	"fmt"
)

// ExtraConfig is the optional, free-form per-run configuration
// attached to a run (spec §3, §4.2): a "required" block of features
// the driver must honour or fail fast on, plus recognised entries
// (sidecar containers, extra ports) merged into the pod spec in
// cluster mode.
type ExtraConfig struct {
	Required          []string           `json:"required,omitempty"`
	SidecarContainers []SidecarContainer `json:"sidecar_containers,omitempty"`
	ExtraPorts        []int              `json:"extra_ports,omitempty"`
}

// SidecarContainer is one additional container merged into the
// worker pod spec in cluster mode (internal/cluster handles the
// actual merge; the single-host driver parses these entries but does
// not start them).
type SidecarContainer struct {
	Name    string   `json:"name"`
	Image   string   `json:"image"`
	Command []string `json:"command,omitempty"`
}

// knownFeatures lists the required-block feature names this driver
// understands. Anything else in a run's "required" list fails the
// run immediately (spec §4.2 "extra_config handling").
var knownFeatures = map[string]bool{
	"sidecar_containers": true,
	"extra_ports":        true,
}

// ParseExtraConfig decodes raw JSON extra_config, or returns an empty
// ExtraConfig if raw is empty (the common case). Exported so the
// cluster scheduler can merge sidecar containers and extra ports into
// the pod spec without duplicating the decoding logic.
func ParseExtraConfig(raw []byte) (*ExtraConfig, error) {
	if len(raw) == 0 {
		return &ExtraConfig{}, nil
	}
	var cfg ExtraConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("invalid extra_config: %w", err)
	}
	return &cfg, nil
}

func parseExtraConfig(raw []byte) (*ExtraConfig, error) {
	return ParseExtraConfig(raw)
}

// ValidateRequiredFeatures fails if the run declares a required
// feature this driver doesn't implement (spec §4.2, §7 bundle error).
func (c *ExtraConfig) ValidateRequiredFeatures() error {
	for _, feat := range c.Required {
		if !knownFeatures[feat] {
			return fmt.Errorf("required feature %q is not supported by this driver", feat)
		}
	}
	return nil
}
