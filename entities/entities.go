// Package entities embeds the services plugin manifest and the service
// entity definition.
package entities

import (
	_ "embed"
	"fmt"

	"github.com/smartyellow/services/core/plugin"
	"github.com/smartyellow/services/core/schema"
)

//go:embed plugin.yaml
var manifestYAML []byte

//go:embed service.yaml
var serviceYAML []byte

// Manifest returns the services plugin manifest.
func Manifest() (*plugin.Manifest, error) {
	return plugin.Parse(manifestYAML)
}

// Service returns the service entity definition.
func Service() (schema.Entity, error) {
	ent, err := schema.Parse(serviceYAML)
	if err != nil {
		return schema.Entity{}, fmt.Errorf("service entity: %w", err)
	}
	return ent, nil
}

// ServiceYAML returns the raw service definition.
func ServiceYAML() []byte {
	out := make([]byte, len(serviceYAML))
	copy(out, serviceYAML)
	return out
}
