// Package plugin describes a plugin: its features, the requirements between
// them and the settings it accepts.
package plugin

import (
	"errors"
	"fmt"
	"strings"

	"github.com/smartyellow/services/ports"
	"gopkg.in/yaml.v3"
)

// Manifest is a plugin declaration.
type Manifest struct {
	// ID qualifies feature names and topics, e.g. "smartyellow/services".
	ID       string            `yaml:"id"`
	Name     string            `yaml:"name"`
	Purpose  string            `yaml:"purpose,omitempty"`
	Version  string            `yaml:"version"`
	Author   string            `yaml:"author,omitempty"`
	Vendor   string            `yaml:"vendor,omitempty"`
	Requires []string          `yaml:"requires,omitempty"`
	Features []Feature         `yaml:"features"`
	Settings []Setting         `yaml:"settings,omitempty"`
	Entities map[string]string `yaml:"entities,omitempty"`
}

// Feature is a permission a user may hold.
type Feature struct {
	Name        string       `yaml:"name" json:"name"`
	Description string       `yaml:"description,omitempty" json:"description,omitempty"`
	Requires    Requirements `yaml:"requires,omitempty" json:"requires,omitempty"`
}

// Requirements lists groups of features. Every group must be satisfied; a
// group is satisfied by any one of its features.
type Requirements [][]string

// UnmarshalYAML accepts a single name, or a list whose items are names or
// lists of alternatives.
func (r *Requirements) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*r = Requirements{{node.Value}}
		return nil
	case yaml.SequenceNode:
		out := make(Requirements, 0, len(node.Content))
		for _, item := range node.Content {
			switch item.Kind {
			case yaml.ScalarNode:
				out = append(out, []string{item.Value})
			case yaml.SequenceNode:
				var group []string
				if err := item.Decode(&group); err != nil {
					return err
				}
				out = append(out, group)
			default:
				return fmt.Errorf("line %d: requirement must be a name or a list of names", item.Line)
			}
		}
		*r = out
		return nil
	}
	return fmt.Errorf("line %d: requires must be a name or a list", node.Line)
}

// Setting declares one plugin setting.
type Setting struct {
	Key     string `yaml:"key" json:"key"`
	Type    string `yaml:"type" json:"type"` // string or keys
	Label   string `yaml:"label,omitempty" json:"label,omitempty"`
	Default any    `yaml:"default,omitempty" json:"default,omitempty"`
}

// Parse reads a manifest from YAML and checks it.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Check(); err != nil {
		return nil, fmt.Errorf("manifest %q: %w", m.ID, err)
	}
	return &m, nil
}

// Check reports every problem with the manifest.
func (m *Manifest) Check() error {
	var errs []error
	if m.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if m.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}

	known := make(map[string]bool, len(m.Features))
	for _, f := range m.Features {
		if f.Name == "" {
			errs = append(errs, errors.New("feature without name"))
			continue
		}
		if known[f.Name] {
			errs = append(errs, fmt.Errorf("duplicate feature %q", f.Name))
		}
		known[f.Name] = true
	}
	for _, f := range m.Features {
		for _, group := range f.Requires {
			if len(group) == 0 {
				errs = append(errs, fmt.Errorf("feature %q: empty requirement group", f.Name))
			}
			for _, name := range group {
				if !known[name] {
					errs = append(errs, fmt.Errorf("feature %q requires unknown feature %q", f.Name, name))
				}
			}
		}
	}

	for _, s := range m.Settings {
		if s.Type != "string" && s.Type != "keys" {
			errs = append(errs, fmt.Errorf("setting %q: unknown type %q", s.Key, s.Type))
		}
	}
	return errors.Join(errs...)
}

// Feature returns the feature with the given name.
func (m *Manifest) Feature(name string) (Feature, bool) {
	for _, f := range m.Features {
		if f.Name == name {
			return f, true
		}
	}
	return Feature{}, false
}

// Qualified returns the feature name as users hold it.
func (m *Manifest) Qualified(feature string) string {
	return m.ID + "/" + feature
}

// Topic returns a topic below the plugin id.
func (m *Manifest) Topic(name string) string {
	return m.ID + "/" + name
}

// Can reports whether u holds feature and everything it requires.
func (m *Manifest) Can(u ports.User, feature string) bool {
	return m.can(u, feature, make(map[string]bool))
}

// CanAny reports whether u can use at least one of the features.
func (m *Manifest) CanAny(u ports.User, features ...string) bool {
	for _, f := range features {
		if m.Can(u, f) {
			return true
		}
	}
	return false
}

func (m *Manifest) can(u ports.User, feature string, visiting map[string]bool) bool {
	if visiting[feature] {
		return false
	}
	f, ok := m.Feature(feature)
	if !ok || !holds(u, m.Qualified(feature)) {
		return false
	}
	visiting[feature] = true
	defer delete(visiting, feature)

	for _, group := range f.Requires {
		satisfied := false
		for _, alt := range group {
			if m.can(u, alt, visiting) {
				satisfied = true
				break
			}
		}
		if !satisfied {
			return false
		}
	}
	return true
}

func holds(u ports.User, qualified string) bool {
	for _, f := range u.Features {
		if strings.EqualFold(f, qualified) {
			return true
		}
	}
	return false
}

// Defaults returns the default value of every setting.
func (m *Manifest) Defaults() map[string]any {
	out := make(map[string]any, len(m.Settings))
	for _, s := range m.Settings {
		switch {
		case s.Default != nil:
			out[s.Key] = s.Default
		case s.Type == "keys":
			out[s.Key] = map[string]any{}
		default:
			out[s.Key] = ""
		}
	}
	return out
}

// Apply overlays configured settings on the defaults. Unknown keys are
// reported.
func (m *Manifest) Apply(configured map[string]any) (map[string]any, error) {
	out := m.Defaults()
	var errs []error
	for k, v := range configured {
		if _, ok := out[k]; !ok {
			errs = append(errs, fmt.Errorf("unknown setting %q", k))
			continue
		}
		out[k] = v
	}
	return out, errors.Join(errs...)
}
