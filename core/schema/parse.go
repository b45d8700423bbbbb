package schema

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseFile parses an entity definition from a YAML file.
func ParseFile(path string) (Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Entity{}, fmt.Errorf("read file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse parses an entity definition from YAML bytes and fills in field paths.
func Parse(data []byte) (Entity, error) {
	var ent Entity
	if err := yaml.Unmarshal(data, &ent); err != nil {
		return Entity{}, fmt.Errorf("parse yaml: %w", err)
	}

	if err := Check(&ent); err != nil {
		return Entity{}, fmt.Errorf("validate entity %q: %w", ent.Name, err)
	}

	return ent, nil
}

// Check validates an entity definition and fills in Path on every field
// and condition. All problems are reported together.
func Check(ent *Entity) error {
	var errs []error

	if ent.Name == "" {
		errs = append(errs, errors.New("entity name is required"))
	}
	if ent.Store == "" {
		errs = append(errs, errors.New("store is required"))
	}
	if len(ent.Fields) == 0 {
		errs = append(errs, errors.New("at least one field is required"))
	}

	errs = append(errs, checkFields(ent.Fields, "")...)

	seen := make(map[string]bool, len(ent.Fields))
	for _, f := range ent.Fields {
		seen[f.Key] = true
	}
	for i := range ent.Fields {
		c := ent.Fields[i].Condition
		if c != nil && c.Key != "" && !seen[c.Key] {
			errs = append(errs, fmt.Errorf("field %q: condition refers to unknown field %q", ent.Fields[i].Key, c.Key))
		}
	}

	return errors.Join(errs...)
}

func checkFields(fields []Field, prefix string) []error {
	var errs []error
	keys := make(map[string]bool, len(fields))

	for i := range fields {
		f := &fields[i]
		name := prefix + f.Key

		p, err := ParsePath(f.Key)
		if err != nil {
			errs = append(errs, fmt.Errorf("field %d: %w", i, err))
			continue
		}
		f.Path = p

		if keys[f.Key] {
			errs = append(errs, fmt.Errorf("duplicate field key %q", name))
		}
		keys[f.Key] = true

		if f.Type == "" {
			errs = append(errs, fmt.Errorf("field %q: type is required", name))
		} else if !f.Type.Valid() {
			errs = append(errs, fmt.Errorf("field %q: unknown type %q", name, f.Type))
		}

		if f.Type == TypeArray {
			if f.Of == nil {
				f.Of = &Element{Type: TypeString}
			}
			if !f.Of.Type.Valid() {
				errs = append(errs, fmt.Errorf("field %q: unknown element type %q", name, f.Of.Type))
			}
			if f.Of.Type == TypeObject {
				errs = append(errs, checkFields(f.Of.Fields, name+"[].")...)
			}
		}

		if f.Condition != nil {
			cp, err := ParsePath(f.Condition.Key)
			if err != nil {
				errs = append(errs, fmt.Errorf("field %q: condition: %w", name, err))
			} else {
				f.Condition.Path = cp
			}
		}

		if f.OnDataValid != nil && f.OnDataValid.Func == "" {
			errs = append(errs, fmt.Errorf("field %q: on_data_valid needs a function name", name))
		}

		for _, c := range f.Constraints {
			if err := c.Check(); err != nil {
				errs = append(errs, fmt.Errorf("field %q: %w", name, err))
			}
		}
	}

	return errs
}
