package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Constraint defines a validation rule for a field.
type Constraint struct {
	// Type is the constraint type (min_length, max_length, pattern, ...).
	Type ConstraintType `yaml:"type" json:"type"`

	// Value is the constraint parameter (number or regex pattern).
	Value any `yaml:"value" json:"value"`

	// Message is the custom error message (optional).
	Message string `yaml:"message,omitempty" json:"message,omitempty"`
}

// ConstraintType identifies the type of constraint.
type ConstraintType string

const (
	ConstraintMinLength ConstraintType = "min_length" // string length, per locale for stringsets
	ConstraintMaxLength ConstraintType = "max_length"
	ConstraintPattern   ConstraintType = "pattern"
	ConstraintNotEmpty  ConstraintType = "not_empty"
	ConstraintMaxItems  ConstraintType = "max_items" // array length
)

// Check rejects constraints that can never be evaluated.
func (c Constraint) Check() error {
	switch c.Type {
	case ConstraintMinLength, ConstraintMaxLength, ConstraintMaxItems:
		if _, err := toInt(c.Value); err != nil {
			return fmt.Errorf("%s: %w", c.Type, err)
		}
	case ConstraintPattern:
		s, ok := c.Value.(string)
		if !ok {
			return fmt.Errorf("pattern: value must be a string")
		}
		if _, err := regexp.Compile(s); err != nil {
			return fmt.Errorf("pattern: %w", err)
		}
	case ConstraintNotEmpty:
	default:
		return fmt.Errorf("unknown constraint type %q", c.Type)
	}
	return nil
}

// CheckConstraint evaluates one constraint against a value and returns the
// error message, or "" when the value satisfies it.
// Stringset values are checked per locale.
func CheckConstraint(value any, c Constraint) string {
	if set, ok := value.(map[string]any); ok && c.Type != ConstraintMaxItems {
		for _, v := range set {
			if msg := CheckConstraint(v, c); msg != "" {
				return msg
			}
		}
		return ""
	}

	switch c.Type {
	case ConstraintMinLength:
		return checkMinLength(value, c)
	case ConstraintMaxLength:
		return checkMaxLength(value, c)
	case ConstraintPattern:
		return checkPattern(value, c)
	case ConstraintNotEmpty:
		return checkNotEmpty(value, c)
	case ConstraintMaxItems:
		return checkMaxItems(value, c)
	default:
		return ""
	}
}

func checkMinLength(value any, c Constraint) string {
	minLen, err := toInt(c.Value)
	if err != nil {
		return ""
	}
	str, ok := value.(string)
	if !ok {
		return ""
	}
	if utf8.RuneCountInString(str) < minLen {
		return message(c, fmt.Sprintf("must be at least %d characters", minLen))
	}
	return ""
}

func checkMaxLength(value any, c Constraint) string {
	maxLen, err := toInt(c.Value)
	if err != nil {
		return ""
	}
	str, ok := value.(string)
	if !ok {
		return ""
	}
	if utf8.RuneCountInString(str) > maxLen {
		return message(c, fmt.Sprintf("must be at most %d characters", maxLen))
	}
	return ""
}

func checkPattern(value any, c Constraint) string {
	pattern, ok := c.Value.(string)
	if !ok {
		return ""
	}
	str, ok := value.(string)
	if !ok || str == "" {
		return ""
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return ""
	}
	if !re.MatchString(str) {
		return message(c, "does not match required pattern")
	}
	return ""
}

func checkNotEmpty(value any, c Constraint) string {
	str, ok := value.(string)
	if !ok {
		return ""
	}
	if strings.TrimSpace(str) == "" {
		return message(c, "must not be empty")
	}
	return ""
}

func checkMaxItems(value any, c Constraint) string {
	max, err := toInt(c.Value)
	if err != nil {
		return ""
	}
	items, ok := value.([]any)
	if !ok {
		return ""
	}
	if len(items) > max {
		return message(c, fmt.Sprintf("must hold at most %d items", max))
	}
	return ""
}

func message(c Constraint, fallback string) string {
	if c.Message != "" {
		return c.Message
	}
	return fallback
}

// toInt converts various types to int.
func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("cannot convert %T to int", v)
	}
}
