package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckConstraint(t *testing.T) {
	tests := []struct {
		name  string
		value any
		c     Constraint
		want  bool // true when an error is expected
	}{
		{"pattern ok", "abc123", Constraint{Type: ConstraintPattern, Value: "^[a-z0-9]{6}$"}, false},
		{"pattern fail", "ABC", Constraint{Type: ConstraintPattern, Value: "^[a-z0-9]{6}$"}, true},
		{"pattern skips empty", "", Constraint{Type: ConstraintPattern, Value: "^x$"}, false},
		{"min length", "ab", Constraint{Type: ConstraintMinLength, Value: 3}, true},
		{"max length runes", "ééé", Constraint{Type: ConstraintMaxLength, Value: 3}, false},
		{"max length fail", "abcd", Constraint{Type: ConstraintMaxLength, Value: 3}, true},
		{"not empty", "   ", Constraint{Type: ConstraintNotEmpty}, true},
		{"max items", []any{"a", "b"}, Constraint{Type: ConstraintMaxItems, Value: 1}, true},
		{"max items ok", []any{"a"}, Constraint{Type: ConstraintMaxItems, Value: 1}, false},
		{"stringset per locale", map[string]any{"en": "ok", "nl": "too long"}, Constraint{Type: ConstraintMaxLength, Value: 3}, true},
		{"non string ignored", true, Constraint{Type: ConstraintMaxLength, Value: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := CheckConstraint(tt.value, tt.c)
			assert.Equal(t, tt.want, msg != "", "CheckConstraint(%v) = %q", tt.value, msg)
		})
	}
}

func TestCheckConstraint_CustomMessage(t *testing.T) {
	c := Constraint{Type: ConstraintPattern, Value: "^a", Message: "must start with a"}
	assert.Equal(t, "must start with a", CheckConstraint("b", c))
}

func TestConstraint_Check(t *testing.T) {
	assert.Error(t, (Constraint{Type: "between"}).Check(), "unknown type")
	assert.Error(t, (Constraint{Type: ConstraintMaxItems, Value: "x"}).Check(), "non numeric max_items")
	assert.NoError(t, (Constraint{Type: ConstraintMaxItems, Value: 5}).Check())
}
