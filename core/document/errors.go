package document

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FieldError is a user-facing problem with one field.
// Hooks return it to block a document without raising a fault.
type FieldError struct {
	Key     string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Key, e.Message)
}

// Errors is an ordered set of field errors, one message per key.
type Errors struct {
	keys []string
	msgs map[string]string
}

// Add records msg for key. The first message for a key wins.
func (e *Errors) Add(key, msg string) {
	if e.msgs == nil {
		e.msgs = make(map[string]string)
	}
	if _, ok := e.msgs[key]; ok {
		return
	}
	e.keys = append(e.keys, key)
	e.msgs[key] = msg
}

// Has reports whether key already has an error.
func (e *Errors) Has(key string) bool {
	_, ok := e.msgs[key]
	return ok
}

// Get returns the message recorded for key.
func (e *Errors) Get(key string) string {
	return e.msgs[key]
}

// Len returns the number of keys with an error.
func (e *Errors) Len() int { return len(e.keys) }

// Empty reports whether no error was recorded.
func (e *Errors) Empty() bool { return len(e.keys) == 0 }

// Keys returns the keys in the order errors were recorded.
func (e *Errors) Keys() []string {
	out := make([]string, len(e.keys))
	copy(out, e.keys)
	return out
}

// Map returns the errors as a plain map.
func (e *Errors) Map() map[string]string {
	out := make(map[string]string, len(e.keys))
	for _, k := range e.keys {
		out[k] = e.msgs[k]
	}
	return out
}

// MarshalJSON writes a JSON object with keys in recording order.
func (e Errors) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range e.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(e.msgs[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
