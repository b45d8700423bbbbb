// Package registry holds the named functions an entity definition refers to.
// Definitions never embed behavior; they name a function registered here
// under one of a fixed set of signatures.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/smartyellow/services/core/document"
	"github.com/smartyellow/services/core/schema"
	"github.com/smartyellow/services/ports"
)

// ErrUnknownFunction is returned when a definition names a function that is
// not registered under the expected kind.
var ErrUnknownFunction = errors.New("unknown function")

// Kind separates the signatures a function can be registered under.
type Kind string

const (
	KindResolve   Kind = "resolve"   // evaluated once per schema resolution
	KindDefault   Kind = "default"   // produces a default value per document
	KindPredicate Kind = "predicate" // required/visible per document
	KindValidator Kind = "validator" // semantic validation
	KindHook      Kind = "hook"      // normalization after validation
)

// Settings is the context a schema is resolved against.
type Settings struct {
	Plugin  map[string]any
	Globals map[string]any
}

// ResolveFunc produces a value from settings.
type ResolveFunc func(s Settings) (any, error)

// DefaultContext is passed to default producers.
type DefaultContext struct {
	Field     schema.Field
	NewEntity bool
}

// DefaultFunc produces a default value. An error is a system fault.
type DefaultFunc func(ctx context.Context, dc DefaultContext) (any, error)

// PredicateContext is passed to per-document predicates.
type PredicateContext struct {
	Field     schema.Field
	NewEntity bool
	Values    document.Values
}

// PredicateFunc decides a required or visible flag for one document.
type PredicateFunc func(pc PredicateContext) bool

// ValidateInput is passed to semantic validators.
type ValidateInput struct {
	Field      schema.Field
	New        document.Values
	Old        document.Values
	NewEntity  bool
	Generated  bool // the field value came from a default producer
	Collection string
	Storage    ports.Storage
}

// ValidateFunc returns a user-facing message when the value is rejected and
// "" when it is accepted. An error is a system fault.
type ValidateFunc func(ctx context.Context, in ValidateInput) (string, error)

// HookInput is passed to hooks. Hooks mutate Doc.New.
type HookInput struct {
	Field      schema.Field
	Params     map[string]any
	Doc        *document.Document
	Collection string
	Storage    ports.Storage
	User       ports.User
}

// HookFunc normalizes a validated document. Returning *document.FieldError
// blocks the document; any other error is a system fault.
type HookFunc func(ctx context.Context, in HookInput) error

// Registry manages named functions. Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	resolvers  map[string]ResolveFunc
	defaults   map[string]DefaultFunc
	predicates map[string]PredicateFunc
	validators map[string]ValidateFunc
	hooks      map[string]HookFunc
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		resolvers:  make(map[string]ResolveFunc),
		defaults:   make(map[string]DefaultFunc),
		predicates: make(map[string]PredicateFunc),
		validators: make(map[string]ValidateFunc),
		hooks:      make(map[string]HookFunc),
	}
}

// RegisterResolver adds a resolve-time producer.
func (r *Registry) RegisterResolver(name string, fn ResolveFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers[name] = fn
}

// RegisterDefault adds a default producer.
func (r *Registry) RegisterDefault(name string, fn DefaultFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults[name] = fn
}

// RegisterPredicate adds a per-document predicate.
func (r *Registry) RegisterPredicate(name string, fn PredicateFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predicates[name] = fn
}

// RegisterValidator adds a semantic validator.
func (r *Registry) RegisterValidator(name string, fn ValidateFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators[name] = fn
}

// RegisterHook adds a normalization hook.
func (r *Registry) RegisterHook(name string, fn HookFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[name] = fn
}

// Resolver returns the resolve-time producer with the given name.
func (r *Registry) Resolver(name string) (ResolveFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.resolvers[name]
	if !ok {
		return nil, unknown(KindResolve, name)
	}
	return fn, nil
}

// Default returns the default producer with the given name.
func (r *Registry) Default(name string) (DefaultFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.defaults[name]
	if !ok {
		return nil, unknown(KindDefault, name)
	}
	return fn, nil
}

// Predicate returns the predicate with the given name.
func (r *Registry) Predicate(name string) (PredicateFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.predicates[name]
	if !ok {
		return nil, unknown(KindPredicate, name)
	}
	return fn, nil
}

// Validator returns the validator with the given name.
func (r *Registry) Validator(name string) (ValidateFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.validators[name]
	if !ok {
		return nil, unknown(KindValidator, name)
	}
	return fn, nil
}

// Hook returns the hook with the given name.
func (r *Registry) Hook(name string) (HookFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.hooks[name]
	if !ok {
		return nil, unknown(KindHook, name)
	}
	return fn, nil
}

// Has checks if a function of the given kind is registered.
func (r *Registry) Has(kind Kind, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case KindResolve:
		_, ok := r.resolvers[name]
		return ok
	case KindDefault:
		_, ok := r.defaults[name]
		return ok
	case KindPredicate:
		_, ok := r.predicates[name]
		return ok
	case KindValidator:
		_, ok := r.validators[name]
		return ok
	case KindHook:
		_, ok := r.hooks[name]
		return ok
	}
	return false
}

// List returns the sorted names registered under kind.
func (r *Registry) List(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	switch kind {
	case KindResolve:
		names = keys(r.resolvers)
	case KindDefault:
		names = keys(r.defaults)
	case KindPredicate:
		names = keys(r.predicates)
	case KindValidator:
		names = keys(r.validators)
	case KindHook:
		names = keys(r.hooks)
	}
	sort.Strings(names)
	return names
}

func keys[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func unknown(kind Kind, name string) error {
	return fmt.Errorf("%s function %q: %w", kind, name, ErrUnknownFunction)
}
