// Package runtime runs a submission through the entity pipeline:
// normalize, validate, hooks and commit. Stages run strictly in order and
// share one in-flight document.
package runtime

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/smartyellow/services/core/document"
	"github.com/smartyellow/services/core/normalize"
	"github.com/smartyellow/services/core/registry"
	"github.com/smartyellow/services/core/schema"
	"github.com/smartyellow/services/core/validation"
	"github.com/smartyellow/services/ports"
)

// ErrNoSchema is returned by Run before a schema was installed.
var ErrNoSchema = errors.New("no schema installed")

// Run outcomes reported to Metrics.
const (
	OutcomeStored    = "stored"
	OutcomeValidated = "validated"
	OutcomeBlocked   = "blocked"
	OutcomeFault     = "fault"
)

// Metrics records pipeline runs.
type Metrics interface {
	RecordRun(entity, outcome string, duration time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) RecordRun(string, string, time.Duration) {}

// Config configures a Pipeline.
type Config struct {
	// DefaultLocale keys bare strings submitted for localized fields.
	DefaultLocale string

	// IDAttempts bounds the ids tried when a generated id collides.
	IDAttempts int
}

// Pipeline runs submissions against the installed schema. Safe for
// concurrent use; SetSchema swaps the schema for runs started afterwards.
type Pipeline struct {
	schema    atomic.Pointer[schema.Schema]
	reg       *registry.Registry
	validator *validation.Validator
	ids       ports.IDGenerator
	clock     ports.Clock
	metrics   Metrics
	logger    zerolog.Logger
	config    Config
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a pipeline. Install a schema with SetSchema before Run.
func New(reg *registry.Registry, ids ports.IDGenerator, clock ports.Clock, cfg Config, opts ...Option) *Pipeline {
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = "en"
	}
	if cfg.IDAttempts < 1 {
		cfg.IDAttempts = 10
	}
	p := &Pipeline{
		reg:       reg,
		validator: validation.New(reg),
		ids:       ids,
		clock:     clock,
		metrics:   nopMetrics{},
		logger:    zerolog.Nop(),
		config:    cfg,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetSchema installs s for subsequent runs.
func (p *Pipeline) SetSchema(s *schema.Schema) {
	p.schema.Store(s)
}

// Schema returns the installed schema, or nil.
func (p *Pipeline) Schema() *schema.Schema {
	return p.schema.Load()
}

// Registry returns the function registry the pipeline dispatches to.
func (p *Pipeline) Registry() *registry.Registry {
	return p.reg
}

// RunInput is one submission.
type RunInput struct {
	// Old is the stored record for an update, nil for a new entity.
	Old document.Values

	// New holds the submitted values.
	New document.Values

	NewEntity bool

	// ValidateOnly runs every stage without writing to store or bucket.
	ValidateOnly bool

	User    ports.User
	Storage ports.Storage
}

// StoreAction writes the committed record. It returns the record as stored.
type StoreAction func(ctx context.Context) (document.Values, error)

// Outcome is the result of a run without system fault.
type Outcome struct {
	// Errors holds the field errors; empty when the document passed.
	Errors document.Errors

	// Document is the in-flight document after the last stage that ran.
	Document *document.Document

	// Store is set when the document passed and the run was not ValidateOnly.
	Store StoreAction
}

// Blocked reports whether the submission was rejected with field errors.
func (o Outcome) Blocked() bool {
	return !o.Errors.Empty()
}

// Run drives one submission through all stages. Field problems come back in
// Outcome.Errors; a returned error is a system fault wrapped in *FaultError.
func (p *Pipeline) Run(ctx context.Context, in RunInput) (Outcome, error) {
	start := time.Now()
	s := p.schema.Load()
	if s == nil {
		return Outcome{}, ErrNoSchema
	}

	out, err := p.run(ctx, s, in)

	outcome := OutcomeStored
	switch {
	case err != nil:
		outcome = OutcomeFault
	case out.Blocked():
		outcome = OutcomeBlocked
	case in.ValidateOnly:
		outcome = OutcomeValidated
	}
	p.metrics.RecordRun(s.Entity, outcome, time.Since(start))

	if err != nil {
		p.logger.Error().Err(err).
			Str("entity", s.Entity).
			Bool("new", in.NewEntity).
			Msg("pipeline fault")
		return Outcome{}, err
	}
	p.logger.Debug().
		Str("entity", s.Entity).
		Str("id", out.Document.ID()).
		Str("outcome", outcome).
		Int("errors", out.Errors.Len()).
		Dur("duration", time.Since(start)).
		Msg("pipeline run")
	return out, nil
}

func (p *Pipeline) run(ctx context.Context, s *schema.Schema, in RunInput) (Outcome, error) {
	st := in.Storage
	if in.ValidateOnly && st.Bucket != nil {
		st.Bucket = newPreviewBucket(st.Bucket)
	}

	doc, err := normalize.Normalize(ctx, s, p.reg, in.Old, in.New, in.NewEntity,
		normalize.Options{DefaultLocale: p.config.DefaultLocale})
	if err != nil {
		return Outcome{}, fault(StageNormalize, err)
	}

	if err := p.validator.Validate(ctx, s, doc, st); err != nil {
		return Outcome{}, fault(StageValidate, err)
	}
	if doc.Blocked() {
		return Outcome{Errors: doc.Errors, Document: doc}, nil
	}

	if err := p.applyHooks(ctx, s, doc, st, in.User); err != nil {
		return Outcome{}, fault(StageHooks, err)
	}
	if doc.Blocked() || in.ValidateOnly {
		return Outcome{Errors: doc.Errors, Document: doc}, nil
	}

	action, err := p.Commit(ctx, s, doc, st, in.User)
	if err != nil {
		return Outcome{}, fault(StageCommit, err)
	}
	return Outcome{Document: doc, Store: action}, nil
}
