package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/smartyellow/services/adapters/metrics"
	"github.com/smartyellow/services/core/document"
	"github.com/smartyellow/services/core/events"
	"github.com/smartyellow/services/core/plugin"
	"github.com/smartyellow/services/core/runtime"
	"github.com/smartyellow/services/core/schema"
	"github.com/smartyellow/services/core/storage"
	"github.com/smartyellow/services/ports"
)

// Plugin features gating the routes.
const (
	FeatureSeeMine = "seeMyServices"
	FeatureSeeAll  = "seeAllServices"
	FeatureEdit    = "editServices"
	FeatureCreate  = "createServices"
	FeatureDelete  = "deleteServices"
)

const maxBody = 10 << 20

var (
	createdByPath = schema.Path{"log", "created", "by"}
	createdOnPath = schema.Path{"log", "created", "on"}
)

// Result is the body of a pipeline response. Errors is set when the
// submission was rejected.
type Result struct {
	Data   document.Values  `json:"data,omitempty"`
	Errors *document.Errors `json:"errors,omitempty"`
}

// ServicesConfig configures a ServicesHandler.
type ServicesConfig struct {
	Pipeline *runtime.Pipeline
	Manifest *plugin.Manifest
	Storage  ports.Storage
	Bus      *events.Bus

	// Settings returns the current plugin settings.
	Settings func() map[string]any

	Logger zerolog.Logger
}

// ServicesHandler serves the service entity routes.
type ServicesHandler struct {
	pipeline *runtime.Pipeline
	manifest *plugin.Manifest
	storage  ports.Storage
	bus      *events.Bus
	settings func() map[string]any
	logger   zerolog.Logger
}

// NewServicesHandler creates the handler.
func NewServicesHandler(cfg ServicesConfig) *ServicesHandler {
	if cfg.Settings == nil {
		cfg.Settings = func() map[string]any { return nil }
	}
	return &ServicesHandler{
		pipeline: cfg.Pipeline,
		manifest: cfg.Manifest,
		storage:  cfg.Storage,
		bus:      cfg.Bus,
		settings: cfg.Settings,
		logger:   cfg.Logger,
	}
}

// Routes returns the routes, all behind bearer authentication.
func (h *ServicesHandler) Routes(auth Authenticator, m *metrics.Collector) chi.Router {
	r := chi.NewRouter()
	r.Use(RequireUser(auth, m))

	see := RequireAny(h.manifest, m, FeatureSeeMine, FeatureSeeAll)

	r.With(see).Get("/", h.list)
	r.With(see).Get("/settings", h.getSettings)
	r.With(see).Get("/filters", h.filters)
	r.Get("/formats", h.formats)
	r.With(see).Post("/search", h.search)
	r.With(see).Get("/{id}", h.get)
	r.With(RequireAny(h.manifest, m, FeatureCreate)).Post("/", h.create)
	r.With(RequireAny(h.manifest, m, FeatureEdit)).Put("/{id}", h.update)
	r.With(RequireAny(h.manifest, m, FeatureDelete)).Delete("/{id}", h.delete)

	return r
}

// list returns the services the caller may see, newest first.
//
//	@Summary		List services
//	@Tags			services
//	@Produce		json
//	@Param			format	header		string	false	"object answers an object keyed by id"
//	@Success		200		{array}		object	"Stored services"
//	@Failure		401		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/services [get]
func (h *ServicesHandler) list(w http.ResponseWriter, r *http.Request) {
	_, col, ok := h.collection(w)
	if !ok {
		return
	}
	u, _ := UserFrom(r.Context())

	q := storage.Query{Where: h.visibility(u), Sort: newestFirst()}
	h.writeRecords(w, r, col, q)
}

//	@Summary		Plugin settings
//	@Tags			services
//	@Produce		json
//	@Success		200	{object}	map[string]string	"previewUrl"
//	@Failure		401	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/services/settings [get]
func (h *ServicesHandler) getSettings(w http.ResponseWriter, r *http.Request) {
	preview, _ := h.settings()["preview"].(string)
	writeJSON(w, http.StatusOK, map[string]string{"previewUrl": preview})
}

//	@Summary		List filters
//	@Tags			services
//	@Produce		json
//	@Success		200	{array}		object	"Filter declarations"
//	@Failure		503	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/services/filters [get]
func (h *ServicesHandler) filters(w http.ResponseWriter, r *http.Request) {
	s, ok := h.schema(w)
	if !ok {
		return
	}
	filters := s.Filters()
	if filters == nil {
		filters = []schema.FilterView{}
	}
	writeJSON(w, http.StatusOK, filters)
}

//	@Summary		List formats
//	@Tags			services
//	@Produce		json
//	@Success		200	{object}	object	"List formats by field"
//	@Failure		503	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/services/formats [get]
func (h *ServicesHandler) formats(w http.ResponseWriter, r *http.Request) {
	s, ok := h.schema(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Formats())
}

type searchRequest struct {
	Query     string `json:"query"`
	Languages any    `json:"languages"`
}

// search matches the query text against the filter fields.
//
//	@Summary		Search services
//	@Tags			services
//	@Accept			json
//	@Produce		json
//	@Param			request	body		searchRequest	true	"Search text and languages"
//	@Success		200		{array}		object			"Matching services"
//	@Failure		400		{object}	ErrorResponse
//	@Failure		401		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/services/search [post]
func (h *ServicesHandler) search(w http.ResponseWriter, r *http.Request) {
	s, col, ok := h.collection(w)
	if !ok {
		return
	}
	u, _ := UserFrom(r.Context())

	var req searchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	q, err := storage.Search(s.Filters(), req.Query, languages(req.Languages))
	if err != nil {
		h.fault(w, r, err)
		return
	}
	q.Where = append(q.Where, h.visibility(u)...)
	q.Sort = newestFirst()
	h.writeRecords(w, r, col, q)
}

// languages accepts a list of locale codes; false or absent means all.
func languages(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, it := range list {
		if s, ok := it.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// get returns one service together with its current validation errors.
//
//	@Summary		Get a service
//	@Tags			services
//	@Produce		json
//	@Param			id	path		string	true	"Service id"
//	@Success		200	{object}	Result
//	@Failure		401	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/services/{id} [get]
func (h *ServicesHandler) get(w http.ResponseWriter, r *http.Request) {
	_, col, ok := h.collection(w)
	if !ok {
		return
	}
	u, _ := UserFrom(r.Context())

	rec, ok := h.load(w, r, col, u)
	if !ok {
		return
	}

	out, err := h.pipeline.Run(r.Context(), runtime.RunInput{
		Old:          rec,
		New:          rec,
		ValidateOnly: true,
		User:         u,
		Storage:      h.storage,
	})
	if err != nil {
		h.fault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result(out))
}

//	@Summary		Create a service
//	@Tags			services
//	@Accept			json
//	@Produce		json
//	@Param			init	header		string	false	"validate only"
//	@Param			request	body		object	true	"Service fields"
//	@Success		200		{object}	Result
//	@Failure		400		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/services [post]
func (h *ServicesHandler) create(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, nil)
}

//	@Summary		Update a service
//	@Tags			services
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string	true	"Service id"
//	@Param			init	header		string	false	"validate only"
//	@Param			request	body		object	true	"Changed fields"
//	@Success		200		{object}	Result
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/services/{id} [put]
func (h *ServicesHandler) update(w http.ResponseWriter, r *http.Request) {
	_, col, ok := h.collection(w)
	if !ok {
		return
	}
	u, _ := UserFrom(r.Context())

	old, ok := h.load(w, r, col, u)
	if !ok {
		return
	}
	h.submit(w, r, old)
}

// submit runs the body through the pipeline; old is nil for a new entity.
// The init header asks for validation only.
func (h *ServicesHandler) submit(w http.ResponseWriter, r *http.Request, old document.Values) {
	s, ok := h.schema(w)
	if !ok {
		return
	}
	u, _ := UserFrom(r.Context())

	var patch document.Values
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	out, err := h.pipeline.Run(r.Context(), runtime.RunInput{
		Old:          old,
		New:          patch,
		NewEntity:    old == nil,
		ValidateOnly: r.Header.Get("init") != "",
		User:         u,
		Storage:      h.storage,
	})
	if err != nil {
		h.fault(w, r, err)
		return
	}
	if out.Store == nil {
		writeJSON(w, http.StatusOK, result(out))
		return
	}

	rec, err := out.Store(r.Context())
	if err != nil {
		h.fault(w, r, err)
		return
	}

	action := "update"
	if old == nil {
		action = "create"
	}
	h.reload(r, s, out.Document.ID(), action)
	writeJSON(w, http.StatusOK, Result{Data: rec})
}

//	@Summary		Delete a service
//	@Tags			services
//	@Param			id	path	string	true	"Service id"
//	@Success		204
//	@Failure		401	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/services/{id} [delete]
func (h *ServicesHandler) delete(w http.ResponseWriter, r *http.Request) {
	s, col, ok := h.collection(w)
	if !ok {
		return
	}
	u, _ := UserFrom(r.Context())
	id := chi.URLParam(r, "id")

	q := storage.Query{Where: append(h.visibility(u), storage.Eq("id", id))}
	cur, err := col.Find(r.Context(), q)
	if err != nil {
		h.fault(w, r, err)
		return
	}
	visible, err := storage.ToArray(r.Context(), cur)
	if err != nil {
		h.fault(w, r, err)
		return
	}
	if len(visible) == 0 {
		writeError(w, http.StatusUnauthorized, "not authorized")
		return
	}

	if _, err := col.Delete(r.Context(), storage.ByID(id)); err != nil {
		h.fault(w, r, err)
		return
	}
	h.logger.Info().Str("entity", s.Entity).Str("id", id).Str("user", u.ID).Msg("record deleted")
	h.reload(r, s, id, "delete")
	w.WriteHeader(http.StatusNoContent)
}

// load fetches the record named in the path, answering 404 when it does not
// exist and 401 when the caller may not see it.
func (h *ServicesHandler) load(w http.ResponseWriter, r *http.Request, col storage.Collection, u ports.User) (document.Values, bool) {
	rec, err := col.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return nil, false
	}
	if err != nil {
		h.fault(w, r, err)
		return nil, false
	}
	if !h.canSee(u, rec) {
		writeError(w, http.StatusUnauthorized, "not authorized")
		return nil, false
	}
	return rec, true
}

// visibility limits queries to records created by the caller or a
// coworker, unless the caller can see all records.
func (h *ServicesHandler) visibility(u ports.User) []storage.Cond {
	if h.manifest.Can(u, FeatureSeeAll) {
		return nil
	}
	return []storage.Cond{storage.In("log.created.by", owners(u)...)}
}

func (h *ServicesHandler) canSee(u ports.User, rec document.Values) bool {
	if h.manifest.Can(u, FeatureSeeAll) {
		return true
	}
	by := rec.String(createdByPath)
	for _, o := range owners(u) {
		if o == by {
			return true
		}
	}
	return false
}

func owners(u ports.User) []string {
	return append([]string{u.ID}, u.Coworkers...)
}

func newestFirst() []storage.Sort {
	return []storage.Sort{{Path: createdOnPath, Desc: true}}
}

// writeRecords answers with the matching records, as an object keyed by id
// when the format header asks for it.
func (h *ServicesHandler) writeRecords(w http.ResponseWriter, r *http.Request, col storage.Collection, q storage.Query) {
	cur, err := col.Find(r.Context(), q)
	if err != nil {
		h.fault(w, r, err)
		return
	}
	if r.Header.Get("format") == "object" {
		recs, err := storage.ToObject(r.Context(), cur)
		if err != nil {
			h.fault(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, recs)
		return
	}
	recs, err := storage.ToArray(r.Context(), cur)
	if err != nil {
		h.fault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *ServicesHandler) reload(r *http.Request, s *schema.Schema, id, action string) {
	if h.bus == nil {
		return
	}
	h.bus.Publish(r.Context(), events.Event{
		Topic:  h.manifest.Topic("reload"),
		Source: h.manifest.ID,
		Data: map[string]any{
			"entity": s.Entity,
			"id":     id,
			"action": action,
		},
	})
}

func (h *ServicesHandler) schema(w http.ResponseWriter) (*schema.Schema, bool) {
	s := h.pipeline.Schema()
	if s == nil {
		writeError(w, http.StatusServiceUnavailable, "entity definition not loaded")
		return nil, false
	}
	return s, true
}

func (h *ServicesHandler) collection(w http.ResponseWriter) (*schema.Schema, storage.Collection, bool) {
	s, ok := h.schema(w)
	if !ok {
		return nil, nil, false
	}
	if !h.storage.Available() {
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return nil, nil, false
	}
	return s, h.storage.Store.Collection(s.Store), true
}

// fault answers a system fault. Details are logged, not returned, except
// for the conflicts a client can retry.
func (h *ServicesHandler) fault(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := http.StatusInternalServerError, "internal server error"
	switch {
	case errors.Is(err, storage.ErrConflict):
		status, msg = http.StatusConflict, "a unique value was claimed concurrently; retry"
	case errors.Is(err, runtime.ErrStorageUnavailable):
		status, msg = http.StatusServiceUnavailable, "storage unavailable"
	}

	ev := h.logger.Error()
	var fe *runtime.FaultError
	if errors.As(err, &fe) {
		ev = ev.Str("stage", string(fe.Stage))
	}
	ev.Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg("request failed")

	writeError(w, status, msg)
}

func result(out runtime.Outcome) Result {
	res := Result{}
	if out.Document != nil {
		res.Data = out.Document.New
	}
	if out.Blocked() {
		errs := out.Errors
		res.Errors = &errs
	}
	return res
}
