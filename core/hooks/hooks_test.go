package hooks_test

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/smartyellow/services/adapters/clock"
	"github.com/smartyellow/services/adapters/idgen"
	"github.com/smartyellow/services/adapters/memory"
	"github.com/smartyellow/services/core/document"
	"github.com/smartyellow/services/core/hooks"
	"github.com/smartyellow/services/core/registry"
	"github.com/smartyellow/services/core/schema"
	"github.com/smartyellow/services/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const collection = "services"

func newRegistry(ids ports.IDGenerator, attempts int) *registry.Registry {
	reg := registry.New()
	hooks.Register(reg, hooks.Deps{
		IDs:          ids,
		Clock:        clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
		Logger:       zerolog.Nop(),
		SlugAttempts: attempts,
	})
	return reg
}

func field(key string, typ schema.FieldType) schema.Field {
	return schema.Field{Key: key, Path: schema.MustPath(key), Type: typ}
}

func available(store *memory.Store, bucket *memory.Bucket) ports.Storage {
	return ports.Storage{State: ports.StorageAvailable, Store: store, Bucket: bucket}
}

func seed(t *testing.T, store *memory.Store, recs ...document.Values) {
	t.Helper()
	for _, rec := range recs {
		require.NoError(t, store.Collection(collection).Upsert(context.Background(), rec, nil))
	}
}

func TestDefaults(t *testing.T) {
	reg := newRegistry(idgen.NewQueue("abc123", ""), 0)
	ctx := context.Background()

	makeID, err := reg.Default("makeId")
	require.NoError(t, err)
	id, err := makeID(ctx, registry.DefaultContext{NewEntity: true})
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)
	_, err = makeID(ctx, registry.DefaultContext{NewEntity: true})
	assert.ErrorIs(t, err, hooks.ErrNoID, "exhausted source")

	now, _ := reg.Default("now")
	got, _ := now(ctx, registry.DefaultContext{})
	assert.Equal(t, "2024-05-01T12:00:00Z", got)

	isNew, _ := reg.Predicate("isNew")
	assert.True(t, isNew(registry.PredicateContext{NewEntity: true}))
	assert.False(t, isNew(registry.PredicateContext{}))
}

func TestValidateID(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, document.Values{"id": "taken1"})
	reg := newRegistry(idgen.NewSequential("x"), 0)
	validate, _ := reg.Validator("idUnchanged")
	f := field("id", schema.TypeString)

	tests := []struct {
		name string
		in   registry.ValidateInput
		want string
	}{
		{
			name: "caller id taken",
			in:   registry.ValidateInput{New: document.Values{"id": "taken1"}, NewEntity: true, Storage: available(store, nil)},
			want: "id already exists",
		},
		{
			name: "caller id free",
			in:   registry.ValidateInput{New: document.Values{"id": "free01"}, NewEntity: true, Storage: available(store, nil)},
		},
		{
			name: "generated id is checked at commit",
			in:   registry.ValidateInput{New: document.Values{"id": "taken1"}, NewEntity: true, Generated: true, Storage: available(store, nil)},
		},
		{
			name: "no storage",
			in:   registry.ValidateInput{New: document.Values{"id": "taken1"}, NewEntity: true, Storage: ports.NoStorage},
		},
		{
			name: "update keeps id",
			in:   registry.ValidateInput{New: document.Values{"id": "taken1"}, Old: document.Values{"id": "taken1"}, Storage: available(store, nil)},
		},
		{
			name: "update changes id",
			in:   registry.ValidateInput{New: document.Values{"id": "other1"}, Old: document.Values{"id": "taken1"}, Storage: available(store, nil)},
			want: "id cannot be changed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.Field = f
			tt.in.Collection = collection
			got, err := validate(context.Background(), tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateChannels(t *testing.T) {
	reg := newRegistry(idgen.NewSequential("x"), 0)
	validate, _ := reg.Validator("channelsKnown")
	f := field("channels", schema.TypeArray)
	f.Options = schema.Options{Source: schema.SourceConst, List: []schema.Option{{Value: "web"}, {Value: "print"}}}

	tests := []struct {
		value any
		want  string
	}{
		{[]any{"web"}, ""},
		{[]any{}, ""},
		{nil, ""},
		{[]any{"web", "radio"}, "One or more invalid channels"},
		{"web", "One or more invalid channels"},
	}
	for _, tt := range tests {
		got, err := validate(context.Background(), registry.ValidateInput{
			Field: f,
			New:   document.Values{"channels": tt.value},
		})
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "channels %v", tt.value)
	}
}

func TestResolvers(t *testing.T) {
	reg := newRegistry(idgen.NewSequential("x"), 0)
	call := func(name string, s registry.Settings) any {
		t.Helper()
		fn, err := reg.Resolver(name)
		require.NoError(t, err)
		v, err := fn(s)
		require.NoError(t, err)
		return v
	}

	two := registry.Settings{Plugin: map[string]any{
		"channels": map[string]any{"web": map[string]any{"name": "Website"}, "print": "Print"},
	}}
	one := registry.Settings{Plugin: map[string]any{"channels": map[string]any{"web": "Website"}}}
	none := registry.Settings{}

	opts := call("channelOptions", two).([]schema.Option)
	assert.Equal(t, []schema.Option{{Value: "print", Label: "Print"}, {Value: "web", Label: "Website"}}, opts)

	assert.Equal(t, true, call("hasChannels", two))
	assert.Equal(t, false, call("hasChannels", none))
	assert.Equal(t, []any{"web"}, call("singleChannel", one))
	assert.Equal(t, []any{}, call("singleChannel", two))
	assert.Equal(t, "^(print|web)$", call("channelFilter", two))

	personas := registry.Settings{Globals: map[string]any{"personas": map[string]any{"dev": "Developer"}}}
	assert.Equal(t, true, call("hasPersonas", personas))
	assert.Equal(t, false, call("hasPersonas", none))
}

func runSlug(t *testing.T, reg *registry.Registry, st ports.Storage, doc *document.Document) error {
	t.Helper()
	hook, err := reg.Hook("slug")
	require.NoError(t, err)
	return hook(context.Background(), registry.HookInput{
		Field:      field("slug", schema.TypeStringset),
		Params:     map[string]any{"from": "name"},
		Doc:        doc,
		Collection: collection,
		Storage:    st,
	})
}

func newDoc(id string, name string) *document.Document {
	doc := document.New(nil, document.Values{"name": map[string]any{"en": name}}, true)
	doc.New = document.Values{"id": id, "name": map[string]any{"en": name}}
	return doc
}

func TestSlugHook_New(t *testing.T) {
	store := memory.NewStore()
	seed(t, store,
		document.Values{"id": "aaaaaa", "slug": map[string]any{"en": "web-design"}},
		document.Values{"id": "bbbbbb", "slug": map[string]any{"en": "other"}, "oldSlugs": map[string]any{"en": []any{"web-design-2"}}},
	)
	reg := newRegistry(idgen.NewSequential("x"), 10)

	doc := newDoc("cccccc", "Web Design")
	require.NoError(t, runSlug(t, reg, available(store, nil), doc))

	assert.Equal(t, "web-design-3", doc.New.String(schema.MustPath("slug.en")), "current and retired slugs are taken")
	_, ok := doc.New.Get(schema.MustPath("oldSlugs"))
	assert.False(t, ok, "new record should not get a slug history")
	assert.Equal(t, []string{"slug:en:web-design-3"}, doc.Claims)
}

func TestSlugHook_ExplicitSlug(t *testing.T) {
	reg := newRegistry(idgen.NewSequential("x"), 10)

	doc := newDoc("cccccc", "Web Design")
	doc.Patch["slug"] = map[string]any{"en": "Custom Café"}
	require.NoError(t, runSlug(t, reg, ports.NoStorage, doc))
	assert.Equal(t, "custom-cafe", doc.New.String(schema.MustPath("slug.en")))
}

func TestSlugHook_RenameKeepsHistory(t *testing.T) {
	tests := []struct {
		status      string
		wantHistory any
	}{
		{"online", map[string]any{"en": []any{"old-name"}}},
		{"archived", map[string]any{"en": []any{"old-name"}}},
		{"concept", nil},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			old := document.Values{
				"id":     "abc123",
				"name":   map[string]any{"en": "Old Name"},
				"slug":   map[string]any{"en": "old-name"},
				"status": tt.status,
			}
			store := memory.NewStore()
			seed(t, store, old)
			reg := newRegistry(idgen.NewSequential("x"), 10)

			patch := document.Values{"name": map[string]any{"en": "New Name"}}
			doc := document.New(old.Clone(), patch, false)
			doc.New = old.Clone()
			doc.New.Set(schema.MustPath("name"), map[string]any{"en": "New Name"})

			require.NoError(t, runSlug(t, reg, available(store, nil), doc))
			assert.Equal(t, "new-name", doc.New.String(schema.MustPath("slug.en")))
			history, _ := doc.New.Get(schema.MustPath("oldSlugs"))
			assert.Equal(t, tt.wantHistory, history)
		})
	}
}

func TestSlugHook_UnchangedNameKeepsSlug(t *testing.T) {
	old := document.Values{
		"id":     "abc123",
		"name":   map[string]any{"en": "Web Design"},
		"slug":   map[string]any{"en": "web-design-2"},
		"status": "online",
	}
	store := memory.NewStore()
	seed(t, store, old, document.Values{"id": "zzzzzz", "slug": map[string]any{"en": "web-design"}})
	reg := newRegistry(idgen.NewSequential("x"), 10)

	doc := document.New(old.Clone(), document.Values{"status": "archived"}, false)
	doc.New = old.Clone()
	doc.New["status"] = "archived"

	require.NoError(t, runSlug(t, reg, available(store, nil), doc))
	assert.Equal(t, "web-design-2", doc.New.String(schema.MustPath("slug.en")))
	_, ok := doc.New.Get(schema.MustPath("oldSlugs"))
	assert.False(t, ok, "unchanged slug should not enter the history")
}

func TestSlugHook_Exhausted(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, document.Values{"id": "aaaaaa", "slug": map[string]any{"en": "web-design"}})
	reg := newRegistry(idgen.NewSequential("x"), 1)

	err := runSlug(t, reg, available(store, nil), newDoc("cccccc", "Web Design"))
	var fe *document.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "slug", fe.Key)
	assert.Equal(t, "could not allocate a unique slug", fe.Message)
}

func runAttachments(reg *registry.Registry, st ports.Storage, doc *document.Document, accept ...any) error {
	hook, _ := reg.Hook("attachments")
	f := field("images", schema.TypeArray)
	return hook(context.Background(), registry.HookInput{
		Field:      f,
		Params:     map[string]any{"accept": accept},
		Doc:        doc,
		Collection: collection,
		Storage:    st,
	})
}

// pngData is the smallest header mimetype recognises as image/png.
var pngData = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 24)...)

func TestAttachmentHook_Dedup(t *testing.T) {
	bucket := memory.NewBucket()
	reg := newRegistry(idgen.NewQueue("file01", "file02", "file03"), 0)

	encoded := base64.StdEncoding.EncodeToString(pngData)
	doc := document.New(nil, nil, true)
	doc.New = document.Values{"images": []any{
		"existing",
		map[string]any{"name": "a.png", "data": encoded},
		map[string]any{"name": "b.png", "data": "data:image/png;base64," + encoded},
		"existing",
	}}

	require.NoError(t, runAttachments(reg, available(memory.NewStore(), bucket), doc, "image/*"))

	got, _ := doc.New.Get(schema.MustPath("images"))
	assert.Equal(t, []any{"existing", "file01"}, got)
	assert.Equal(t, 1, bucket.Len())
}

func TestAttachmentHook_Rejected(t *testing.T) {
	reg := newRegistry(idgen.NewQueue("file01"), 0)

	doc := document.New(nil, nil, true)
	doc.New = document.Values{"images": []any{
		map[string]any{"name": "notes.txt", "data": base64.StdEncoding.EncodeToString([]byte("plain text"))},
	}}

	err := runAttachments(reg, available(memory.NewStore(), memory.NewBucket()), doc, "image/*")
	var fe *document.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "images", fe.Key)
}

func TestAttachmentHook_NoStorage(t *testing.T) {
	reg := newRegistry(idgen.NewQueue("file01"), 0)

	doc := document.New(nil, nil, true)
	doc.New = document.Values{"images": []any{
		"keep",
		map[string]any{"name": "a.png", "data": base64.StdEncoding.EncodeToString(pngData)},
	}}

	require.NoError(t, runAttachments(reg, ports.NoStorage, doc))
	got, _ := doc.New.Get(schema.MustPath("images"))
	assert.Equal(t, []any{"keep"}, got)
}

func TestAttachmentHook_BucketFault(t *testing.T) {
	bucket := memory.NewBucket()
	bucket.FailWith(errors.New("bucket offline"))
	reg := newRegistry(idgen.NewQueue("file01"), 0)

	doc := document.New(nil, nil, true)
	doc.New = document.Values{"images": []any{
		map[string]any{"name": "a.png", "data": base64.StdEncoding.EncodeToString(pngData)},
	}}

	err := runAttachments(reg, available(memory.NewStore(), bucket), doc)
	var fe *document.FieldError
	require.Error(t, err)
	assert.False(t, errors.As(err, &fe), "want a system fault, got %v", err)
}
