package hooks

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"github.com/smartyellow/services/core/document"
	"github.com/smartyellow/services/core/registry"
	"github.com/smartyellow/services/ports"
)

// Attachment hook parameters.
const (
	paramAccept = "accept" // MIME patterns such as image/* or application/pdf
	paramMax    = "max"    // most attachments the field holds
)

type attachmentHook struct {
	ids    ports.IDGenerator
	logger zerolog.Logger
}

// upload is a pending attachment as submitted by the caller.
type upload struct {
	Name string
	Type string
	Data []byte
}

// run replaces pending uploads with the ids of stored objects. Identical
// content resolves to the object already stored. Without storage pending
// uploads are dropped. The result is an ordered list without duplicates.
func (h *attachmentHook) run(ctx context.Context, in registry.HookInput) error {
	f := in.Field
	val, ok := in.Doc.New.Get(f.Path)
	if !ok || val == nil {
		return nil
	}

	var slots []any
	switch t := val.(type) {
	case []any:
		slots = t
	default:
		slots = []any{t}
	}
	accept := stringsParam(in.Params, paramAccept, nil)

	out := make([]any, 0, len(slots))
	seen := make(map[string]bool, len(slots))
	for i, slot := range slots {
		id, err := h.resolve(ctx, in, accept, slot)
		if err != nil {
			var fe *document.FieldError
			if errors.As(err, &fe) {
				return err
			}
			return fmt.Errorf("%s item %d: %w", f.Key, i+1, err)
		}
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}

	if limit, ok := intParam(in.Params, paramMax); ok && len(out) > limit {
		return &document.FieldError{Key: f.Key, Message: fmt.Sprintf("must hold at most %d files", limit)}
	}

	in.Doc.New.Set(f.Path, out)
	return nil
}

func intParam(params map[string]any, name string) (int, bool) {
	switch n := params[name].(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func (h *attachmentHook) resolve(ctx context.Context, in registry.HookInput, accept []string, slot any) (string, error) {
	switch t := slot.(type) {
	case string:
		return t, nil
	case map[string]any:
		if _, pending := t["data"]; !pending {
			id, _ := t["id"].(string)
			return id, nil
		}
	default:
		return "", nil
	}

	if !in.Storage.Available() || in.Storage.Bucket == nil {
		return "", nil
	}

	up, err := decodeUpload(slot.(map[string]any))
	if err != nil {
		return "", &document.FieldError{Key: in.Field.Key, Message: "invalid file data"}
	}

	mt := mimetype.Detect(up.Data)
	if len(accept) > 0 && !accepted(mt, accept) {
		return "", &document.FieldError{
			Key:     in.Field.Key,
			Message: fmt.Sprintf("file type %s is not accepted", mt.String()),
		}
	}
	contentType := up.Type
	if contentType == "" {
		contentType = mt.String()
	}

	id := h.ids.New()
	if id == "" {
		return "", ErrNoID
	}
	stored, err := in.Storage.Bucket.Insert(ctx, ports.FileDescriptor{
		ID:          id,
		Filename:    up.Name,
		ContentType: contentType,
	}, up.Data)

	var dup *ports.DuplicateFileError
	if errors.As(err, &dup) {
		h.logger.Debug().
			Str("file", up.Name).
			Str("existing", dup.Existing.ID).
			Msg("attachment already stored")
		return dup.Existing.ID, nil
	}
	if err != nil {
		return "", fmt.Errorf("store %s: %w", up.Name, err)
	}
	return stored.ID, nil
}

// decodeUpload reads {name, type, data}; data is base64 or a data: URL.
func decodeUpload(m map[string]any) (upload, error) {
	up := upload{}
	up.Name, _ = m["name"].(string)
	up.Type, _ = m["type"].(string)

	raw, ok := m["data"].(string)
	if !ok || raw == "" {
		return up, errors.New("no data")
	}
	if strings.HasPrefix(raw, "data:") {
		meta, payload, found := strings.Cut(raw, ",")
		if !found {
			return up, errors.New("malformed data URL")
		}
		meta = strings.TrimPrefix(meta, "data:")
		mediaType, _, _ := strings.Cut(meta, ";")
		if up.Type == "" {
			up.Type = mediaType
		}
		if !strings.HasSuffix(meta, ";base64") {
			up.Data = []byte(payload)
			return up, nil
		}
		raw = payload
	}

	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return up, fmt.Errorf("decode base64: %w", err)
	}
	up.Data = data
	return up, nil
}

// accepted matches the detected type or one of its parents against the
// patterns. A pattern ending in /* matches the whole top-level type.
func accepted(mt *mimetype.MIME, patterns []string) bool {
	for m := mt; m != nil; m = m.Parent() {
		for _, p := range patterns {
			if prefix, ok := strings.CutSuffix(p, "/*"); ok {
				if strings.HasPrefix(m.String(), prefix+"/") {
					return true
				}
				continue
			}
			if m.Is(p) {
				return true
			}
		}
	}
	return false
}
