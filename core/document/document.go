package document

// Document is the state shared by all stages of one pipeline run.
type Document struct {
	// Old holds the stored values for an update, empty for a new entity.
	Old Values

	// New holds the normalized values and is mutated by hooks.
	New Values

	// Patch is the submission as received.
	Patch Values

	NewEntity bool

	// Hidden marks field keys that resolved invisible for this document.
	Hidden map[string]bool

	// Generated marks field keys whose value came from a default producer.
	Generated map[string]bool

	Errors Errors

	// Claims are extra unique claims hooks ask the commit to hold.
	Claims []string
}

// New creates an empty document.
func New(old, patch Values, newEntity bool) *Document {
	if old == nil {
		old = Values{}
	}
	if patch == nil {
		patch = Values{}
	}
	return &Document{
		Old:       old,
		New:       Values{},
		Patch:     patch,
		NewEntity: newEntity,
		Hidden:    make(map[string]bool),
		Generated: make(map[string]bool),
	}
}

// Visible reports whether the field with key takes part in validation.
func (d *Document) Visible(key string) bool {
	return !d.Hidden[key]
}

// ID returns the id value of the normalized document.
func (d *Document) ID() string {
	s, _ := d.New["id"].(string)
	return s
}

// Claim adds a unique claim for the commit stage.
func (d *Document) Claim(c string) {
	for _, have := range d.Claims {
		if have == c {
			return
		}
	}
	d.Claims = append(d.Claims, c)
}

// Blocked reports whether the document collected field errors.
func (d *Document) Blocked() bool {
	return !d.Errors.Empty()
}
