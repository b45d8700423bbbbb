/*
Package schema defines the declarative types behind an entity definition.

An entity is described by an ordered list of fields. Each field names its
dotted key, its type and the rules the pipeline applies to it:

	entity: service
	store: smartyellow/service

	fields:
	  - key: name
	    type: stringset
	    trim: true
	    required: true
	    message: The service title is required.

	  - key: author.name
	    type: string
	    condition: { key: author.inherit, value: false }

	  - key: slug
	    type: stringset
	    unique: true
	    on_data_valid:
	      func: slug
	      with: { from: name, history: oldSlugs }

# Variants

Several attributes accept either a constant or a reference to a named
function registered in the function registry:

	default: concept            # constant
	default: { func: makeId }   # produced per document
	default: { resolve: x }     # produced once per schema resolution

	required: true
	required: { func: isNew }

	visible: { resolve: hasChannels }

Resolve-time references are replaced by constants when a Schema is built,
so a resolved Schema only carries constants and per-document functions.

# Field Types

  - string:    text value
  - stringset: text per locale, e.g. {"en": "..", "nl": ".."}
  - boolean:   true or false
  - date:      RFC 3339 timestamp or YYYY-MM-DD
  - array:     list, element type given by "of"
  - object:    nested mapping
*/
package schema
