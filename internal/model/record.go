package model

import (
	"bytes"
	"encoding/json"
	"time"
)

const (
	// FieldID and FieldCreatedAt are the system-assigned record fields.
	FieldID        = "_id"
	FieldCreatedAt = "createdAt"

	// TimestampLayout renders UTC timestamps with millisecond precision, e.g. 2026-01-02T15:04:05.000Z.
	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Record is one stored submission. Fields holds submitted values (string, []string or nil);
// ID and CreatedAt are assigned by the system and serialized alongside them as a flat object.
type Record struct {
	ID        string
	CreatedAt time.Time
	Fields    map[string]any
}

// MarshalJSON flattens the record; system fields win over same-named submitted fields.
// Unset system fields are omitted so records without them round-trip unchanged.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		out[k] = v
	}
	if r.ID != "" {
		out[FieldID] = r.ID
	}
	if !r.CreatedAt.IsZero() {
		out[FieldCreatedAt] = r.CreatedAt.UTC().Format(TimestampLayout)
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits a flat object back into system fields and submitted fields.
// Records written by older versions may lack system fields or carry client-supplied
// values under their names; such values are kept as ordinary fields. Numbers are
// kept as json.Number so large integers survive a rewrite.
func (r *Record) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	rec := Record{Fields: make(map[string]any, len(raw))}
	for k, v := range raw {
		s, isString := v.(string)
		switch {
		case k == FieldID && isString && s != "":
			rec.ID = s
		case k == FieldCreatedAt && isString:
			// Only the canonical layout is adopted, so a rewrite never alters the stored text.
			ts, err := time.Parse(time.RFC3339Nano, s)
			if err != nil || ts.UTC().Format(TimestampLayout) != s {
				rec.Fields[k] = v
				continue
			}
			rec.CreatedAt = ts.UTC()
		default:
			rec.Fields[k] = v
		}
	}
	*r = rec
	return nil
}
