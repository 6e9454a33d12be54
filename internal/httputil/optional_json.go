package httputil

import (
	"bytes"
	"encoding/json"
)

// OptionalJSON tracks presence of a raw JSON field:
//   - Present=false: field absent from the body
//   - Present=true, Value=nil: field is JSON null
//   - Present=true, Value=raw: field carries a value
type OptionalJSON struct {
	Present bool
	Value   json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler.
// When this method is called, the field was present in the JSON.
func (o *OptionalJSON) UnmarshalJSON(data []byte) error {
	o.Present = true

	if string(bytes.TrimSpace(data)) == "null" {
		o.Value = nil
		return nil
	}

	o.Value = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON writes the raw value, or null when unset.
func (o OptionalJSON) MarshalJSON() ([]byte, error) {
	if !o.Present || o.Value == nil {
		return []byte("null"), nil
	}
	return o.Value, nil
}

// Set reports whether the field carries a non-null value.
func (o OptionalJSON) Set() bool {
	return o.Present && o.Value != nil
}
