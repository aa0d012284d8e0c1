package fever

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// APIVersion is the Fever protocol version this server speaks
const APIVersion = 3

// Envelope is the single response object a Fever call returns. Every
// projection attaches its key here; keys marshal in attachment order.
// api_version and auth are always present.
type Envelope struct {
	keys   []string
	values map[string]interface{}
}

// NewEnvelope creates an envelope carrying the auth verdict
func NewEnvelope(authenticated bool) *Envelope {
	e := &Envelope{values: make(map[string]interface{})}
	e.Set("api_version", APIVersion)
	if authenticated {
		e.Set("auth", 1)
	} else {
		e.Set("auth", 0)
	}
	return e
}

// Set attaches a key to the envelope, replacing any previous value
func (e *Envelope) Set(key string, value interface{}) {
	if _, ok := e.values[key]; !ok {
		e.keys = append(e.keys, key)
	}
	e.values[key] = value
}

// Has reports whether a key has been attached
func (e *Envelope) Has(key string) bool {
	_, ok := e.values[key]
	return ok
}

// Get returns an attached value, nil if absent
func (e *Envelope) Get(key string) interface{} {
	return e.values[key]
}

// Len returns the number of attached keys
func (e *Envelope) Len() int {
	return len(e.keys)
}

// MarshalJSON writes the envelope as a flat object in attachment order
func (e *Envelope) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range e.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		value, err := json.Marshal(e.values[key])
		if err != nil {
			return nil, fmt.Errorf("marshal envelope key %s: %w", key, err)
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
