// Package schema validates request bodies against JSON schemas inferred from
// Go types and describes the HTTP API as an OpenAPI document.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/jsonschema-go/jsonschema"

	"voice-agent-service/internal/apperr"
)

// MaxBodyBytes caps the size of a decoded request body.
const MaxBodyBytes = 1 << 20

// ErrBodyTooLarge is returned for bodies over MaxBodyBytes. It is a transport
// fault, not a validation error.
var ErrBodyTooLarge = errors.New("request body too large")

// Validator decodes JSON bodies into T after validating them against the
// schema inferred from T. Fields without omitempty are required.
type Validator[T any] struct {
	schema   *jsonschema.Schema
	resolved *jsonschema.Resolved
}

// NewValidator infers and resolves the schema for T.
func NewValidator[T any]() (*Validator[T], error) {
	s, err := jsonschema.For[T](&jsonschema.ForOptions{})
	if err != nil {
		return nil, fmt.Errorf("infer schema: %w", err)
	}
	// Unknown fields are ignored rather than rejected.
	s.AdditionalProperties = nil

	resolved, err := s.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return nil, fmt.Errorf("resolve schema: %w", err)
	}
	return &Validator[T]{schema: s, resolved: resolved}, nil
}

// MustValidator is NewValidator for package level initialization.
func MustValidator[T any]() *Validator[T] {
	v, err := NewValidator[T]()
	if err != nil {
		panic(err)
	}
	return v
}

// Schema returns the inferred schema.
func (v *Validator[T]) Schema() *jsonschema.Schema {
	return v.schema
}

// Decode reads one JSON document from r. Malformed or non-conforming bodies
// are reported as apperr.Validation errors, oversized ones as ErrBodyTooLarge.
func (v *Validator[T]) Decode(r io.Reader) (T, error) {
	var out T

	body, err := io.ReadAll(io.LimitReader(r, MaxBodyBytes+1))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return out, fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, maxErr.Limit)
		}
		return out, apperr.Wrap(apperr.Validation, err, "could not read request body")
	}
	if len(body) > MaxBodyBytes {
		return out, ErrBodyTooLarge
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return out, apperr.New(apperr.Validation, "request body is required")
	}

	var instance any
	if err := json.Unmarshal(body, &instance); err != nil {
		return out, apperr.Wrap(apperr.Validation, err, "invalid JSON body: %v", err)
	}
	if err := v.resolved.Validate(instance); err != nil {
		return out, apperr.Wrap(apperr.Validation, err, "%v", err)
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, apperr.Wrap(apperr.Validation, err, "invalid JSON body: %v", err)
	}
	return out, nil
}
