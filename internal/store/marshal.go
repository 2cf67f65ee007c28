package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/testworker/internal/domain"
)

// marshalJSON encodes v as compact JSON TEXT for storage.
// HTML escaping is disabled so stored payloads match what is delivered.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// marshalStrings converts a string list to JSON TEXT, never "null".
func marshalStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	data, err := marshalJSON(values)
	if err != nil {
		return "", fmt.Errorf("marshal strings: %w", err)
	}
	return data, nil
}

// unmarshalStrings parses JSON TEXT to a string list.
func unmarshalStrings(data string) ([]string, error) {
	values := []string{}
	if data == "" || data == "[]" {
		return values, nil
	}
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil, fmt.Errorf("unmarshal strings: %w", err)
	}
	return values, nil
}

// marshalPayload converts a WorkerEvent payload to JSON TEXT.
func marshalPayload(payload map[string]any) (string, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := marshalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return data, nil
}

// unmarshalPayload parses JSON TEXT to a WorkerEvent payload.
func unmarshalPayload(data string) (map[string]any, error) {
	payload := map[string]any{}
	if data == "" || data == "{}" {
		return payload, nil
	}
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return payload, nil
}

// marshalReferences converts related references to JSON TEXT.
func marshalReferences(refs []domain.ResourceReference) (string, error) {
	if refs == nil {
		refs = []domain.ResourceReference{}
	}
	data, err := marshalJSON(refs)
	if err != nil {
		return "", fmt.Errorf("marshal related references: %w", err)
	}
	return data, nil
}

// unmarshalReferences parses JSON TEXT to related references.
// Returns nil for an empty list so callers can omit the field.
func unmarshalReferences(data string) ([]domain.ResourceReference, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var refs []domain.ResourceReference
	if err := json.Unmarshal([]byte(data), &refs); err != nil {
		return nil, fmt.Errorf("unmarshal related references: %w", err)
	}
	return refs, nil
}
