// ABOUTME: Request body decoding for records pushed by the legacy system
// ABOUTME: Accepts a bare array, an {"items": [...]} object or the legacy per-category key
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// DecodePushBody extracts the record array from a pushed request body.
func DecodePushBody(body io.Reader, category string) ([]interface{}, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()

	var payload interface{}
	if err := dec.Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("request body is empty")
		}
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}

	switch v := payload.(type) {
	case []interface{}:
		return v, nil
	case map[string]interface{}:
		for _, key := range []string{"items", legacyPushKeys[category], category} {
			if key == "" {
				continue
			}
			if raw, ok := v[key]; ok {
				items, ok := raw.([]interface{})
				if !ok {
					return nil, fmt.Errorf("%q must be an array", key)
				}
				return items, nil
			}
		}
		return nil, fmt.Errorf("body has no items array")
	default:
		return nil, fmt.Errorf("body must be an array or an object")
	}
}
