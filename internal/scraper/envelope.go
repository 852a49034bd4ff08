package scraper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// envelope is the ASP.NET page-method wrapper. The payload in "d" is itself
// a JSON document encoded as a string.
type envelope struct {
	D *string `json:"d"`
}

// unwrapEnvelope decodes the outer object and returns the inner JSON document.
func unwrapEnvelope(body []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decoding response envelope: %w", err)
	}
	if env.D == nil {
		return nil, fmt.Errorf("response envelope has no \"d\" field")
	}

	inner := json.RawMessage(strings.TrimSpace(*env.D))
	if !json.Valid(inner) {
		return nil, fmt.Errorf("response envelope \"d\" is not valid JSON")
	}
	return inner, nil
}

// resultShape tags the two forms an inner payload comes in.
type resultShape int

const (
	shapeObject resultShape = iota
	shapeList
)

// result is an inner payload that arrived as an object or a list of objects.
type result struct {
	shape resultShape
	items []map[string]any
}

func decodeResult(inner json.RawMessage) (result, error) {
	trimmed := bytes.TrimSpace(inner)
	if len(trimmed) == 0 {
		return result{}, fmt.Errorf("empty result")
	}

	switch trimmed[0] {
	case '{':
		var obj map[string]any
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return result{}, fmt.Errorf("decoding result object: %w", err)
		}
		return result{shape: shapeObject, items: []map[string]any{obj}}, nil
	case '[':
		var list []map[string]any
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return result{}, fmt.Errorf("decoding result list: %w", err)
		}
		return result{shape: shapeList, items: list}, nil
	}
	return result{}, fmt.Errorf("unexpected result type %q", trimmed[:1])
}

// canonical returns the single object both shapes reduce to.
func (r result) canonical() (map[string]any, error) {
	if len(r.items) == 0 {
		return nil, fmt.Errorf("empty result list")
	}
	return r.items[0], nil
}

// loginSucceeded applies the portal's success test to the canonical login
// result: STATUS "1" or the presence of a user id.
func loginSucceeded(obj map[string]any) bool {
	for k, v := range obj {
		switch strings.ToLower(k) {
		case "status":
			if strings.TrimSpace(fmt.Sprint(v)) == "1" {
				return true
			}
		case "userid":
			if v != nil {
				return true
			}
		}
	}
	return false
}
