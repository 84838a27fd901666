package jsonutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

var ErrEmptyPayload = errors.New("jsonutil: empty JSON payload")

// StripFences removes a leading/trailing markdown code fence from a model
// response. Handles ```json, ``` and bare fences with surrounding whitespace.
func StripFences(raw []byte) []byte {
	s := bytes.TrimSpace(raw)
	if !bytes.HasPrefix(s, []byte("```")) {
		return s
	}
	// Drop the opening fence line ("```json" or "```").
	if i := bytes.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		return bytes.TrimSpace(bytes.TrimPrefix(s, []byte("```")))
	}
	// Drop the closing fence if present.
	if i := bytes.LastIndex(s, []byte("```")); i >= 0 {
		s = s[:i]
	}
	return bytes.TrimSpace(s)
}

// UnmarshalModel parses a model response into v. It strips code fences first
// and, when the payload is a JSON-encoded string (double-encoded output),
// unwraps it once before retrying. Parse failures are returned verbatim so
// callers can decide whether the error is fatal.
func UnmarshalModel(raw json.RawMessage, v any) error {
	data := StripFences(raw)
	if len(data) == 0 {
		return ErrEmptyPayload
	}
	direct := json.Unmarshal(data, v)
	if direct == nil {
		return nil
	}
	// Some models wrap the whole object in a JSON string.
	var s string
	if err := json.Unmarshal(data, &s); err == nil && strings.TrimSpace(s) != "" {
		if err := json.Unmarshal([]byte(s), v); err == nil {
			return nil
		}
	}
	return direct
}

// MarshalNoEscape encodes v into JSON without escaping <, >, & into <, etc.
func MarshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
