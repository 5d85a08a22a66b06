// Package codec turns raw SQL API response bodies into JSON objects.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

var (
	// ErrEmptyBody is returned for a zero-length response body.
	ErrEmptyBody = errors.New("response body is empty")

	// ErrNotObject is returned when a body is valid JSON but not an object.
	ErrNotObject = errors.New("JSON content was expected to decode to an object")
)

// Inflate decompresses a gzip body. A single response may carry several
// concatenated gzip members; all of them are read until the input is
// exhausted.
func Inflate(body []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gzip header: %w", err)
	}
	defer zr.Close()
	zr.Multistream(true)

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gzip inflate: %w", err)
	}
	return out, nil
}

// DecodeObject parses body as a JSON object and returns its members
// undecoded, so callers can test for key presence and decode numbers
// without float64 precision loss.
func DecodeObject(body []byte) (map[string]json.RawMessage, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyBody
	}

	var v any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("unexpected data after top-level JSON value")
	}
	if _, ok := v.(map[string]any); !ok {
		return nil, fmt.Errorf("%w, %s returned", ErrNotObject, typeName(v))
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// Unmarshal decodes data into v keeping numbers as json.Number when v
// holds interface values.
func Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "bool"
	case json.Number:
		return "number"
	}
	return fmt.Sprintf("%T", v)
}
