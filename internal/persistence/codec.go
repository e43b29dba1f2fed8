package persistence

import (
	"encoding/json"
	"fmt"
)

// EncodeValue serializes a store value as JSON text.
func EncodeValue(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode value: %w", err)
	}
	return string(b), nil
}

// DecodeValue parses JSON text produced by EncodeValue.
func DecodeValue(data string) (any, error) {
	if data == "" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return v, nil
}
