package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
)

// marshalFields converts normalized fields to JSON TEXT for storage.
// HTML escaping is disabled so stored text matches what clients send.
func marshalFields(fields map[string]any) (string, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fields); err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalFields parses stored JSON TEXT into normalized field values.
// Numbers decode as int64 via record.DecodeFields.
func unmarshalFields(data string) (map[string]any, error) {
	if data == "" {
		return map[string]any{}, nil
	}
	fields, err := record.DecodeFields([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return fields, nil
}

// jsonPath returns the json_extract path of a top-level field.
func jsonPath(field string) string {
	return "$." + field
}

// sqlValue converts a normalized field value to the SQLite value that
// json_extract yields for it.
func sqlValue(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return int64(1)
		}
		return int64(0)
	}
	return v
}
