package entity

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Decode maps a backend document onto a typed struct. Timestamps arrive as
// RFC 3339 strings; struct fields tagged ",remain" collect whatever the
// document carries beyond the declared fields.
func Decode(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeHookFunc(time.RFC3339),
		Result:     out,
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// StringValue returns the string under key, or "" when absent or not a string.
func StringValue(doc map[string]any, key string) string {
	if doc == nil {
		return ""
	}
	s, _ := doc[key].(string)
	return s
}

// MapValue returns the nested document under key, or nil when absent or not
// a mapping.
func MapValue(doc map[string]any, key string) map[string]any {
	if doc == nil {
		return nil
	}
	m, _ := doc[key].(map[string]any)
	return m
}

// StringSlice returns the list of strings under key. Both []string and
// []any of strings are accepted; anything else yields nil.
func StringSlice(doc map[string]any, key string) []string {
	if doc == nil {
		return nil
	}
	switch v := doc[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil
			}
			out = append(out, s)
		}
		return out
	default:
		return nil
	}
}

// SliceValue returns the list under key, or nil when absent or not a list.
func SliceValue(doc map[string]any, key string) []any {
	if doc == nil {
		return nil
	}
	v, _ := doc[key].([]any)
	return v
}

// CloneMap returns a shallow copy of doc. Nested documents are shared.
func CloneMap(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

// MergeMaps overlays documents left to right: a key in a later document
// wins over the same key in an earlier one. Nil documents are skipped.
func MergeMaps(docs ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, doc := range docs {
		for k, v := range doc {
			out[k] = v
		}
	}
	return out
}
