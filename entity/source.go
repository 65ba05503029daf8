package entity

import (
	"encoding/base64"
	"fmt"
)

// EncodeSource encodes embedded source code for transport inside a spec.
func EncodeSource(code string) string {
	return base64.StdEncoding.EncodeToString([]byte(code))
}

// DecodeSource decodes source code previously encoded with EncodeSource.
func DecodeSource(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode source: %w", err)
	}
	return string(raw), nil
}
