package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LoadCertificateFile reads a certificate map {"<subdomain>": ["<id>", ...]}.
func LoadCertificateFile(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read certificate file: %w", err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, schemaErrorf(path, "top-level value must be an object: %v", err)
	}
	if top == nil {
		return nil, schemaErrorf(path, "top-level value must be an object")
	}

	certs := make(map[string][]string, len(top))
	for sub, raw := range top {
		var ids []string
		if err := json.Unmarshal(raw, &ids); err != nil || ids == nil {
			return nil, schemaErrorf(path, "value of %q must be a list of strings", sub)
		}
		certs[sub] = ids
	}
	return certs, nil
}

// SaveCertificates writes data as 4-space indented JSON, creating the parent
// directory if needed. Non-ASCII text is written as is.
func SaveCertificates(data map[string][]string, path string) error {
	out := make(map[string][]string, len(data))
	for sub, ids := range data {
		if ids == nil {
			ids = []string{}
		}
		out[sub] = ids
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode certificates: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write certificate file: %w", err)
	}
	return nil
}
