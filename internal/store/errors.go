// Package store reads and writes the certscan JSON result files and the
// aggregate log file.
package store

import (
	"errors"
	"fmt"
)

// ErrSchema is matched by every *SchemaError.
var ErrSchema = errors.New("invalid file structure")

// SchemaError reports a JSON file whose shape does not match what the
// caller expects.
type SchemaError struct {
	Path   string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid file structure: %s", e.Reason)
	}
	return fmt.Sprintf("%s: invalid file structure: %s", e.Path, e.Reason)
}

func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

func schemaErrorf(path, format string, args ...any) error {
	return &SchemaError{Path: path, Reason: fmt.Sprintf(format, args...)}
}
