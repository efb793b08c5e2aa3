package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig wraps every failure detected before a backend is called.
	ErrConfig          = errors.New("configuration error")
	ErrMissingSchema   = errors.New("output_schema is required")
	ErrSchemaNotObject = errors.New("output_schema must be a JSON object")
	ErrInvalidInput    = errors.New("invalid input")
)

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

func wrapConfigError(err error, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %w", ErrConfig, fmt.Sprintf(format, args...), err)
}
