package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound   = errors.New("document not found")
	ErrEngagementNotFound = errors.New("engagement not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnsupportedFormat  = errors.New("unsupported file format")
	ErrConflict           = errors.New("conflicting state")
	ErrRetryExhausted     = errors.New("retry ceiling reached")
	ErrTemporary          = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
