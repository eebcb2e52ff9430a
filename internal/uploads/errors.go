package uploads

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrStoreFailure = errors.New("blob store failure")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func (e *ValidationError) PublicMessage() string {
	return fmt.Sprintf("%s %s.", e.Field, e.Message)
}
