package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingSource is wrapped by ValidationError when a source has no rows.
	ErrMissingSource = errors.New("missing source data")
	// ErrEmptyMerge means the sources share no date with complete data.
	ErrEmptyMerge = errors.New("no overlapping dates with complete data")
	// ErrNoModelFitted is returned when every model failed.
	ErrNoModelFitted = errors.New("no model could be fitted")
	// ErrInvalidOptions reports an unusable horizon or seasonal period.
	ErrInvalidOptions = errors.New("invalid run options")
	// ErrNonFinite marks a model whose fit or forecast overflowed.
	ErrNonFinite = errors.New("model produced non-finite values")
)

// ValidationError names the missing source.
type ValidationError struct {
	Source string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingSource, e.Source)
}

func (e *ValidationError) Unwrap() error {
	return ErrMissingSource
}
