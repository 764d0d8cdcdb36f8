// services/frame-poller/pkg/reader/errors.go
package reader

import (
	"errors"
	"fmt"
)

// FatalError marks a read failure after which the source must not be read again.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	if e.Err == nil {
		return "reader: transport fatal"
	}
	return fmt.Sprintf("reader: transport fatal: %v", e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err as transport-fatal. Fatal(nil) is nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	var fe *FatalError
	if errors.As(err, &fe) {
		return err
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err (or anything it wraps) is transport-fatal.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
