package resilient

import (
	"context"
	"errors"
	"fmt"
)

// TransportError means the remote could not be reached or the handle is no
// longer valid. Only transport errors trigger a reconnect.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ApplicationError is a failure reported by the remote operation itself.
// It is returned to the caller unchanged, without retry.
type ApplicationError struct {
	Err error
}

func (e *ApplicationError) Error() string { return e.Err.Error() }

func (e *ApplicationError) Unwrap() error { return e.Err }

func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func IsApplication(err error) bool {
	var ae *ApplicationError
	return errors.As(err, &ae)
}

// Classifier tags an operation error as transport or application. It must
// return nil for a nil error.
type Classifier func(ctx context.Context, err error) error

// DefaultClassifier trusts errors already tagged by the operation and
// treats everything else as an application error.
func DefaultClassifier(_ context.Context, err error) error {
	if err == nil || IsTransport(err) || IsApplication(err) {
		return err
	}
	return &ApplicationError{Err: err}
}
