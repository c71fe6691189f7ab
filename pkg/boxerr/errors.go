// Package boxerr defines the error kinds surfaced by boxdb's core packages.
package boxerr

import "fmt"

// BoxError is a plain sentinel error, mirroring the shape the teacher used
// for its own store errors: a message-carrying struct rather than a
// collection of ad-hoc fmt.Errorf strings.
type BoxError struct {
	Kind    string
	Message string
}

func (e *BoxError) Error() string {
	if e.Message == "" {
		return e.Kind
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is lets errors.Is match any BoxError with the same Kind, so wrapped
// instances with extra context still compare equal to the sentinel.
func (e *BoxError) Is(target error) bool {
	t, ok := target.(*BoxError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinel kinds, one per error condition in the specification.
var (
	ErrCorruptFrame         = &BoxError{Kind: "CorruptFrame"}
	ErrCorruptBox           = &BoxError{Kind: "CorruptBox"}
	ErrUnknownType          = &BoxError{Kind: "UnknownType"}
	ErrAlreadyRegistered    = &BoxError{Kind: "AlreadyRegistered"}
	ErrBoxLocked            = &BoxError{Kind: "BoxLocked"}
	ErrBoxClosed            = &BoxError{Kind: "BoxClosed"}
	ErrUnsupportedOperation = &BoxError{Kind: "UnsupportedOperation"}
	ErrIO                   = &BoxError{Kind: "IoError"}
)

// Wrap attaches a message to a sentinel kind without losing errors.Is
// matchability, e.g. Wrap(ErrCorruptFrame, "short read at offset 128").
func Wrap(kind *BoxError, message string) *BoxError {
	return &BoxError{Kind: kind.Kind, Message: message}
}

// WrapIO tags an underlying filesystem error as IoError, preserving the
// original error in the message for diagnostics (the chain still matches
// errors.Is(err, ErrIO) via BoxError.Is).
func WrapIO(err error) error {
	if err == nil {
		return nil
	}
	return Wrap(ErrIO, err.Error())
}
