// Package rpcerr defines the error-kind taxonomy shared by every subsystem
// and the translation from a kind to a wire status and a process exit code,
// mirroring the way runsc's cli package maps internal errors onto process
// exit codes at the outermost boundary.
package rpcerr

import "fmt"

// Kind classifies an error the way the RPC surface reports it to clients.
type Kind int

const (
	// Unknown is the zero value; never returned deliberately.
	Unknown Kind = iota
	InvalidArgument
	NotFound
	AlreadyExists
	PreconditionFailed
	ResourceExhausted
	Internal
	Aborted
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case NotFound:
		return "NotFound"
	case AlreadyExists:
		return "AlreadyExists"
	case PreconditionFailed:
		return "PreconditionFailed"
	case ResourceExhausted:
		return "ResourceExhausted"
	case Internal:
		return "Internal"
	case Aborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Error is a Kind-tagged error carrying a message and, optionally, the
// underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

// InvalidArgumentf builds an InvalidArgument error.
func InvalidArgumentf(format string, args ...any) error { return newf(InvalidArgument, format, args...) }

// NotFoundf builds a NotFound error.
func NotFoundf(format string, args ...any) error { return newf(NotFound, format, args...) }

// AlreadyExistsf builds an AlreadyExists error.
func AlreadyExistsf(format string, args ...any) error { return newf(AlreadyExists, format, args...) }

// PreconditionFailedf builds a PreconditionFailed error.
func PreconditionFailedf(format string, args ...any) error {
	return newf(PreconditionFailed, format, args...)
}

// ResourceExhaustedf builds a ResourceExhausted error.
func ResourceExhaustedf(format string, args ...any) error {
	return newf(ResourceExhausted, format, args...)
}

// Internalf builds an Internal error, optionally wrapping cause.
func Internalf(cause error, format string, args ...any) error {
	return &Error{Kind: Internal, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Abortedf builds an Aborted error (compound operation partially succeeded,
// then rollback ran), optionally wrapping cause.
func Abortedf(cause error, format string, args ...any) error {
	return &Error{Kind: Aborted, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to Internal for errors that
// did not originate in this package (e.g. raw I/O errors bubbling up
// unwrapped).
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var e *Error
	if As(err, &e) {
		return e.Kind
	}
	return Internal
}

// As is a thin wrapper around errors.As kept local to avoid importing
// "errors" in call sites that only need KindOf.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// ExitCode maps a Kind onto the CLI wrapper's process exit codes:
// 0 success, 1 connect failure, 2 request failure, 3 runtime error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case InvalidArgument, NotFound, AlreadyExists, PreconditionFailed, ResourceExhausted:
		return 2
	default:
		return 3
	}
}
