package pipeline

import (
	"errors"
	"net/http"

	"github.com/keithlinneman/linnemanlabs-webapp/internal/xerrors"
)

// Kind classifies a fault for translation into a response.
type Kind int

const (
	UnhandledFault Kind = iota
	SessionUnavailable
	CsrfValidationFailed
	MalformedRequest
	// ResponseAlreadyStarted is reported when a fault arrives after headers went out.
	// No body can be written, the connection is aborted instead.
	ResponseAlreadyStarted
)

func (k Kind) String() string {
	switch k {
	case SessionUnavailable:
		return "session_unavailable"
	case CsrfValidationFailed:
		return "csrf_validation_failed"
	case MalformedRequest:
		return "malformed_request"
	case ResponseAlreadyStarted:
		return "response_already_started"
	default:
		return "unhandled_fault"
	}
}

// Status is the HTTP status sent for the kind. ResponseAlreadyStarted has none.
func (k Kind) Status() int {
	switch k {
	case SessionUnavailable:
		return http.StatusServiceUnavailable
	case CsrfValidationFailed:
		return http.StatusForbidden
	case MalformedRequest:
		return http.StatusBadRequest
	case ResponseAlreadyStarted:
		return 0
	default:
		return http.StatusInternalServerError
	}
}

// Message is the client-safe text for the kind. Causes are never shown to clients.
func (k Kind) Message() string {
	switch k {
	case SessionUnavailable:
		return "service temporarily unavailable, please try again"
	case CsrfValidationFailed:
		return "request rejected"
	case MalformedRequest:
		return "bad request"
	default:
		return "internal server error"
	}
}

// Fault is a classified failure raised by a stage or a handler.
type Fault struct {
	Kind    Kind
	Message string
	Stage   string
	Cause   error
}

func newFault(kind Kind, stage string, cause error) *Fault {
	return &Fault{Kind: kind, Message: kind.Message(), Stage: stage, Cause: cause}
}

// NewFault lets handlers raise a classified fault, e.g. MalformedRequest for bad input.
func NewFault(kind Kind, cause error) *Fault {
	return newFault(kind, "", cause)
}

func (f *Fault) Error() string {
	msg := "pipeline: " + f.Kind.String()
	if f.Stage != "" {
		msg = "pipeline: " + f.Stage + ": " + f.Kind.String()
	}
	if f.Cause != nil {
		msg += ": " + f.Cause.Error()
	}
	return msg
}

func (f *Fault) Unwrap() error { return f.Cause }

// classify turns any error into a Fault. Unclassified errors are UnhandledFault.
func classify(err error, stage string) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		if f.Stage == "" {
			f.Stage = stage
		}
		if f.Message == "" {
			f.Message = f.Kind.Message()
		}
		return f
	}
	return newFault(UnhandledFault, stage, err)
}

// panicError converts a recovered panic value into an error.
func panicError(v any) error {
	if err, ok := v.(error); ok {
		return xerrors.Errorf("panic: %w", err)
	}
	return xerrors.Newf("panic: %v", v)
}
