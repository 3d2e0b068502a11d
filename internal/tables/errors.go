package tables

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a request failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindTimeout
	KindNetwork
	KindHTTP
	KindAuthExpired
	KindParse
	KindUnexpectedContentType
	KindEmptyPayload
	KindValidation
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network failure"
	case KindHTTP:
		return "http error"
	case KindAuthExpired:
		return "auth expired"
	case KindParse:
		return "parse error"
	case KindUnexpectedContentType:
		return "unexpected content type"
	case KindEmptyPayload:
		return "empty payload"
	case KindValidation:
		return "validation error"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Error is returned for every failed request and for client-side validation.
type Error struct {
	Kind     Kind
	Status   int    // HTTP status for KindHTTP and KindAuthExpired
	Endpoint string // endpoint path, empty for local validation
	Message  string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Endpoint != "" {
		b.WriteString(e.Endpoint)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient at the transport level.
func (e *Error) Retryable() bool {
	return e != nil && (e.Kind == KindTimeout || e.Kind == KindNetwork)
}

// KindOf extracts the Kind from err, returning KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var reqErr *Error
	if errors.As(err, &reqErr) {
		return reqErr.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Validationf builds a KindValidation error for input rejected before any
// request is sent.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func newError(kind Kind, endpoint, message string, err error) *Error {
	return &Error{Kind: kind, Endpoint: endpoint, Message: message, Err: err}
}
