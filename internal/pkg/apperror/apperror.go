package apperror

import "net/http"

// Kind is the closed set of failure variants the auth pipeline can
// produce. Everything a checkpoint rejects is one of these; conversion
// to the wire envelope happens only at the HTTP boundary.
type Kind string

const (
	Validation    Kind = "validation"
	RateLimit     Kind = "rate_limit"
	Unauthorized  Kind = "unauthorized"
	CSRF          Kind = "csrf"
	SecurityAlert Kind = "security_alert"
	Internal      Kind = "internal"
)

type Error struct {
	Kind   Kind
	Code   string
	Detail string
	Attr   string // offending field/attribute, when there is one
	Err    error  // underlying cause, logged server-side, never sent
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Detail
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, code, detail string) *Error {
	return &Error{Kind: kind, Code: code, Detail: detail}
}

func (e *Error) WithAttr(attr string) *Error {
	e.Attr = attr
	return e
}

func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// Status maps the variant to its HTTP status.
func (e *Error) Status() int {
	switch e.Kind {
	case Validation:
		return http.StatusBadRequest
	case RateLimit:
		return http.StatusTooManyRequests
	case Unauthorized:
		return http.StatusUnauthorized
	case CSRF, SecurityAlert:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// ClientFacing reports whether the variant is the caller's fault; the
// envelope tags these client_error, everything else server_error.
func (e *Error) ClientFacing() bool {
	return e.Kind != Internal
}
