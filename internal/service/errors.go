package service

import (
	"errors"
	"fmt"
)

var (
	ErrTransferFailed       = errors.New("zone transfer failed")
	ErrResolveFailed        = errors.New("resolve failed")
	ErrUpdateFailed         = errors.New("update failed")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrInternal             = errors.New("internal error")
	ErrSyncFailed           = errors.New("synchronize failed")

	ErrNotFound    = errors.New("not found")
	ErrInvalid     = errors.New("invalid request")
	ErrDuplicate   = errors.New("already exists")
	ErrNameChanged = errors.New("record name cannot be changed; delete the record and add a new one")
)

// Error carries the failure kind together with the domain and record it
// concerns so the caller can build a notice.
type Error struct {
	Kind   error
	Domain string
	Record string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Domain != "" {
		msg += " for " + e.Domain
	}
	if e.Record != "" {
		msg += " (" + e.Record + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opError(kind error, domain, record string, err error) *Error {
	return &Error{Kind: kind, Domain: domain, Record: record, Err: err}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
