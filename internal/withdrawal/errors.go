package withdrawal

import (
	"errors"
	"fmt"
	"strings"
)

// Error is the structured rejection returned by every authorization operation.
type Error struct {
	Kind     ErrorKind
	Message  string
	Subject  string   // request or batch id the error refers to
	Signers  []string // offending signer addresses, if any
	Original error
}

type ErrorKind int

const (
	ErrKindUnknown ErrorKind = iota
	ErrKindValidation
	ErrKindAuthorization
	ErrKindReplay
	ErrKindState
	ErrKindTransient
	ErrKindPersistence
	ErrKindNotConnected
	ErrKindNotFound
)

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Kind.String(), e.Message))
	if len(e.Signers) > 0 {
		sb.WriteString(fmt.Sprintf(" (signers: %v)", e.Signers))
	}
	if e.Subject != "" {
		sb.WriteString(fmt.Sprintf(" [subject: %s]", e.Subject))
	}
	if e.Original != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Original))
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Original
}

func (k ErrorKind) String() string {
	switch k {
	case ErrKindValidation:
		return "VALIDATION"
	case ErrKindAuthorization:
		return "AUTHORIZATION"
	case ErrKindReplay:
		return "REPLAY"
	case ErrKindState:
		return "STATE"
	case ErrKindTransient:
		return "TRANSIENT"
	case ErrKindPersistence:
		return "PERSISTENCE"
	case ErrKindNotConnected:
		return "NOT_CONNECTED"
	case ErrKindNotFound:
		return "NOT_FOUND"
	default:
		return "UNKNOWN"
	}
}

// KindOf returns the kind of the first *Error in the chain, or ErrKindUnknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// NewValidationError rejects malformed input.
func NewValidationError(subject string, format string, args ...interface{}) *Error {
	return &Error{Kind: ErrKindValidation, Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// NewAuthorizationError rejects a caller or signer lacking the required role.
func NewAuthorizationError(subject string, signer string, msg string) *Error {
	e := &Error{Kind: ErrKindAuthorization, Subject: subject, Message: msg}
	if signer != "" {
		e.Signers = []string{signer}
	}
	return e
}

// NewReplayError rejects a duplicate signature or a reused nonce.
func NewReplayError(subject string, signer string, msg string) *Error {
	e := &Error{Kind: ErrKindReplay, Subject: subject, Message: msg}
	if signer != "" {
		e.Signers = []string{signer}
	}
	return e
}

// NewStateError rejects an operation that is not valid for the current status.
func NewStateError(subject string, format string, args ...interface{}) *Error {
	return &Error{Kind: ErrKindState, Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// NewTransientError marks a timeout or an unconfirmed outcome that may still resolve later.
func NewTransientError(subject string, msg string, err error) *Error {
	return &Error{Kind: ErrKindTransient, Subject: subject, Message: msg, Original: err}
}

// NewPersistenceError marks a record that could not be decoded by any known format.
func NewPersistenceError(subject string, msg string, err error) *Error {
	return &Error{Kind: ErrKindPersistence, Subject: subject, Message: msg, Original: err}
}

// NewNotConnectedError is returned when no signing key is available.
func NewNotConnectedError(msg string) *Error {
	return &Error{Kind: ErrKindNotConnected, Message: msg}
}

// NewNotFoundError is returned when a request, batch or activity entry does not exist.
func NewNotFoundError(subject string, what string) *Error {
	return &Error{Kind: ErrKindNotFound, Subject: subject, Message: what + " not found"}
}
