package services

import "errors"

// ErrorKind classifies domain failures so the HTTP layer can map them to a
// status without inspecting messages.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindInvalidCredentials
	KindInvalidToken
	KindTokenRevoked
	KindTokenExpired
	KindUnauthorized
	KindEmailAlreadyRegistered
	KindNotFound
	KindValidation
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindInvalidToken:
		return "invalid_token"
	case KindTokenRevoked:
		return "token_revoked"
	case KindTokenExpired:
		return "token_expired"
	case KindUnauthorized:
		return "unauthorized"
	case KindEmailAlreadyRegistered:
		return "email_already_registered"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

// Error is a domain error. Two Errors match under errors.Is when their kinds
// are equal, so callers compare against the package sentinels.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidCredentials     = &Error{Kind: KindInvalidCredentials, Message: "Email or password is incorrect"}
	ErrInvalidToken           = &Error{Kind: KindInvalidToken, Message: "Invalid token"}
	ErrTokenRevoked           = &Error{Kind: KindTokenRevoked, Message: "Token has been revoked"}
	ErrTokenExpired           = &Error{Kind: KindTokenExpired, Message: "Token has expired"}
	ErrUnauthorized           = &Error{Kind: KindUnauthorized, Message: "Unauthorized"}
	ErrEmailAlreadyRegistered = &Error{Kind: KindEmailAlreadyRegistered, Message: "Email already registered"}
	ErrAccountNotFound        = &Error{Kind: KindNotFound, Message: "Account not found"}
	ErrValidation             = &Error{Kind: KindValidation, Message: "Validation failed"}
)

func validationError(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

func emailTakenError(email string) error {
	return &Error{Kind: KindEmailAlreadyRegistered, Message: `Email "` + email + `" is already registered`}
}

// KindOf returns the kind of a domain error, or KindInternal for anything else.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
