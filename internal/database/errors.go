package database

import "errors"

// ErrorKind tags an expected failure so callers can branch without matching
// on message text.
type ErrorKind string

const (
	KindNotFound    ErrorKind = "not_found"
	KindValidation  ErrorKind = "validation"
	KindInvalidData ErrorKind = "invalid_data"
	KindDuplicate   ErrorKind = "duplicate"
	KindDependency  ErrorKind = "dependency"
)

// Error is the structured result returned for every expected failure
// condition. Store I/O faults are returned as plain wrapped errors instead.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func notFound(message string) error {
	return &Error{Kind: KindNotFound, Message: message}
}

func validation(message string) error {
	return &Error{Kind: KindValidation, Message: message}
}

func invalidData(message string) error {
	return &Error{Kind: KindInvalidData, Message: message}
}

func duplicate(message string) error {
	return &Error{Kind: KindDuplicate, Message: message}
}

func dependency(message string) error {
	return &Error{Kind: KindDependency, Message: message}
}

// KindOf returns the kind of a structured error, or "" for plain errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsNotFound reports whether err is a structured not-found error.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
