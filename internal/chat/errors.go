package chat

import "fmt"

// Error codes surfaced to callers. Conflicts (duplicate unique names,
// create races) never appear here: they are recovered internally.
const (
	CodeNotFound      = "NOT_FOUND"
	CodeForbidden     = "FORBIDDEN"
	CodeValidation    = "VALIDATION_FAILED"
	CodeConfigMissing = "CONFIG_MISSING"
)

type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func notFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func forbidden(format string, args ...any) *Error {
	return &Error{Code: CodeForbidden, Message: fmt.Sprintf(format, args...)}
}

func invalid(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func configMissing(format string, args ...any) *Error {
	return &Error{Code: CodeConfigMissing, Message: fmt.Sprintf(format, args...)}
}
