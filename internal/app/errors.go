package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/FynbosAI/palettefineart-sub006/internal/chat"
	"github.com/FynbosAI/palettefineart-sub006/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// mapChatError lifts orchestrator errors into DomainErrors with HTTP status.
func mapChatError(err error) error {
	var chatErr *chat.Error
	if errors.As(err, &chatErr) {
		status := http.StatusInternalServerError
		switch chatErr.Code {
		case chat.CodeNotFound:
			status = http.StatusNotFound
		case chat.CodeForbidden:
			status = http.StatusForbidden
		case chat.CodeValidation:
			status = http.StatusBadRequest
		case chat.CodeConfigMissing:
			status = http.StatusInternalServerError
		}
		return domainError(status, chatErr.Code, chatErr.Message, nil)
	}
	if errors.Is(err, store.ErrConflict) {
		return domainError(http.StatusConflict, "CONFLICT", "Concurrent creation conflict", nil)
	}
	return err
}
