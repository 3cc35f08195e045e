package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnauthorized is wrapped by every 401 response.
	ErrUnauthorized = errors.New("backend: unauthorized")
	// ErrNotFound is wrapped by every 404 response.
	ErrNotFound = errors.New("backend: not found")
	// ErrUnavailable is returned while the circuit breaker is open.
	ErrUnavailable = errors.New("backend: unavailable")
	// ErrNoPaymentURL is returned when create_payment answers without a url.
	ErrNoPaymentURL = errors.New("backend: payment link response has no url")
)

// APIError is a non-2xx backend response.
type APIError struct {
	Status  int
	Message string // "message" field of a JSON body, or the raw body
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d", e.Status)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case 401:
		return ErrUnauthorized
	case 404:
		return ErrNotFound
	}
	return nil
}

// MessageOf returns the server supplied message carried by err, if any.
func MessageOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

func newAPIError(status int, body []byte) *APIError {
	return &APIError{Status: status, Message: extractMessage(body)}
}

func extractMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
		if strings.HasPrefix(trimmed, "{") {
			return ""
		}
	}
	return trimmed
}
