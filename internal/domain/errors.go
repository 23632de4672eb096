package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for domain operations
var (
	// ErrTransport indicates the catalog server could not be reached or the
	// response could not be read (network, DNS, TLS, truncated body)
	ErrTransport = errors.New("catalog server is unreachable")

	// ErrItemNotFound indicates the requested record does not exist
	ErrItemNotFound = errors.New("item not found")

	// ErrInvalidFilter indicates a filter field has an unsupported value
	ErrInvalidFilter = errors.New("invalid filter")
)

// ProtocolError is a non-success HTTP response from the catalog API
type ProtocolError struct {
	StatusCode int
	Message    string // API "error" field when present
}

func (e *ProtocolError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("catalog api error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("catalog api error (status %d)", e.StatusCode)
}

// IsNotFound reports whether the response was a 404
func (e *ProtocolError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// UserMessage renders an error for display in the UI
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var pe *ProtocolError
	switch {
	case errors.Is(err, context.Canceled):
		return "Request cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timed out"
	case errors.Is(err, ErrTransport):
		return "Cannot reach the catalog server. Check your connection."
	case errors.Is(err, ErrItemNotFound):
		return "Item not found"
	case errors.Is(err, ErrInvalidFilter):
		return err.Error()
	case errors.As(err, &pe):
		if pe.StatusCode == http.StatusTooManyRequests {
			return "Rate limited by the catalog server. Try again shortly."
		}
		if pe.StatusCode >= 500 {
			return fmt.Sprintf("Catalog server error (%d)", pe.StatusCode)
		}
		return pe.Error()
	default:
		return err.Error()
	}
}
