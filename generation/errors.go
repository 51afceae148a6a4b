package generation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for generation calls.
var (
	// ErrMissingCredential means no API key could be resolved from any source
	ErrMissingCredential = errors.New("generation: missing API credential")

	// ErrInvalidOrUnbilledCredential means the key was rejected for a premium
	// model (video, high quality image). The user has to re-authenticate.
	ErrInvalidOrUnbilledCredential = errors.New("generation: API credential is invalid or not billed for this model")

	// ErrInvalidRequest is returned when a request variant fails validation
	ErrInvalidRequest = errors.New("generation: invalid request")

	// ErrEmptyResponse is returned when the provider answered without content
	ErrEmptyResponse = errors.New("generation: provider returned no content")
)

// ProviderError is a failure reported by the generation provider
type ProviderError struct {
	Op         string
	StatusCode int
	Status     string // e.g. RESOURCE_EXHAUSTED, PERMISSION_DENIED
	Message    string
	Body       string
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": provider error")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " %d", e.StatusCode)
	}
	if e.Status != "" {
		b.WriteString(" " + e.Status)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	return b.String()
}

// newProviderError builds a ProviderError from an HTTP status and response body
func newProviderError(op string, statusCode int, body []byte) *ProviderError {
	pe := &ProviderError{Op: op, StatusCode: statusCode, Body: string(body)}

	var payload struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		pe.Message = payload.Error.Message
		pe.Status = payload.Error.Status
	}
	if pe.Message == "" {
		pe.Message = strings.TrimSpace(string(body))
	}
	return pe
}

// IsCredentialError reports whether err requires the user to fix the API key
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrMissingCredential) || errors.Is(err, ErrInvalidOrUnbilledCredential)
}
