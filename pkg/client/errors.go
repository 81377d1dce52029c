package client

import (
	"fmt"
	"net/http"
	"strings"
)

// StatusError is a non-200 response from the vendor endpoint.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func newStatusError(resp *http.Response, body []byte) *StatusError {
	status := http.StatusText(resp.StatusCode)
	if status == "" {
		// resp.Status is "<code> <reason>"; keep only the reason.
		_, status, _ = strings.Cut(resp.Status, " ")
	}
	return &StatusError{
		StatusCode: resp.StatusCode,
		Status:     status,
		Body:       string(body),
	}
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("failed to invoke LLM: code %d: %s", e.StatusCode, e.Status)
}
