package apiclient

import (
	"fmt"
	"io"
	"net/http"
)

const maxErrorBody = 4 << 10

// StatusError is a non-2xx response from the remote service.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// NewStatusError captures the start of resp's body. The caller still owns resp.Body.
func NewStatusError(endpoint string, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(body)}
}
