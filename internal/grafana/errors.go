package grafana

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUserNotFound is returned by LookupUser when Grafana answers 404.
var ErrUserNotFound = errors.New("grafana: user not found")

// APIError is a non-2xx answer from Grafana.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("grafana: %s %s returned %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("grafana: %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// StatusCode extracts the Grafana status code from err, or 0 when err is not an APIError.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
