package gateway

import (
	"errors"
	"fmt"
)

// APIError is returned for any non-2xx gateway response. The status code
// lets callers split hard rejections (4xx) from retryable failures.
type APIError struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway request failed: path=%s status=%d body=%s", e.Path, e.StatusCode, e.Body)
}

// IsClientError reports whether err is a gateway 4xx rejection. Such
// failures are terminal: retrying the same request cannot succeed.
func IsClientError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}
