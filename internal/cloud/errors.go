package cloud

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors classifying every cloud failure. The engine branches on
// these to decide between falling back to the cache, surfacing the error, or
// queueing a retry.
var (
	// ErrUnavailable covers transport failures, timeouts, and 5xx responses.
	// Operations failing this way are safe to retry later.
	ErrUnavailable = errors.New("cloud unavailable")
	// ErrAuth covers 401 and 403 responses. Retrying without new credentials
	// is pointless.
	ErrAuth = errors.New("cloud authentication failed")
	// ErrNotFound covers 404 responses.
	ErrNotFound = errors.New("not found in cloud")
	// ErrBadRequest covers 400 responses: the cloud rejected the payload
	// itself, so retrying the same request cannot succeed.
	ErrBadRequest = errors.New("cloud rejected request")
	// ErrQuota covers 507 responses: the account is out of storage. Retrying
	// without freeing space cannot succeed, so these are never queued.
	ErrQuota = errors.New("cloud storage quota exceeded")
)

// classifyStatus maps a non-2xx HTTP status to a sentinel error.
func classifyStatus(status int, body string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrAuth, status)
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusBadRequest:
		if body != "" {
			return fmt.Errorf("%w: %s", ErrBadRequest, body)
		}
		return ErrBadRequest
	case status == http.StatusInsufficientStorage:
		if body != "" {
			return fmt.Errorf("%w: %s", ErrQuota, body)
		}
		return ErrQuota
	case status >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, status)
	default:
		return fmt.Errorf("%w: unexpected status %d", ErrUnavailable, status)
	}
}
