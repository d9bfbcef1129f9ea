package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound matches any 404 response.
	ErrNotFound = errors.New("gateway: not found")
	// ErrConflict matches any 409 response, such as a repeated book completion or a stale snapshot.
	ErrConflict = errors.New("gateway: conflict")
	// ErrUnauthorized matches any 401 response.
	ErrUnauthorized = errors.New("gateway: unauthorized")
)

const defaultErrorMessage = "erro ao comunicar com o servidor"

// APIError is returned for every non-2xx response.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway: %d %s (code %d)", e.Status, e.Message, e.Code)
}

// Is lets errors.Is match the status sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrConflict:
		return e.Status == http.StatusConflict
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	}
	return false
}
