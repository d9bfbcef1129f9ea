package models

// Envelope is the body of every API response. Code is 0 on success;
// otherwise it is a five digit business code whose first three digits repeat
// the HTTP status (40921 is a 409).
type Envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

const (
	CodeOK    = 0
	MessageOK = "success"
)

// StatusOf returns the HTTP status carried by a business code, or 0 when
// code is not a five digit error code.
func StatusOf(code int) int {
	if code < 10000 || code > 59999 {
		return 0
	}
	return code / 100
}
