package pipeline

import "net/http"

// Kind classifies why a batch was not completed.
type Kind int

const (
	KindMalformedBatch Kind = iota + 1
	KindMalformedVector
	KindDimensionMismatch
	KindPersistence
	KindPublish
)

func (k Kind) String() string {
	switch k {
	case KindMalformedBatch:
		return "malformed_batch"
	case KindMalformedVector:
		return "malformed_vector"
	case KindDimensionMismatch:
		return "dimension_mismatch"
	case KindPersistence:
		return "persistence"
	case KindPublish:
		return "publish"
	default:
		return "unknown"
	}
}

// HTTPStatus is the response code the camera protocol expects for k.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindMalformedBatch, KindMalformedVector:
		return http.StatusBadRequest
	case KindDimensionMismatch:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Rejected reports whether the batch was refused before anything was written.
func (k Kind) Rejected() bool {
	return k == KindMalformedBatch || k == KindMalformedVector
}

// Error is returned by Ingest for every failed batch. Reason is safe to send
// to the client; Err carries the underlying cause for logs.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *Error) Unwrap() error {
	return e.Err
}
