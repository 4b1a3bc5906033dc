package custody

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// CustodyError classifies custody service failures as transient/permanent.
// The scheduler never retries; the classification is for the external
// operator deciding whether a failed execution is worth re-attempting.
type CustodyError struct {
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *CustodyError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "custody error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *CustodyError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether a failed call might succeed if re-attempted.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var custodyErr *CustodyError
	if errors.As(err, &custodyErr) {
		return custodyErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
