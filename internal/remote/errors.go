package remote

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"syscall"
)

// errUnavailable is the sentinel wrapped into errors that should be
// treated as "the cloud store could not be reached".
var errUnavailable = errors.New("remote unavailable")

// IsUnavailable reports whether err is a network-layer failure: the kind
// of error that aborts a sync run with a retryable result instead of a
// permanent failure.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errUnavailable) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ETIMEDOUT),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH):
		return true
	}
	return false
}

// Unavailable wraps err so IsUnavailable recognizes it. Used by callers
// that detect connectivity loss through means other than the error value.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(errUnavailable, err)
}
