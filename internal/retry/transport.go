package retry

import (
	"context"
	"errors"
	"net"
	"strings"
)

// IsRetryableTransportError reports whether err looks like a
// transient network/transport failure: timeouts, connection errors,
// request-build errors, or body-read errors (spec §4.2).
func IsRetryableTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, needle := range []string{
		"timeout",
		"timed out",
		"connection reset",
		"connection refused",
		"connect:",
		"eof",
		"broken pipe",
		"no such host",
		"body",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
