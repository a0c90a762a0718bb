package supervisor

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/teranos/loom/errors"
)

// gatewayUnavailableMarkers are fragments of proxy error pages that mean the
// supervisor itself never handled the request.
var gatewayUnavailableMarkers = []string{
	"no healthy upstream",
	"upstream connect error",
}

// isGatewayUnavailableText reports whether a response body reads like a
// gateway error page rather than supervisor output.
func isGatewayUnavailableText(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range gatewayUnavailableMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// classifyResponse maps an HTTP response onto the monitor's error taxonomy:
//
//   - 2xx: nil
//   - 503/504, or a gateway error page under any status: transient, wraps
//     errors.ErrServiceUnavailable
//   - anything else: fatal, message carries the response body
func classifyResponse(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	if statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusGatewayTimeout ||
		isGatewayUnavailableText(string(body)) {
		return errors.Wrapf(errors.ErrServiceUnavailable,
			"supervisor unavailable (status %d): %s", statusCode, truncateForError(body))
	}

	return errors.Newf("supervisor request failed with status %d: %s", statusCode, truncateForError(body))
}

// classifyTransportError distinguishes timeouts (transient, absorbed by the
// poller) from other transport failures (fatal).
func classifyTransportError(err error, msg string) error {
	if isTimeoutError(err) {
		return errors.Wrap(errors.Wrap(errors.ErrTimeout, err.Error()), msg)
	}
	return errors.Wrap(err, msg)
}

// isTimeoutError matches context deadline expiry, net.Error timeouts, and
// the http.Client's own deadline wording.
func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded")
}
