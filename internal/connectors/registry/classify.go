package registry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// FailureKind is the closed taxonomy of classified failures.
type FailureKind string

const (
	FailureValidation  FailureKind = "validation"
	FailureAuth        FailureKind = "auth"
	FailureUnreachable FailureKind = "unreachable"
	FailureTimeout     FailureKind = "timeout"
	FailureProtocol    FailureKind = "protocol"
	FailureUnsupported FailureKind = "unsupported"
	FailureUpstream    FailureKind = "upstream"
)

// ClassifiedError carries a failure kind plus a user-facing message. The
// same classification is produced whether the failure came from a
// connection test or a metric fetch.
type ClassifiedError struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (e *ClassifiedError) Error() string { return e.Message }

func (e *ClassifiedError) Unwrap() error { return e.Err }

// HTTPError is returned by vendor clients for non-2xx responses so the
// classifier can see the status code.
type HTTPError struct {
	StatusCode int
	Status     string
	Endpoint   string
	Body       string
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		return fmt.Sprintf("upstream returned %s", e.Status)
	}
	const maxLen = 300
	msg = strings.Join(strings.Fields(msg), " ")
	if len(msg) > maxLen {
		msg = msg[:maxLen] + "..."
	}
	return fmt.Sprintf("upstream returned %s: %s", e.Status, msg)
}

// ProtocolError marks a success-status response whose payload was missing
// an expected field or could not be decoded.
type ProtocolError struct {
	Detail string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unexpected response from upstream: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("unexpected response from upstream: %s", e.Detail)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ValidationError fails a call before any network attempt, naming the
// missing field.
func ValidationError(field string) *ClassifiedError {
	return &ClassifiedError{
		Kind:    FailureValidation,
		Message: field + " is required",
	}
}

// ValidationErr wraps a config Validate error (already phrased as
// "<field> is required") as a pre-flight validation failure.
func ValidationErr(err error) *ClassifiedError {
	return &ClassifiedError{
		Kind:    FailureValidation,
		Message: strings.TrimSpace(err.Error()),
		Err:     err,
	}
}

// UnsupportedMetricError reports an unknown metric id for a connector.
func UnsupportedMetricError(kind, metricID string) *ClassifiedError {
	return &ClassifiedError{
		Kind:    FailureUnsupported,
		Message: fmt.Sprintf("unsupported metric %q for connector %s", metricID, kind),
	}
}

// Classify maps a transport-level failure to the closed taxonomy. The
// endpoint (host:port or URL) is included in connectivity messages so the
// user can see what was attempted. Already-classified errors pass through.
func Classify(err error, endpoint string) *ClassifiedError {
	if err == nil {
		return nil
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &ClassifiedError{
				Kind:    FailureAuth,
				Message: "authentication failed: credentials were rejected by the server",
				Err:     err,
			}
		default:
			return &ClassifiedError{
				Kind:    FailureUpstream,
				Message: httpErr.Error(),
				Err:     err,
			}
		}
	}

	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return &ClassifiedError{
			Kind:    FailureProtocol,
			Message: protoErr.Error(),
			Err:     err,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return &ClassifiedError{
			Kind:    FailureTimeout,
			Message: fmt.Sprintf("request to %s timed out", endpoint),
			Err:     err,
		}
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return &ClassifiedError{
			Kind:    FailureUnreachable,
			Message: fmt.Sprintf("connection refused by %s", endpoint),
			Err:     err,
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &ClassifiedError{
			Kind:    FailureUnreachable,
			Message: fmt.Sprintf("host %s could not be resolved", endpoint),
			Err:     err,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &ClassifiedError{
			Kind:    FailureUnreachable,
			Message: fmt.Sprintf("could not reach %s: %v", endpoint, opErr.Err),
			Err:     err,
		}
	}

	return &ClassifiedError{
		Kind:    FailureUpstream,
		Message: strings.TrimSpace(err.Error()),
		Err:     err,
	}
}

// FailTest turns a classified failure into a TestResult.
func FailTest(err error, endpoint string) TestResult {
	classified := Classify(err, endpoint)
	return TestResult{Success: false, Message: classified.Message}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
