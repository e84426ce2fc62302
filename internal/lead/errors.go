package lead

import (
	"errors"
	"fmt"
)

var (
	// ErrNavigationTimeout indicates an awaited element never appeared.
	ErrNavigationTimeout = errors.New("navigation timeout")
	// ErrCaptchaUnresolved indicates the challenge resolver gave up.
	ErrCaptchaUnresolved = errors.New("captcha unresolved")
	// ErrExternalAPI indicates a malformed or error response from a remote service.
	ErrExternalAPI = errors.New("external api error")
	// ErrValidationRejected marks a candidate that failed normalization.
	ErrValidationRejected = errors.New("validation rejected")
	// ErrSkippedDomain marks a URL excluded by the skip-list.
	ErrSkippedDomain = errors.New("skipped domain")
	// ErrSessionUnavailable means no browser session could be established.
	ErrSessionUnavailable = errors.New("browser session unavailable")
	// ErrReportNotFound is returned by report stores for unknown IDs.
	ErrReportNotFound = errors.New("report not found")
	// ErrAdmissionRejected is returned when a request exceeds a concurrency bound.
	ErrAdmissionRejected = errors.New("admission rejected")
	// ErrGlobalLimit wraps ErrAdmissionRejected for the system-wide bound.
	ErrGlobalLimit = fmt.Errorf("%w: global concurrency limit reached", ErrAdmissionRejected)
	// ErrIdentityLimit wraps ErrAdmissionRejected for the per-identity bound.
	ErrIdentityLimit = fmt.Errorf("%w: identity concurrency limit reached", ErrAdmissionRejected)
)
