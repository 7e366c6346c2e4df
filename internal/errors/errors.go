package errors

import (
	"errors"
	"net"
	"strings"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// Transient errors indicate temporary conditions that should be retried.

// ErrTransientConnection indicates a transient connection error that should be retried.
// This includes timeouts, connection refused, DNS resolution failures, and network unreachable errors.
var ErrTransientConnection = errors.New("transient connection error")

// ErrTransientKubernetesAPI indicates a transient Kubernetes API error that should be retried.
var ErrTransientKubernetesAPI = errors.New("transient Kubernetes API error")

// Permanent errors require user intervention and are not requeued automatically.

// ErrPermanentConfig indicates a required sub-config is missing or inconsistent
// for the requested mode.
var ErrPermanentConfig = errors.New("permanent configuration error")

// ErrPermanentValidation indicates a malformed spec.
var ErrPermanentValidation = errors.New("spec validation failed")

// Kind classifies reconcile errors for the error policy and metrics.
type Kind string

const (
	KindValidation Kind = "Validation"
	KindConfig     Kind = "Config"
	KindKube       Kind = "Kube"
	KindNetwork    Kind = "Network"
	KindUnknown    Kind = "Unknown"
)

// Error is a classified error. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return e.Op + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Op
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel that corresponds to the error kind so callers using
// the sentinel-based helpers see classified errors too.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrPermanentValidation:
		return e.Kind == KindValidation
	case ErrPermanentConfig:
		return e.Kind == KindConfig
	case ErrTransientKubernetesAPI:
		return e.Kind == KindKube
	case ErrTransientConnection:
		return e.Kind == KindNetwork
	}
	return false
}

func newError(kind Kind, op string, err error) error {
	if err == nil {
		err = errors.New(strings.ToLower(string(kind)) + " error")
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validation returns a terminal error for a malformed spec.
func Validation(op string, err error) error { return newError(KindValidation, op, err) }

// Config returns a terminal error for a missing or inconsistent sub-config.
func Config(op string, err error) error { return newError(KindConfig, op, err) }

// Kube returns a retryable Kubernetes API error.
func Kube(op string, err error) error { return newError(KindKube, op, err) }

// Network returns a retryable error for an unreachable probe or scan target.
func Network(op string, err error) error { return newError(KindNetwork, op, err) }

// KindOf classifies err. Typed errors report their own kind; untyped errors are
// classified by their chain and message. A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}

	switch {
	case errors.Is(err, ErrPermanentValidation):
		return KindValidation
	case errors.Is(err, ErrPermanentConfig), IsCRDMissingError(err):
		return KindConfig
	case IsTransientConnection(err):
		return KindNetwork
	}

	var status apierrors.APIStatus
	if errors.As(err, &status) || IsTransientKubernetesAPI(err) {
		return KindKube
	}

	return KindUnknown
}

// IsTransientConnection checks if an error is a transient connection error.
// This includes network timeouts, connection refused, DNS failures, and similar issues.
func IsTransientConnection(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrTransientConnection) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"connection timeout",
		"context deadline exceeded",
		"i/o timeout",
		"no such host",
		"network is unreachable",
		"host is unreachable",
		"temporary failure",
		"dial tcp",
		"connection closed",
		"broken pipe",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// IsTransientKubernetesAPI checks if an error is a transient Kubernetes API error.
func IsTransientKubernetesAPI(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrTransientKubernetesAPI) {
		return true
	}

	if apierrors.IsConflict(err) || apierrors.IsTooManyRequests(err) || apierrors.IsServerTimeout(err) ||
		apierrors.IsServiceUnavailable(err) || apierrors.IsInternalError(err) || apierrors.IsTimeout(err) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"rate limit",
		"too many requests",
		"server error",
		"service unavailable",
		"internal server error",
		"the object has been modified",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// Split expands errors built with errors.Join into their parts, recursively.
// Any other error is returned as the only element.
func Split(err error) []error {
	if err == nil {
		return nil
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []error{err}
	}
	var out []error
	for _, e := range joined.Unwrap() {
		out = append(out, Split(e)...)
	}
	return out
}

// IsPermanent checks if an error is permanent (requires user intervention).
func IsPermanent(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindConfig:
		return true
	}
	return false
}

// ShouldRequeue determines if an error should trigger a requeue.
// Transient errors requeue; permanent errors do not.
// Returns (shouldRequeue, requeueAfter). A zero requeueAfter leaves the delay
// to the controller's rate limiter.
func ShouldRequeue(err error) (bool, time.Duration) {
	if err == nil {
		return false, 0
	}

	switch KindOf(err) {
	case KindValidation, KindConfig:
		return false, 0
	case KindNetwork:
		return true, 5 * time.Second
	default:
		return true, 0
	}
}

// IsCRDMissingError checks if an error indicates that a CRD is not installed.
func IsCRDMissingError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no matches for kind") ||
		strings.Contains(errStr, "no kind is registered for the type")
}
