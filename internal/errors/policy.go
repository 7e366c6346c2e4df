package errors

import "time"

// Policy bounds the exponential per-item backoff of retried reconciles.
type Policy struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultPolicy is used by the controller's rate limiter.
var DefaultPolicy = Policy{Base: time.Second, Max: 5 * time.Minute}
