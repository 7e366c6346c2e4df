package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

var nodeResource = schema.GroupResource{Group: "stellar.org", Resource: "stellarnodes"}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil error", err: nil, want: ""},
		{name: "typed validation", err: Validation("validate spec", errors.New("version empty")), want: KindValidation},
		{name: "typed config wrapped", err: fmt.Errorf("tick: %w", Config("cve", errors.New("no scanner"))), want: KindConfig},
		{name: "typed network", err: Network("probe peer", errors.New("boom")), want: KindNetwork},
		{name: "validation sentinel", err: fmt.Errorf("%w: replicas", ErrPermanentValidation), want: KindValidation},
		{name: "config sentinel", err: fmt.Errorf("%w: missing sorobanConfig", ErrPermanentConfig), want: KindConfig},
		{name: "crd missing", err: errors.New("no matches for kind \"StellarNode\""), want: KindConfig},
		{name: "dial error", err: errors.New("dial tcp 10.0.0.1:11625: connect: connection refused"), want: KindNetwork},
		{name: "dns error", err: &net.DNSError{Err: "no such host", Name: "peer.example.com"}, want: KindNetwork},
		{name: "timeout net.Error", err: &timeoutError{}, want: KindNetwork},
		{name: "api conflict", err: apierrors.NewConflict(nodeResource, "node-a", errors.New("modified")), want: KindKube},
		{name: "api not found", err: apierrors.NewNotFound(nodeResource, "node-a"), want: KindKube},
		{name: "rate limited", err: errors.New("rate limit exceeded"), want: KindKube},
		{name: "plain error", err: errors.New("something odd"), want: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTypedErrorMatchesSentinels(t *testing.T) {
	tests := []struct {
		err      error
		sentinel error
	}{
		{err: Validation("op", nil), sentinel: ErrPermanentValidation},
		{err: Config("op", nil), sentinel: ErrPermanentConfig},
		{err: Kube("op", nil), sentinel: ErrTransientKubernetesAPI},
		{err: Network("op", nil), sentinel: ErrTransientConnection},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.sentinel) {
			t.Errorf("errors.Is(%v, %v) = false, want true", tt.err, tt.sentinel)
		}
	}
	if errors.Is(Network("op", nil), ErrPermanentConfig) {
		t.Errorf("network error must not match the config sentinel")
	}
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := Network("probe peer us-east", inner)
	if got := err.Error(); got != "probe peer us-east: connection refused" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, inner) {
		t.Errorf("errors.Is should reach the wrapped error")
	}
}

func TestIsTransientConnection(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "sentinel error", err: ErrTransientConnection, want: true},
		{name: "wrapped sentinel error", err: fmt.Errorf("context: %w", ErrTransientConnection), want: true},
		{name: "connection reset", err: errors.New("connection reset by peer"), want: true},
		{name: "i/o timeout", err: errors.New("read tcp: i/o timeout"), want: true},
		{name: "host unreachable", err: errors.New("sendto: host is unreachable"), want: true},
		{name: "context deadline", err: context.DeadlineExceeded, want: true},
		{name: "temporary-only net.Error", err: &temporaryError{}, want: false},
		{name: "non-transient error", err: errors.New("invalid configuration"), want: false},
		{name: "permanent config error", err: ErrPermanentConfig, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransientConnection(tt.err); got != tt.want {
				t.Errorf("IsTransientConnection() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsTransientKubernetesAPI(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "sentinel error", err: ErrTransientKubernetesAPI, want: true},
		{name: "conflict", err: apierrors.NewConflict(nodeResource, "node-a", errors.New("stale")), want: true},
		{name: "too many requests", err: apierrors.NewTooManyRequests("slow down", 1), want: true},
		{name: "service unavailable", err: apierrors.NewServiceUnavailable("maintenance"), want: true},
		{name: "not found is not transient", err: apierrors.NewNotFound(nodeResource, "node-a"), want: false},
		{name: "connection error", err: errors.New("connection refused"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransientKubernetesAPI(tt.err); got != tt.want {
				t.Errorf("IsTransientKubernetesAPI() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldRequeue(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantRequeue   bool
		wantAfterZero bool
	}{
		{name: "nil", err: nil, wantRequeue: false, wantAfterZero: true},
		{name: "validation", err: Validation("validate", errors.New("bad")), wantRequeue: false, wantAfterZero: true},
		{name: "config", err: Config("cve", errors.New("missing")), wantRequeue: false, wantAfterZero: true},
		{name: "network", err: errors.New("no such host"), wantRequeue: true, wantAfterZero: false},
		{name: "kube", err: apierrors.NewConflict(nodeResource, "n", errors.New("x")), wantRequeue: true, wantAfterZero: true},
		{name: "unknown", err: errors.New("odd"), wantRequeue: true, wantAfterZero: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requeue, after := ShouldRequeue(tt.err)
			if requeue != tt.wantRequeue {
				t.Errorf("ShouldRequeue() requeue = %v, want %v", requeue, tt.wantRequeue)
			}
			if (after == 0) != tt.wantAfterZero {
				t.Errorf("ShouldRequeue() after = %v, wantAfterZero %v", after, tt.wantAfterZero)
			}
		})
	}
}

func TestIsCRDMissingError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "no matches for kind", err: errors.New("no matches for kind"), want: true},
		{name: "case insensitive", err: errors.New("NO MATCHES FOR KIND"), want: true},
		{name: "non-CRD error", err: errors.New("resource not found"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCRDMissingError(tt.err); got != tt.want {
				t.Errorf("IsCRDMissingError() = %v, want %v", got, tt.want)
			}
		})
	}
}

type timeoutError struct{}

func (e *timeoutError) Error() string   { return "deadline" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return false }

type temporaryError struct{}

func (e *temporaryError) Error() string   { return "temporary" }
func (e *temporaryError) Timeout() bool   { return false }
func (e *temporaryError) Temporary() bool { return true }

func TestSplit(t *testing.T) {
	cfg := Config("dr", errors.New("no peer"))
	netErr := Network("cve", errors.New("timeout"))
	kube := Kube("ensure", errors.New("conflict"))

	if got := Split(nil); got != nil {
		t.Errorf("Split(nil) = %v, want nil", got)
	}
	if got := Split(cfg); len(got) != 1 || got[0] != cfg {
		t.Errorf("Split(single) = %v, want [%v]", got, cfg)
	}

	parts := Split(errors.Join(cfg, errors.Join(netErr, kube)))
	want := []Kind{KindConfig, KindNetwork, KindKube}
	if len(parts) != len(want) {
		t.Fatalf("Split() returned %d errors, want %d", len(parts), len(want))
	}
	for i, k := range want {
		if got := KindOf(parts[i]); got != k {
			t.Errorf("Split()[%d] kind = %v, want %v", i, got, k)
		}
	}
}
