// Package operationlock provides a status-based mutual exclusion mechanism for
// multi-step operations that own a node's workload (migration, CVE rollout).
//
// The lock is stored on StellarNode.Status.OperationLock and persisted with the
// rest of the status at the end of the reconcile tick. It is:
// - Stable across controller restarts (Holder is deterministic per run)
// - Strict (no automatic expiry)
// - Released only by the operation that holds it
package operationlock

import (
	"errors"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
)

// Operations that take the lock.
const (
	OperationMigration  = "Migration"
	OperationCVERollout = "CVERollout"
)

var (
	// ErrLockHeld indicates an operation lock is held by another operation/holder.
	ErrLockHeld = errors.New("operation lock is held by another operation")
)

// HeldError provides structured information when a lock cannot be acquired.
type HeldError struct {
	Operation string
	Holder    string
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("%s: operation=%q holder=%q", ErrLockHeld, e.Operation, e.Holder)
}

func (e *HeldError) Unwrap() error {
	return ErrLockHeld
}

// Acquire records that holder runs operation on node. Re-acquiring a lock
// already held by the same operation and holder is a no-op that keeps the
// original acquisition time.
func Acquire(node *stellarv1alpha1.StellarNode, operation, holder string, now metav1.Time) error {
	if node == nil {
		return fmt.Errorf("node is required")
	}
	if holder == "" {
		return fmt.Errorf("holder is required")
	}
	if operation == "" {
		return fmt.Errorf("operation is required")
	}

	current := node.Status.OperationLock
	if current == nil {
		node.Status.OperationLock = &stellarv1alpha1.OperationLock{
			Operation:  operation,
			Holder:     holder,
			AcquiredAt: now,
		}
		return nil
	}
	if current.Operation == operation && current.Holder == holder {
		return nil
	}
	return &HeldError{Operation: current.Operation, Holder: current.Holder}
}

// Release clears the lock if it is held by operation/holder. A lock held by
// someone else is left in place and ErrLockHeld is returned.
func Release(node *stellarv1alpha1.StellarNode, operation, holder string) error {
	if node == nil {
		return fmt.Errorf("node is required")
	}
	current := node.Status.OperationLock
	if current == nil {
		return nil
	}
	if current.Operation != operation || current.Holder != holder {
		return &HeldError{Operation: current.Operation, Holder: current.Holder}
	}
	node.Status.OperationLock = nil
	return nil
}

// HeldByOther reports whether the lock is held by an operation other than operation.
func HeldByOther(node *stellarv1alpha1.StellarNode, operation string) bool {
	l := node.Status.OperationLock
	return l != nil && l.Operation != operation
}
