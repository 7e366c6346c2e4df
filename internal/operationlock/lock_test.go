package operationlock

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
)

func TestAcquireRelease(t *testing.T) {
	node := &stellarv1alpha1.StellarNode{
		ObjectMeta: metav1.ObjectMeta{Name: "node-a", Namespace: "stellar"},
	}
	t0 := metav1.NewTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, Acquire(node, OperationCVERollout, "rollout-1", t0))
	require.NotNil(t, node.Status.OperationLock)
	require.Equal(t, OperationCVERollout, node.Status.OperationLock.Operation)
	require.Equal(t, "rollout-1", node.Status.OperationLock.Holder)

	// Re-acquire keeps the original acquisition time.
	require.NoError(t, Acquire(node, OperationCVERollout, "rollout-1", metav1.NewTime(t0.Add(time.Minute))))
	require.True(t, node.Status.OperationLock.AcquiredAt.Equal(&t0))

	require.True(t, HeldByOther(node, OperationMigration))
	require.False(t, HeldByOther(node, OperationCVERollout))

	err := Acquire(node, OperationMigration, "Horizon-SorobanRpc", t0)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrLockHeld))
	var held *HeldError
	require.True(t, errors.As(err, &held))
	require.Equal(t, "rollout-1", held.Holder)

	err = Release(node, OperationMigration, "Horizon-SorobanRpc")
	require.True(t, errors.Is(err, ErrLockHeld))
	require.NotNil(t, node.Status.OperationLock)

	require.NoError(t, Release(node, OperationCVERollout, "rollout-1"))
	require.Nil(t, node.Status.OperationLock)
	require.NoError(t, Release(node, OperationCVERollout, "rollout-1"))
}

func TestAcquireValidation(t *testing.T) {
	node := &stellarv1alpha1.StellarNode{}
	now := metav1.Now()
	require.Error(t, Acquire(nil, OperationMigration, "h", now))
	require.Error(t, Acquire(node, OperationMigration, "", now))
	require.Error(t, Acquire(node, "", "h", now))
	require.Nil(t, node.Status.OperationLock)
}
