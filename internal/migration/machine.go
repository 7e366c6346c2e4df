// Package migration moves a StellarNode from Horizon to Soroban RPC.
//
// A migration is triggered by an edit of spec.nodeType whose provenance was
// recorded in the migration-source-type annotation. The machine then waits for
// the Soroban RPC workload to become ready and clears its markers.
package migration

import (
	"context"
	"fmt"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/log"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
	"github.com/stellar/stellar-operator/internal/constants"
	"github.com/stellar/stellar-operator/internal/logging"
	"github.com/stellar/stellar-operator/internal/operationlock"
	"github.com/stellar/stellar-operator/internal/reconcile"
	"github.com/stellar/stellar-operator/internal/resources"
	"github.com/stellar/stellar-operator/internal/status"
)

// The only supported migration.
const (
	SourceType = stellarv1alpha1.NodeTypeHorizon
	TargetType = stellarv1alpha1.NodeTypeSorobanRpc
)

// lockHolder identifies the migration in the operation lock.
var lockHolder = fmt.Sprintf("%s-%s", SourceType, TargetType)

// Machine drives the migration state machine.
type Machine struct {
	Ensurer resources.Ensurer
	Clock   clock.PassiveClock
	// Timeout fails a migration stuck InProgress. Zero uses constants.MigrationTimeout.
	Timeout time.Duration
}

// MigrateConfig derives the Soroban RPC config of a migrated Horizon node.
func MigrateConfig(h stellarv1alpha1.HorizonConfig) stellarv1alpha1.SorobanConfig {
	return h.ToSorobanConfig()
}

// ShouldStart reports whether a migration must begin on node.
func ShouldStart(node *stellarv1alpha1.StellarNode) bool {
	return node.Spec.NodeType == TargetType &&
		!node.HasAnnotation(stellarv1alpha1.AnnotationMigrationInProgress) &&
		node.Spec.SorobanConfig != nil &&
		node.GetAnnotations()[stellarv1alpha1.AnnotationMigrationSourceType] == string(SourceType)
}

// Reconcile advances the migration of node by one step. It mutates node's
// metadata and status in memory; the caller persists them.
func (m *Machine) Reconcile(ctx context.Context, node *stellarv1alpha1.StellarNode) (reconcile.Result, error) {
	if !node.HasAnnotation(stellarv1alpha1.AnnotationMigrationInProgress) {
		if !ShouldStart(node) {
			return reconcile.Result{}, nil
		}
		if operationlock.HeldByOther(node, operationlock.OperationMigration) {
			log.FromContext(ctx).Info("Migration waiting for operation lock",
				"operation", node.Status.OperationLock.Operation, "holder", node.Status.OperationLock.Holder)
			return reconcile.After(constants.RequeueStandard), nil
		}
		return m.start(ctx, node)
	}

	if node.Spec.NodeType != TargetType {
		m.abort(ctx, node)
		return reconcile.Result{}, nil
	}

	ms := node.Status.MigrationStatus
	if ms == nil {
		// The status write of the starting tick was lost; restart the record.
		return m.start(ctx, node)
	}
	if ms.Phase == stellarv1alpha1.MigrationPhaseFailed || ms.Phase == stellarv1alpha1.MigrationPhaseComplete {
		return reconcile.Result{}, nil
	}

	return m.poll(ctx, node)
}

func (m *Machine) now() metav1.Time {
	return metav1.NewTime(m.Clock.Now())
}

func (m *Machine) timeout() time.Duration {
	if m.Timeout > 0 {
		return m.Timeout
	}
	return constants.MigrationTimeout
}

func (m *Machine) start(ctx context.Context, node *stellarv1alpha1.StellarNode) (reconcile.Result, error) {
	now := m.now()
	if err := operationlock.Acquire(node, operationlock.OperationMigration, lockHolder, now); err != nil {
		return reconcile.After(constants.RequeueStandard), nil
	}

	node.SetAnnotation(stellarv1alpha1.AnnotationMigrationInProgress, "true")
	node.SetAnnotation(stellarv1alpha1.AnnotationMigrationSourceType, string(SourceType))
	status.SetAt(&node.Status.Conditions, node.Generation, constants.ConditionMigrating, metav1.ConditionTrue,
		constants.ReasonHorizonToSorobanRpc, "Migrating from Horizon to Soroban RPC", now)
	node.Status.MigrationStatus = &stellarv1alpha1.MigrationStatus{
		FromType:  SourceType,
		ToType:    TargetType,
		Phase:     stellarv1alpha1.MigrationPhaseStarting,
		StartTime: now,
		Message:   "Migration started",
	}

	logging.LogAuditEvent(log.FromContext(ctx), logging.EventMigrationStarted, map[string]string{
		"node":      node.Name,
		"namespace": node.Namespace,
		"from":      string(SourceType),
		"to":        string(TargetType),
	})
	return reconcile.After(constants.RequeueShort), nil
}

func (m *Machine) poll(ctx context.Context, node *stellarv1alpha1.StellarNode) (reconcile.Result, error) {
	ws, err := m.Ensurer.WorkloadStatus(ctx, resources.WorkloadKindFor(TargetType),
		types.NamespacedName{Namespace: node.Namespace, Name: node.Name})
	if err != nil {
		return reconcile.Result{}, err
	}
	if ws.IsReady() {
		return m.complete(ctx, node)
	}

	// An incomplete poll leaves the node untouched so the tick persists nothing.
	now := m.now()
	if now.Sub(node.Status.MigrationStatus.StartTime.Time) > m.timeout() {
		m.fail(ctx, node, now)
		return reconcile.Result{}, nil
	}
	log.FromContext(ctx).V(1).Info("Waiting for Soroban RPC workload", "ready", ws.Ready, "desired", ws.Desired)
	return reconcile.After(constants.RequeueShort), nil
}

func (m *Machine) complete(ctx context.Context, node *stellarv1alpha1.StellarNode) (reconcile.Result, error) {
	now := m.now()
	node.RemoveAnnotation(stellarv1alpha1.AnnotationMigrationInProgress)
	node.RemoveAnnotation(stellarv1alpha1.AnnotationMigrationSourceType)
	status.Remove(&node.Status.Conditions, constants.ConditionMigrating)
	status.SetAt(&node.Status.Conditions, node.Generation, constants.ConditionReady, metav1.ConditionTrue,
		constants.ReasonMigrationComplete, "Migration to Soroban RPC complete", now)

	ms := node.Status.MigrationStatus
	ms.Phase = stellarv1alpha1.MigrationPhaseComplete
	ms.CompletionTime = &now
	ms.Message = "Migration complete"
	_ = operationlock.Release(node, operationlock.OperationMigration, lockHolder)

	logging.LogAuditEvent(log.FromContext(ctx), logging.EventMigrationCompleted, map[string]string{
		"node":      node.Name,
		"namespace": node.Namespace,
		"duration":  now.Sub(ms.StartTime.Time).Round(time.Second).String(),
	})
	return reconcile.After(constants.RequeueSteadyState), nil
}

// fail marks a timed-out migration. The annotations stay so the stuck state
// can be inspected; removing migration-in-progress lets a new attempt start.
func (m *Machine) fail(ctx context.Context, node *stellarv1alpha1.StellarNode, now metav1.Time) {
	ms := node.Status.MigrationStatus
	ms.Phase = stellarv1alpha1.MigrationPhaseFailed
	ms.Message = fmt.Sprintf("Soroban RPC workload not ready after %s", m.timeout())
	status.SetAt(&node.Status.Conditions, node.Generation, constants.ConditionMigrating, metav1.ConditionFalse,
		constants.ReasonMigrationTimedOut, ms.Message, now)
	_ = operationlock.Release(node, operationlock.OperationMigration, lockHolder)

	logging.LogAuditEvent(log.FromContext(ctx), logging.EventMigrationTimedOut, map[string]string{
		"node":      node.Name,
		"namespace": node.Namespace,
	})
}

// abort clears an in-progress migration whose target type was edited away.
func (m *Machine) abort(ctx context.Context, node *stellarv1alpha1.StellarNode) {
	node.RemoveAnnotation(stellarv1alpha1.AnnotationMigrationInProgress)
	node.RemoveAnnotation(stellarv1alpha1.AnnotationMigrationSourceType)
	status.Remove(&node.Status.Conditions, constants.ConditionMigrating)
	if ms := node.Status.MigrationStatus; ms != nil && ms.Phase != stellarv1alpha1.MigrationPhaseComplete {
		ms.Phase = stellarv1alpha1.MigrationPhaseFailed
		ms.Message = fmt.Sprintf("Migration aborted: nodeType changed to %s", node.Spec.NodeType)
	}
	_ = operationlock.Release(node, operationlock.OperationMigration, lockHolder)
	log.FromContext(ctx).Info("Migration aborted", "nodeType", node.Spec.NodeType)
}
