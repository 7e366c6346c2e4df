package stellarnode

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/api/equality"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
	"github.com/stellar/stellar-operator/internal/constants"
	operatorerrors "github.com/stellar/stellar-operator/internal/errors"
	"github.com/stellar/stellar-operator/internal/kube"
	"github.com/stellar/stellar-operator/internal/resources"
	"github.com/stellar/stellar-operator/internal/status"
)

// observe reads the primary workload and derives phase, Ready and the
// replica counters from it and from the state machine records.
func (r *StellarNodeReconciler) observe(ctx context.Context, node *stellarv1alpha1.StellarNode) error {
	ws, err := r.App.Ensurer.WorkloadStatus(ctx, resources.WorkloadKindFor(node.Spec.NodeType),
		types.NamespacedName{Namespace: node.Namespace, Name: node.Name})
	if err != nil {
		return err
	}
	if resources.Staged(node) {
		// A staged rollout serves part of the replicas from the patched Deployment.
		pws, err := r.App.Ensurer.WorkloadStatus(ctx, kube.KindDeployment,
			types.NamespacedName{Namespace: node.Namespace, Name: resources.PatchedName(node)})
		if err != nil {
			return err
		}
		if pws.Exists {
			ws.Desired += pws.Desired
			ws.Ready += pws.Ready
		}
	}

	st := &node.Status
	st.ObservedGeneration = node.Generation
	st.ObservedNodeType = node.Spec.NodeType
	st.Replicas = resources.DesiredReplicas(node)
	st.ReadyReplicas = ws.Ready
	st.Endpoint = fmt.Sprintf("%s.%s.svc.cluster.local:%d", node.Name, node.Namespace, resources.HTTPPort(node.Spec.NodeType))

	st.Phase, st.Message = computePhase(node, ws)
	r.setReady(node, ws)
	return nil
}

func computePhase(node *stellarv1alpha1.StellarNode, ws kube.WorkloadStatus) (stellarv1alpha1.NodePhase, string) {
	migrating := node.HasAnnotation(stellarv1alpha1.AnnotationMigrationInProgress)
	ms := node.Status.MigrationStatus

	switch {
	case node.Spec.Suspended:
		return stellarv1alpha1.NodePhaseSuspended, "Node is suspended"
	case migrating && ms != nil && ms.Phase == stellarv1alpha1.MigrationPhaseFailed:
		return stellarv1alpha1.NodePhaseFailed, ms.Message
	case migrating && ms != nil:
		return stellarv1alpha1.NodePhaseMigrating, ms.Message
	}

	switch node.Status.CVERolloutStatus {
	case stellarv1alpha1.CVERolloutCanaryTesting, stellarv1alpha1.CVERolloutRolling, stellarv1alpha1.CVERolloutRollingBack:
		msg := fmt.Sprintf("CVE rollout %s", node.Status.CVERolloutStatus)
		if node.Status.CVE != nil && node.Status.CVE.Message != "" {
			msg = node.Status.CVE.Message
		}
		return stellarv1alpha1.NodePhasePatching, msg
	}

	if ws.IsReady() {
		return stellarv1alpha1.NodePhaseRunning, fmt.Sprintf("%d/%d replicas ready", ws.Ready, ws.Desired)
	}
	return stellarv1alpha1.NodePhasePending, fmt.Sprintf("Waiting for workload: %d/%d replicas ready", ws.Ready, ws.Desired)
}

// setReady keeps a MigrationComplete reason while the workload stays ready so
// the completion stays visible after the migration markers are gone.
func (r *StellarNodeReconciler) setReady(node *stellarv1alpha1.StellarNode, ws kube.WorkloadStatus) {
	now := metav1.NewTime(r.App.Clock.Now())
	conds := &node.Status.Conditions
	gen := node.Generation

	switch {
	case node.Spec.Suspended:
		status.SetAt(conds, gen, constants.ConditionReady, metav1.ConditionFalse,
			constants.ReasonSuspended, "Node is suspended", now)
	case ws.IsReady():
		if status.IsTrue(*conds, constants.ConditionReady) &&
			status.HasReason(*conds, constants.ConditionReady, constants.ReasonMigrationComplete) {
			return
		}
		status.SetAt(conds, gen, constants.ConditionReady, metav1.ConditionTrue,
			constants.ReasonReady, fmt.Sprintf("%d/%d replicas ready", ws.Ready, ws.Desired), now)
	default:
		status.SetAt(conds, gen, constants.ConditionReady, metav1.ConditionFalse,
			constants.ReasonProgressing, fmt.Sprintf("Waiting for workload: %d/%d replicas ready", ws.Ready, ws.Desired), now)
	}
}

// reportPermanent surfaces an error that retrying cannot fix.
func (r *StellarNodeReconciler) reportPermanent(node *stellarv1alpha1.StellarNode, err error) {
	now := metav1.NewTime(r.App.Clock.Now())
	st := &node.Status
	st.ObservedGeneration = node.Generation
	st.Message = err.Error()

	reason := constants.ReasonConfigError
	if operatorerrors.KindOf(err) == operatorerrors.KindValidation {
		reason = constants.ReasonValidationFailed
		st.Phase = stellarv1alpha1.NodePhaseFailed
	}
	status.SetAt(&st.Conditions, node.Generation, constants.ConditionReady, metav1.ConditionFalse, reason, err.Error(), now)
}

// persist writes the tick's result: a metadata merge patch for annotations,
// then a status merge patch. Both carry the resourceVersion they were computed
// from, so a concurrent writer causes a conflict instead of a lost update.
func (r *StellarNodeReconciler) persist(ctx context.Context, original, node *stellarv1alpha1.StellarNode) error {
	base := original
	if !equality.Semantic.DeepEqual(original.Annotations, node.Annotations) {
		patched := original.DeepCopy()
		patched.Annotations = node.DeepCopy().Annotations
		if err := r.Patch(ctx, patched, client.MergeFromWithOptions(original, client.MergeFromWithOptimisticLock{})); err != nil {
			return operatorerrors.Kube("patch metadata",
				fmt.Errorf("failed to patch StellarNode %s/%s: %w", node.Namespace, node.Name, err))
		}
		base = patched
		node.ResourceVersion = patched.ResourceVersion
	}

	if equality.Semantic.DeepEqual(base.Status, node.Status) {
		return nil
	}
	updated := base.DeepCopy()
	node.Status.DeepCopyInto(&updated.Status)
	if err := r.Status().Patch(ctx, updated, client.MergeFromWithOptions(base, client.MergeFromWithOptimisticLock{})); err != nil {
		return operatorerrors.Kube("patch status",
			fmt.Errorf("failed to patch status of StellarNode %s/%s: %w", node.Namespace, node.Name, err))
	}
	node.ResourceVersion = updated.ResourceVersion
	return nil
}

func (r *StellarNodeReconciler) recordMetrics(node *stellarv1alpha1.StellarNode) {
	m := r.App.Metrics.ForNode(node.Namespace, node.Name)
	st := node.Status

	if st.Phase != "" {
		m.SetPhase(st.Phase)
	}
	m.SetReadyReplicas(st.ReadyReplicas)

	var migrationPhase stellarv1alpha1.MigrationPhase
	if st.MigrationStatus != nil {
		migrationPhase = st.MigrationStatus.Phase
	}
	m.SetMigrationPhase(migrationPhase)

	if st.DRStatus != nil {
		m.SetDRStatus(st.DRStatus.FailoverActive, st.DRStatus.SyncLag)
		if st.DRStatus.PeerLatencyMs != nil && node.Spec.DRConfig != nil {
			m.SetPeerLatency(node.Spec.DRConfig.PeerClusterID, *st.DRStatus.PeerLatencyMs)
		}
	}

	if node.Spec.CVEHandling.Settings().Enabled {
		m.SetCVERolloutState(st.CVERolloutStatus)
	}
}
