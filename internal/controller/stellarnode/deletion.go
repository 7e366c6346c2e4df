package stellarnode

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
	"github.com/stellar/stellar-operator/internal/constants"
	operatorerrors "github.com/stellar/stellar-operator/internal/errors"
	"github.com/stellar/stellar-operator/internal/kube"
	"github.com/stellar/stellar-operator/internal/resources"
)

type workloadRef struct {
	kind kube.WorkloadKind
	name string
}

// handleDeletion finalizes a node. A staged CVE rollout or rollback is allowed
// to settle first so the workload is never garbage collected mid-step; owned
// objects other than the canary and patched Deployments go away through their
// owner references.
func (r *StellarNodeReconciler) handleDeletion(ctx context.Context, node *stellarv1alpha1.StellarNode) (ctrl.Result, error) {
	logger := log.FromContext(ctx)
	if !controllerutil.ContainsFinalizer(node, stellarv1alpha1.StellarNodeFinalizer) {
		return ctrl.Result{}, nil
	}

	switch node.Status.CVERolloutStatus {
	case stellarv1alpha1.CVERolloutRolling, stellarv1alpha1.CVERolloutRollingBack:
		workloads := []workloadRef{{kind: resources.WorkloadKindFor(node.Spec.NodeType), name: node.Name}}
		if resources.Staged(node) {
			workloads = append(workloads, workloadRef{kind: kube.KindDeployment, name: resources.PatchedName(node)})
		}
		for _, w := range workloads {
			ws, err := r.App.Ensurer.WorkloadStatus(ctx, w.kind, types.NamespacedName{Namespace: node.Namespace, Name: w.name})
			if err != nil {
				return ctrl.Result{}, err
			}
			// A workload scaled to zero has no step in flight.
			if ws.Exists && ws.Desired > 0 && !ws.IsRolledOut() {
				logger.Info("Waiting for in-flight CVE rollout step before finalizing", "workload", w.name,
					"state", node.Status.CVERolloutStatus, "ready", ws.Ready, "desired", ws.Desired, "updated", ws.Updated)
				return ctrl.Result{RequeueAfter: constants.RequeueShort}, nil
			}
		}
	}

	for _, name := range []string{resources.CanaryName(node), resources.PatchedName(node)} {
		dep := &appsv1.Deployment{
			TypeMeta:   metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
			ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: node.Namespace},
		}
		if err := r.App.Ensurer.Delete(ctx, node, dep); err != nil {
			return ctrl.Result{}, err
		}
	}

	r.App.Metrics.ForNode(node.Namespace, node.Name).Clear()

	original := node.DeepCopy()
	controllerutil.RemoveFinalizer(node, stellarv1alpha1.StellarNodeFinalizer)
	if err := r.Patch(ctx, node, client.MergeFromWithOptions(original, client.MergeFromWithOptimisticLock{})); err != nil {
		return ctrl.Result{}, operatorerrors.Kube("remove finalizer",
			fmt.Errorf("failed to remove finalizer from StellarNode %s/%s: %w", node.Namespace, node.Name, err))
	}
	logger.Info("Removed finalizer from StellarNode")
	return ctrl.Result{}, nil
}
