package cve

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/log"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
	"github.com/stellar/stellar-operator/internal/constants"
	"github.com/stellar/stellar-operator/internal/kube"
	"github.com/stellar/stellar-operator/internal/logging"
	"github.com/stellar/stellar-operator/internal/reconcile"
	"github.com/stellar/stellar-operator/internal/resources"
	"github.com/stellar/stellar-operator/internal/status"
)

// beginStep raises the number of patched replicas by one step and applies
// it. StatefulSets advance through their partition; Deployments scale the
// patched Deployment up while the primary scales down by the same count.
func (m *Machine) beginStep(ctx context.Context, node *stellarv1alpha1.StellarNode, settings stellarv1alpha1.CVESettings, now metav1.Time) (reconcile.Result, error) {
	r := node.Status.CVE.Rollout
	desired := resources.DesiredReplicas(node)

	r.UpdatedReplicas = min(r.UpdatedReplicas+max(settings.RolloutStepSize, 1), desired)
	r.StepStartTime = &now

	if resources.Staged(node) {
		if err := m.Ensurer.Ensure(ctx, node, resources.BuildPatched(node, r.TargetImage, r.UpdatedReplicas, r.ID)); err != nil {
			return reconcile.Result{}, err
		}
	}
	if err := m.Ensurer.Ensure(ctx, node, resources.BuildWorkload(node, resources.WorkloadOptionsFor(node))); err != nil {
		return reconcile.Result{}, err
	}
	node.Status.CVE.Message = fmt.Sprintf("Rolling out %s: %d/%d replicas", r.TargetImage, r.UpdatedReplicas, desired)
	m.audit(ctx, node, logging.EventRolloutStep, map[string]string{
		"image":   r.TargetImage,
		"updated": fmt.Sprintf("%d", r.UpdatedReplicas),
		"desired": fmt.Sprintf("%d", desired),
	})
	return reconcile.After(constants.RequeueShort), nil
}

func (m *Machine) reconcileRolling(ctx context.Context, node *stellarv1alpha1.StellarNode, settings stellarv1alpha1.CVESettings, now metav1.Time) (reconcile.Result, error) {
	cs := node.Status.CVE
	r := cs.Rollout
	if r == nil {
		m.resetToIdle(node, "")
		return reconcile.After(constants.RequeueShort), nil
	}
	desired := resources.DesiredReplicas(node)
	if desired == 0 {
		cs.Message = "Rollout paused while the node is suspended"
		return reconcile.After(constants.RequeueStandard), nil
	}
	if r.UpdatedReplicas == 0 {
		return m.beginStep(ctx, node, settings, now)
	}

	done, waiting, err := m.stepDone(ctx, node, desired)
	if err != nil {
		return reconcile.Result{}, err
	}
	if !done {
		if r.StepStartTime != nil && now.Sub(r.StepStartTime.Time) > constants.RolloutStepTimeout {
			return m.breach(ctx, node, settings, now,
				fmt.Sprintf("Rollout step not ready after %s (%s)", constants.RolloutStepTimeout, waiting))
		}
		cs.Message = "Waiting for rollout step: " + waiting
		return reconcile.After(constants.RequeueShort), nil
	}

	health, err := m.consensusHealth(ctx, node)
	if err != nil {
		return reconcile.Result{}, err
	}
	cs.ConsensusHealth = &health
	if health < settings.ConsensusHealthThreshold {
		return m.breach(ctx, node, settings, now,
			fmt.Sprintf("Consensus health %.2f is below %.2f", health, settings.ConsensusHealthThreshold))
	}

	if r.UpdatedReplicas >= desired {
		if resources.Staged(node) && !r.Promoted {
			return m.promote(ctx, node, now)
		}
		return m.complete(ctx, node, now)
	}
	if !node.DeletionTimestamp.IsZero() {
		cs.Message = "Node is being deleted; no new rollout step will begin"
		return reconcile.After(constants.RequeueShort), nil
	}
	return m.beginStep(ctx, node, settings, now)
}

// stepDone reports whether the workloads settled on the current step. When
// they have not, waiting describes what is outstanding.
func (m *Machine) stepDone(ctx context.Context, node *stellarv1alpha1.StellarNode, desired int32) (bool, string, error) {
	r := node.Status.CVE.Rollout
	kind := resources.WorkloadKindFor(node.Spec.NodeType)
	ws, err := m.Ensurer.WorkloadStatus(ctx, kind, types.NamespacedName{Namespace: node.Namespace, Name: node.Name})
	if err != nil {
		return false, "", err
	}
	primary := fmt.Sprintf("%d/%d ready, %d updated", ws.Ready, ws.Desired, ws.Updated)

	if !resources.Staged(node) {
		done := ws.IsRolledOut() && ws.Image == r.TargetImage && ws.Partition == max(desired-r.UpdatedReplicas, 0)
		return done, primary, nil
	}
	if r.Promoted {
		return scaledTo(ws, desired) && ws.Image == r.TargetImage, primary, nil
	}

	pws, err := m.Ensurer.WorkloadStatus(ctx, kube.KindDeployment,
		types.NamespacedName{Namespace: node.Namespace, Name: resources.PatchedName(node)})
	if err != nil {
		return false, "", err
	}
	done := scaledTo(pws, r.UpdatedReplicas) && pws.Image == r.TargetImage &&
		scaledTo(ws, max(desired-r.UpdatedReplicas, 0))
	return done, fmt.Sprintf("patched %d/%d ready, primary %d/%d ready", pws.Ready, r.UpdatedReplicas, ws.Ready, ws.Desired), nil
}

// scaledTo reports whether a workload settled at want replicas. A workload
// scaled to zero has nothing to roll out.
func scaledTo(ws kube.WorkloadStatus, want int32) bool {
	if !ws.Exists || !ws.Observed || ws.Desired != want {
		return false
	}
	return want == 0 || ws.IsRolledOut()
}

// promote moves the primary Deployment onto the target image once every
// replica runs it on the patched Deployment.
func (m *Machine) promote(ctx context.Context, node *stellarv1alpha1.StellarNode, now metav1.Time) (reconcile.Result, error) {
	r := node.Status.CVE.Rollout
	r.Promoted = true
	r.StepStartTime = &now
	if err := m.Ensurer.Ensure(ctx, node, resources.BuildWorkload(node, resources.WorkloadOptionsFor(node))); err != nil {
		r.Promoted = false
		return reconcile.Result{}, err
	}
	node.Status.CVE.Message = fmt.Sprintf("Moving primary Deployment onto %s", r.TargetImage)
	return reconcile.After(constants.RequeueShort), nil
}

// retireStalePatched removes a patched Deployment left by a failed rollout
// once the primary serves every replica again.
func (m *Machine) retireStalePatched(ctx context.Context, node *stellarv1alpha1.StellarNode) error {
	if !resources.Staged(node) {
		return nil
	}
	ws, err := m.Ensurer.WorkloadStatus(ctx, kube.KindDeployment, types.NamespacedName{Namespace: node.Namespace, Name: node.Name})
	if err != nil || !scaledTo(ws, resources.DesiredReplicas(node)) {
		return err
	}
	return m.retirePatched(ctx, node)
}

// retirePatched deletes the patched Deployment if it exists.
func (m *Machine) retirePatched(ctx context.Context, node *stellarv1alpha1.StellarNode) error {
	if !resources.Staged(node) {
		return nil
	}
	key := types.NamespacedName{Namespace: node.Namespace, Name: resources.PatchedName(node)}
	pws, err := m.Ensurer.WorkloadStatus(ctx, kube.KindDeployment, key)
	if err != nil || !pws.Exists {
		return err
	}
	obj := &appsv1.Deployment{ObjectMeta: metav1.ObjectMeta{Name: key.Name, Namespace: key.Namespace}}
	return m.Ensurer.Delete(ctx, node, obj)
}

func (m *Machine) complete(ctx context.Context, node *stellarv1alpha1.StellarNode, now metav1.Time) (reconcile.Result, error) {
	if err := m.retirePatched(ctx, node); err != nil {
		return reconcile.Result{}, err
	}
	cs := node.Status.CVE
	r := cs.Rollout
	r.CompletionTime = &now
	node.Status.CVERolloutStatus = stellarv1alpha1.CVERolloutComplete
	cs.Message = fmt.Sprintf("Patched image %s rolled out", r.TargetImage)
	status.SetAt(&node.Status.Conditions, node.Generation, constants.ConditionCVERollout, metav1.ConditionTrue,
		constants.ReasonRolloutComplete, cs.Message, now)
	m.releaseLock(node)
	// Rescan the patched image right away.
	cs.NextScanTime = nil

	m.audit(ctx, node, logging.EventRolloutCompleted, map[string]string{
		"image":    r.TargetImage,
		"duration": rolloutDuration(r, now),
	})
	return reconcile.After(constants.RequeueShort), nil
}

// breach handles a failed health gate: roll back when allowed, otherwise fail
// and leave the workload as it is.
func (m *Machine) breach(ctx context.Context, node *stellarv1alpha1.StellarNode, settings stellarv1alpha1.CVESettings, now metav1.Time, message string) (reconcile.Result, error) {
	if !settings.EnableAutoRollback {
		return m.fail(node, constants.ReasonConsensusUnhealthy, message, now), nil
	}

	node.Status.CVERolloutStatus = stellarv1alpha1.CVERolloutRollingBack
	r := node.Status.CVE.Rollout
	if err := m.Ensurer.Ensure(ctx, node, resources.BuildWorkload(node, resources.WorkloadOptionsFor(node))); err != nil {
		node.Status.CVERolloutStatus = stellarv1alpha1.CVERolloutRolling
		return reconcile.Result{}, err
	}
	node.Status.CVE.Message = message
	status.SetAt(&node.Status.Conditions, node.Generation, constants.ConditionCVERollout, metav1.ConditionFalse,
		constants.ReasonRollingBack, message, now)
	m.audit(ctx, node, logging.EventRollbackStarted, map[string]string{
		"reason":         message,
		"previous_image": r.PreviousImage,
	})
	return reconcile.After(constants.RequeueShort), nil
}

// reconcileRollingBack waits for the primary to serve every replica on the
// previous image, then retires the patched Deployment.
func (m *Machine) reconcileRollingBack(ctx context.Context, node *stellarv1alpha1.StellarNode, now metav1.Time) (reconcile.Result, error) {
	cs := node.Status.CVE
	r := cs.Rollout
	if r == nil {
		m.resetToIdle(node, "")
		return reconcile.After(constants.RequeueShort), nil
	}
	kind := resources.WorkloadKindFor(node.Spec.NodeType)
	ws, err := m.Ensurer.WorkloadStatus(ctx, kind, types.NamespacedName{Namespace: node.Namespace, Name: node.Name})
	if err != nil {
		return reconcile.Result{}, err
	}
	if !ws.IsRolledOut() || ws.Image != r.PreviousImage || ws.Desired != resources.DesiredReplicas(node) {
		cs.Message = fmt.Sprintf("Rolling back to %s: %d/%d ready", r.PreviousImage, ws.Ready, ws.Desired)
		return reconcile.After(constants.RequeueShort), nil
	}
	if err := m.retirePatched(ctx, node); err != nil {
		return reconcile.Result{}, err
	}

	node.Status.CVERolloutStatus = stellarv1alpha1.CVERolloutRolledBack
	r.CompletionTime = &now
	cs.Message = fmt.Sprintf("Rolled back to %s", r.PreviousImage)
	status.SetAt(&node.Status.Conditions, node.Generation, constants.ConditionCVERollout, metav1.ConditionFalse,
		constants.ReasonRolledBack, cs.Message, now)
	m.releaseLock(node)
	m.audit(ctx, node, logging.EventRollbackCompleted, map[string]string{"image": r.PreviousImage})
	return untilNextScan(cs, now), nil
}

// consensusHealth probes every ready serving pod and returns the healthy
// fraction of the desired replicas, in [0,1].
func (m *Machine) consensusHealth(ctx context.Context, node *stellarv1alpha1.StellarNode) (float64, error) {
	desired := resources.DesiredReplicas(node)
	if desired == 0 {
		return 0, nil
	}
	pods, err := m.readyPods(ctx, node, constants.LabelValueDeploymentPrimary)
	if err != nil {
		return 0, err
	}
	if resources.Staged(node) {
		patched, err := m.readyPods(ctx, node, constants.LabelValueDeploymentPatched)
		if err != nil {
			return 0, err
		}
		pods = append(pods, patched...)
	}

	limit := m.ProbeConcurrency
	if limit <= 0 {
		limit = constants.ConsensusProbeConcurrency
	}
	var (
		g       errgroup.Group
		healthy atomic.Int32
	)
	g.SetLimit(limit)
	for i := range pods {
		pod := &pods[i]
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, constants.PeerProbeTimeout)
			defer cancel()
			ok, err := m.Health.Healthy(pctx, node.Spec.NodeType, pod.Status.PodIP)
			if err != nil {
				log.FromContext(ctx).V(1).Info("Consensus probe failed", "pod", pod.Name, "error", err.Error())
				return nil
			}
			if ok {
				healthy.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	frac := float64(healthy.Load()) / float64(desired)
	if frac > 1 {
		frac = 1
	}
	return frac, nil
}

func rolloutDuration(r *stellarv1alpha1.RolloutProgress, now metav1.Time) string {
	if r.StartTime == nil {
		return ""
	}
	return now.Sub(r.StartTime.Time).String()
}
