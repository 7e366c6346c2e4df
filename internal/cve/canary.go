package cve

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
	"github.com/stellar/stellar-operator/internal/constants"
	operatorerrors "github.com/stellar/stellar-operator/internal/errors"
	"github.com/stellar/stellar-operator/internal/kube"
	"github.com/stellar/stellar-operator/internal/logging"
	"github.com/stellar/stellar-operator/internal/reconcile"
	"github.com/stellar/stellar-operator/internal/resources"
	"github.com/stellar/stellar-operator/internal/status"
)

func (m *Machine) reconcileCanary(ctx context.Context, node *stellarv1alpha1.StellarNode, settings stellarv1alpha1.CVESettings, now metav1.Time) (reconcile.Result, error) {
	cs := node.Status.CVE
	canary := cs.Canary
	if canary == nil || cs.Rollout == nil {
		log.FromContext(ctx).Info("CanaryTesting without canary record; returning to Idle")
		m.releaseLock(node)
		m.resetToIdle(node, "")
		return reconcile.After(constants.RequeueShort), nil
	}

	key := types.NamespacedName{Namespace: node.Namespace, Name: resources.CanaryName(node)}
	ws, err := m.Ensurer.WorkloadStatus(ctx, kube.KindDeployment, key)
	if err != nil {
		return reconcile.Result{}, err
	}

	// A canary that never came up, as in dry-run, times out like any other.
	timeout := durationSecs(settings.CanaryTestTimeoutSecs)
	if canary.StartTime != nil && now.Sub(canary.StartTime.Time) > timeout {
		canary.Message = fmt.Sprintf("Canary not judged within %s", timeout)
		return m.judge(ctx, node, settings, stellarv1alpha1.CanaryTimeout, now)
	}

	if !ws.Exists {
		if err := m.Ensurer.Ensure(ctx, node, resources.BuildCanary(node, canary.Image, cs.Rollout.ID)); err != nil {
			return reconcile.Result{}, err
		}
		canary.State = stellarv1alpha1.CanaryPending
		if m.Ensurer.DryRun() {
			canary.Message = fmt.Sprintf("Dry Run: Would create canary %s/%s with image %s", key.Namespace, key.Name, canary.Image)
			status.SetAt(&node.Status.Conditions, node.Generation, constants.ConditionCanaryTesting, metav1.ConditionTrue,
				constants.ReasonCanaryPending, canary.Message, now)
			return reconcile.After(constants.RequeueStandard), nil
		}
		canary.Message = fmt.Sprintf("Canary %s created", key.Name)
		m.audit(ctx, node, logging.EventCanaryCreated, map[string]string{"canary": key.Name, "image": canary.Image})
		return reconcile.After(constants.RequeueShort), nil
	}

	if canary.State == stellarv1alpha1.CanaryPending {
		if ws.Ready < 1 {
			canary.Message = "Waiting for canary pod to become ready"
			return reconcile.After(constants.RequeueShort), nil
		}
		canary.State = stellarv1alpha1.CanaryRunning
		status.SetAt(&node.Status.Conditions, node.Generation, constants.ConditionCanaryTesting, metav1.ConditionTrue,
			constants.ReasonCanaryRunning, "Canary is running", now)
	}

	passed, total, err := m.probeCanary(ctx, node)
	if err != nil {
		return reconcile.Result{}, err
	}
	canary.ProbesPassed += passed
	canary.ProbesTotal += total
	canary.Message = fmt.Sprintf("%d/%d canary probes passed", canary.ProbesPassed, canary.ProbesTotal)

	if canary.ProbesTotal >= settings.CanaryMinProbes {
		result := stellarv1alpha1.CanaryFailed
		if canary.PassRate() >= settings.CanaryPassRateThreshold {
			result = stellarv1alpha1.CanaryPassed
		}
		return m.judge(ctx, node, settings, result, now)
	}
	return reconcile.After(constants.RequeueShort), nil
}

// probeCanary runs one health probe against each ready canary pod.
func (m *Machine) probeCanary(ctx context.Context, node *stellarv1alpha1.StellarNode) (passed, total int32, err error) {
	pods, err := m.readyPods(ctx, node, constants.LabelValueDeploymentCanary)
	if err != nil {
		return 0, 0, err
	}
	for _, pod := range pods {
		pctx, cancel := context.WithTimeout(ctx, constants.PeerProbeTimeout)
		ok, perr := m.Health.Healthy(pctx, node.Spec.NodeType, pod.Status.PodIP)
		cancel()
		total++
		if perr == nil && ok {
			passed++
		} else if perr != nil {
			log.FromContext(ctx).V(1).Info("Canary probe failed", "pod", pod.Name, "error", perr.Error())
		}
	}
	return passed, total, nil
}

func (m *Machine) readyPods(ctx context.Context, node *stellarv1alpha1.StellarNode, track string) ([]corev1.Pod, error) {
	var list corev1.PodList
	if err := m.Client.List(ctx, &list, client.InNamespace(node.Namespace),
		client.MatchingLabels(resources.SelectorLabels(node, track))); err != nil {
		return nil, operatorerrors.Kube("list pods", err)
	}
	out := make([]corev1.Pod, 0, len(list.Items))
	for _, pod := range list.Items {
		if pod.DeletionTimestamp == nil && pod.Status.PodIP != "" && podReady(&pod) {
			out = append(out, pod)
		}
	}
	return out, nil
}

func podReady(pod *corev1.Pod) bool {
	for _, c := range pod.Status.Conditions {
		if c.Type == corev1.PodReady {
			return c.Status == corev1.ConditionTrue
		}
	}
	return false
}

// judge records the canary verdict, deletes the canary and moves on.
func (m *Machine) judge(ctx context.Context, node *stellarv1alpha1.StellarNode, settings stellarv1alpha1.CVESettings, result stellarv1alpha1.CanaryTestState, now metav1.Time) (reconcile.Result, error) {
	cs := node.Status.CVE
	canary := cs.Canary

	// Delete first: a failed delete leaves the verdict for the next tick.
	obj := &appsv1.Deployment{ObjectMeta: metav1.ObjectMeta{Name: resources.CanaryName(node), Namespace: node.Namespace}}
	if err := m.Ensurer.Delete(ctx, node, obj); err != nil {
		return reconcile.Result{}, err
	}

	canary.State = result
	canary.JudgedAt = &now
	if nm := m.nodeMetrics(node); nm != nil {
		nm.RecordCanaryResult(result)
	}
	m.audit(ctx, node, logging.EventCanaryJudged, map[string]string{
		"result":    string(result),
		"pass_rate": fmt.Sprintf("%.1f", canary.PassRate()),
		"probes":    fmt.Sprintf("%d", canary.ProbesTotal),
	})
	m.audit(ctx, node, logging.EventCanaryDeleted, map[string]string{"canary": obj.Name})

	switch result {
	case stellarv1alpha1.CanaryPassed:
		status.SetAt(&node.Status.Conditions, node.Generation, constants.ConditionCanaryTesting, metav1.ConditionFalse,
			constants.ReasonCanaryPassed, canary.Message, now)
		health, err := m.consensusHealth(ctx, node)
		if err != nil {
			return reconcile.Result{}, err
		}
		cs.ConsensusHealth = &health
		if health < settings.ConsensusHealthThreshold {
			return m.fail(node, constants.ReasonConsensusUnhealthy,
				fmt.Sprintf("Canary passed but consensus health %.2f is below %.2f", health, settings.ConsensusHealthThreshold), now), nil
		}
		node.Status.CVERolloutStatus = stellarv1alpha1.CVERolloutRolling
		status.SetAt(&node.Status.Conditions, node.Generation, constants.ConditionCVERollout, metav1.ConditionTrue,
			constants.ReasonRolloutInProgress, fmt.Sprintf("Rolling out %s", cs.Rollout.TargetImage), now)
		return m.beginStep(ctx, node, settings, now)
	case stellarv1alpha1.CanaryTimeout:
		status.SetAt(&node.Status.Conditions, node.Generation, constants.ConditionCanaryTesting, metav1.ConditionFalse,
			constants.ReasonCanaryTimeout, canary.Message, now)
		return m.fail(node, constants.ReasonCanaryTimeout, canary.Message, now), nil
	default:
		msg := fmt.Sprintf("Canary pass rate %.1f%% is below %.1f%%", canary.PassRate(), settings.CanaryPassRateThreshold)
		status.SetAt(&node.Status.Conditions, node.Generation, constants.ConditionCanaryTesting, metav1.ConditionFalse,
			constants.ReasonCanaryFailed, msg, now)
		return m.fail(node, constants.ReasonCanaryFailed, msg, now), nil
	}
}
