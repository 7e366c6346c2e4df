package cve

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
	"github.com/stellar/stellar-operator/internal/constants"
	operatorerrors "github.com/stellar/stellar-operator/internal/errors"
	"github.com/stellar/stellar-operator/internal/logging"
	"github.com/stellar/stellar-operator/internal/metrics"
	"github.com/stellar/stellar-operator/internal/operationlock"
	"github.com/stellar/stellar-operator/internal/probe"
	"github.com/stellar/stellar-operator/internal/reconcile"
	"github.com/stellar/stellar-operator/internal/resources"
	"github.com/stellar/stellar-operator/internal/status"
)

// ImageVerifier verifies a patched image and returns it pinned by digest.
type ImageVerifier interface {
	VerifyImageForNode(ctx context.Context, node *stellarv1alpha1.StellarNode, imageRef string) (string, error)
}

// Machine drives the CVE rollout state machine:
//
//	Idle -> CanaryTesting -> Rolling -> Complete
//	                     \-> Failed   \-> RollingBack -> RolledBack
//	                                   \-> Failed
//
// Every mutation of the cluster goes through Ensurer, so a dry-run ensurer
// turns the whole machine read-only.
type Machine struct {
	// Client lists canary and primary pods.
	Client  client.Reader
	Ensurer resources.Ensurer
	Scanner Scanner
	Health  probe.HealthChecker
	Clock   clock.PassiveClock

	// Optional collaborators.
	Resolver PatchResolver
	Verifier ImageVerifier
	Archiver ReportArchiver
	Metrics  *metrics.Metrics

	// NewRolloutID defaults to uuid.NewString.
	NewRolloutID func() string
	// ProbeConcurrency limits parallel pod probes in the consensus health check.
	ProbeConcurrency int
}

// Reconcile advances the CVE state machine of node by one step. It mutates
// node's status in memory; the caller persists it.
func (m *Machine) Reconcile(ctx context.Context, node *stellarv1alpha1.StellarNode) (reconcile.Result, error) {
	settings := node.Spec.CVEHandling.Settings()
	if !settings.Enabled {
		return reconcile.Result{}, nil
	}
	if node.Status.CVE == nil {
		node.Status.CVE = &stellarv1alpha1.CVEStatus{}
	}
	if node.Status.CVERolloutStatus == "" {
		node.Status.CVERolloutStatus = stellarv1alpha1.CVERolloutIdle
	}
	now := metav1.NewTime(m.Clock.Now())
	ctx = log.IntoContext(ctx, log.FromContext(ctx).WithValues("cve_state", node.Status.CVERolloutStatus))

	if m.versionChanged(node) {
		log.FromContext(ctx).Info("spec.version changed; releasing CVE rollout pin",
			"baseVersion", node.Status.CVE.Rollout.BaseVersion, "version", node.Spec.Version)
		m.resetToIdle(node, "")
		node.Status.CVE.LastScan = nil
		node.Status.CVE.NextScanTime = nil
	}

	switch node.Status.CVERolloutStatus {
	case stellarv1alpha1.CVERolloutCanaryTesting:
		return m.reconcileCanary(ctx, node, settings, now)
	case stellarv1alpha1.CVERolloutRolling:
		return m.reconcileRolling(ctx, node, settings, now)
	case stellarv1alpha1.CVERolloutRollingBack:
		return m.reconcileRollingBack(ctx, node, now)
	default:
		return m.reconcileIdle(ctx, node, settings, now)
	}
}

func inFlight(state stellarv1alpha1.CVERolloutState) bool {
	switch state {
	case stellarv1alpha1.CVERolloutCanaryTesting, stellarv1alpha1.CVERolloutRolling, stellarv1alpha1.CVERolloutRollingBack:
		return true
	}
	return false
}

func (m *Machine) versionChanged(node *stellarv1alpha1.StellarNode) bool {
	r := node.Status.CVE.Rollout
	return r != nil && r.BaseVersion != "" && r.BaseVersion != node.Spec.Version &&
		!inFlight(node.Status.CVERolloutStatus)
}

// resetToIdle returns to Idle. A non-empty baseline keeps the workload pinned
// to the image it runs now.
func (m *Machine) resetToIdle(node *stellarv1alpha1.StellarNode, baseline string) {
	cs := node.Status.CVE
	version := node.Spec.Version
	if cs.Rollout != nil && cs.Rollout.BaseVersion != "" {
		version = cs.Rollout.BaseVersion
	}
	cs.Rollout = nil
	if baseline != "" && baseline != node.Spec.NodeType.ContainerImage(node.Spec.Version) {
		cs.Rollout = &stellarv1alpha1.RolloutProgress{PreviousImage: baseline, BaseVersion: version}
	}
	cs.Canary = nil
	cs.ConsensusHealth = nil
	node.Status.CVERolloutStatus = stellarv1alpha1.CVERolloutIdle
	status.Remove(&node.Status.Conditions, constants.ConditionCanaryTesting)
	status.Remove(&node.Status.Conditions, constants.ConditionCVERollout)
}

func (m *Machine) nodeMetrics(node *stellarv1alpha1.StellarNode) *metrics.NodeMetrics {
	if m.Metrics == nil {
		return nil
	}
	return m.Metrics.ForNode(node.Namespace, node.Name)
}

// countError records a failure the machine absorbs instead of returning.
func (m *Machine) countError(err error) {
	if m.Metrics != nil {
		m.Metrics.IncrementError(string(operatorerrors.KindOf(err)))
	}
}

func (m *Machine) newRolloutID() string {
	if m.NewRolloutID != nil {
		return m.NewRolloutID()
	}
	return uuid.NewString()
}

// untilNextScan requeues for the next scheduled scan.
func untilNextScan(cs *stellarv1alpha1.CVEStatus, now metav1.Time) reconcile.Result {
	if cs.NextScanTime == nil {
		return reconcile.After(constants.RequeueShort)
	}
	d := cs.NextScanTime.Sub(now.Time)
	if d <= 0 {
		return reconcile.After(constants.RequeueShort)
	}
	return reconcile.After(d)
}

func (m *Machine) reconcileIdle(ctx context.Context, node *stellarv1alpha1.StellarNode, settings stellarv1alpha1.CVESettings, now metav1.Time) (reconcile.Result, error) {
	cs := node.Status.CVE
	if node.Status.CVERolloutStatus == stellarv1alpha1.CVERolloutIdle {
		if err := m.retireStalePatched(ctx, node); err != nil {
			return reconcile.Result{}, err
		}
	}
	if ScanDue(cs, now.Time) {
		m.scan(ctx, node, settings, now)
	}
	next := untilNextScan(cs, now)

	res := cs.LastScan
	if res == nil {
		return next, nil
	}
	if !res.RequiresUrgentPatch() {
		status.SetAt(&node.Status.Conditions, node.Generation, constants.ConditionCVEPatchAvailable, metav1.ConditionFalse,
			constants.ReasonNoUrgentVulnerabilities, fmt.Sprintf("%d vulnerabilities, none critical", res.CVECount.Total()), now)
		return next, nil
	}
	if !res.CanPatch() {
		status.SetAt(&node.Status.Conditions, node.Generation, constants.ConditionCVEPatchAvailable, metav1.ConditionFalse,
			constants.ReasonNoPatchAvailable, fmt.Sprintf("%d critical vulnerabilities in %s and no patched version available",
				res.CVECount.Critical, res.CurrentImage), now)
		return next, nil
	}
	status.SetAt(&node.Status.Conditions, node.Generation, constants.ConditionCVEPatchAvailable, metav1.ConditionTrue,
		constants.ReasonPatchAvailable, fmt.Sprintf("Patched image %s available", res.PatchedVersion), now)

	// Terminal states wait for new evidence.
	if node.Status.CVERolloutStatus != stellarv1alpha1.CVERolloutIdle {
		return next, nil
	}
	if !node.DeletionTimestamp.IsZero() {
		return next, nil
	}
	if operationlock.HeldByOther(node, operationlock.OperationCVERollout) {
		log.FromContext(ctx).Info("CVE rollout waiting for operation lock",
			"operation", node.Status.OperationLock.Operation, "holder", node.Status.OperationLock.Holder)
		return reconcile.After(constants.RequeueStandard), nil
	}
	return m.startCanary(ctx, node, settings, now)
}

func (m *Machine) scan(ctx context.Context, node *stellarv1alpha1.StellarNode, settings stellarv1alpha1.CVESettings, now metav1.Time) {
	logger := log.FromContext(ctx)
	cs := node.Status.CVE
	image := resources.DesiredImage(node)

	res, err := m.Scanner.Scan(ctx, image)
	if err != nil {
		logger.Error(err, "Vulnerability scan failed", "image", image)
		m.countError(err)
		cs.LastScanError = err.Error()
		retry := metav1.NewTime(now.Add(constants.RequeueStandard))
		cs.NextScanTime = &retry
		status.SetAt(&node.Status.Conditions, node.Generation, constants.ConditionCVEPatchAvailable, metav1.ConditionUnknown,
			constants.ReasonScanFailed, err.Error(), now)
		return
	}
	cs.LastScanError = ""

	if res.RequiresUrgentPatch() && !res.CanPatch() && m.Resolver != nil {
		patched, err := m.Resolver.Resolve(ctx, image)
		if err != nil {
			logger.Error(err, "Failed to resolve patched version", "image", image)
			m.countError(err)
		} else {
			res.PatchedVersion = patched
		}
	}
	res.PatchedVersion = patchedImage(node, res.PatchedVersion)
	if settings.CriticalOnly {
		FilterCritical(res)
	}

	var previousPatch string
	if cs.LastScan != nil {
		previousPatch = cs.LastScan.PatchedVersion
	}
	cs.LastScan = res
	nextScan := metav1.NewTime(NextScan(settings, now.Time))
	cs.NextScanTime = &nextScan
	if nm := m.nodeMetrics(node); nm != nil {
		nm.SetCVECounts(res.CVECount)
	}
	logger.Info("Vulnerability scan complete", "image", image, "critical", res.CVECount.Critical,
		"total", res.CVECount.Total(), "patchedVersion", res.PatchedVersion)

	m.archive(ctx, node, res)

	state := node.Status.CVERolloutStatus
	if state.IsTerminal() && res.CanPatch() && res.PatchedVersion != previousPatch {
		logger.Info("New patched version reported; leaving terminal state", "state", state, "patchedVersion", res.PatchedVersion)
		m.resetToIdle(node, image)
	}
}

// patchedImage expands a bare version into the node type's image.
func patchedImage(node *stellarv1alpha1.StellarNode, patched string) string {
	if patched == "" || strings.ContainsAny(patched, "/:@") {
		return patched
	}
	return node.Spec.NodeType.ContainerImage(patched)
}

func (m *Machine) archive(ctx context.Context, node *stellarv1alpha1.StellarNode, res *stellarv1alpha1.CVEDetectionResult) {
	if m.Archiver == nil || node.Spec.CVEHandling == nil || node.Spec.CVEHandling.ReportArchive == nil {
		return
	}
	logger := log.FromContext(ctx)
	if m.Ensurer.DryRun() {
		logger.Info("Dry Run: Would archive scan report", "backend", node.Spec.CVEHandling.ReportArchive.Backend)
		if m.Metrics != nil {
			m.Metrics.RecordDryRunSkipped("archive", "ScanReport")
		}
		return
	}
	id, err := m.Archiver.Archive(ctx, node, res)
	if err != nil {
		logger.Error(err, "Failed to archive scan report")
		m.countError(err)
		node.Status.CVE.Message = fmt.Sprintf("Failed to archive scan report: %v", err)
		return
	}
	node.Status.CVE.ArchivedReport = id
}

func (m *Machine) startCanary(ctx context.Context, node *stellarv1alpha1.StellarNode, settings stellarv1alpha1.CVESettings, now metav1.Time) (reconcile.Result, error) {
	cs := node.Status.CVE
	candidate := cs.LastScan.PatchedVersion
	previous := resources.DesiredImage(node)

	if m.Verifier != nil && node.Spec.CVEHandling.ImageVerification != nil {
		pinned, err := m.Verifier.VerifyImageForNode(ctx, node, candidate)
		if err != nil {
			log.FromContext(ctx).Error(err, "Patched image failed signature verification", "image", candidate)
			cs.Rollout = &stellarv1alpha1.RolloutProgress{
				TargetImage:   candidate,
				PreviousImage: previous,
				BaseVersion:   node.Spec.Version,
			}
			cs.Message = fmt.Sprintf("Signature verification of %s failed: %v", candidate, err)
			node.Status.CVERolloutStatus = stellarv1alpha1.CVERolloutFailed
			status.SetAt(&node.Status.Conditions, node.Generation, constants.ConditionCVERollout, metav1.ConditionFalse,
				constants.ReasonImageVerificationFailed, cs.Message, now)
			return untilNextScan(cs, now), nil
		}
		candidate = pinned
	}

	id := m.newRolloutID()
	if err := operationlock.Acquire(node, operationlock.OperationCVERollout, id, now); err != nil {
		return reconcile.After(constants.RequeueStandard), nil
	}
	cs.Rollout = &stellarv1alpha1.RolloutProgress{
		ID:            id,
		TargetImage:   candidate,
		PreviousImage: previous,
		BaseVersion:   node.Spec.Version,
		StartTime:     &now,
	}
	cs.Canary = &stellarv1alpha1.CanaryStatus{
		State:     stellarv1alpha1.CanaryPending,
		Image:     candidate,
		StartTime: &now,
	}
	cs.ConsensusHealth = nil
	cs.Message = fmt.Sprintf("Testing patched image %s on a canary", candidate)
	node.Status.CVERolloutStatus = stellarv1alpha1.CVERolloutCanaryTesting
	status.SetAt(&node.Status.Conditions, node.Generation, constants.ConditionCanaryTesting, metav1.ConditionTrue,
		constants.ReasonCanaryPending, cs.Message, now)

	log.FromContext(ctx).Info("Starting CVE canary", "rolloutID", id, "image", candidate, "previousImage", previous)
	return m.reconcileCanary(ctx, node, settings, now)
}

// fail moves to Failed and releases the rollout lock.
func (m *Machine) fail(node *stellarv1alpha1.StellarNode, reason, message string, now metav1.Time) reconcile.Result {
	cs := node.Status.CVE
	cs.Message = message
	node.Status.CVERolloutStatus = stellarv1alpha1.CVERolloutFailed
	status.SetAt(&node.Status.Conditions, node.Generation, constants.ConditionCVERollout, metav1.ConditionFalse, reason, message, now)
	m.releaseLock(node)
	return untilNextScan(cs, now)
}

func (m *Machine) releaseLock(node *stellarv1alpha1.StellarNode) {
	if r := node.Status.CVE.Rollout; r != nil && r.ID != "" {
		_ = operationlock.Release(node, operationlock.OperationCVERollout, r.ID)
	}
}

func (m *Machine) audit(ctx context.Context, node *stellarv1alpha1.StellarNode, event string, fields map[string]string) {
	if fields == nil {
		fields = map[string]string{}
	}
	fields["node"] = node.Name
	fields["namespace"] = node.Namespace
	if r := node.Status.CVE.Rollout; r != nil {
		fields["rollout_id"] = r.ID
	}
	logging.LogAuditEvent(log.FromContext(ctx), event, fields)
}

func durationSecs(secs int64) time.Duration {
	return time.Duration(secs) * time.Second
}
