// Package dr implements the disaster recovery failover latch.
//
// A Standby node that loses its peer promotes itself to Primary and stays
// there: failback is never automatic. The latch is cleared only by setting the
// stellar.org/dr-failover-reset annotation.
package dr

import (
	"context"
	"fmt"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/log"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
	"github.com/stellar/stellar-operator/internal/constants"
	operatorerrors "github.com/stellar/stellar-operator/internal/errors"
	"github.com/stellar/stellar-operator/internal/logging"
	"github.com/stellar/stellar-operator/internal/probe"
	"github.com/stellar/stellar-operator/internal/reconcile"
	"github.com/stellar/stellar-operator/internal/status"
)

// Machine drives the DR state machine.
type Machine struct {
	Prober probe.Prober
	Clock  clock.PassiveClock
}

// peerObservation is the outcome of probing the DR peer.
type peerObservation struct {
	health    string
	latency   time.Duration
	ledger    int64
	err       error
	clusterID string
}

func (o peerObservation) healthy() bool {
	return o.health != stellarv1alpha1.PeerHealthUnreachable
}

// HealthCheckInterval returns the configured peer health check interval.
func HealthCheckInterval(cfg *stellarv1alpha1.DisasterRecoveryConfig) time.Duration {
	if cfg == nil || cfg.HealthCheckInterval <= 0 {
		return constants.DefaultDRHealthCheckInterval
	}
	return time.Duration(cfg.HealthCheckInterval) * time.Second
}

// Reconcile evaluates the peer and applies the failover table. It mutates
// node's metadata and status in memory; the caller persists them.
func (m *Machine) Reconcile(ctx context.Context, node *stellarv1alpha1.StellarNode) (reconcile.Result, error) {
	cfg := node.Spec.DRConfig
	if cfg == nil || !cfg.Enabled {
		return reconcile.Result{}, nil
	}
	logger := log.FromContext(ctx).WithValues("role", cfg.Role)
	interval := HealthCheckInterval(cfg)
	now := metav1.NewTime(m.Clock.Now())

	if node.Status.DRStatus == nil {
		node.Status.DRStatus = &stellarv1alpha1.DisasterRecoveryStatus{CurrentRole: cfg.Role}
	}
	st := node.Status.DRStatus

	if node.HasAnnotation(stellarv1alpha1.AnnotationDRFailoverReset) {
		m.reset(ctx, node, now)
	} else if node.HasAnnotation(stellarv1alpha1.AnnotationDRFailoverActive) && !st.FailoverActive {
		// The annotation is written before status; a lost status patch must
		// not turn into a failback.
		logger.Info("Restoring failover latch from annotation")
		st.FailoverActive = true
		st.CurrentRole = stellarv1alpha1.DRRolePrimary
	}

	peer, ok := PeerFor(&node.Spec)
	if !ok {
		if cfg.Role == stellarv1alpha1.DRRoleStandby {
			return reconcile.Result{}, operatorerrors.Config("dr", fmt.Errorf("no peer cluster resolvable for peerClusterId %q", cfg.PeerClusterID))
		}
		st.CurrentRole = stellarv1alpha1.DRRolePrimary
		st.PeerHealth = ""
		return reconcile.After(interval), nil
	}

	obs := m.observe(ctx, node, peer)
	m.recordObservation(node, obs, now, interval)

	switch cfg.Role {
	case stellarv1alpha1.DRRolePrimary:
		st.CurrentRole = stellarv1alpha1.DRRolePrimary
	case stellarv1alpha1.DRRoleStandby:
		switch {
		case !obs.healthy() && !st.FailoverActive:
			m.latch(ctx, node, obs, now)
		case !obs.healthy() && st.FailoverActive:
			// Latched; nothing to do until an explicit reset.
		case obs.healthy() && !st.FailoverActive:
			st.CurrentRole = stellarv1alpha1.DRRoleStandby
		default:
			logger.V(1).Info("Peer recovered while failover is latched; staying Primary", "peer", obs.clusterID)
		}
	}

	return reconcile.After(interval), nil
}

func (m *Machine) observe(ctx context.Context, node *stellarv1alpha1.StellarNode, peer stellarv1alpha1.PeerClusterConfig) peerObservation {
	target := probe.Target{Endpoint: peer.Endpoint, Port: peer.Port}
	samples, percentile := 0, 0
	if lp := node.Spec.CrossCluster.LatencyProbe; lp != nil {
		target.Method = lp.Method
		samples = int(lp.Samples)
		percentile = int(lp.Percentile)
		if lp.TimeoutSeconds > 0 {
			n := samples
			if n <= 0 {
				n = probe.DefaultSamples
			}
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(lp.TimeoutSeconds)*time.Second*time.Duration(n))
			defer cancel()
		}
	}
	// Peer tracking needs the peer's ledger, which only the HTTP info probe reports.
	if target.Method == "" && node.Spec.DRConfig.SyncStrategy == stellarv1alpha1.DRSyncPeerTracking {
		target.Method = stellarv1alpha1.ProbeMethodHTTP
	}

	obs := peerObservation{clusterID: peer.ClusterID}
	latency, res, err := probe.Measure(ctx, m.Prober, target, samples, percentile)
	if err != nil {
		obs.health = stellarv1alpha1.PeerHealthUnreachable
		obs.err = err
		return obs
	}
	obs.latency = latency
	obs.ledger = res.LedgerSequence
	obs.health = stellarv1alpha1.PeerHealthHealthy
	if peer.LatencyThresholdMs > 0 && latency > time.Duration(peer.LatencyThresholdMs)*time.Millisecond {
		obs.health = stellarv1alpha1.PeerHealthDegraded
	}
	return obs
}

func (m *Machine) recordObservation(node *stellarv1alpha1.StellarNode, obs peerObservation, now metav1.Time, interval time.Duration) {
	st := node.Status.DRStatus
	st.PeerHealth = obs.health

	switch obs.health {
	case stellarv1alpha1.PeerHealthUnreachable:
		status.SetAt(&node.Status.Conditions, node.Generation, constants.ConditionPeerReachable, metav1.ConditionFalse,
			constants.ReasonPeerUnreachable, fmt.Sprintf("Peer %s unreachable: %v", obs.clusterID, obs.err), now)
		return
	case stellarv1alpha1.PeerHealthDegraded:
		status.SetAt(&node.Status.Conditions, node.Generation, constants.ConditionPeerReachable, metav1.ConditionTrue,
			constants.ReasonPeerDegraded, fmt.Sprintf("Peer %s latency %dms above threshold", obs.clusterID, obs.latency.Milliseconds()), now)
	default:
		status.SetAt(&node.Status.Conditions, node.Generation, constants.ConditionPeerReachable, metav1.ConditionTrue,
			constants.ReasonPeerHealthy, fmt.Sprintf("Peer %s reachable", obs.clusterID), now)
	}

	ms := obs.latency.Milliseconds()
	st.PeerLatencyMs = &ms
	// Status.LedgerSequence is zero while the local ledger is unknown.
	st.SyncLag = nil
	if obs.ledger > 0 && node.Status.LedgerSequence > 0 {
		lag := SyncLag(obs.ledger, node.Status.LedgerSequence)
		st.SyncLag = &lag
	}
	if st.LastPeerContact == nil || now.Sub(st.LastPeerContact.Time) >= interval {
		contact := now
		st.LastPeerContact = &contact
		node.SetAnnotation(stellarv1alpha1.AnnotationDRLastSyncTime, now.UTC().Format(time.RFC3339))
	}
}

func (m *Machine) latch(ctx context.Context, node *stellarv1alpha1.StellarNode, obs peerObservation, now metav1.Time) {
	st := node.Status.DRStatus
	st.FailoverActive = true
	st.FailoverTime = &now
	st.CurrentRole = stellarv1alpha1.DRRolePrimary
	node.SetAnnotation(stellarv1alpha1.AnnotationDRFailoverActive, "true")
	status.SetAt(&node.Status.Conditions, node.Generation, constants.ConditionDRFailover, metav1.ConditionTrue,
		constants.ReasonFailoverLatched, fmt.Sprintf("Peer %s unreachable; promoted to Primary", obs.clusterID), now)

	logging.LogAuditEvent(log.FromContext(ctx), logging.EventDRFailoverLatched, map[string]string{
		"node":      node.Name,
		"namespace": node.Namespace,
		"peer":      obs.clusterID,
	})
}

func (m *Machine) reset(ctx context.Context, node *stellarv1alpha1.StellarNode, now metav1.Time) {
	st := node.Status.DRStatus
	wasActive := st.FailoverActive
	st.FailoverActive = false
	st.FailoverTime = nil
	st.CurrentRole = node.Spec.DRConfig.Role
	node.RemoveAnnotation(stellarv1alpha1.AnnotationDRFailoverReset)
	node.RemoveAnnotation(stellarv1alpha1.AnnotationDRFailoverActive)
	status.SetAt(&node.Status.Conditions, node.Generation, constants.ConditionDRFailover, metav1.ConditionFalse,
		constants.ReasonFailoverReset, "Failover latch reset", now)

	logging.LogAuditEvent(log.FromContext(ctx), logging.EventDRFailoverReset, map[string]string{
		"node":       node.Name,
		"namespace":  node.Namespace,
		"was_active": fmt.Sprintf("%t", wasActive),
		"role":       string(st.CurrentRole),
	})
}
