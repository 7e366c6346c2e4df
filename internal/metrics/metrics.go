// Package metrics defines the operator's Prometheus series. Collectors are
// created per Metrics instance and registered into the Registerer handed to
// New, so tests and the manager never share process-wide state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
)

const namespace = "stellar_operator"

// Metrics holds every collector the operator exports.
type Metrics struct {
	reconcileDuration *prometheus.HistogramVec
	reconcileErrors   *prometheus.CounterVec
	nodePhase         *prometheus.GaugeVec
	readyReplicas     *prometheus.GaugeVec
	migrationPhase    *prometheus.GaugeVec
	drFailoverActive  *prometheus.GaugeVec
	drSyncLag         *prometheus.GaugeVec
	peerLatency       *prometheus.GaugeVec
	cveCount          *prometheus.GaugeVec
	cveRolloutState   *prometheus.GaugeVec
	canaryResults     *prometheus.CounterVec
	dryRunSkipped     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		reconcileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reconcile_duration_seconds",
				Help:      "Duration of StellarNode reconcile ticks in seconds",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"namespace", "name", "controller"},
		),
		reconcileErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_errors_total",
				Help:      "Total number of reconcile errors by error kind",
			},
			[]string{"kind"},
		),
		nodePhase: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "node_phase",
				Help:      "Current phase of a StellarNode (1 = active phase)",
			},
			[]string{"namespace", "name", "phase"},
		),
		readyReplicas: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "node_ready_replicas",
				Help:      "Number of Ready replicas of a StellarNode workload",
			},
			[]string{"namespace", "name"},
		),
		migrationPhase: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "migration",
				Name:      "phase",
				Help:      "Current migration phase of a StellarNode (1 = active phase)",
			},
			[]string{"namespace", "name", "phase"},
		),
		drFailoverActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "dr",
				Name:      "failover_active",
				Help:      "Whether the DR failover latch is set (1) or not (0)",
			},
			[]string{"namespace", "name"},
		),
		drSyncLag: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "dr",
				Name:      "sync_lag_ledgers",
				Help:      "Number of ledgers the node trails its DR peer by",
			},
			[]string{"namespace", "name"},
		),
		peerLatency: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "dr",
				Name:      "peer_latency_milliseconds",
				Help:      "Configured percentile of peer probe latency in milliseconds",
			},
			[]string{"namespace", "name", "peer"},
		),
		cveCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "cve",
				Name:      "vulnerabilities",
				Help:      "Vulnerabilities found in the node image by severity",
			},
			[]string{"namespace", "name", "severity"},
		),
		cveRolloutState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "cve",
				Name:      "rollout_state",
				Help:      "Current CVE rollout state of a StellarNode (1 = active state)",
			},
			[]string{"namespace", "name", "state"},
		),
		canaryResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cve",
				Name:      "canary_results_total",
				Help:      "Total number of canary judgments by outcome",
			},
			[]string{"namespace", "name", "result"},
		),
		dryRunSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dry_run_skipped_actions_total",
				Help:      "Total number of mutating actions skipped in dry-run mode",
			},
			[]string{"action", "kind"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.reconcileDuration,
		m.reconcileErrors,
		m.nodePhase,
		m.readyReplicas,
		m.migrationPhase,
		m.drFailoverActive,
		m.drSyncLag,
		m.peerLatency,
		m.cveCount,
		m.cveRolloutState,
		m.canaryResults,
		m.dryRunSkipped,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// IncrementError increments the reconcile error counter for kind.
func (m *Metrics) IncrementError(kind string) {
	m.reconcileErrors.WithLabelValues(kind).Inc()
}

// RecordDryRunSkipped counts a mutating action that dry-run mode did not perform.
func (m *Metrics) RecordDryRunSkipped(action, kind string) {
	m.dryRunSkipped.WithLabelValues(action, kind).Inc()
}

// ForNode returns helpers bound to one StellarNode.
func (m *Metrics) ForNode(namespace, name string) *NodeMetrics {
	return &NodeMetrics{m: m, namespace: namespace, name: name}
}

// NodeMetrics records per-node series.
type NodeMetrics struct {
	m         *Metrics
	namespace string
	name      string
}

// ObserveDuration records the duration of a reconcile tick in seconds.
func (n *NodeMetrics) ObserveDuration(controller string, durationSeconds float64) {
	n.m.reconcileDuration.WithLabelValues(n.namespace, n.name, controller).Observe(durationSeconds)
}

// SetReadyReplicas records the number of Ready replicas.
func (n *NodeMetrics) SetReadyReplicas(ready int32) {
	n.m.readyReplicas.WithLabelValues(n.namespace, n.name).Set(float64(ready))
}

// SetPhase sets the gauge for phase to 1 and every other phase to 0.
func (n *NodeMetrics) SetPhase(phase stellarv1alpha1.NodePhase) {
	for _, p := range nodePhases {
		n.m.nodePhase.WithLabelValues(n.namespace, n.name, string(p)).Set(boolToFloat(p == phase))
	}
}

// SetMigrationPhase sets the gauge for phase to 1 and every other phase to 0.
// An empty phase clears the series.
func (n *NodeMetrics) SetMigrationPhase(phase stellarv1alpha1.MigrationPhase) {
	for _, p := range migrationPhases {
		if phase == "" {
			n.m.migrationPhase.DeleteLabelValues(n.namespace, n.name, string(p))
			continue
		}
		n.m.migrationPhase.WithLabelValues(n.namespace, n.name, string(p)).Set(boolToFloat(p == phase))
	}
}

// SetDRStatus records the DR latch and sync lag.
func (n *NodeMetrics) SetDRStatus(failoverActive bool, syncLag *int64) {
	n.m.drFailoverActive.WithLabelValues(n.namespace, n.name).Set(boolToFloat(failoverActive))
	if syncLag != nil {
		n.m.drSyncLag.WithLabelValues(n.namespace, n.name).Set(float64(*syncLag))
	}
}

// SetPeerLatency records the measured latency percentile for a peer cluster.
func (n *NodeMetrics) SetPeerLatency(peer string, ms int64) {
	n.m.peerLatency.WithLabelValues(n.namespace, n.name, peer).Set(float64(ms))
}

// SetCVECounts records the vulnerability histogram of the last scan.
func (n *NodeMetrics) SetCVECounts(c stellarv1alpha1.CVECount) {
	n.m.cveCount.WithLabelValues(n.namespace, n.name, string(stellarv1alpha1.SeverityCritical)).Set(float64(c.Critical))
	n.m.cveCount.WithLabelValues(n.namespace, n.name, string(stellarv1alpha1.SeverityHigh)).Set(float64(c.High))
	n.m.cveCount.WithLabelValues(n.namespace, n.name, string(stellarv1alpha1.SeverityMedium)).Set(float64(c.Medium))
	n.m.cveCount.WithLabelValues(n.namespace, n.name, string(stellarv1alpha1.SeverityLow)).Set(float64(c.Low))
	n.m.cveCount.WithLabelValues(n.namespace, n.name, string(stellarv1alpha1.SeverityUnknown)).Set(float64(c.Unknown))
}

// SetCVERolloutState sets the gauge for state to 1 and every other state to 0.
func (n *NodeMetrics) SetCVERolloutState(state stellarv1alpha1.CVERolloutState) {
	if state == "" {
		state = stellarv1alpha1.CVERolloutIdle
	}
	for _, s := range rolloutStates {
		n.m.cveRolloutState.WithLabelValues(n.namespace, n.name, string(s)).Set(boolToFloat(s == state))
	}
}

// RecordCanaryResult counts a canary judgment.
func (n *NodeMetrics) RecordCanaryResult(result stellarv1alpha1.CanaryTestState) {
	n.m.canaryResults.WithLabelValues(n.namespace, n.name, string(result)).Inc()
}

// Clear removes all per-node series. It is called during finalization so
// deleted nodes do not leave stale series behind.
func (n *NodeMetrics) Clear() {
	labels := prometheus.Labels{"namespace": n.namespace, "name": n.name}
	n.m.reconcileDuration.DeletePartialMatch(labels)
	n.m.nodePhase.DeletePartialMatch(labels)
	n.m.readyReplicas.DeletePartialMatch(labels)
	n.m.migrationPhase.DeletePartialMatch(labels)
	n.m.drFailoverActive.DeletePartialMatch(labels)
	n.m.drSyncLag.DeletePartialMatch(labels)
	n.m.peerLatency.DeletePartialMatch(labels)
	n.m.cveCount.DeletePartialMatch(labels)
	n.m.cveRolloutState.DeletePartialMatch(labels)
	n.m.canaryResults.DeletePartialMatch(labels)
}

var (
	nodePhases = []stellarv1alpha1.NodePhase{
		stellarv1alpha1.NodePhasePending,
		stellarv1alpha1.NodePhaseRunning,
		stellarv1alpha1.NodePhaseMigrating,
		stellarv1alpha1.NodePhasePatching,
		stellarv1alpha1.NodePhaseSuspended,
		stellarv1alpha1.NodePhaseFailed,
	}
	migrationPhases = []stellarv1alpha1.MigrationPhase{
		stellarv1alpha1.MigrationPhaseStarting,
		stellarv1alpha1.MigrationPhaseInProgress,
		stellarv1alpha1.MigrationPhaseComplete,
		stellarv1alpha1.MigrationPhaseFailed,
	}
	rolloutStates = []stellarv1alpha1.CVERolloutState{
		stellarv1alpha1.CVERolloutIdle,
		stellarv1alpha1.CVERolloutCanaryTesting,
		stellarv1alpha1.CVERolloutRolling,
		stellarv1alpha1.CVERolloutComplete,
		stellarv1alpha1.CVERolloutRollingBack,
		stellarv1alpha1.CVERolloutRolledBack,
		stellarv1alpha1.CVERolloutFailed,
	}
)

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
