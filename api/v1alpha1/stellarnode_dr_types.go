package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// DRRole is the disaster recovery role of a node.
// +kubebuilder:validation:Enum=Primary;Standby
type DRRole string

const (
	DRRolePrimary DRRole = "Primary"
	DRRoleStandby DRRole = "Standby"
)

// DRSyncStrategy selects how a standby tracks its primary.
// +kubebuilder:validation:Enum=Consensus;PeerTracking
type DRSyncStrategy string

const (
	// DRSyncConsensus follows the network through consensus like any other node.
	DRSyncConsensus DRSyncStrategy = "Consensus"
	// DRSyncPeerTracking follows the ledger position reported by the peer cluster.
	DRSyncPeerTracking DRSyncStrategy = "PeerTracking"
)

// PeerHealth values reported in DisasterRecoveryStatus.PeerHealth.
const (
	PeerHealthHealthy     = "Healthy"
	PeerHealthDegraded    = "Degraded"
	PeerHealthUnreachable = "Unreachable"
)

// FailoverDNSConfig publishes a hostname for the node once it holds the Primary role.
type FailoverDNSConfig struct {
	// Hostname is published through an external-dns annotation on the node Service.
	// +kubebuilder:validation:MinLength=1
	Hostname string `json:"hostname"`
	// +optional
	// +kubebuilder:default=60
	TTLSeconds int32 `json:"ttlSeconds,omitempty"`
}

// DisasterRecoveryConfig configures cross-region failover.
type DisasterRecoveryConfig struct {
	// +optional
	Enabled bool `json:"enabled,omitempty"`
	// Role is the declared role of this node.
	// +kubebuilder:default=Primary
	Role DRRole `json:"role"`
	// PeerClusterID names the peer in spec.crossCluster.peers this node pairs with.
	// +optional
	PeerClusterID string `json:"peerClusterId,omitempty"`
	// +optional
	// +kubebuilder:default=Consensus
	SyncStrategy DRSyncStrategy `json:"syncStrategy,omitempty"`
	// +optional
	FailoverDNS *FailoverDNSConfig `json:"failoverDns,omitempty"`
	// HealthCheckInterval is the peer health check interval in seconds.
	// +optional
	// +kubebuilder:default=30
	// +kubebuilder:validation:Minimum=1
	HealthCheckInterval int32 `json:"healthCheckInterval,omitempty"`
}

// DisasterRecoveryStatus is the persisted state of the DR state machine.
// FailoverActive is a latch: once true it is only cleared by an explicit reset.
type DisasterRecoveryStatus struct {
	// +optional
	CurrentRole DRRole `json:"currentRole,omitempty"`
	// +optional
	PeerHealth string `json:"peerHealth,omitempty"`
	// +optional
	LastPeerContact *metav1.Time `json:"lastPeerContact,omitempty"`
	// SyncLag is the number of ledgers this node trails the peer by.
	// +optional
	// +kubebuilder:validation:Minimum=0
	SyncLag *int64 `json:"syncLag,omitempty"`
	// +optional
	FailoverActive bool `json:"failoverActive,omitempty"`
	// FailoverTime is when the latch was set.
	// +optional
	FailoverTime *metav1.Time `json:"failoverTime,omitempty"`
	// PeerLatencyMs is the configured percentile of peer probe latency.
	// +optional
	PeerLatencyMs *int64 `json:"peerLatencyMs,omitempty"`
}

// ProbeMethod selects how peer reachability and latency are measured.
// +kubebuilder:validation:Enum=TCP;HTTP;ICMP;GRPC
type ProbeMethod string

const (
	ProbeMethodTCP  ProbeMethod = "TCP"
	ProbeMethodHTTP ProbeMethod = "HTTP"
	ProbeMethodICMP ProbeMethod = "ICMP"
	ProbeMethodGRPC ProbeMethod = "GRPC"
)

// DefaultPeerPort is the stellar-core peer port.
const DefaultPeerPort int32 = 11625

// PeerClusterConfig describes a peer cluster.
type PeerClusterConfig struct {
	// +kubebuilder:validation:MinLength=1
	ClusterID string `json:"clusterId"`
	// Endpoint is the peer host name or address.
	// +kubebuilder:validation:MinLength=1
	Endpoint string `json:"endpoint"`
	// +optional
	// +kubebuilder:default=200
	LatencyThresholdMs int32 `json:"latencyThresholdMs,omitempty"`
	// +optional
	Region string `json:"region,omitempty"`
	// Priority orders peers for cross-cluster operations; higher wins.
	// +optional
	// +kubebuilder:default=100
	Priority int32 `json:"priority,omitempty"`
	// +optional
	// +kubebuilder:default=11625
	Port int32 `json:"port,omitempty"`
	// +optional
	// +kubebuilder:default=true
	Enabled bool `json:"enabled,omitempty"`
}

// LatencyProbeConfig configures peer latency measurement.
type LatencyProbeConfig struct {
	// +optional
	// +kubebuilder:default=TCP
	Method ProbeMethod `json:"method,omitempty"`
	// +optional
	// +kubebuilder:default=3
	// +kubebuilder:validation:Minimum=1
	// +kubebuilder:validation:Maximum=20
	Samples int32 `json:"samples,omitempty"`
	// Percentile is reported from the samples, in (0,100].
	// +optional
	// +kubebuilder:default=95
	Percentile int32 `json:"percentile,omitempty"`
	// +optional
	// +kubebuilder:default=5
	TimeoutSeconds int32 `json:"timeoutSeconds,omitempty"`
}

// CrossClusterConfig lists peer clusters.
type CrossClusterConfig struct {
	// +optional
	Enabled bool `json:"enabled,omitempty"`
	// +optional
	Peers []PeerClusterConfig `json:"peers,omitempty"`
	// +optional
	LatencyProbe *LatencyProbeConfig `json:"latencyProbe,omitempty"`
}
