/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package v1alpha1

import (
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	// StellarNodeFinalizer is the finalizer used to ensure in-flight rollouts
	// reach a safe stopping point before a StellarNode is fully deleted.
	StellarNodeFinalizer = "stellar.org/stellarnode-finalizer"
)

// NodeType is the software role a StellarNode runs.
// +kubebuilder:validation:Enum=Validator;Horizon;SorobanRpc
type NodeType string

const (
	// NodeTypeValidator runs stellar-core and participates in consensus.
	NodeTypeValidator NodeType = "Validator"
	// NodeTypeHorizon runs the Horizon API gateway.
	NodeTypeHorizon NodeType = "Horizon"
	// NodeTypeSorobanRpc runs the Soroban RPC gateway.
	NodeTypeSorobanRpc NodeType = "SorobanRpc"
)

// ContainerImage returns the default image reference for the node type at the given version.
func (t NodeType) ContainerImage(version string) string {
	switch t {
	case NodeTypeHorizon:
		return "stellar/stellar-horizon:" + version
	case NodeTypeSorobanRpc:
		return "stellar/soroban-rpc:" + version
	default:
		return "stellar/stellar-core:" + version
	}
}

// StellarNetwork selects the Stellar network a node joins.
// +kubebuilder:validation:Enum=Mainnet;Testnet;Futurenet;Custom
type StellarNetwork string

const (
	NetworkMainnet   StellarNetwork = "Mainnet"
	NetworkTestnet   StellarNetwork = "Testnet"
	NetworkFuturenet StellarNetwork = "Futurenet"
	NetworkCustom    StellarNetwork = "Custom"
)

// NodePhase is a high-level summary of node state.
// +kubebuilder:validation:Enum=Pending;Running;Migrating;Patching;Suspended;Failed
type NodePhase string

const (
	NodePhasePending   NodePhase = "Pending"
	NodePhaseRunning   NodePhase = "Running"
	NodePhaseMigrating NodePhase = "Migrating"
	NodePhasePatching  NodePhase = "Patching"
	NodePhaseSuspended NodePhase = "Suspended"
	NodePhaseFailed    NodePhase = "Failed"
)

// ValidatorConfig configures a stellar-core validator.
type ValidatorConfig struct {
	// SeedSecretRef names the Secret holding the validator seed.
	// +kubebuilder:validation:MinLength=1
	SeedSecretRef string `json:"seedSecretRef"`
	// QuorumSet is the TOML quorum set fragment rendered into stellar-core config.
	// +optional
	QuorumSet string `json:"quorumSet,omitempty"`
	// EnableHistoryArchive publishes history to the configured archives.
	// +optional
	EnableHistoryArchive bool `json:"enableHistoryArchive,omitempty"`
	// HistoryArchiveURLs lists archives the node reads history from.
	// +optional
	HistoryArchiveURLs []string `json:"historyArchiveUrls,omitempty"`
}

// HorizonConfig configures a Horizon API gateway.
type HorizonConfig struct {
	// DatabaseSecretRef names the Secret holding the Horizon database URL.
	// +kubebuilder:validation:MinLength=1
	DatabaseSecretRef string `json:"databaseSecretRef"`
	// +optional
	// +kubebuilder:default=true
	EnableIngest bool `json:"enableIngest,omitempty"`
	// StellarCoreURL is the captive or remote stellar-core endpoint.
	StellarCoreURL string `json:"stellarCoreUrl"`
	// +optional
	// +kubebuilder:default=1
	// +kubebuilder:validation:Minimum=1
	IngestWorkers int32 `json:"ingestWorkers,omitempty"`
	// +optional
	EnableExperimentalIngestion bool `json:"enableExperimentalIngestion,omitempty"`
	// AutoMigration lets a switch to SorobanRpc derive its config from this block.
	// +optional
	AutoMigration bool `json:"autoMigration,omitempty"`
}

// SorobanConfig configures a Soroban RPC gateway.
type SorobanConfig struct {
	// StellarCoreURL is the stellar-core endpoint the RPC server follows.
	StellarCoreURL string `json:"stellarCoreUrl"`
	// CaptiveCoreConfig is a raw captive-core TOML document.
	// +optional
	CaptiveCoreConfig string `json:"captiveCoreConfig,omitempty"`
	// CaptiveCoreStructuredConfig is a structured captive-core configuration.
	// +optional
	// +kubebuilder:pruning:PreserveUnknownFields
	CaptiveCoreStructuredConfig *apiextensionsv1.JSON `json:"captiveCoreStructuredConfig,omitempty"`
	// +optional
	// +kubebuilder:default=true
	EnablePreflight bool `json:"enablePreflight,omitempty"`
	// +optional
	// +kubebuilder:default=10000
	// +kubebuilder:validation:Minimum=1
	MaxEventsPerRequest int32 `json:"maxEventsPerRequest,omitempty"`
}

// StellarNodeSpec defines the desired state of a StellarNode.
type StellarNodeSpec struct {
	// NodeType is the declared software role.
	// +kubebuilder:validation:Required
	NodeType NodeType `json:"nodeType"`
	// +optional
	// +kubebuilder:default=Testnet
	Network StellarNetwork `json:"network,omitempty"`
	// Version is the desired software version (image tag).
	// +kubebuilder:validation:MinLength=1
	Version string `json:"version"`
	// +optional
	// +kubebuilder:default=1
	// +kubebuilder:validation:Minimum=0
	Replicas int32 `json:"replicas,omitempty"`
	// Suspended scales the workload to zero without deleting it.
	// +optional
	Suspended bool `json:"suspended,omitempty"`

	// +optional
	ValidatorConfig *ValidatorConfig `json:"validatorConfig,omitempty"`
	// +optional
	HorizonConfig *HorizonConfig `json:"horizonConfig,omitempty"`
	// +optional
	SorobanConfig *SorobanConfig `json:"sorobanConfig,omitempty"`

	// DRConfig configures cross-region disaster recovery.
	// +optional
	DRConfig *DisasterRecoveryConfig `json:"drConfig,omitempty"`
	// CrossCluster lists peer clusters used for DR and latency-aware routing.
	// +optional
	CrossCluster *CrossClusterConfig `json:"crossCluster,omitempty"`
	// CVEHandling configures vulnerability scanning and automated patch rollout.
	// +optional
	CVEHandling *CVEHandlingConfig `json:"cveHandling,omitempty"`
}

// MigrationPhase is the phase of a role migration.
// +kubebuilder:validation:Enum=Starting;InProgress;Complete;Failed
type MigrationPhase string

const (
	MigrationPhaseStarting   MigrationPhase = "Starting"
	MigrationPhaseInProgress MigrationPhase = "InProgress"
	MigrationPhaseComplete   MigrationPhase = "Complete"
	MigrationPhaseFailed     MigrationPhase = "Failed"
)

// MigrationStatus records a role migration. StartTime is fixed when the
// migration begins and is preserved by every later transition.
type MigrationStatus struct {
	FromType NodeType       `json:"fromType"`
	ToType   NodeType       `json:"toType"`
	Phase    MigrationPhase `json:"phase"`
	// StartTime is when the migration was started.
	StartTime metav1.Time `json:"startTime"`
	// +optional
	CompletionTime *metav1.Time `json:"completionTime,omitempty"`
	// +optional
	Message string `json:"message,omitempty"`
}

// OperationLock marks a multi-step operation that owns the node workload.
type OperationLock struct {
	// Operation is the operation holding the lock (Migration or CVERollout).
	Operation string `json:"operation"`
	// Holder identifies the run that acquired the lock.
	Holder string `json:"holder"`
	// AcquiredAt is when the lock was acquired.
	AcquiredAt metav1.Time `json:"acquiredAt"`
}

// StellarNodeStatus defines the observed state of a StellarNode.
type StellarNodeStatus struct {
	// +optional
	Phase NodePhase `json:"phase,omitempty"`
	// +optional
	Message string `json:"message,omitempty"`
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`
	// +optional
	// +listType=map
	// +listMapKey=type
	Conditions []metav1.Condition `json:"conditions,omitempty"`

	// ObservedNodeType is the node type last reconciled. A difference from
	// spec.nodeType records the provenance of a role change.
	// +optional
	ObservedNodeType NodeType `json:"observedNodeType,omitempty"`
	// +optional
	LedgerSequence int64 `json:"ledgerSequence,omitempty"`
	// +optional
	Endpoint string `json:"endpoint,omitempty"`
	// +optional
	ReadyReplicas int32 `json:"readyReplicas,omitempty"`
	// +optional
	Replicas int32 `json:"replicas,omitempty"`

	// +optional
	MigrationStatus *MigrationStatus `json:"migrationStatus,omitempty"`
	// +optional
	DRStatus *DisasterRecoveryStatus `json:"drStatus,omitempty"`
	// CVERolloutStatus is the state of the CVE rollout state machine.
	// +optional
	CVERolloutStatus CVERolloutState `json:"cveRolloutStatus,omitempty"`
	// CVE holds scan results and rollout progress.
	// +optional
	CVE *CVEStatus `json:"cveStatus,omitempty"`
	// OperationLock is set while a multi-step operation owns the workload.
	// +optional
	OperationLock *OperationLock `json:"operationLock,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:path=stellarnodes,scope=Namespaced,shortName=sn
// +kubebuilder:printcolumn:name="Type",type=string,JSONPath=`.spec.nodeType`
// +kubebuilder:printcolumn:name="Version",type=string,JSONPath=`.spec.version`
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="CVE",type=string,JSONPath=`.status.cveRolloutStatus`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// StellarNode is the Schema for the stellarnodes API.
type StellarNode struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   StellarNodeSpec   `json:"spec,omitempty"`
	Status StellarNodeStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// StellarNodeList contains a list of StellarNode.
type StellarNodeList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []StellarNode `json:"items"`
}

func init() {
	SchemeBuilder.Register(&StellarNode{}, &StellarNodeList{})
}
