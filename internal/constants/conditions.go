package constants

// Condition types reported on StellarNode status.
const (
	ConditionReady             = "Ready"
	ConditionMigrating         = "Migrating"
	ConditionDRFailover        = "DRFailover"
	ConditionPeerReachable     = "PeerReachable"
	ConditionCVEPatchAvailable = "CVEPatchAvailable"
	ConditionCanaryTesting     = "CanaryTesting"
	ConditionCVERollout        = "CVERollout"
)

// Common condition reasons used by the operator.
const (
	ReasonReady       = "Ready"
	ReasonReconciling = "Reconciling"
	ReasonSuspended   = "Suspended"
	ReasonProgressing = "Progressing"

	ReasonValidationFailed = "ValidationFailed"
	ReasonConfigError      = "ConfigError"

	ReasonHorizonToSorobanRpc = "HorizonToSorobanRpc"
	ReasonMigrationComplete   = "MigrationComplete"
	ReasonMigrationTimedOut   = "MigrationTimedOut"

	ReasonFailoverLatched = "FailoverLatched"
	ReasonFailoverReset   = "FailoverReset"
	ReasonPeerHealthy     = "PeerHealthy"
	ReasonPeerDegraded    = "PeerDegraded"
	ReasonPeerUnreachable = "PeerUnreachable"

	ReasonNoPatchAvailable        = "NoPatchAvailable"
	ReasonPatchAvailable          = "PatchAvailable"
	ReasonNoUrgentVulnerabilities = "NoUrgentVulnerabilities"
	ReasonScanFailed              = "ScanFailed"
	ReasonImageVerificationFailed = "ImageVerificationFailed"
	ReasonCanaryPending           = "CanaryPending"
	ReasonCanaryRunning           = "CanaryRunning"
	ReasonCanaryPassed            = "CanaryPassed"
	ReasonCanaryFailed            = "CanaryFailed"
	ReasonCanaryTimeout           = "CanaryTimeout"
	ReasonRolloutInProgress       = "RolloutInProgress"
	ReasonRolloutComplete         = "RolloutComplete"
	ReasonRollingBack             = "RollingBack"
	ReasonRolledBack              = "RolledBack"
	ReasonConsensusUnhealthy      = "ConsensusUnhealthy"
)

// Event reasons emitted in dry-run mode.
const (
	ReasonWouldCreate = "WouldCreate"
	ReasonWouldUpdate = "WouldUpdate"
	ReasonWouldDelete = "WouldDelete"
)
