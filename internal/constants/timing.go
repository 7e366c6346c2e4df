package constants

import "time"

// Requeue intervals used by controllers.
const (
	RequeueShort    = 5 * time.Second
	RequeueStandard = 1 * time.Minute

	RequeueSteadyState       = 5 * time.Minute
	RequeueSteadyStateJitter = 30 * time.Second
)

// Timeouts for outbound calls and multi-step operations.
const (
	PeerProbeTimeout = 5 * time.Second
	ScanTimeout      = 2 * time.Minute
	MigrationTimeout = 30 * time.Minute

	// RolloutStepTimeout bounds how long one CVE rollout step may stay unready
	// before it counts as a health breach.
	RolloutStepTimeout = 10 * time.Minute
	// ConsensusProbeConcurrency limits parallel pod health probes.
	ConsensusProbeConcurrency = 4

	// DefaultDRHealthCheckInterval applies when drConfig.healthCheckInterval is unset.
	DefaultDRHealthCheckInterval = 30 * time.Second
)
