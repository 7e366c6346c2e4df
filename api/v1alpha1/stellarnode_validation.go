package v1alpha1

import (
	"math"

	"github.com/robfig/cron/v3"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

const maxLatencySamples = 20

// scanScheduleParser parses scanSchedule expressions.
var scanScheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseScanSchedule parses a five-field cron expression.
func ParseScanSchedule(expr string) (cron.Schedule, error) {
	return scanScheduleParser.Parse(expr)
}

// Validate checks the spec for errors the controller cannot reconcile around.
// It never panics and returns nil or an aggregate of field errors.
func (s *StellarNodeSpec) Validate() error {
	return s.ValidateFields().ToAggregate()
}

// ValidateFields returns every field error in the spec.
func (s *StellarNodeSpec) ValidateFields() field.ErrorList {
	root := field.NewPath("spec")
	var errs field.ErrorList

	if s.Version == "" {
		errs = append(errs, field.Required(root.Child("version"), "version must not be empty"))
	}
	if s.Replicas < 0 {
		errs = append(errs, field.Invalid(root.Child("replicas"), s.Replicas, "must be non-negative"))
	}

	switch s.NodeType {
	case NodeTypeValidator:
		errs = append(errs, s.validateValidator(root)...)
	case NodeTypeHorizon:
		if s.HorizonConfig == nil {
			errs = append(errs, field.Required(root.Child("horizonConfig"), "horizonConfig is required for Horizon nodes"))
		} else if s.HorizonConfig.DatabaseSecretRef == "" {
			errs = append(errs, field.Required(root.Child("horizonConfig", "databaseSecretRef"), "databaseSecretRef must not be empty"))
		}
	case NodeTypeSorobanRpc:
		autoMigrate := s.HorizonConfig != nil && s.HorizonConfig.AutoMigration
		if s.SorobanConfig == nil && !autoMigrate {
			errs = append(errs, field.Required(root.Child("sorobanConfig"), "sorobanConfig is required for SorobanRpc nodes"))
		}
	default:
		errs = append(errs, field.NotSupported(root.Child("nodeType"), s.NodeType,
			[]string{string(NodeTypeValidator), string(NodeTypeHorizon), string(NodeTypeSorobanRpc)}))
	}

	errs = append(errs, s.validateCrossCluster(root.Child("crossCluster"))...)
	errs = append(errs, s.validateDR(root.Child("drConfig"))...)
	errs = append(errs, s.validateCVE(root.Child("cveHandling"))...)
	return errs
}

func (s *StellarNodeSpec) validateValidator(root *field.Path) field.ErrorList {
	var errs field.ErrorList
	vc := s.ValidatorConfig
	if vc == nil {
		return append(errs, field.Required(root.Child("validatorConfig"), "validatorConfig is required for Validator nodes"))
	}
	if vc.SeedSecretRef == "" {
		errs = append(errs, field.Required(root.Child("validatorConfig", "seedSecretRef"), "seedSecretRef must not be empty"))
	}
	if vc.EnableHistoryArchive && len(vc.HistoryArchiveURLs) == 0 {
		errs = append(errs, field.Required(root.Child("validatorConfig", "historyArchiveUrls"),
			"historyArchiveUrls must not be empty when enableHistoryArchive is true"))
	}
	if s.Replicas != 1 {
		errs = append(errs, field.Invalid(root.Child("replicas"), s.Replicas, "Validator nodes must have exactly 1 replica"))
	}
	return errs
}

func (s *StellarNodeSpec) validateCrossCluster(path *field.Path) field.ErrorList {
	cc := s.CrossCluster
	if cc == nil {
		return nil
	}
	var errs field.ErrorList
	seen := make(map[string]struct{}, len(cc.Peers))
	for i, p := range cc.Peers {
		pp := path.Child("peers").Index(i)
		if p.ClusterID == "" {
			errs = append(errs, field.Required(pp.Child("clusterId"), ""))
		} else if _, dup := seen[p.ClusterID]; dup {
			errs = append(errs, field.Duplicate(pp.Child("clusterId"), p.ClusterID))
		} else {
			seen[p.ClusterID] = struct{}{}
		}
		if p.Endpoint == "" {
			errs = append(errs, field.Required(pp.Child("endpoint"), ""))
		}
		if p.Port < 0 || p.Port > 65535 {
			errs = append(errs, field.Invalid(pp.Child("port"), p.Port, "must be a valid port"))
		}
		if p.LatencyThresholdMs < 0 {
			errs = append(errs, field.Invalid(pp.Child("latencyThresholdMs"), p.LatencyThresholdMs, "must be non-negative"))
		}
	}
	if lp := cc.LatencyProbe; lp != nil {
		lpp := path.Child("latencyProbe")
		switch lp.Method {
		case "", ProbeMethodTCP, ProbeMethodHTTP, ProbeMethodICMP, ProbeMethodGRPC:
		default:
			errs = append(errs, field.NotSupported(lpp.Child("method"), lp.Method,
				[]string{string(ProbeMethodTCP), string(ProbeMethodHTTP), string(ProbeMethodICMP), string(ProbeMethodGRPC)}))
		}
		if lp.Samples < 0 || lp.Samples > maxLatencySamples {
			errs = append(errs, field.Invalid(lpp.Child("samples"), lp.Samples, "must be between 1 and 20"))
		}
		if lp.Percentile < 0 || lp.Percentile > 100 {
			errs = append(errs, field.Invalid(lpp.Child("percentile"), lp.Percentile, "must be between 1 and 100"))
		}
		if lp.TimeoutSeconds < 0 {
			errs = append(errs, field.Invalid(lpp.Child("timeoutSeconds"), lp.TimeoutSeconds, "must be non-negative"))
		}
	}
	return errs
}

func (s *StellarNodeSpec) validateDR(path *field.Path) field.ErrorList {
	dr := s.DRConfig
	if dr == nil || !dr.Enabled {
		return nil
	}
	var errs field.ErrorList
	switch dr.Role {
	case DRRolePrimary, DRRoleStandby:
	default:
		errs = append(errs, field.NotSupported(path.Child("role"), dr.Role,
			[]string{string(DRRolePrimary), string(DRRoleStandby)}))
	}
	switch dr.SyncStrategy {
	case "", DRSyncConsensus, DRSyncPeerTracking:
	default:
		errs = append(errs, field.NotSupported(path.Child("syncStrategy"), dr.SyncStrategy,
			[]string{string(DRSyncConsensus), string(DRSyncPeerTracking)}))
	}
	if dr.HealthCheckInterval < 0 {
		errs = append(errs, field.Invalid(path.Child("healthCheckInterval"), dr.HealthCheckInterval, "must be non-negative"))
	}
	if dr.FailoverDNS != nil && dr.FailoverDNS.Hostname == "" {
		errs = append(errs, field.Required(path.Child("failoverDns", "hostname"), ""))
	}
	if dr.Role == DRRoleStandby && !s.hasResolvablePeer(dr.PeerClusterID) {
		errs = append(errs, field.Required(path.Child("peerClusterId"),
			"Standby nodes require an enabled peer in spec.crossCluster.peers matching peerClusterId, or at least one enabled peer"))
	}
	return errs
}

func (s *StellarNodeSpec) hasResolvablePeer(id string) bool {
	if s.CrossCluster == nil {
		return false
	}
	for _, p := range s.CrossCluster.Peers {
		if p.Enabled && (id == "" || p.ClusterID == id) {
			return true
		}
	}
	return false
}

func (s *StellarNodeSpec) validateCVE(path *field.Path) field.ErrorList {
	c := s.CVEHandling
	if c == nil {
		return nil
	}
	var errs field.ErrorList
	if c.ScanIntervalSecs < 0 {
		errs = append(errs, field.Invalid(path.Child("scanIntervalSecs"), c.ScanIntervalSecs, "must be non-negative"))
	}
	if c.ScanSchedule != "" {
		if _, err := ParseScanSchedule(c.ScanSchedule); err != nil {
			errs = append(errs, field.Invalid(path.Child("scanSchedule"), c.ScanSchedule, err.Error()))
		}
	}
	if c.CanaryTestTimeoutSecs < 0 {
		errs = append(errs, field.Invalid(path.Child("canaryTestTimeoutSecs"), c.CanaryTestTimeoutSecs, "must be non-negative"))
	}
	if v := c.CanaryPassRateThreshold; v != nil && (math.IsNaN(*v) || *v < 0 || *v > 100) {
		errs = append(errs, field.Invalid(path.Child("canaryPassRateThreshold"), *v, "must be between 0 and 100"))
	}
	if v := c.ConsensusHealthThreshold; v != nil && (math.IsNaN(*v) || *v < 0 || *v > 1) {
		errs = append(errs, field.Invalid(path.Child("consensusHealthThreshold"), *v, "must be between 0 and 1"))
	}
	if c.RolloutStepSize < 0 {
		errs = append(errs, field.Invalid(path.Child("rolloutStepSize"), c.RolloutStepSize, "must be non-negative"))
	}
	if c.CanaryMinProbes < 0 {
		errs = append(errs, field.Invalid(path.Child("canaryMinProbes"), c.CanaryMinProbes, "must be non-negative"))
	}
	if iv := c.ImageVerification; iv != nil && iv.PublicKey == "" && (iv.Issuer == "" || iv.Subject == "") {
		errs = append(errs, field.Required(path.Child("imageVerification"),
			"either publicKey or both issuer and subject must be provided"))
	}
	if ra := c.ReportArchive; ra != nil {
		rap := path.Child("reportArchive")
		switch ra.Backend {
		case StorageBackendS3:
			if ra.S3 == nil {
				errs = append(errs, field.Required(rap.Child("s3"), "s3 is required for the S3 backend"))
			}
		case StorageBackendIPFS:
			if ra.IPFS == nil {
				errs = append(errs, field.Required(rap.Child("ipfs"), "ipfs is required for the IPFS backend"))
			}
		case StorageBackendFilecoin:
			if ra.Filecoin == nil {
				errs = append(errs, field.Required(rap.Child("filecoin"), "filecoin is required for the Filecoin backend"))
			}
		default:
			errs = append(errs, field.NotSupported(rap.Child("backend"), ra.Backend,
				[]string{string(StorageBackendS3), string(StorageBackendIPFS), string(StorageBackendFilecoin)}))
		}
	}
	return errs
}
