package v1alpha1

import (
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Severity is a vulnerability severity. Values follow scanner report casing.
// +kubebuilder:validation:Enum=CRITICAL;HIGH;MEDIUM;LOW;UNKNOWN
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityUnknown  Severity = "UNKNOWN"
)

// Rank orders severities: Critical > High > Medium > Low > Unknown.
// Unrecognised values rank with Unknown.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Compare returns -1, 0 or 1 as s is less severe, equally severe or more severe than other.
func (s Severity) Compare(other Severity) int {
	a, b := s.Rank(), other.Rank()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ParseSeverity maps a scanner severity label onto a Severity.
func ParseSeverity(label string) Severity {
	switch Severity(strings.ToUpper(strings.TrimSpace(label))) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityHigh:
		return SeverityHigh
	case SeverityMedium:
		return SeverityMedium
	case SeverityLow:
		return SeverityLow
	default:
		return SeverityUnknown
	}
}

// Vulnerability is a single finding in a scanned image.
type Vulnerability struct {
	CVEID            string   `json:"cveId"`
	Severity         Severity `json:"severity"`
	Package          string   `json:"package"`
	InstalledVersion string   `json:"installedVersion"`
	// +optional
	FixedVersion string `json:"fixedVersion,omitempty"`
	// +optional
	Description string `json:"description,omitempty"`
}

// CVECount is a per-severity histogram.
type CVECount struct {
	Critical int32 `json:"critical"`
	High     int32 `json:"high"`
	Medium   int32 `json:"medium"`
	Low      int32 `json:"low"`
	Unknown  int32 `json:"unknown"`
}

// Total returns the sum of all severity buckets.
func (c CVECount) Total() int32 {
	return c.Critical + c.High + c.Medium + c.Low + c.Unknown
}

// Add increments the bucket for severity.
func (c *CVECount) Add(severity Severity) {
	switch severity {
	case SeverityCritical:
		c.Critical++
	case SeverityHigh:
		c.High++
	case SeverityMedium:
		c.Medium++
	case SeverityLow:
		c.Low++
	default:
		c.Unknown++
	}
}

// CVEDetectionResult is the outcome of scanning one image.
type CVEDetectionResult struct {
	CurrentImage string `json:"currentImage"`
	// +optional
	Vulnerabilities []Vulnerability `json:"vulnerabilities,omitempty"`
	// PatchedVersion is the image reference that fixes the findings, if known.
	// +optional
	PatchedVersion string      `json:"patchedVersion,omitempty"`
	ScanTimestamp  metav1.Time `json:"scanTimestamp"`
	CVECount       CVECount    `json:"cveCount"`
	HasCritical    bool        `json:"hasCritical"`
}

// RequiresUrgentPatch reports whether any finding is Critical.
func (r *CVEDetectionResult) RequiresUrgentPatch() bool {
	return r.HasCritical
}

// CanPatch reports whether a patched image is known.
func (r *CVEDetectionResult) CanPatch() bool {
	return r.PatchedVersion != ""
}

// CVERolloutState is the state of the CVE rollout state machine.
// +kubebuilder:validation:Enum=Idle;CanaryTesting;Rolling;Complete;RollingBack;RolledBack;Failed
type CVERolloutState string

const (
	CVERolloutIdle          CVERolloutState = "Idle"
	CVERolloutCanaryTesting CVERolloutState = "CanaryTesting"
	CVERolloutRolling       CVERolloutState = "Rolling"
	CVERolloutComplete      CVERolloutState = "Complete"
	CVERolloutRollingBack   CVERolloutState = "RollingBack"
	CVERolloutRolledBack    CVERolloutState = "RolledBack"
	CVERolloutFailed        CVERolloutState = "Failed"
)

// IsTerminal reports whether the state waits for new evidence before moving.
func (s CVERolloutState) IsTerminal() bool {
	return s == CVERolloutComplete || s == CVERolloutRolledBack || s == CVERolloutFailed
}

// CanaryTestState is the sub-state of CanaryTesting.
// +kubebuilder:validation:Enum=Pending;Running;Passed;Failed;Timeout
type CanaryTestState string

const (
	CanaryPending CanaryTestState = "Pending"
	CanaryRunning CanaryTestState = "Running"
	CanaryPassed  CanaryTestState = "Passed"
	CanaryFailed  CanaryTestState = "Failed"
	CanaryTimeout CanaryTestState = "Timeout"
)

// ImageVerificationConfig configures cosign verification of patched images.
// Provide PublicKey for key-based verification or Issuer and Subject for keyless.
type ImageVerificationConfig struct {
	// +optional
	PublicKey string `json:"publicKey,omitempty"`
	// +optional
	Issuer string `json:"issuer,omitempty"`
	// +optional
	Subject string `json:"subject,omitempty"`
	// +optional
	IgnoreTlog bool `json:"ignoreTlog,omitempty"`
	// +optional
	ImagePullSecrets []corev1.LocalObjectReference `json:"imagePullSecrets,omitempty"`
}

// StorageBackendType selects a report archive backend.
// +kubebuilder:validation:Enum=S3;IPFS;Filecoin
type StorageBackendType string

const (
	StorageBackendS3       StorageBackendType = "S3"
	StorageBackendIPFS     StorageBackendType = "IPFS"
	StorageBackendFilecoin StorageBackendType = "Filecoin"
)

// S3ArchiveConfig targets an S3-compatible bucket.
type S3ArchiveConfig struct {
	// +kubebuilder:validation:MinLength=1
	Bucket string `json:"bucket"`
	// +kubebuilder:validation:MinLength=1
	Region string `json:"region"`
	// +optional
	Endpoint string `json:"endpoint,omitempty"`
	// +optional
	Prefix string `json:"prefix,omitempty"`
	// +optional
	UsePathStyle bool `json:"usePathStyle,omitempty"`
	// CredentialsSecretRef names a Secret with accessKeyId and secretAccessKey.
	// +optional
	CredentialsSecretRef *corev1.LocalObjectReference `json:"credentialsSecretRef,omitempty"`
}

// IPFSArchiveConfig targets an IPFS HTTP API.
type IPFSArchiveConfig struct {
	// +kubebuilder:validation:MinLength=1
	APIURL string `json:"apiUrl"`
	// +optional
	GatewayURL string `json:"gatewayUrl,omitempty"`
}

// FilecoinArchiveConfig targets a Lotus API.
type FilecoinArchiveConfig struct {
	// +kubebuilder:validation:MinLength=1
	LotusAPI string `json:"lotusApi"`
	// +kubebuilder:validation:MinLength=1
	WalletAddress string `json:"walletAddress"`
}

// ReportArchiveConfig selects where scan reports are archived.
type ReportArchiveConfig struct {
	Backend StorageBackendType `json:"backend"`
	// +optional
	S3 *S3ArchiveConfig `json:"s3,omitempty"`
	// +optional
	IPFS *IPFSArchiveConfig `json:"ipfs,omitempty"`
	// +optional
	Filecoin *FilecoinArchiveConfig `json:"filecoin,omitempty"`
}

// CVEHandlingConfig configures vulnerability scanning and canary rollout.
type CVEHandlingConfig struct {
	// +optional
	// +kubebuilder:default=true
	Enabled *bool `json:"enabled,omitempty"`
	// +optional
	// +kubebuilder:default=3600
	// +kubebuilder:validation:Minimum=60
	ScanIntervalSecs int64 `json:"scanIntervalSecs,omitempty"`
	// ScanSchedule is a five-field cron expression; when set it replaces ScanIntervalSecs.
	// +optional
	ScanSchedule string `json:"scanSchedule,omitempty"`
	// CriticalOnly limits reported findings to Critical. Urgency is unaffected.
	// +optional
	CriticalOnly bool `json:"criticalOnly,omitempty"`
	// +optional
	// +kubebuilder:default=300
	// +kubebuilder:validation:Minimum=1
	CanaryTestTimeoutSecs int64 `json:"canaryTestTimeoutSecs,omitempty"`
	// CanaryPassRateThreshold is the percentage of canary probes that must pass.
	// +optional
	// +kubebuilder:validation:Type=number
	CanaryPassRateThreshold *float64 `json:"canaryPassRateThreshold,omitempty"`
	// +optional
	// +kubebuilder:default=true
	EnableAutoRollback *bool `json:"enableAutoRollback,omitempty"`
	// ConsensusHealthThreshold is the fraction of healthy replicas required, in [0,1].
	// +optional
	// +kubebuilder:validation:Type=number
	ConsensusHealthThreshold *float64 `json:"consensusHealthThreshold,omitempty"`
	// RolloutStepSize is the number of replicas patched per rollout step.
	// +optional
	// +kubebuilder:default=1
	// +kubebuilder:validation:Minimum=1
	RolloutStepSize int32 `json:"rolloutStepSize,omitempty"`
	// CanaryMinProbes is the number of canary probes taken before judgment.
	// +optional
	// +kubebuilder:default=5
	// +kubebuilder:validation:Minimum=1
	CanaryMinProbes int32 `json:"canaryMinProbes,omitempty"`
	// +optional
	ImageVerification *ImageVerificationConfig `json:"imageVerification,omitempty"`
	// +optional
	ReportArchive *ReportArchiveConfig `json:"reportArchive,omitempty"`
}

// Defaults applied by CVEHandlingConfig.Settings.
const (
	DefaultScanIntervalSecs         int64   = 3600
	DefaultCanaryTestTimeoutSecs    int64   = 300
	DefaultCanaryPassRateThreshold  float64 = 100.0
	DefaultConsensusHealthThreshold float64 = 0.95
	DefaultRolloutStepSize          int32   = 1
	DefaultCanaryMinProbes          int32   = 5
)

// CVESettings is a CVEHandlingConfig with defaults resolved.
type CVESettings struct {
	Enabled                  bool
	ScanIntervalSecs         int64
	ScanSchedule             string
	CriticalOnly             bool
	CanaryTestTimeoutSecs    int64
	CanaryPassRateThreshold  float64
	EnableAutoRollback       bool
	ConsensusHealthThreshold float64
	RolloutStepSize          int32
	CanaryMinProbes          int32
}

// Settings resolves defaults. A nil config yields disabled settings.
func (c *CVEHandlingConfig) Settings() CVESettings {
	s := CVESettings{
		Enabled:                  c != nil,
		ScanIntervalSecs:         DefaultScanIntervalSecs,
		CanaryTestTimeoutSecs:    DefaultCanaryTestTimeoutSecs,
		CanaryPassRateThreshold:  DefaultCanaryPassRateThreshold,
		EnableAutoRollback:       true,
		ConsensusHealthThreshold: DefaultConsensusHealthThreshold,
		RolloutStepSize:          DefaultRolloutStepSize,
		CanaryMinProbes:          DefaultCanaryMinProbes,
	}
	if c == nil {
		return s
	}
	if c.Enabled != nil {
		s.Enabled = *c.Enabled
	}
	if c.ScanIntervalSecs > 0 {
		s.ScanIntervalSecs = c.ScanIntervalSecs
	}
	s.ScanSchedule = c.ScanSchedule
	s.CriticalOnly = c.CriticalOnly
	if c.CanaryTestTimeoutSecs > 0 {
		s.CanaryTestTimeoutSecs = c.CanaryTestTimeoutSecs
	}
	if c.CanaryPassRateThreshold != nil {
		s.CanaryPassRateThreshold = *c.CanaryPassRateThreshold
	}
	if c.EnableAutoRollback != nil {
		s.EnableAutoRollback = *c.EnableAutoRollback
	}
	if c.ConsensusHealthThreshold != nil {
		s.ConsensusHealthThreshold = *c.ConsensusHealthThreshold
	}
	if c.RolloutStepSize > 0 {
		s.RolloutStepSize = c.RolloutStepSize
	}
	if c.CanaryMinProbes > 0 {
		s.CanaryMinProbes = c.CanaryMinProbes
	}
	return s
}

// CanaryStatus tracks the single canary instance of a CVE rollout.
type CanaryStatus struct {
	State CanaryTestState `json:"state"`
	Image string          `json:"image"`
	// +optional
	StartTime *metav1.Time `json:"startTime,omitempty"`
	// +optional
	ProbesTotal int32 `json:"probesTotal,omitempty"`
	// +optional
	ProbesPassed int32 `json:"probesPassed,omitempty"`
	// +optional
	JudgedAt *metav1.Time `json:"judgedAt,omitempty"`
	// +optional
	Message string `json:"message,omitempty"`
}

// PassRate returns the percentage of canary probes that passed.
func (c *CanaryStatus) PassRate() float64 {
	if c == nil || c.ProbesTotal == 0 {
		return 0
	}
	return float64(c.ProbesPassed) * 100 / float64(c.ProbesTotal)
}

// RolloutProgress tracks a staged patch rollout.
type RolloutProgress struct {
	// ID identifies the rollout in audit events.
	ID string `json:"id"`
	// TargetImage is the patched image being rolled out, pinned by digest when verified.
	TargetImage string `json:"targetImage"`
	// PreviousImage is restored on rollback.
	PreviousImage string `json:"previousImage"`
	// BaseVersion is spec.version when the rollout began. Editing spec.version
	// releases the pinned images.
	// +optional
	BaseVersion string `json:"baseVersion,omitempty"`
	// +optional
	UpdatedReplicas int32 `json:"updatedReplicas,omitempty"`
	// Promoted is set once a staged Deployment rollout has moved the primary
	// Deployment onto the target image.
	// +optional
	Promoted bool `json:"promoted,omitempty"`
	// +optional
	StartTime *metav1.Time `json:"startTime,omitempty"`
	// +optional
	StepStartTime *metav1.Time `json:"stepStartTime,omitempty"`
	// +optional
	CompletionTime *metav1.Time `json:"completionTime,omitempty"`
}

// CVEStatus holds scan results and rollout progress.
type CVEStatus struct {
	// +optional
	LastScan *CVEDetectionResult `json:"lastScan,omitempty"`
	// +optional
	NextScanTime *metav1.Time `json:"nextScanTime,omitempty"`
	// +optional
	LastScanError string `json:"lastScanError,omitempty"`
	// ArchivedReport is the content identifier of the last archived scan report.
	// +optional
	ArchivedReport string `json:"archivedReport,omitempty"`
	// +optional
	Canary *CanaryStatus `json:"canary,omitempty"`
	// +optional
	Rollout *RolloutProgress `json:"rollout,omitempty"`
	// ConsensusHealth is the last measured healthy fraction of the workload.
	// +optional
	// +kubebuilder:validation:Type=number
	ConsensusHealth *float64 `json:"consensusHealth,omitempty"`
	// +optional
	Message string `json:"message,omitempty"`
}
