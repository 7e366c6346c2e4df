package v1alpha1

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"k8s.io/utils/ptr"
)

func validSpec(nodeType NodeType) StellarNodeSpec {
	spec := StellarNodeSpec{
		NodeType: nodeType,
		Network:  NetworkTestnet,
		Version:  "21.0.0",
		Replicas: 1,
	}
	switch nodeType {
	case NodeTypeValidator:
		spec.ValidatorConfig = &ValidatorConfig{SeedSecretRef: "validator-seed"}
	case NodeTypeHorizon:
		spec.HorizonConfig = &HorizonConfig{DatabaseSecretRef: "horizon-db", StellarCoreURL: "http://core:11626"}
	case NodeTypeSorobanRpc:
		spec.SorobanConfig = &SorobanConfig{StellarCoreURL: "http://core:11626"}
	}
	return spec
}

func TestValidateAcceptsMinimalSpecs(t *testing.T) {
	for _, nt := range []NodeType{NodeTypeValidator, NodeTypeHorizon, NodeTypeSorobanRpc} {
		spec := validSpec(nt)
		if err := spec.Validate(); err != nil {
			t.Errorf("%s: Validate() error = %v, want nil", nt, err)
		}
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*StellarNodeSpec)
		wantErr string
	}{
		{
			name:    "empty version",
			mutate:  func(s *StellarNodeSpec) { s.Version = "" },
			wantErr: "spec.version",
		},
		{
			name:    "validator without config",
			mutate:  func(s *StellarNodeSpec) { s.ValidatorConfig = nil },
			wantErr: "spec.validatorConfig",
		},
		{
			name:    "validator with several replicas",
			mutate:  func(s *StellarNodeSpec) { s.Replicas = 3 },
			wantErr: "exactly 1 replica",
		},
		{
			name: "history archive without urls",
			mutate: func(s *StellarNodeSpec) {
				s.ValidatorConfig.EnableHistoryArchive = true
			},
			wantErr: "historyArchiveUrls",
		},
		{
			name:    "unknown node type",
			mutate:  func(s *StellarNodeSpec) { s.NodeType = "Archiver" },
			wantErr: "spec.nodeType",
		},
		{
			name: "standby without peer",
			mutate: func(s *StellarNodeSpec) {
				s.DRConfig = &DisasterRecoveryConfig{Enabled: true, Role: DRRoleStandby, PeerClusterID: "eu-west"}
			},
			wantErr: "spec.drConfig.peerClusterId",
		},
		{
			name: "standby with disabled peer",
			mutate: func(s *StellarNodeSpec) {
				s.DRConfig = &DisasterRecoveryConfig{Enabled: true, Role: DRRoleStandby, PeerClusterID: "eu-west"}
				s.CrossCluster = &CrossClusterConfig{Peers: []PeerClusterConfig{
					{ClusterID: "eu-west", Endpoint: "core.eu-west.example", Enabled: false},
				}}
			},
			wantErr: "spec.drConfig.peerClusterId",
		},
		{
			name: "duplicate peer ids",
			mutate: func(s *StellarNodeSpec) {
				s.CrossCluster = &CrossClusterConfig{Peers: []PeerClusterConfig{
					{ClusterID: "a", Endpoint: "a.example.com"},
					{ClusterID: "a", Endpoint: "b.example.com"},
				}}
			},
			wantErr: "Duplicate value",
		},
		{
			name: "pass rate above 100",
			mutate: func(s *StellarNodeSpec) {
				s.CVEHandling = &CVEHandlingConfig{CanaryPassRateThreshold: ptr.To(101.0)}
			},
			wantErr: "canaryPassRateThreshold",
		},
		{
			name: "NaN consensus threshold",
			mutate: func(s *StellarNodeSpec) {
				s.CVEHandling = &CVEHandlingConfig{ConsensusHealthThreshold: ptr.To(math.NaN())}
			},
			wantErr: "consensusHealthThreshold",
		},
		{
			name: "unparseable scan schedule",
			mutate: func(s *StellarNodeSpec) {
				s.CVEHandling = &CVEHandlingConfig{ScanSchedule: "every day"}
			},
			wantErr: "scanSchedule",
		},
		{
			name: "keyless verification without subject",
			mutate: func(s *StellarNodeSpec) {
				s.CVEHandling = &CVEHandlingConfig{ImageVerification: &ImageVerificationConfig{Issuer: "https://token.actions.githubusercontent.com"}}
			},
			wantErr: "imageVerification",
		},
		{
			name: "archive backend without block",
			mutate: func(s *StellarNodeSpec) {
				s.CVEHandling = &CVEHandlingConfig{ReportArchive: &ReportArchiveConfig{Backend: StorageBackendIPFS}}
			},
			wantErr: "reportArchive.ipfs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec(NodeTypeValidator)
			tt.mutate(&spec)
			err := spec.Validate()
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateSorobanAcceptsAutoMigration(t *testing.T) {
	spec := validSpec(NodeTypeSorobanRpc)
	spec.SorobanConfig = nil
	if err := spec.Validate(); err == nil {
		t.Fatalf("expected error for SorobanRpc without sorobanConfig")
	}

	spec.HorizonConfig = &HorizonConfig{DatabaseSecretRef: "db", AutoMigration: true}
	if err := spec.Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil with autoMigration", err)
	}
}

func TestValidateStandbyResolvesEnabledPeer(t *testing.T) {
	spec := validSpec(NodeTypeValidator)
	spec.DRConfig = &DisasterRecoveryConfig{Enabled: true, Role: DRRoleStandby}
	spec.CrossCluster = &CrossClusterConfig{Peers: []PeerClusterConfig{
		{ClusterID: "us-east", Endpoint: "core.us-east.example.com", Enabled: true},
	}}
	if err := spec.Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
}

// mutateSpec applies one random edit, including values no user would pick.
func mutateSpec(r *rand.Rand, s *StellarNodeSpec) {
	nodeTypes := []NodeType{NodeTypeValidator, NodeTypeHorizon, NodeTypeSorobanRpc, "", "Unknown"}
	floats := []float64{-1, 0, 0.5, 0.95, 1, 50, 100, 101, math.NaN(), math.Inf(1)}
	switch r.Intn(12) {
	case 0:
		s.NodeType = nodeTypes[r.Intn(len(nodeTypes))]
	case 1:
		s.Version = []string{"", "21.0.0", "latest"}[r.Intn(3)]
	case 2:
		s.Replicas = int32(r.Intn(7) - 2)
	case 3:
		if r.Intn(2) == 0 {
			s.ValidatorConfig = nil
		} else {
			s.ValidatorConfig = &ValidatorConfig{SeedSecretRef: "seed", EnableHistoryArchive: r.Intn(2) == 0}
		}
	case 4:
		if r.Intn(2) == 0 {
			s.HorizonConfig = nil
		} else {
			s.HorizonConfig = &HorizonConfig{DatabaseSecretRef: []string{"", "db"}[r.Intn(2)], AutoMigration: r.Intn(2) == 0}
		}
	case 5:
		if r.Intn(2) == 0 {
			s.SorobanConfig = nil
		} else {
			s.SorobanConfig = &SorobanConfig{StellarCoreURL: "http://core:11626"}
		}
	case 6:
		if r.Intn(3) == 0 {
			s.DRConfig = nil
		} else {
			s.DRConfig = &DisasterRecoveryConfig{
				Enabled:             r.Intn(2) == 0,
				Role:                []DRRole{DRRolePrimary, DRRoleStandby, "Leader"}[r.Intn(3)],
				PeerClusterID:       []string{"", "a", "missing"}[r.Intn(3)],
				SyncStrategy:        []DRSyncStrategy{"", DRSyncConsensus, "Gossip"}[r.Intn(3)],
				HealthCheckInterval: int32(r.Intn(60) - 10),
			}
			if r.Intn(2) == 0 {
				s.DRConfig.FailoverDNS = &FailoverDNSConfig{}
			}
		}
	case 7:
		if r.Intn(3) == 0 {
			s.CrossCluster = nil
		} else {
			cc := &CrossClusterConfig{Enabled: true}
			for i := 0; i < r.Intn(4); i++ {
				cc.Peers = append(cc.Peers, PeerClusterConfig{
					ClusterID: []string{"", "a", "b"}[r.Intn(3)],
					Endpoint:  []string{"", "peer.example.com"}[r.Intn(2)],
					Port:      int32(r.Intn(70000) - 100),
					Priority:  int32(r.Intn(200)),
					Enabled:   r.Intn(2) == 0,
				})
			}
			if r.Intn(2) == 0 {
				cc.LatencyProbe = &LatencyProbeConfig{
					Method:     []ProbeMethod{"", ProbeMethodTCP, ProbeMethodICMP, "UDP"}[r.Intn(4)],
					Samples:    int32(r.Intn(30) - 5),
					Percentile: int32(r.Intn(130) - 10),
				}
			}
			s.CrossCluster = cc
		}
	case 8, 9:
		if s.CVEHandling == nil || r.Intn(4) == 0 {
			s.CVEHandling = &CVEHandlingConfig{}
		}
		c := s.CVEHandling
		c.CanaryPassRateThreshold = ptr.To(floats[r.Intn(len(floats))])
		c.ConsensusHealthThreshold = ptr.To(floats[r.Intn(len(floats))])
		c.ScanIntervalSecs = int64(r.Intn(10000) - 100)
		c.RolloutStepSize = int32(r.Intn(5) - 1)
		c.ScanSchedule = []string{"", "0 * * * *", "* * *", "@daily", "61 * * * *"}[r.Intn(5)]
	case 10:
		if s.CVEHandling == nil {
			s.CVEHandling = &CVEHandlingConfig{}
		}
		s.CVEHandling.ImageVerification = []*ImageVerificationConfig{
			nil, {}, {PublicKey: "key"}, {Issuer: "iss"}, {Issuer: "iss", Subject: "sub"},
		}[r.Intn(5)]
	case 11:
		if s.CVEHandling == nil {
			s.CVEHandling = &CVEHandlingConfig{}
		}
		s.CVEHandling.ReportArchive = []*ReportArchiveConfig{
			nil,
			{},
			{Backend: StorageBackendS3},
			{Backend: StorageBackendS3, S3: &S3ArchiveConfig{Bucket: "b", Region: "r"}},
			{Backend: StorageBackendFilecoin},
			{Backend: "Tape"},
		}[r.Intn(6)]
	}
}

func TestValidateNeverPanicsUnderMutation(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for run := 0; run < 500; run++ {
		spec := validSpec([]NodeType{NodeTypeValidator, NodeTypeHorizon, NodeTypeSorobanRpc}[run%3])
		steps := r.Intn(20)
		for i := 0; i < steps; i++ {
			mutateSpec(r, &spec)
			func() {
				defer func() {
					if p := recover(); p != nil {
						t.Fatalf("run %d step %d: Validate() panicked: %v (spec %+v)", run, i, p, spec)
					}
				}()
				errs := spec.ValidateFields()
				err := spec.Validate()
				if (len(errs) == 0) != (err == nil) {
					t.Fatalf("run %d step %d: ValidateFields and Validate disagree: %v vs %v", run, i, errs, err)
				}
			}()
		}
	}
}

func TestParseScanSchedule(t *testing.T) {
	if _, err := ParseScanSchedule("30 2 * * *"); err != nil {
		t.Fatalf("ParseScanSchedule() error = %v", err)
	}
	if _, err := ParseScanSchedule("30 2 * *"); err == nil {
		t.Fatalf("ParseScanSchedule() expected error for four fields")
	}
}
