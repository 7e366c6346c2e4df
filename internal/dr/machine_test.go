package dr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	clocktesting "k8s.io/utils/clock/testing"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
	"github.com/stellar/stellar-operator/internal/constants"
	operatorerrors "github.com/stellar/stellar-operator/internal/errors"
	"github.com/stellar/stellar-operator/internal/probe"
	"github.com/stellar/stellar-operator/internal/status"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeProber answers every probe with the same result or error.
type fakeProber struct {
	latency time.Duration
	ledger  int64
	err     error
	calls   int
	targets []probe.Target
}

func (f *fakeProber) Probe(_ context.Context, target probe.Target) (probe.Result, error) {
	f.calls++
	f.targets = append(f.targets, target)
	if f.err != nil {
		return probe.Result{}, f.err
	}
	return probe.Result{Reachable: true, Latency: f.latency, LedgerSequence: f.ledger}, nil
}

func (f *fakeProber) down() {
	f.err = operatorerrors.Network("probe", errors.New("connection refused"))
}

func (f *fakeProber) up() { f.err = nil }

func newDRNode(role stellarv1alpha1.DRRole) *stellarv1alpha1.StellarNode {
	return &stellarv1alpha1.StellarNode{
		ObjectMeta: metav1.ObjectMeta{Name: "validator", Namespace: "stellar", Generation: 1},
		Spec: stellarv1alpha1.StellarNodeSpec{
			NodeType: stellarv1alpha1.NodeTypeValidator,
			Version:  "21.0.0",
			DRConfig: &stellarv1alpha1.DisasterRecoveryConfig{
				Enabled:             true,
				Role:                role,
				PeerClusterID:       "eu-west",
				HealthCheckInterval: 30,
			},
			CrossCluster: &stellarv1alpha1.CrossClusterConfig{
				Enabled: true,
				Peers: []stellarv1alpha1.PeerClusterConfig{
					{ClusterID: "eu-west", Endpoint: "core.eu-west.example", LatencyThresholdMs: 200, Enabled: true},
				},
			},
		},
	}
}

func newMachine(p *fakeProber) (*Machine, *clocktesting.FakePassiveClock) {
	clk := clocktesting.NewFakePassiveClock(t0)
	return &Machine{Prober: p, Clock: clk}, clk
}

func TestReconcile_DisabledIsNoop(t *testing.T) {
	p := &fakeProber{}
	m, _ := newMachine(p)
	node := newDRNode(stellarv1alpha1.DRRoleStandby)
	node.Spec.DRConfig.Enabled = false

	res, err := m.Reconcile(context.Background(), node)
	require.NoError(t, err)
	assert.True(t, res.IsZero())
	assert.Nil(t, node.Status.DRStatus)
	assert.Zero(t, p.calls)
}

func TestReconcile_TransitionTable(t *testing.T) {
	tests := []struct {
		name        string
		role        stellarv1alpha1.DRRole
		peerHealthy bool
		latched     bool
		wantRole    stellarv1alpha1.DRRole
		wantLatched bool
	}{
		{name: "primary, peer down", role: stellarv1alpha1.DRRolePrimary, peerHealthy: false, wantRole: stellarv1alpha1.DRRolePrimary},
		{name: "primary, peer up", role: stellarv1alpha1.DRRolePrimary, peerHealthy: true, wantRole: stellarv1alpha1.DRRolePrimary},
		{name: "standby, peer down, not latched", role: stellarv1alpha1.DRRoleStandby, peerHealthy: false, latched: false, wantRole: stellarv1alpha1.DRRolePrimary, wantLatched: true},
		{name: "standby, peer down, latched", role: stellarv1alpha1.DRRoleStandby, peerHealthy: false, latched: true, wantRole: stellarv1alpha1.DRRolePrimary, wantLatched: true},
		{name: "standby, peer up, not latched", role: stellarv1alpha1.DRRoleStandby, peerHealthy: true, latched: false, wantRole: stellarv1alpha1.DRRoleStandby},
		{name: "standby, peer up, latched", role: stellarv1alpha1.DRRoleStandby, peerHealthy: true, latched: true, wantRole: stellarv1alpha1.DRRolePrimary, wantLatched: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProber{latency: 10 * time.Millisecond}
			if !tt.peerHealthy {
				p.down()
			}
			m, _ := newMachine(p)
			node := newDRNode(tt.role)
			if tt.latched {
				node.Status.DRStatus = &stellarv1alpha1.DisasterRecoveryStatus{
					CurrentRole:    stellarv1alpha1.DRRolePrimary,
					FailoverActive: true,
				}
			}

			res, err := m.Reconcile(context.Background(), node)
			require.NoError(t, err)
			assert.Equal(t, 30*time.Second, res.RequeueAfter)
			assert.Equal(t, tt.wantRole, node.Status.DRStatus.CurrentRole)
			assert.Equal(t, tt.wantLatched, node.Status.DRStatus.FailoverActive)
		})
	}
}

func TestReconcile_LatchIsIdempotent(t *testing.T) {
	p := &fakeProber{}
	p.down()
	m, clk := newMachine(p)
	node := newDRNode(stellarv1alpha1.DRRoleStandby)

	_, err := m.Reconcile(context.Background(), node)
	require.NoError(t, err)
	require.True(t, node.Status.DRStatus.FailoverActive)
	assert.True(t, node.HasAnnotation(stellarv1alpha1.AnnotationDRFailoverActive))
	assert.True(t, status.HasReason(node.Status.Conditions, constants.ConditionDRFailover, constants.ReasonFailoverLatched))
	latchedAt := node.Status.DRStatus.FailoverTime.DeepCopy()

	for i := 0; i < 3; i++ {
		clk.SetTime(t0.Add(time.Duration(i+1) * time.Minute))
		_, err := m.Reconcile(context.Background(), node)
		require.NoError(t, err)
	}
	assert.True(t, node.Status.DRStatus.FailoverActive)
	assert.Equal(t, stellarv1alpha1.DRRolePrimary, node.Status.DRStatus.CurrentRole)
	assert.True(t, latchedAt.Equal(node.Status.DRStatus.FailoverTime), "failover time must not move")

	// No automatic failback.
	p.up()
	_, err = m.Reconcile(context.Background(), node)
	require.NoError(t, err)
	assert.True(t, node.Status.DRStatus.FailoverActive)
	assert.Equal(t, stellarv1alpha1.DRRolePrimary, node.Status.DRStatus.CurrentRole)
}

func TestReconcile_ResetClearsLatch(t *testing.T) {
	p := &fakeProber{latency: time.Millisecond}
	p.down()
	m, _ := newMachine(p)
	node := newDRNode(stellarv1alpha1.DRRoleStandby)

	_, err := m.Reconcile(context.Background(), node)
	require.NoError(t, err)
	require.True(t, node.Status.DRStatus.FailoverActive)

	p.up()
	node.SetAnnotation(stellarv1alpha1.AnnotationDRFailoverReset, "true")
	_, err = m.Reconcile(context.Background(), node)
	require.NoError(t, err)

	assert.False(t, node.Status.DRStatus.FailoverActive)
	assert.Nil(t, node.Status.DRStatus.FailoverTime)
	assert.Equal(t, stellarv1alpha1.DRRoleStandby, node.Status.DRStatus.CurrentRole)
	assert.False(t, node.HasAnnotation(stellarv1alpha1.AnnotationDRFailoverReset))
	assert.False(t, node.HasAnnotation(stellarv1alpha1.AnnotationDRFailoverActive))
	assert.True(t, status.HasReason(node.Status.Conditions, constants.ConditionDRFailover, constants.ReasonFailoverReset))
}

func TestReconcile_DegradedCountsAsHealthy(t *testing.T) {
	p := &fakeProber{latency: 500 * time.Millisecond}
	m, _ := newMachine(p)
	node := newDRNode(stellarv1alpha1.DRRoleStandby)

	_, err := m.Reconcile(context.Background(), node)
	require.NoError(t, err)
	assert.Equal(t, stellarv1alpha1.PeerHealthDegraded, node.Status.DRStatus.PeerHealth)
	assert.False(t, node.Status.DRStatus.FailoverActive)
	assert.Equal(t, stellarv1alpha1.DRRoleStandby, node.Status.DRStatus.CurrentRole)
	require.NotNil(t, node.Status.DRStatus.PeerLatencyMs)
	assert.Equal(t, int64(500), *node.Status.DRStatus.PeerLatencyMs)
	assert.True(t, status.HasReason(node.Status.Conditions, constants.ConditionPeerReachable, constants.ReasonPeerDegraded))
}

func TestReconcile_UnreachableSetsCondition(t *testing.T) {
	p := &fakeProber{}
	p.down()
	m, _ := newMachine(p)
	node := newDRNode(stellarv1alpha1.DRRolePrimary)

	_, err := m.Reconcile(context.Background(), node)
	require.NoError(t, err)
	assert.Equal(t, stellarv1alpha1.PeerHealthUnreachable, node.Status.DRStatus.PeerHealth)
	assert.True(t, status.IsFalse(node.Status.Conditions, constants.ConditionPeerReachable))
	assert.Nil(t, node.Status.DRStatus.LastPeerContact)
	assert.Empty(t, node.GetAnnotations()[stellarv1alpha1.AnnotationDRLastSyncTime])
}

func TestReconcile_LastContactThrottled(t *testing.T) {
	p := &fakeProber{latency: time.Millisecond}
	m, clk := newMachine(p)
	node := newDRNode(stellarv1alpha1.DRRolePrimary)

	_, err := m.Reconcile(context.Background(), node)
	require.NoError(t, err)
	require.NotNil(t, node.Status.DRStatus.LastPeerContact)
	assert.True(t, node.Status.DRStatus.LastPeerContact.Time.Equal(t0))
	assert.Equal(t, t0.Format(time.RFC3339), node.GetAnnotations()[stellarv1alpha1.AnnotationDRLastSyncTime])

	clk.SetTime(t0.Add(10 * time.Second))
	_, err = m.Reconcile(context.Background(), node)
	require.NoError(t, err)
	assert.True(t, node.Status.DRStatus.LastPeerContact.Time.Equal(t0), "refresh within the interval is skipped")

	clk.SetTime(t0.Add(31 * time.Second))
	_, err = m.Reconcile(context.Background(), node)
	require.NoError(t, err)
	assert.True(t, node.Status.DRStatus.LastPeerContact.Time.Equal(t0.Add(31*time.Second)))
	assert.Equal(t, t0.Add(31*time.Second).Format(time.RFC3339), node.GetAnnotations()[stellarv1alpha1.AnnotationDRLastSyncTime])
}

func TestReconcile_SyncLagFromPeerLedger(t *testing.T) {
	p := &fakeProber{latency: time.Millisecond, ledger: 1000}
	m, _ := newMachine(p)
	node := newDRNode(stellarv1alpha1.DRRoleStandby)
	node.Spec.DRConfig.SyncStrategy = stellarv1alpha1.DRSyncPeerTracking

	node.Status.LedgerSequence = 990
	_, err := m.Reconcile(context.Background(), node)
	require.NoError(t, err)
	require.NotNil(t, node.Status.DRStatus.SyncLag)
	assert.Equal(t, int64(10), *node.Status.DRStatus.SyncLag)
	assert.Equal(t, stellarv1alpha1.ProbeMethodHTTP, p.targets[0].Method)

	node.Status.LedgerSequence = 1200
	_, err = m.Reconcile(context.Background(), node)
	require.NoError(t, err)
	assert.Equal(t, int64(0), *node.Status.DRStatus.SyncLag)
}

func TestReconcile_SyncLagUnknownWithoutLocalLedger(t *testing.T) {
	p := &fakeProber{latency: time.Millisecond, ledger: 1000}
	m, _ := newMachine(p)
	node := newDRNode(stellarv1alpha1.DRRoleStandby)
	node.Spec.DRConfig.SyncStrategy = stellarv1alpha1.DRSyncPeerTracking

	node.Status.LedgerSequence = 1000
	_, err := m.Reconcile(context.Background(), node)
	require.NoError(t, err)
	require.NotNil(t, node.Status.DRStatus.SyncLag)
	assert.Equal(t, int64(0), *node.Status.DRStatus.SyncLag)

	node.Status.LedgerSequence = 0
	_, err = m.Reconcile(context.Background(), node)
	require.NoError(t, err)
	assert.Nil(t, node.Status.DRStatus.SyncLag, "an unknown local ledger must not report the peer height as lag")
}

func TestReconcile_LatchRestoredFromAnnotation(t *testing.T) {
	p := &fakeProber{latency: time.Millisecond}
	m, _ := newMachine(p)
	node := newDRNode(stellarv1alpha1.DRRoleStandby)
	// A previous tick persisted the annotation but lost its status patch.
	node.SetAnnotation(stellarv1alpha1.AnnotationDRFailoverActive, "true")
	node.Status.DRStatus = &stellarv1alpha1.DisasterRecoveryStatus{CurrentRole: stellarv1alpha1.DRRoleStandby}

	_, err := m.Reconcile(context.Background(), node)
	require.NoError(t, err)
	assert.True(t, node.Status.DRStatus.FailoverActive)
	assert.Equal(t, stellarv1alpha1.DRRolePrimary, node.Status.DRStatus.CurrentRole)
	assert.Equal(t, "true", node.GetAnnotations()[stellarv1alpha1.AnnotationDRFailoverActive])

	node.SetAnnotation(stellarv1alpha1.AnnotationDRFailoverReset, "true")
	_, err = m.Reconcile(context.Background(), node)
	require.NoError(t, err)
	assert.False(t, node.Status.DRStatus.FailoverActive)
	assert.Equal(t, stellarv1alpha1.DRRoleStandby, node.Status.DRStatus.CurrentRole)
}

func TestReconcile_StandbyWithoutPeerIsConfigError(t *testing.T) {
	p := &fakeProber{}
	m, _ := newMachine(p)
	node := newDRNode(stellarv1alpha1.DRRoleStandby)
	node.Spec.DRConfig.PeerClusterID = "missing"

	_, err := m.Reconcile(context.Background(), node)
	require.Error(t, err)
	assert.Equal(t, operatorerrors.KindConfig, operatorerrors.KindOf(err))
	assert.False(t, node.Status.DRStatus.FailoverActive)
}
