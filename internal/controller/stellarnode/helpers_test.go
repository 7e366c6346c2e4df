package stellarnode

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/record"
	clocktesting "k8s.io/utils/clock/testing"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
	"github.com/stellar/stellar-operator/internal/app"
	operatorerrors "github.com/stellar/stellar-operator/internal/errors"
	"github.com/stellar/stellar-operator/internal/kube"
	"github.com/stellar/stellar-operator/internal/metrics"
	"github.com/stellar/stellar-operator/internal/probe"
	"github.com/stellar/stellar-operator/internal/resources"
	"github.com/stellar/stellar-operator/internal/resources/resourcestest"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeProber answers every peer probe with the same result, or fails while down.
type fakeProber struct {
	mu     sync.Mutex
	ledger int64
	isDown bool
}

func (f *fakeProber) Probe(_ context.Context, _ probe.Target) (probe.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.isDown {
		return probe.Result{}, operatorerrors.Network("probe", errors.New("connection refused"))
	}
	return probe.Result{Reachable: true, Latency: 20 * time.Millisecond, LedgerSequence: f.ledger}, nil
}

func (f *fakeProber) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.isDown = down
}

// fakeLedger reports the local ledger, or an unreachable core while seq is 0.
type fakeLedger struct {
	mu   sync.Mutex
	seq  int64
	urls []string
}

func (f *fakeLedger) LedgerSequence(_ context.Context, coreURL string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, coreURL)
	if f.seq == 0 {
		return 0, operatorerrors.Network("ledger", errors.New("connection refused"))
	}
	return f.seq, nil
}

type fakeHealth struct{}

func (fakeHealth) Healthy(context.Context, stellarv1alpha1.NodeType, string) (bool, error) {
	return true, nil
}

// fakeScanner reports one critical finding and a patched image.
type fakeScanner struct {
	patched string
}

func (f *fakeScanner) Scan(_ context.Context, image string) (*stellarv1alpha1.CVEDetectionResult, error) {
	res := &stellarv1alpha1.CVEDetectionResult{
		CurrentImage:   image,
		PatchedVersion: f.patched,
		ScanTimestamp:  metav1.NewTime(t0),
		HasCritical:    true,
		Vulnerabilities: []stellarv1alpha1.Vulnerability{{
			CVEID: "CVE-2026-0001", Severity: stellarv1alpha1.SeverityCritical, Package: "openssl",
		}},
	}
	res.CVECount.Add(stellarv1alpha1.SeverityCritical)
	return res, nil
}

func newTestScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		panic(err)
	}
	if err := stellarv1alpha1.AddToScheme(scheme); err != nil {
		panic(err)
	}
	return scheme
}

// testEnv wires a reconciler against a fake client. Ensurer is either a
// recording resourcestest.Ensurer or a dry-run ensurer over the fake client.
type testEnv struct {
	client     client.Client
	reconciler *StellarNodeReconciler
	ensurer    *resourcestest.Ensurer
	prober     *fakeProber
	ledger     *fakeLedger
	recorder   *record.FakeRecorder
	registry   *prometheus.Registry
	clock      *clocktesting.FakePassiveClock
}

func newTestEnv(dryRun bool, objs ...client.Object) *testEnv {
	scheme := newTestScheme()
	c := fake.NewClientBuilder().
		WithScheme(scheme).
		WithObjects(objs...).
		WithStatusSubresource(&stellarv1alpha1.StellarNode{}).
		Build()

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		panic(err)
	}

	env := &testEnv{
		client:   c,
		ensurer:  resourcestest.New(),
		prober:   &fakeProber{ledger: 1000},
		ledger:   &fakeLedger{},
		recorder: record.NewFakeRecorder(100),
		registry: reg,
		clock:    clocktesting.NewFakePassiveClock(t0),
	}

	var ensurer resources.Ensurer = env.ensurer
	if dryRun {
		ensurer = resources.NewDryRunEnsurer(c, env.recorder, m)
	}
	scanner := &fakeScanner{patched: "stellar/stellar-horizon:2.31.1"}

	env.reconciler = &StellarNodeReconciler{
		Client: c,
		App: &app.Context{
			Client:   c,
			Scheme:   scheme,
			Recorder: env.recorder,
			Metrics:  m,
			Ensurer:  ensurer,
			Prober:   env.prober,
			Ledger:   env.ledger,
			Health:   fakeHealth{},
			Scanner:  scanner,
			Clock:    env.clock,
			DryRun:   dryRun,
		},
	}
	return env
}

func (e *testEnv) reconcile(ctx context.Context, key types.NamespacedName) (ctrl.Result, error) {
	return e.reconciler.Reconcile(ctx, ctrl.Request{NamespacedName: key})
}

func (e *testEnv) get(ctx context.Context, key types.NamespacedName) (*stellarv1alpha1.StellarNode, error) {
	node := &stellarv1alpha1.StellarNode{}
	err := e.client.Get(ctx, key, node)
	return node, err
}

// setReady makes the workload of key report ready replicas.
func (e *testEnv) setReady(key types.NamespacedName, replicas int32, image string) {
	e.ensurer.Statuses[key] = kube.WorkloadStatus{
		Exists: true, Desired: replicas, Ready: replicas, Updated: replicas, Observed: true, Image: image,
	}
}

func horizonNode(name string) *stellarv1alpha1.StellarNode {
	return &stellarv1alpha1.StellarNode{
		ObjectMeta: metav1.ObjectMeta{
			Name:       name,
			Namespace:  "stellar",
			Generation: 1,
			Finalizers: []string{stellarv1alpha1.StellarNodeFinalizer},
		},
		Spec: stellarv1alpha1.StellarNodeSpec{
			NodeType: stellarv1alpha1.NodeTypeHorizon,
			Network:  stellarv1alpha1.NetworkTestnet,
			Version:  "2.31.0",
			Replicas: 2,
			HorizonConfig: &stellarv1alpha1.HorizonConfig{
				DatabaseSecretRef: "horizon-db",
				StellarCoreURL:    "http://core:11626",
			},
		},
	}
}

func standbyValidator(name string) *stellarv1alpha1.StellarNode {
	return &stellarv1alpha1.StellarNode{
		ObjectMeta: metav1.ObjectMeta{
			Name:       name,
			Namespace:  "stellar",
			Generation: 1,
			Finalizers: []string{stellarv1alpha1.StellarNodeFinalizer},
		},
		Spec: stellarv1alpha1.StellarNodeSpec{
			NodeType:        stellarv1alpha1.NodeTypeValidator,
			Network:         stellarv1alpha1.NetworkTestnet,
			Version:         "21.0.0",
			Replicas:        1,
			ValidatorConfig: &stellarv1alpha1.ValidatorConfig{SeedSecretRef: "validator-seed"},
			DRConfig: &stellarv1alpha1.DisasterRecoveryConfig{
				Enabled:             true,
				Role:                stellarv1alpha1.DRRoleStandby,
				PeerClusterID:       "eu-west",
				HealthCheckInterval: 30,
				FailoverDNS:         &stellarv1alpha1.FailoverDNSConfig{Hostname: "core.stellar.example", TTLSeconds: 60},
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
