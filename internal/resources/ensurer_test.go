package resources

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/record"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
	"github.com/stellar/stellar-operator/internal/kube"
	"github.com/stellar/stellar-operator/internal/metrics"
)

func newScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	scheme := runtime.NewScheme()
	require.NoError(t, clientgoscheme.AddToScheme(scheme))
	require.NoError(t, stellarv1alpha1.AddToScheme(scheme))
	return scheme
}

func readyDeployment(node *stellarv1alpha1.StellarNode) *appsv1.Deployment {
	dep := BuildWorkload(node, WorkloadOptions{}).(*appsv1.Deployment)
	dep.Generation = 1
	dep.Status = appsv1.DeploymentStatus{ObservedGeneration: 1, ReadyReplicas: 3, UpdatedReplicas: 3, Replicas: 3}
	return dep
}

func TestKubeEnsurer_WorkloadStatus(t *testing.T) {
	scheme := newScheme(t)
	node := newNode(stellarv1alpha1.NodeTypeHorizon)
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(readyDeployment(node)).Build()
	e := NewKubeEnsurer(c, scheme)
	ctx := context.Background()

	status, err := e.WorkloadStatus(ctx, kube.KindDeployment, types.NamespacedName{Namespace: "stellar", Name: "node-a"})
	require.NoError(t, err)
	assert.True(t, status.Exists)
	assert.True(t, status.IsReady())
	assert.True(t, status.IsRolledOut())

	missing, err := e.WorkloadStatus(ctx, kube.KindStatefulSet, types.NamespacedName{Namespace: "stellar", Name: "node-a"})
	require.NoError(t, err)
	assert.False(t, missing.Exists)
	assert.False(t, missing.IsReady())
	assert.False(t, e.DryRun())
}

func TestKubeEnsurer_DeleteIgnoresMissing(t *testing.T) {
	scheme := newScheme(t)
	node := newNode(stellarv1alpha1.NodeTypeHorizon)
	canary := BuildCanary(node, "stellar/stellar-horizon:21.0.1", "r1")
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(canary).Build()
	e := NewKubeEnsurer(c, scheme)
	ctx := context.Background()

	require.NoError(t, e.Delete(ctx, node, canary.DeepCopy()))
	err := c.Get(ctx, client.ObjectKeyFromObject(canary), &appsv1.Deployment{})
	assert.True(t, apierrors.IsNotFound(err))

	require.NoError(t, e.Delete(ctx, node, canary.DeepCopy()))
}

func TestDryRunEnsurer_NeverMutates(t *testing.T) {
	scheme := newScheme(t)
	node := newNode(stellarv1alpha1.NodeTypeHorizon)
	existing := readyDeployment(node)
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(existing).Build()

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	recorder := record.NewFakeRecorder(10)
	e := NewDryRunEnsurer(c, recorder, m)
	ctx := context.Background()
	assert.True(t, e.DryRun())

	// Update of an existing workload.
	changed := BuildWorkload(node, WorkloadOptions{Image: "stellar/stellar-horizon:99.0.0"})
	require.NoError(t, e.Ensure(ctx, node, changed))
	// Creation of a canary.
	canary := BuildCanary(node, "stellar/stellar-horizon:21.0.1", "r1")
	require.NoError(t, e.Ensure(ctx, node, canary))
	// Deletion of the primary workload.
	require.NoError(t, e.Delete(ctx, node, existing.DeepCopy()))
	// Deletion of something that does not exist records nothing.
	require.NoError(t, e.Delete(ctx, node, canary.DeepCopy()))

	got := &appsv1.Deployment{}
	require.NoError(t, c.Get(ctx, client.ObjectKeyFromObject(existing), got))
	assert.Equal(t, "stellar/stellar-horizon:21.0.0", got.Spec.Template.Spec.Containers[0].Image)
	assert.Equal(t, ptr.To[int32](3), got.Spec.Replicas)
	err = c.Get(ctx, client.ObjectKeyFromObject(canary), &appsv1.Deployment{})
	assert.True(t, apierrors.IsNotFound(err))

	var events []string
	for len(recorder.Events) > 0 {
		events = append(events, <-recorder.Events)
	}
	require.Len(t, events, 3)
	assert.True(t, strings.HasPrefix(events[0], "Normal WouldUpdate Dry Run: Would update Deployment stellar/node-a"), events[0])
	assert.True(t, strings.HasPrefix(events[1], "Normal WouldCreate Dry Run: Would create Deployment stellar/node-a-canary"), events[1])
	assert.True(t, strings.HasPrefix(events[2], "Normal WouldDelete Dry Run: Would delete Deployment stellar/node-a"), events[2])

	count, err := testutil.GatherAndCount(reg, "stellar_operator_dry_run_skipped_actions_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	status, err := e.WorkloadStatus(ctx, kube.KindDeployment, client.ObjectKeyFromObject(existing))
	require.NoError(t, err)
	assert.True(t, status.IsReady())
}
