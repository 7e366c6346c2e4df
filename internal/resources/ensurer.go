// Package resources builds and applies the Kubernetes objects backing a
// StellarNode. Every mutation goes through an Ensurer so dry-run mode can
// intercept it.
package resources

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/record"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/stellar/stellar-operator/internal/constants"
	operatorerrors "github.com/stellar/stellar-operator/internal/errors"
	"github.com/stellar/stellar-operator/internal/kube"
	"github.com/stellar/stellar-operator/internal/logging"
	"github.com/stellar/stellar-operator/internal/metrics"
)

// FieldOwner is the server-side apply field manager of the operator.
const FieldOwner = "stellar-operator"

// Ensurer applies, deletes and reads the workloads of a node.
type Ensurer interface {
	// Ensure server-side applies obj, owned by owner.
	Ensure(ctx context.Context, owner client.Object, obj client.Object) error
	// Delete removes obj. A missing object is not an error.
	Delete(ctx context.Context, owner client.Object, obj client.Object) error
	// WorkloadStatus reads a Deployment or StatefulSet. A missing workload
	// yields a status with Exists=false.
	WorkloadStatus(ctx context.Context, kind kube.WorkloadKind, key types.NamespacedName) (kube.WorkloadStatus, error)
	// DryRun reports whether mutations are skipped.
	DryRun() bool
}

// KubeEnsurer applies objects to the cluster.
type KubeEnsurer struct {
	Client client.Client
	Scheme *runtime.Scheme
}

// NewKubeEnsurer returns an Ensurer backed by c.
func NewKubeEnsurer(c client.Client, scheme *runtime.Scheme) *KubeEnsurer {
	return &KubeEnsurer{Client: c, Scheme: scheme}
}

func (e *KubeEnsurer) Ensure(ctx context.Context, owner client.Object, obj client.Object) error {
	if e.Scheme == nil {
		return fmt.Errorf("scheme is required")
	}

	if err := controllerutil.SetControllerReference(owner, obj, e.Scheme); err != nil {
		return fmt.Errorf("failed to set owner reference: %w", err)
	}

	applyConfig, err := kube.ToApplyConfiguration(obj, e.Client)
	if err != nil {
		return fmt.Errorf("failed to convert object to ApplyConfiguration: %w", err)
	}

	applyOpts := []client.ApplyOption{
		client.ForceOwnership,
		client.FieldOwner(FieldOwner),
	}

	if err := e.Client.Apply(ctx, applyConfig, applyOpts...); err != nil {
		return operatorerrors.Kube("apply", fmt.Errorf("failed to apply resource %s/%s: %w", obj.GetNamespace(), obj.GetName(), err))
	}

	return nil
}

func (e *KubeEnsurer) Delete(ctx context.Context, _ client.Object, obj client.Object) error {
	err := e.Client.Delete(ctx, obj, client.PropagationPolicy("Background"))
	if err != nil && !apierrors.IsNotFound(err) {
		return operatorerrors.Kube("delete", fmt.Errorf("failed to delete %s/%s: %w", obj.GetNamespace(), obj.GetName(), err))
	}
	return nil
}

func (e *KubeEnsurer) WorkloadStatus(ctx context.Context, kind kube.WorkloadKind, key types.NamespacedName) (kube.WorkloadStatus, error) {
	return readWorkloadStatus(ctx, e.Client, kind, key)
}

func (e *KubeEnsurer) DryRun() bool { return false }

func readWorkloadStatus(ctx context.Context, c client.Reader, kind kube.WorkloadKind, key types.NamespacedName) (kube.WorkloadStatus, error) {
	obj, err := kube.NewWorkload(kind)
	if err != nil {
		return kube.WorkloadStatus{}, operatorerrors.Config("workload status", err)
	}
	if err := c.Get(ctx, key, obj); err != nil {
		if apierrors.IsNotFound(err) {
			return kube.WorkloadStatus{}, nil
		}
		return kube.WorkloadStatus{}, operatorerrors.Kube("workload status", fmt.Errorf("failed to get %s %s: %w", kind, key, err))
	}
	return kube.WorkloadStatusOf(obj)
}

// DryRunEnsurer records intended mutations without applying them. Reads pass
// through to the cluster.
type DryRunEnsurer struct {
	Client   client.Client
	Recorder record.EventRecorder
	Metrics  *metrics.Metrics
}

// NewDryRunEnsurer returns an Ensurer that never mutates the cluster.
func NewDryRunEnsurer(c client.Client, recorder record.EventRecorder, m *metrics.Metrics) *DryRunEnsurer {
	return &DryRunEnsurer{Client: c, Recorder: recorder, Metrics: m}
}

func (e *DryRunEnsurer) Ensure(ctx context.Context, owner client.Object, obj client.Object) error {
	existing, err := e.exists(ctx, obj)
	if err != nil {
		return err
	}
	action, reason := "create", constants.ReasonWouldCreate
	if existing {
		action, reason = "update", constants.ReasonWouldUpdate
	}
	e.record(ctx, owner, obj, action, reason)
	return nil
}

func (e *DryRunEnsurer) Delete(ctx context.Context, owner client.Object, obj client.Object) error {
	existing, err := e.exists(ctx, obj)
	if err != nil {
		return err
	}
	if existing {
		e.record(ctx, owner, obj, "delete", constants.ReasonWouldDelete)
	}
	return nil
}

func (e *DryRunEnsurer) WorkloadStatus(ctx context.Context, kind kube.WorkloadKind, key types.NamespacedName) (kube.WorkloadStatus, error) {
	return readWorkloadStatus(ctx, e.Client, kind, key)
}

func (e *DryRunEnsurer) DryRun() bool { return true }

func (e *DryRunEnsurer) exists(ctx context.Context, obj client.Object) (bool, error) {
	probe, ok := obj.DeepCopyObject().(client.Object)
	if !ok {
		return false, fmt.Errorf("unexpected object type %T", obj)
	}
	if err := e.Client.Get(ctx, client.ObjectKeyFromObject(obj), probe); err != nil {
		if apierrors.IsNotFound(err) {
			return false, nil
		}
		return false, operatorerrors.Kube("dry run lookup", err)
	}
	return true, nil
}

func (e *DryRunEnsurer) record(ctx context.Context, owner, obj client.Object, action, reason string) {
	kind := kindOf(obj, e.Client)
	msg := DryRunMessage(action, kind, obj.GetNamespace(), obj.GetName())

	logger := log.FromContext(ctx)
	logger.Info(msg)
	logging.LogAuditEvent(logger, logging.EventDryRunSkipped, map[string]string{
		"action":    action,
		"kind":      kind,
		"namespace": obj.GetNamespace(),
		"name":      obj.GetName(),
	})

	if e.Recorder != nil && owner != nil {
		e.Recorder.Event(owner, corev1.EventTypeNormal, reason, msg)
	}
	if e.Metrics != nil {
		e.Metrics.RecordDryRunSkipped(action, kind)
	}
}

// DryRunMessage formats the message logged and recorded for a skipped mutation.
func DryRunMessage(action, kind, namespace, name string) string {
	return fmt.Sprintf("Dry Run: Would %s %s %s/%s", action, kind, namespace, name)
}

func kindOf(obj client.Object, resolver kube.GVKResolver) string {
	gvk, err := kube.ResolveGVK(obj, resolver)
	if err != nil {
		return fmt.Sprintf("%T", obj)
	}
	return gvk.Kind
}

var (
	_ Ensurer = (*KubeEnsurer)(nil)
	_ Ensurer = (*DryRunEnsurer)(nil)
)
