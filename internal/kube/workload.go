package kube

import (
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// WorkloadKind names the workload types the operator manages.
type WorkloadKind string

const (
	KindDeployment  WorkloadKind = "Deployment"
	KindStatefulSet WorkloadKind = "StatefulSet"
)

// NewWorkload returns an empty object of the given kind.
func NewWorkload(kind WorkloadKind) (client.Object, error) {
	switch kind {
	case KindDeployment:
		return &appsv1.Deployment{}, nil
	case KindStatefulSet:
		return &appsv1.StatefulSet{}, nil
	default:
		return nil, fmt.Errorf("unsupported workload kind %q", kind)
	}
}

// WorkloadStatus is the replica view of a Deployment or StatefulSet that the
// state machines decide on.
type WorkloadStatus struct {
	// Exists is false when the workload was not found.
	Exists bool
	// Desired is spec.replicas (defaulting to 1 when unset).
	Desired int32
	// Ready is status.readyReplicas.
	Ready int32
	// Updated is status.updatedReplicas.
	Updated int32
	// Observed is true when the controller has observed the latest spec.
	Observed bool
	// Image is the image of the first container.
	Image string
	// Partition is the StatefulSet rolling update partition, 0 for Deployments.
	Partition int32
}

// IsReady reports ready ≥ desired with at least one replica desired.
func (s WorkloadStatus) IsReady() bool {
	return s.Exists && s.Desired > 0 && s.Ready >= s.Desired
}

// IsRolledOut reports whether every replica above the partition runs the
// current template and all replicas are ready.
func (s WorkloadStatus) IsRolledOut() bool {
	return s.IsReady() && s.Observed && s.Updated >= s.Desired-s.Partition
}

// WorkloadStatusOf reads a typed Deployment or StatefulSet.
func WorkloadStatusOf(obj client.Object) (WorkloadStatus, error) {
	switch w := obj.(type) {
	case *appsv1.Deployment:
		return WorkloadStatus{
			Exists:   true,
			Desired:  replicasOrDefault(w.Spec.Replicas),
			Ready:    w.Status.ReadyReplicas,
			Updated:  w.Status.UpdatedReplicas,
			Observed: w.Status.ObservedGeneration >= w.Generation,
			Image:    firstImage(w.Spec.Template.Spec.Containers),
		}, nil
	case *appsv1.StatefulSet:
		var partition int32
		if ru := w.Spec.UpdateStrategy.RollingUpdate; ru != nil && ru.Partition != nil {
			partition = *ru.Partition
		}
		return WorkloadStatus{
			Exists:    true,
			Desired:   replicasOrDefault(w.Spec.Replicas),
			Ready:     w.Status.ReadyReplicas,
			Updated:   w.Status.UpdatedReplicas,
			Observed:  w.Status.ObservedGeneration >= w.Generation,
			Image:     firstImage(w.Spec.Template.Spec.Containers),
			Partition: partition,
		}, nil
	default:
		return WorkloadStatus{}, fmt.Errorf("unsupported workload type %T", obj)
	}
}

func replicasOrDefault(r *int32) int32 {
	if r == nil {
		return 1
	}
	return *r
}
