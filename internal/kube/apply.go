// Package kube provides Kubernetes-specific utilities and helpers.
package kube

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// GVKResolver is a minimal interface for resolving GroupVersionKind from objects.
// It is implemented by client.Client.
type GVKResolver interface {
	GroupVersionKindFor(obj runtime.Object) (schema.GroupVersionKind, error)
}

// ToApplyConfiguration converts a client.Object to a runtime.ApplyConfiguration
// for use with client.Client.Apply(). The GroupVersionKind is resolved through
// resolver when the object does not carry one.
func ToApplyConfiguration(obj client.Object, resolver GVKResolver) (runtime.ApplyConfiguration, error) {
	if obj == nil {
		return nil, fmt.Errorf("object cannot be nil")
	}

	gvk, err := ResolveGVK(obj, resolver)
	if err != nil {
		return nil, err
	}

	u, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to convert object to unstructured: %w", err)
	}

	unstructuredObj := &unstructured.Unstructured{Object: u}
	unstructuredObj.SetGroupVersionKind(gvk)
	// Status is owned by the workload controllers and must not be applied.
	unstructured.RemoveNestedField(unstructuredObj.Object, "status")
	unstructured.RemoveNestedField(unstructuredObj.Object, "metadata", "creationTimestamp")

	return client.ApplyConfigurationFromUnstructured(unstructuredObj), nil
}

// ResolveGVK returns the object's GroupVersionKind, asking resolver when the
// object does not carry one.
func ResolveGVK(obj client.Object, resolver GVKResolver) (schema.GroupVersionKind, error) {
	gvk := obj.GetObjectKind().GroupVersionKind()
	if !gvk.Empty() {
		return gvk, nil
	}
	if resolver == nil {
		return schema.GroupVersionKind{}, fmt.Errorf("resolver is required when object GVK is empty")
	}
	gvk, err := resolver.GroupVersionKindFor(obj)
	if err != nil {
		return schema.GroupVersionKind{}, fmt.Errorf("failed to get GVK for object: %w", err)
	}
	return gvk, nil
}

func firstImage(containers []corev1.Container) string {
	if len(containers) == 0 {
		return ""
	}
	return containers[0].Image
}
