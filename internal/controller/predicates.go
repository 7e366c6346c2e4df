/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package controller holds event filters shared by the operator's controllers.
package controller

import (
	appsv1 "k8s.io/api/apps/v1"
	"k8s.io/apimachinery/pkg/api/equality"
	"sigs.k8s.io/controller-runtime/pkg/event"
	"sigs.k8s.io/controller-runtime/pkg/predicate"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
)

// StellarNodePredicate filters StellarNode events to only reconcile on
// meaningful changes.
//
// The predicate allows reconciliation when:
//   - The resource is created or deleted
//   - The Spec changes (detected via Generation change)
//   - DeletionTimestamp changes (triggers deletion handling)
//   - Finalizers change (triggers finalizer handling)
//   - Metadata labels or annotations change (the DR reset and migration
//     markers live in annotations)
//
// Status-only updates are filtered out. The state machines schedule their own
// follow-up ticks through RequeueAfter, so the status write of one tick never
// needs to trigger the next.
func StellarNodePredicate() predicate.Predicate {
	return predicate.Funcs{
		CreateFunc: func(e event.CreateEvent) bool {
			return true
		},
		DeleteFunc: func(e event.DeleteEvent) bool {
			return true
		},
		UpdateFunc: func(e event.UpdateEvent) bool {
			oldNode, ok := e.ObjectOld.(*stellarv1alpha1.StellarNode)
			if !ok {
				return true
			}
			newNode, ok := e.ObjectNew.(*stellarv1alpha1.StellarNode)
			if !ok {
				return true
			}

			if oldNode.Generation != newNode.Generation {
				return true
			}
			if !oldNode.DeletionTimestamp.Equal(newNode.DeletionTimestamp) {
				return true
			}
			if !equality.Semantic.DeepEqual(oldNode.Finalizers, newNode.Finalizers) {
				return true
			}
			if !equality.Semantic.DeepEqual(oldNode.Labels, newNode.Labels) {
				return true
			}
			if !equality.Semantic.DeepEqual(oldNode.Annotations, newNode.Annotations) {
				return true
			}

			// Filter out status-only updates
			return false
		},
		GenericFunc: func(e event.GenericEvent) bool {
			return true
		},
	}
}

// WorkloadReadinessPredicate filters updates of owned Deployments and
// StatefulSets down to changes the state machines decide on: ready and
// updated replica counts, the observed generation and the spec generation.
// Events for other object types pass through.
func WorkloadReadinessPredicate() predicate.Predicate {
	return predicate.Funcs{
		UpdateFunc: func(e event.UpdateEvent) bool {
			switch oldObj := e.ObjectOld.(type) {
			case *appsv1.Deployment:
				newObj, ok := e.ObjectNew.(*appsv1.Deployment)
				if !ok {
					return true
				}
				return oldObj.Generation != newObj.Generation ||
					oldObj.Status.ReadyReplicas != newObj.Status.ReadyReplicas ||
					oldObj.Status.UpdatedReplicas != newObj.Status.UpdatedReplicas ||
					oldObj.Status.ObservedGeneration != newObj.Status.ObservedGeneration
			case *appsv1.StatefulSet:
				newObj, ok := e.ObjectNew.(*appsv1.StatefulSet)
				if !ok {
					return true
				}
				return oldObj.Generation != newObj.Generation ||
					oldObj.Status.ReadyReplicas != newObj.Status.ReadyReplicas ||
					oldObj.Status.UpdatedReplicas != newObj.Status.UpdatedReplicas ||
					oldObj.Status.ObservedGeneration != newObj.Status.ObservedGeneration
			default:
				return true
			}
		},
	}
}
