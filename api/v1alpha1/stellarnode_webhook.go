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

package v1alpha1

import (
	"context"
	"encoding/json"
	"slices"

	admissionv1 "k8s.io/api/admission/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/validation/field"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/webhook"
	"sigs.k8s.io/controller-runtime/pkg/webhook/admission"
)

var stellarNodeWebhookLog = ctrl.Log.WithName("stellarnode-webhook")

// stellarNodeValidator implements admission.CustomValidator for StellarNode.
type stellarNodeValidator struct{}

var _ webhook.CustomValidator = &stellarNodeValidator{}

// stellarNodeDefaulter implements admission.CustomDefaulter for StellarNode.
// It injects the finalizer, records role-change provenance and derives the
// Soroban config for nodes that opted into automatic migration.
type stellarNodeDefaulter struct{}

var _ webhook.CustomDefaulter = &stellarNodeDefaulter{}

// SetupWebhookWithManager registers the StellarNode webhooks with the manager.
func (r *StellarNode) SetupWebhookWithManager(mgr ctrl.Manager) error {
	return ctrl.NewWebhookManagedBy(mgr).
		For(&StellarNode{}).
		WithValidator(&stellarNodeValidator{}).
		WithDefaulter(&stellarNodeDefaulter{}).
		Complete()
}

// +kubebuilder:webhook:path=/mutate-stellar-org-v1alpha1-stellarnode,mutating=true,failurePolicy=fail,sideEffects=None,groups=stellar.org,resources=stellarnodes,verbs=create;update,versions=v1alpha1,name=mstellarnode.kb.io,admissionReviewVersions=v1

// +kubebuilder:webhook:path=/validate-stellar-org-v1alpha1-stellarnode,mutating=false,failurePolicy=fail,sideEffects=None,groups=stellar.org,resources=stellarnodes,verbs=create;update,versions=v1alpha1,name=vstellarnode.kb.io,admissionReviewVersions=v1

// Default sets default values on StellarNode resources during admission.
func (d *stellarNodeDefaulter) Default(ctx context.Context, obj runtime.Object) error {
	node, ok := obj.(*StellarNode)
	if !ok {
		return apierrors.NewBadRequest("expected StellarNode object for defaulting")
	}

	// The controller must be able to remove the finalizer during deletion.
	if node.DeletionTimestamp != nil && !node.DeletionTimestamp.IsZero() {
		return nil
	}

	if !slices.Contains(node.Finalizers, StellarNodeFinalizer) {
		node.Finalizers = append(node.Finalizers, StellarNodeFinalizer)
	}

	if old := oldObjectFromContext(ctx); old != nil {
		StampProvenance(node, old.Spec.NodeType)
	}

	if node.Spec.NodeType == NodeTypeSorobanRpc && node.Spec.SorobanConfig == nil &&
		node.Spec.HorizonConfig != nil && node.Spec.HorizonConfig.AutoMigration {
		cfg := node.Spec.HorizonConfig.ToSorobanConfig()
		node.Spec.SorobanConfig = &cfg
	}

	return nil
}

// StampProvenance records previous as the migration source when the node type
// changed away from it. A migration already in progress keeps its source.
func StampProvenance(node *StellarNode, previous NodeType) {
	if previous == "" || previous == node.Spec.NodeType {
		return
	}
	if node.HasAnnotation(AnnotationMigrationInProgress) {
		return
	}
	node.SetAnnotation(AnnotationMigrationSourceType, string(previous))
}

// oldObjectFromContext decodes the previous object of an UPDATE admission request.
func oldObjectFromContext(ctx context.Context) *StellarNode {
	req, err := admission.RequestFromContext(ctx)
	if err != nil || req.Operation != admissionv1.Update || len(req.OldObject.Raw) == 0 {
		return nil
	}
	old := &StellarNode{}
	if err := json.Unmarshal(req.OldObject.Raw, old); err != nil {
		stellarNodeWebhookLog.Error(err, "failed to decode old object", "name", req.Name, "namespace", req.Namespace)
		return nil
	}
	return old
}

// ValidateCreate validates StellarNode resources on create.
func (v *stellarNodeValidator) ValidateCreate(_ context.Context, obj runtime.Object) (admission.Warnings, error) {
	node, ok := obj.(*StellarNode)
	if !ok {
		return nil, apierrors.NewBadRequest("expected StellarNode object for validation")
	}

	stellarNodeWebhookLog.Info("validating create", "name", node.Name, "namespace", node.Namespace)

	allErrs := node.Spec.ValidateFields()
	warnings := specWarnings(node)
	if len(allErrs) > 0 {
		return warnings, apierrors.NewInvalid(GroupVersion.WithKind("StellarNode").GroupKind(), node.Name, allErrs)
	}
	return warnings, nil
}

// ValidateUpdate validates StellarNode resources on update. A role change is
// rejected while a migration is still running.
func (v *stellarNodeValidator) ValidateUpdate(_ context.Context, oldObj, newObj runtime.Object) (admission.Warnings, error) {
	node, ok := newObj.(*StellarNode)
	if !ok {
		return nil, apierrors.NewBadRequest("expected StellarNode object for validation")
	}
	old, ok := oldObj.(*StellarNode)
	if !ok {
		return nil, apierrors.NewBadRequest("expected StellarNode object for validation")
	}

	stellarNodeWebhookLog.Info("validating update", "name", node.Name, "namespace", node.Namespace)

	allErrs := node.Spec.ValidateFields()
	if old.HasAnnotation(AnnotationMigrationInProgress) && old.Spec.NodeType != node.Spec.NodeType {
		allErrs = append(allErrs, field.Forbidden(field.NewPath("spec", "nodeType"),
			"nodeType cannot change while a migration is in progress"))
	}
	warnings := specWarnings(node)
	if len(allErrs) > 0 {
		return warnings, apierrors.NewInvalid(GroupVersion.WithKind("StellarNode").GroupKind(), node.Name, allErrs)
	}
	return warnings, nil
}

// ValidateDelete validates StellarNode resources on delete. Deletion safety is
// enforced by the finalizer.
func (v *stellarNodeValidator) ValidateDelete(_ context.Context, obj runtime.Object) (admission.Warnings, error) {
	node, ok := obj.(*StellarNode)
	if !ok {
		return nil, apierrors.NewBadRequest("expected StellarNode object for validation")
	}

	stellarNodeWebhookLog.Info("validating delete", "name", node.Name, "namespace", node.Namespace)
	return nil, nil
}

func specWarnings(node *StellarNode) admission.Warnings {
	var warnings admission.Warnings
	if c := node.Spec.CVEHandling; c != nil {
		s := c.Settings()
		if s.Enabled && !s.EnableAutoRollback {
			warnings = append(warnings, "spec.cveHandling.enableAutoRollback is false: a failed rollout step leaves the workload partially patched")
		}
		if s.Enabled && c.ImageVerification == nil {
			warnings = append(warnings, "spec.cveHandling.imageVerification is not set: patched images are rolled out without signature verification")
		}
	}
	if dr := node.Spec.DRConfig; dr != nil && dr.Enabled && node.HasAnnotation(AnnotationDRFailoverActive) && dr.Role == DRRoleStandby {
		warnings = append(warnings, "DR failover is active: the node stays Primary until the "+AnnotationDRFailoverReset+" annotation is set")
	}
	return warnings
}
