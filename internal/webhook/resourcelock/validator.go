// Package resourcelock guards the Deployments, StatefulSets, Services and
// Pods the operator manages for StellarNodes. Direct edits would race the
// rollout and failover state machines, so only the operator and a short list
// of system identities may update or delete them.
package resourcelock

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-logr/logr"
	admissionv1 "k8s.io/api/admission/v1"
	authenticationv1 "k8s.io/api/authentication/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/webhook/admission"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
	"github.com/stellar/stellar-operator/internal/constants"
)

const (
	// Path is where the validator is served.
	Path = "/validate-stellar-managed-resources"

	serviceAccountPrefix  = "system:serviceaccount:"
	kubeSystemGroup       = "system:serviceaccounts:kube-system"
	defaultServiceAccount = "stellar-operator-controller"
	defaultNamespace      = "stellar-operator-system"
)

// +kubebuilder:webhook:path=/validate-stellar-managed-resources,mutating=false,failurePolicy=ignore,sideEffects=None,groups=apps;"",resources=deployments;statefulsets;services;pods,verbs=update;delete,versions=v1,name=vresourcelock.stellar.org,admissionReviewVersions=v1

// ResourceLockValidator denies UPDATE and DELETE of operator-managed objects
// by anyone but the operator, kube-system controllers, allowlisted service
// accounts and break-glass administrators in maintenance mode.
type ResourceLockValidator struct {
	logger                logr.Logger
	decoder               admission.Decoder
	operatorIdentity      string
	systemSAUsernames     map[string]struct{}
	breakGlassAdminGroups map[string]struct{}
}

// NewValidator builds a validator. getenv supplies the operator namespace and
// ServiceAccount and the optional allowlists.
func NewValidator(logger logr.Logger, decoder admission.Decoder, getenv func(string) string) *ResourceLockValidator {
	ns := getenv(constants.EnvPodNamespace)
	if ns == "" {
		ns = defaultNamespace
	}
	sa := getenv(constants.EnvOperatorServiceAccount)
	if sa == "" {
		sa = defaultServiceAccount
	}

	v := &ResourceLockValidator{
		logger:                logger.WithName("resource-lock"),
		decoder:               decoder,
		operatorIdentity:      serviceAccountPrefix + ns + ":" + sa,
		systemSAUsernames:     parseServiceAccountAllowlist(getenv(constants.EnvSystemSAAllowlist)),
		breakGlassAdminGroups: parseGroupAllowlist(getenv(constants.EnvBreakGlassAdminGroups)),
	}
	v.logger.Info("Resource lock validator configured",
		"operator_identity", v.operatorIdentity,
		"system_sa_allowlist_count", len(v.systemSAUsernames),
		"breakglass_admin_groups_count", len(v.breakGlassAdminGroups))
	return v
}

// Handle evaluates admission requests for UPDATE/DELETE of managed resources.
func (v *ResourceLockValidator) Handle(_ context.Context, req admission.Request) admission.Response {
	// CREATE is left alone so the operator can always bootstrap.
	if req.Operation != admissionv1.Update && req.Operation != admissionv1.Delete {
		return admission.Allowed("operation not subject to resource lock")
	}
	if req.UserInfo.Username == v.operatorIdentity {
		return admission.Allowed("operator controller authorized")
	}

	isManaged, metaObj, err := v.isManagedResource(req)
	if err != nil {
		return admission.Errored(http.StatusBadRequest, err)
	}
	if !isManaged {
		return admission.Allowed("resource not managed by the Stellar operator")
	}

	// The kubelet owns pod lifecycle on its node.
	if req.Operation == admissionv1.Delete && req.Kind.Group == "" && req.Kind.Kind == "Pod" &&
		strings.HasPrefix(req.UserInfo.Username, "system:node:") {
		return admission.Allowed("kubelet node authorized to delete managed pod")
	}
	if v.isKubeSystemController(req.UserInfo) {
		return admission.Allowed("system controller authorized")
	}

	if req.Operation == admissionv1.Update && v.isBreakGlassAdmin(req.UserInfo) && v.isOnlyMaintenanceAnnotationChange(req) {
		v.logger.Info("allowing maintenance annotation update",
			"user", req.UserInfo.Username, "resource", fmt.Sprintf("%s/%s", req.Namespace, req.Name))
		return admission.Allowed("maintenance annotation update allowed for administrator")
	}
	if isMaintenanceMode(metaObj) && v.isBreakGlassAdmin(req.UserInfo) {
		v.logger.Info("break-glass access granted",
			"user", req.UserInfo.Username,
			"resource", fmt.Sprintf("%s/%s", req.Namespace, req.Name),
			"operation", string(req.Operation))
		return admission.Allowed("maintenance mode active for administrator")
	}

	v.logger.Info("blocked unauthorized mutation",
		"user", req.UserInfo.Username,
		"resource", fmt.Sprintf("%s/%s", req.Namespace, req.Name),
		"operation", string(req.Operation))
	return admission.Denied(fmt.Sprintf("direct modification of Stellar-managed resource %s/%s by %s is prohibited; "+
		"modify the parent StellarNode instead", req.Namespace, req.Name, req.UserInfo.Username))
}

// isManagedResource reports whether the request targets an object labeled as
// managed by the operator or owned by a StellarNode.
func (v *ResourceLockValidator) isManagedResource(req admission.Request) (bool, metav1.Object, error) {
	obj := &metav1.PartialObjectMetadata{}
	raw := req.Object
	if req.Operation == admissionv1.Delete {
		raw = req.OldObject
	}
	if err := v.decoder.DecodeRaw(raw, obj); err != nil {
		return false, nil, fmt.Errorf("failed to decode object metadata: %w", err)
	}

	if obj.GetLabels()[constants.LabelAppManagedBy] == constants.LabelValueAppManagedByStellarOperator {
		return true, obj, nil
	}
	for _, owner := range obj.OwnerReferences {
		if owner.Kind == "StellarNode" && owner.APIVersion == stellarv1alpha1.GroupVersion.String() {
			return true, obj, nil
		}
	}
	return false, obj, nil
}

func isMaintenanceMode(obj metav1.Object) bool {
	return obj.GetAnnotations()[constants.AnnotationMaintenance] == "true"
}

// isOnlyMaintenanceAnnotationChange lets an administrator switch maintenance
// mode on without already being in it.
func (v *ResourceLockValidator) isOnlyMaintenanceAnnotationChange(req admission.Request) bool {
	oldObj := &metav1.PartialObjectMetadata{}
	newObj := &metav1.PartialObjectMetadata{}
	if err := v.decoder.DecodeRaw(req.OldObject, oldObj); err != nil {
		return false
	}
	if err := v.decoder.DecodeRaw(req.Object, newObj); err != nil {
		return false
	}

	oldAnnotations := withoutKey(oldObj.GetAnnotations(), constants.AnnotationMaintenance)
	newAnnotations := withoutKey(newObj.GetAnnotations(), constants.AnnotationMaintenance)
	if !mapsEqual(oldAnnotations, newAnnotations) || !mapsEqual(oldObj.GetLabels(), newObj.GetLabels()) {
		return false
	}

	oldOwners, newOwners := oldObj.GetOwnerReferences(), newObj.GetOwnerReferences()
	if len(oldOwners) != len(newOwners) {
		return false
	}
	for i := range oldOwners {
		if oldOwners[i].UID != newOwners[i].UID || oldOwners[i].Kind != newOwners[i].Kind {
			return false
		}
	}
	return true
}

func withoutKey(m map[string]string, key string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if k != key {
			out[k] = v
		}
	}
	return out
}

func mapsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func (v *ResourceLockValidator) isKubeSystemController(user authenticationv1.UserInfo) bool {
	for _, group := range user.Groups {
		if group == kubeSystemGroup {
			return true
		}
	}
	_, ok := v.systemSAUsernames[user.Username]
	return ok
}

func (v *ResourceLockValidator) isBreakGlassAdmin(user authenticationv1.UserInfo) bool {
	for _, group := range user.Groups {
		if _, ok := v.breakGlassAdminGroups[group]; ok {
			return true
		}
	}
	return false
}

// parseServiceAccountAllowlist parses "ns:name,ns:name" into usernames.
func parseServiceAccountAllowlist(value string) map[string]struct{} {
	result := make(map[string]struct{})
	for _, entry := range strings.Split(value, ",") {
		ns, sa, ok := strings.Cut(strings.TrimSpace(entry), ":")
		ns, sa = strings.TrimSpace(ns), strings.TrimSpace(sa)
		if !ok || ns == "" || sa == "" || strings.Contains(sa, ":") {
			continue
		}
		result[serviceAccountPrefix+ns+":"+sa] = struct{}{}
	}
	return result
}

func parseGroupAllowlist(value string) map[string]struct{} {
	result := make(map[string]struct{})
	for _, entry := range strings.Split(value, ",") {
		if group := strings.TrimSpace(entry); group != "" {
			result[group] = struct{}{}
		}
	}
	return result
}
