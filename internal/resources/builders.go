package resources

import (
	"fmt"
	"strconv"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
	"github.com/stellar/stellar-operator/internal/constants"
	"github.com/stellar/stellar-operator/internal/kube"
)

// Secret keys read by node containers.
const (
	SecretKeyNodeSeed    = "seed"
	SecretKeyDatabaseURL = "database-url"
)

var networkPassphrases = map[stellarv1alpha1.StellarNetwork]string{
	stellarv1alpha1.NetworkMainnet:   "Public Global Stellar Network ; September 2015",
	stellarv1alpha1.NetworkTestnet:   "Test SDF Network ; September 2015",
	stellarv1alpha1.NetworkFuturenet: "Test SDF Future Network ; October 2022",
}

// NetworkPassphrase returns the passphrase of a well-known network, or "" for Custom.
func NetworkPassphrase(network stellarv1alpha1.StellarNetwork) string {
	if network == "" {
		network = stellarv1alpha1.NetworkTestnet
	}
	return networkPassphrases[network]
}

// WorkloadKindFor returns the workload kind backing a node type.
// Validators keep their identity and storage on a StatefulSet.
func WorkloadKindFor(nodeType stellarv1alpha1.NodeType) kube.WorkloadKind {
	if nodeType == stellarv1alpha1.NodeTypeValidator {
		return kube.KindStatefulSet
	}
	return kube.KindDeployment
}

// CanaryName returns the name of the canary Deployment of a node.
func CanaryName(node *stellarv1alpha1.StellarNode) string {
	return node.Name + constants.SuffixCanary
}

// PatchedName returns the name of the Deployment that carries the patched
// replicas of a staged rollout.
func PatchedName(node *stellarv1alpha1.StellarNode) string {
	return node.Name + constants.SuffixPatched
}

// Staged reports whether a CVE rollout of node runs the patched image on a
// second Deployment. StatefulSets stage through their partition instead.
func Staged(node *stellarv1alpha1.StellarNode) bool {
	return WorkloadKindFor(node.Spec.NodeType) == kube.KindDeployment
}

// SelectorLabels returns the labels identifying the pods of one deployment track.
func SelectorLabels(node *stellarv1alpha1.StellarNode, track string) map[string]string {
	return map[string]string{
		constants.LabelAppInstance: node.Name,
		constants.LabelStellarNode: node.Name,
		constants.LabelDeployment:  track,
	}
}

// ServingLabels select every pod the node Service routes to.
func ServingLabels(node *stellarv1alpha1.StellarNode) map[string]string {
	return map[string]string{
		constants.LabelAppInstance: node.Name,
		constants.LabelStellarNode: node.Name,
		constants.LabelServing:     "true",
	}
}

func infraLabels(node *stellarv1alpha1.StellarNode, track string) map[string]string {
	labels := SelectorLabels(node, track)
	labels[constants.LabelAppName] = "stellar-node"
	labels[constants.LabelAppManagedBy] = constants.LabelValueAppManagedByStellarOperator
	labels[constants.LabelAppComponent] = string(node.Spec.NodeType)
	labels[constants.LabelStellarNodeType] = string(node.Spec.NodeType)
	return labels
}

// DesiredReplicas returns the replica count of the primary workload.
func DesiredReplicas(node *stellarv1alpha1.StellarNode) int32 {
	if node.Spec.Suspended {
		return 0
	}
	if node.Spec.NodeType == stellarv1alpha1.NodeTypeValidator {
		return 1
	}
	if node.Spec.Replicas <= 0 {
		return 1
	}
	return node.Spec.Replicas
}

// DesiredImage returns the image the primary workload should run. The CVE
// rollout pins it: the image running when the rollout began until the canary
// passes, the patched image once rolling starts, and the previous image again
// on rollback.
func DesiredImage(node *stellarv1alpha1.StellarNode) string {
	base := node.Spec.NodeType.ContainerImage(node.Spec.Version)
	cve := node.Status.CVE
	if cve == nil || cve.Rollout == nil {
		return base
	}
	r := cve.Rollout
	pick := func(image string) string {
		if image == "" {
			return base
		}
		return image
	}
	switch node.Status.CVERolloutStatus {
	case stellarv1alpha1.CVERolloutRolling, stellarv1alpha1.CVERolloutComplete:
		return pick(r.TargetImage)
	case stellarv1alpha1.CVERolloutFailed:
		if r.UpdatedReplicas > 0 {
			return pick(r.TargetImage)
		}
		return pick(r.PreviousImage)
	default:
		return pick(r.PreviousImage)
	}
}

// WorkloadOptions tune the primary workload beyond what the spec declares.
type WorkloadOptions struct {
	// Image overrides DesiredImage.
	Image string
	// Partition is the StatefulSet rolling update partition. Ignored for Deployments.
	Partition *int32
	// Replicas overrides DesiredReplicas.
	Replicas *int32
	// RolloutID tags the pod template with the CVE rollout that produced it.
	RolloutID string
}

// WorkloadOptionsFor derives the primary workload options from the CVE rollout
// status, so the base ensure and the rollout steps render the same object.
func WorkloadOptionsFor(node *stellarv1alpha1.StellarNode) WorkloadOptions {
	opts := WorkloadOptions{Image: DesiredImage(node)}
	cve := node.Status.CVE
	if cve == nil || cve.Rollout == nil {
		return opts
	}
	switch node.Status.CVERolloutStatus {
	case stellarv1alpha1.CVERolloutRolling, stellarv1alpha1.CVERolloutFailed:
		if cve.Rollout.UpdatedReplicas == 0 && node.Status.CVERolloutStatus == stellarv1alpha1.CVERolloutFailed {
			return opts
		}
		opts.RolloutID = cve.Rollout.ID
		remaining := max(DesiredReplicas(node)-cve.Rollout.UpdatedReplicas, 0)
		switch {
		case !Staged(node):
			opts.Partition = ptr.To(remaining)
		case !cve.Rollout.Promoted:
			// The primary keeps the old image and hands replicas to the patched Deployment.
			if cve.Rollout.PreviousImage != "" {
				opts.Image = cve.Rollout.PreviousImage
			}
			opts.Replicas = ptr.To(remaining)
		}
	case stellarv1alpha1.CVERolloutComplete:
		opts.RolloutID = cve.Rollout.ID
	}
	return opts
}

// BuildWorkload returns the primary StatefulSet or Deployment of a node.
func BuildWorkload(node *stellarv1alpha1.StellarNode, opts WorkloadOptions) client.Object {
	image := opts.Image
	if image == "" {
		image = DesiredImage(node)
	}
	template := buildPodTemplate(node, image, constants.LabelValueDeploymentPrimary, opts.RolloutID)
	replicas := DesiredReplicas(node)
	if opts.Replicas != nil {
		replicas = *opts.Replicas
	}
	meta := metav1.ObjectMeta{
		Name:      node.Name,
		Namespace: node.Namespace,
		Labels:    infraLabels(node, constants.LabelValueDeploymentPrimary),
	}
	selector := &metav1.LabelSelector{MatchLabels: SelectorLabels(node, constants.LabelValueDeploymentPrimary)}

	if WorkloadKindFor(node.Spec.NodeType) == kube.KindStatefulSet {
		sts := &appsv1.StatefulSet{
			TypeMeta:   metav1.TypeMeta{APIVersion: "apps/v1", Kind: "StatefulSet"},
			ObjectMeta: meta,
			Spec: appsv1.StatefulSetSpec{
				Replicas:            ptr.To(replicas),
				ServiceName:         node.Name,
				Selector:            selector,
				Template:            template,
				PodManagementPolicy: appsv1.OrderedReadyPodManagement,
				UpdateStrategy: appsv1.StatefulSetUpdateStrategy{
					Type: appsv1.RollingUpdateStatefulSetStrategyType,
					RollingUpdate: &appsv1.RollingUpdateStatefulSetStrategy{
						Partition: ptr.To(ptr.Deref(opts.Partition, 0)),
					},
				},
			},
		}
		return sts
	}

	return &appsv1.Deployment{
		TypeMeta:   metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: meta,
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To(replicas),
			Selector: selector,
			Template: template,
			Strategy: appsv1.DeploymentStrategy{
				Type: appsv1.RollingUpdateDeploymentStrategyType,
				RollingUpdate: &appsv1.RollingUpdateDeployment{
					MaxUnavailable: ptr.To(intstr.FromInt32(0)),
					MaxSurge:       ptr.To(intstr.FromInt32(1)),
				},
			},
		},
	}
}

// BuildCanary returns the single-replica canary Deployment running image.
// Its pods carry the canary track label and are not selected by the node Service.
func BuildCanary(node *stellarv1alpha1.StellarNode, image, rolloutID string) *appsv1.Deployment {
	labels := infraLabels(node, constants.LabelValueDeploymentCanary)
	return &appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      CanaryName(node),
			Namespace: node.Namespace,
			Labels:    labels,
			Annotations: map[string]string{
				constants.AnnotationRolloutID: rolloutID,
			},
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To[int32](1),
			Selector: &metav1.LabelSelector{MatchLabels: SelectorLabels(node, constants.LabelValueDeploymentCanary)},
			Template: buildPodTemplate(node, image, constants.LabelValueDeploymentCanary, rolloutID),
		},
	}
}

// BuildPatched returns the Deployment that runs the patched image during a
// staged rollout. Its pods are served alongside the primary's.
func BuildPatched(node *stellarv1alpha1.StellarNode, image string, replicas int32, rolloutID string) *appsv1.Deployment {
	return &appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      PatchedName(node),
			Namespace: node.Namespace,
			Labels:    infraLabels(node, constants.LabelValueDeploymentPatched),
			Annotations: map[string]string{
				constants.AnnotationRolloutID: rolloutID,
			},
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To(replicas),
			Selector: &metav1.LabelSelector{MatchLabels: SelectorLabels(node, constants.LabelValueDeploymentPatched)},
			Template: buildPodTemplate(node, image, constants.LabelValueDeploymentPatched, rolloutID),
			Strategy: appsv1.DeploymentStrategy{
				Type: appsv1.RollingUpdateDeploymentStrategyType,
				RollingUpdate: &appsv1.RollingUpdateDeployment{
					MaxUnavailable: ptr.To(intstr.FromInt32(0)),
					MaxSurge:       ptr.To(intstr.FromInt32(1)),
				},
			},
		},
	}
}

// BuildService returns the node Service. It selects the serving pods, never
// the canary, and, when
// failover DNS is configured and the node currently holds the Primary role,
// publishes the hostname through external-dns.
func BuildService(node *stellarv1alpha1.StellarNode) *corev1.Service {
	svc := &corev1.Service{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      node.Name,
			Namespace: node.Namespace,
			Labels:    infraLabels(node, constants.LabelValueDeploymentPrimary),
		},
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeClusterIP,
			Selector: ServingLabels(node),
			Ports:    servicePorts(node.Spec.NodeType),
		},
	}

	if dns := failoverDNS(node); dns != nil {
		svc.Annotations = map[string]string{
			constants.AnnotationExternalDNSHostname: dns.Hostname,
		}
		if dns.TTLSeconds > 0 {
			svc.Annotations[constants.AnnotationExternalDNSTTL] = strconv.Itoa(int(dns.TTLSeconds))
		}
	}
	return svc
}

func failoverDNS(node *stellarv1alpha1.StellarNode) *stellarv1alpha1.FailoverDNSConfig {
	dr := node.Spec.DRConfig
	if dr == nil || !dr.Enabled || dr.FailoverDNS == nil || dr.FailoverDNS.Hostname == "" {
		return nil
	}
	role := dr.Role
	if node.Status.DRStatus != nil && node.Status.DRStatus.CurrentRole != "" {
		role = node.Status.DRStatus.CurrentRole
	}
	if role != stellarv1alpha1.DRRolePrimary {
		return nil
	}
	return dr.FailoverDNS
}

// HTTPPort returns the HTTP port of the node's main container.
func HTTPPort(nodeType stellarv1alpha1.NodeType) int32 {
	switch nodeType {
	case stellarv1alpha1.NodeTypeHorizon:
		return constants.PortHorizonHTTP
	case stellarv1alpha1.NodeTypeSorobanRpc:
		return constants.PortSorobanRPC
	default:
		return constants.PortCoreHTTP
	}
}

// CoreInfoURL returns the base URL of the stellar-core HTTP endpoint that
// serves the node's ledger: the node's own Service for validators, the
// configured core otherwise. It is empty when no core is known.
func CoreInfoURL(node *stellarv1alpha1.StellarNode) string {
	switch node.Spec.NodeType {
	case stellarv1alpha1.NodeTypeValidator:
		return fmt.Sprintf("http://%s.%s.svc:%d", node.Name, node.Namespace, constants.PortCoreHTTP)
	case stellarv1alpha1.NodeTypeHorizon:
		if node.Spec.HorizonConfig != nil {
			return node.Spec.HorizonConfig.StellarCoreURL
		}
	case stellarv1alpha1.NodeTypeSorobanRpc:
		if node.Spec.SorobanConfig != nil {
			return node.Spec.SorobanConfig.StellarCoreURL
		}
	}
	return ""
}

func servicePorts(nodeType stellarv1alpha1.NodeType) []corev1.ServicePort {
	ports := []corev1.ServicePort{{
		Name:       constants.PortNameHTTP,
		Port:       HTTPPort(nodeType),
		TargetPort: intstr.FromString(constants.PortNameHTTP),
		Protocol:   corev1.ProtocolTCP,
	}}
	if nodeType == stellarv1alpha1.NodeTypeValidator {
		ports = append(ports, corev1.ServicePort{
			Name:       constants.PortNamePeer,
			Port:       constants.PortCorePeer,
			TargetPort: intstr.FromString(constants.PortNamePeer),
			Protocol:   corev1.ProtocolTCP,
		})
	}
	return ports
}

func buildPodTemplate(node *stellarv1alpha1.StellarNode, image, track, rolloutID string) corev1.PodTemplateSpec {
	annotations := map[string]string{}
	if rolloutID != "" {
		annotations[constants.AnnotationRolloutID] = rolloutID
	}

	container := corev1.Container{
		Name:            constants.ContainerNameNode,
		Image:           image,
		ImagePullPolicy: corev1.PullIfNotPresent,
		Env:             buildContainerEnv(node),
		Ports: []corev1.ContainerPort{{
			Name:          constants.PortNameHTTP,
			ContainerPort: HTTPPort(node.Spec.NodeType),
			Protocol:      corev1.ProtocolTCP,
		}},
		ReadinessProbe: &corev1.Probe{
			ProbeHandler: corev1.ProbeHandler{
				TCPSocket: &corev1.TCPSocketAction{Port: intstr.FromString(constants.PortNameHTTP)},
			},
			PeriodSeconds:    10,
			FailureThreshold: 3,
		},
		SecurityContext: &corev1.SecurityContext{
			AllowPrivilegeEscalation: ptr.To(false),
			RunAsNonRoot:             ptr.To(true),
			Capabilities:             &corev1.Capabilities{Drop: []corev1.Capability{"ALL"}},
		},
	}
	if node.Spec.NodeType == stellarv1alpha1.NodeTypeValidator {
		container.Ports = append(container.Ports, corev1.ContainerPort{
			Name:          constants.PortNamePeer,
			ContainerPort: constants.PortCorePeer,
			Protocol:      corev1.ProtocolTCP,
		})
	}

	var pullSecrets []corev1.LocalObjectReference
	if c := node.Spec.CVEHandling; c != nil && c.ImageVerification != nil {
		pullSecrets = c.ImageVerification.ImagePullSecrets
	}

	labels := infraLabels(node, track)
	if track != constants.LabelValueDeploymentCanary {
		labels[constants.LabelServing] = "true"
	}

	return corev1.PodTemplateSpec{
		ObjectMeta: metav1.ObjectMeta{
			Labels:      labels,
			Annotations: annotations,
		},
		Spec: corev1.PodSpec{
			Containers:       []corev1.Container{container},
			ImagePullSecrets: pullSecrets,
			SecurityContext: &corev1.PodSecurityContext{
				RunAsNonRoot:   ptr.To(true),
				SeccompProfile: &corev1.SeccompProfile{Type: corev1.SeccompProfileTypeRuntimeDefault},
			},
		},
	}
}

func buildContainerEnv(node *stellarv1alpha1.StellarNode) []corev1.EnvVar {
	env := []corev1.EnvVar{{Name: constants.EnvNetworkPassphrase, Value: NetworkPassphrase(node.Spec.Network)}}

	switch node.Spec.NodeType {
	case stellarv1alpha1.NodeTypeValidator:
		if vc := node.Spec.ValidatorConfig; vc != nil {
			env = append(env, secretEnv("NODE_SEED", vc.SeedSecretRef, SecretKeyNodeSeed))
		}
	case stellarv1alpha1.NodeTypeHorizon:
		if hc := node.Spec.HorizonConfig; hc != nil {
			env = append(env,
				secretEnv(constants.EnvDatabaseURL, hc.DatabaseSecretRef, SecretKeyDatabaseURL),
				corev1.EnvVar{Name: constants.EnvStellarCoreURL, Value: hc.StellarCoreURL},
				corev1.EnvVar{Name: "INGEST", Value: strconv.FormatBool(hc.EnableIngest)},
				corev1.EnvVar{Name: "PARALLEL_JOB_SIZE", Value: strconv.Itoa(int(max(hc.IngestWorkers, 1)))},
			)
		}
	case stellarv1alpha1.NodeTypeSorobanRpc:
		if sc := node.Spec.SorobanConfig; sc != nil {
			env = append(env,
				corev1.EnvVar{Name: constants.EnvStellarCoreURL, Value: sc.StellarCoreURL},
				corev1.EnvVar{Name: "PREFLIGHT_ENABLED", Value: strconv.FormatBool(sc.EnablePreflight)},
				corev1.EnvVar{Name: "MAX_EVENTS_LIMIT", Value: strconv.Itoa(int(sc.MaxEventsPerRequest))},
			)
		}
	}
	return env
}

func secretEnv(name, secret, key string) corev1.EnvVar {
	return corev1.EnvVar{
		Name: name,
		ValueFrom: &corev1.EnvVarSource{
			SecretKeyRef: &corev1.SecretKeySelector{
				LocalObjectReference: corev1.LocalObjectReference{Name: secret},
				Key:                  key,
			},
		},
	}
}
