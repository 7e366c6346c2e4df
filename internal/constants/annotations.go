package constants

// Annotation keys the operator writes on objects it owns.
const (
	// AnnotationExternalDNSHostname publishes a DR failover hostname through external-dns.
	AnnotationExternalDNSHostname = "external-dns.alpha.kubernetes.io/hostname"
	// AnnotationExternalDNSTTL sets the TTL of the published record.
	AnnotationExternalDNSTTL = "external-dns.alpha.kubernetes.io/ttl"
	// AnnotationRolloutID tags workloads patched by a CVE rollout.
	AnnotationRolloutID = "stellar.org/cve-rollout-id"
	// AnnotationMaintenance opens managed objects to break-glass administrators.
	AnnotationMaintenance = "stellar.org/maintenance"
)
