package v1alpha1

// Annotation keys persisted on StellarNode objects. They carry state that must be
// visible before the status subresource reflects reality.
const (
	// AnnotationMigrationInProgress is set to "true" while a role migration runs.
	AnnotationMigrationInProgress = "stellar.org/migration-in-progress"
	// AnnotationMigrationSourceType records the node type a role change started from.
	// It is stamped when spec.nodeType is edited and is the only provenance the
	// migration trigger trusts.
	AnnotationMigrationSourceType = "stellar.org/migration-source-type"
	// AnnotationDRFailoverActive mirrors status.drStatus.failoverActive.
	AnnotationDRFailoverActive = "stellar.org/dr-failover-active"
	// AnnotationDRLastSyncTime is the RFC3339 time of the last successful peer contact.
	AnnotationDRLastSyncTime = "stellar.org/dr-last-sync-time"
	// AnnotationDRFailoverReset set to "true" clears the DR failover latch.
	AnnotationDRFailoverReset = "stellar.org/dr-failover-reset"
)

// HasAnnotation reports whether the node carries key with the value "true".
func (n *StellarNode) HasAnnotation(key string) bool {
	return n.GetAnnotations()[key] == "true"
}

// SetAnnotation sets key to value, allocating the annotation map if needed.
func (n *StellarNode) SetAnnotation(key, value string) {
	if n.Annotations == nil {
		n.Annotations = map[string]string{}
	}
	n.Annotations[key] = value
}

// RemoveAnnotation deletes key. It is a no-op when key is absent.
func (n *StellarNode) RemoveAnnotation(key string) {
	delete(n.Annotations, key)
}
