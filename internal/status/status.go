// Package status holds helpers for reading and writing metav1.Condition lists.
// All helpers are pure with respect to the object: they mutate the slice they
// are given and never talk to the API server. The last write for a condition
// type wins.
package status

import (
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Set adds or updates a condition in the condition slice.
// It sets LastTransitionTime to the current time and ObservedGeneration to the provided generation.
func Set(conditions *[]metav1.Condition, generation int64, conditionType string, status metav1.ConditionStatus, reason, message string) {
	SetAt(conditions, generation, conditionType, status, reason, message, metav1.Now())
}

// SetAt is Set with an explicit transition time. LastTransitionTime only moves
// when the status of the condition changes.
func SetAt(conditions *[]metav1.Condition, generation int64, conditionType string, status metav1.ConditionStatus, reason, message string, now metav1.Time) {
	meta.SetStatusCondition(conditions, metav1.Condition{
		Type:               conditionType,
		Status:             status,
		Reason:             reason,
		Message:            message,
		ObservedGeneration: generation,
		LastTransitionTime: now,
	})
}

// True sets a condition to True status.
func True(conditions *[]metav1.Condition, generation int64, conditionType, reason, message string) {
	Set(conditions, generation, conditionType, metav1.ConditionTrue, reason, message)
}

// False sets a condition to False status.
func False(conditions *[]metav1.Condition, generation int64, conditionType, reason, message string) {
	Set(conditions, generation, conditionType, metav1.ConditionFalse, reason, message)
}

// Unknown sets a condition to Unknown status.
func Unknown(conditions *[]metav1.Condition, generation int64, conditionType, reason, message string) {
	Set(conditions, generation, conditionType, metav1.ConditionUnknown, reason, message)
}

// Remove removes a condition from the slice.
func Remove(conditions *[]metav1.Condition, conditionType string) {
	meta.RemoveStatusCondition(conditions, conditionType)
}

// Get returns the condition with the given type, or nil if not found.
func Get(conditions []metav1.Condition, conditionType string) *metav1.Condition {
	return meta.FindStatusCondition(conditions, conditionType)
}

// IsTrue returns true if the condition with the given type has Status=True.
func IsTrue(conditions []metav1.Condition, conditionType string) bool {
	return meta.IsStatusConditionTrue(conditions, conditionType)
}

// IsFalse returns true if the condition with the given type has Status=False.
func IsFalse(conditions []metav1.Condition, conditionType string) bool {
	return meta.IsStatusConditionFalse(conditions, conditionType)
}

// HasReason returns true if the condition exists with the given reason.
func HasReason(conditions []metav1.Condition, conditionType, reason string) bool {
	c := Get(conditions, conditionType)
	return c != nil && c.Reason == reason
}
