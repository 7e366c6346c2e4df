package logging

import (
	"sort"

	"github.com/go-logr/logr"
)

// Audit event types emitted for destructive or latching operator actions.
const (
	EventMigrationStarted   = "MigrationStarted"
	EventMigrationCompleted = "MigrationCompleted"
	EventMigrationTimedOut  = "MigrationTimedOut"
	EventDRFailoverLatched  = "DRFailoverLatched"
	EventDRFailoverReset    = "DRFailoverReset"
	EventCanaryCreated      = "CanaryCreated"
	EventCanaryJudged       = "CanaryJudged"
	EventCanaryDeleted      = "CanaryDeleted"
	EventRolloutStep        = "RolloutStep"
	EventRolloutCompleted   = "RolloutCompleted"
	EventRollbackStarted    = "RollbackStarted"
	EventRollbackCompleted  = "RollbackCompleted"
	EventDryRunSkipped      = "DryRunSkipped"
)

// LogAuditEvent logs a structured audit event for operator actions.
// Audit events are distinct from regular debug/info logs and are tagged
// with "audit=true" for easy filtering in log aggregation systems.
// Fields are emitted in key order so identical events produce identical lines.
func LogAuditEvent(logger logr.Logger, eventType string, fields map[string]string) {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	kvs := make([]interface{}, 0, 4+2*len(keys))
	kvs = append(kvs, "audit", "true", "event_type", eventType)
	for _, key := range keys {
		kvs = append(kvs, key, fields[key])
	}
	logger.WithValues(kvs...).Info("Operator audit event")
}
