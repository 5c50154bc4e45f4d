// Package events defines event types emitted on workflow mutation and
// version store lifecycle changes.
package events

import (
	"time"
)

type EventType string

// Topic carries all mutation and version lifecycle events.
const Topic = "flowpatch.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	WorkflowMutatedEvent  EventType = "workflow.mutated"
	WorkflowRestoredEvent EventType = "workflow.restored"
	RestoreFailedEvent    EventType = "restore.failed"
	VersionCreatedEvent   EventType = "version.created"
	VersionsPrunedEvent   EventType = "versions.pruned"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// WorkflowMutated is published after a diff batch was applied and pushed.
type WorkflowMutated struct {
	BaseEvent

	OperationsApplied int      `json:"operations_applied"`
	Operations        []string `json:"operations,omitempty"`
	Intent            string   `json:"intent,omitempty"`
	BackupVersionID   string   `json:"backup_version_id,omitempty"`
}

func (w WorkflowMutated) GetType() EventType {
	return WorkflowMutatedEvent
}

// WorkflowRestored is published after a snapshot was pushed back successfully.
type WorkflowRestored struct {
	BaseEvent

	VersionID      string `json:"version_id"`
	VersionNumber  int    `json:"version_number"`
	SafetyBackupID string `json:"safety_backup_id"`
}

func (w WorkflowRestored) GetType() EventType {
	return WorkflowRestoredEvent
}

// RestoreFailed is published when a restore terminates without a push.
type RestoreFailed struct {
	BaseEvent

	VersionID      string `json:"version_id"`
	Reason         string `json:"reason"`
	SafetyBackupID string `json:"safety_backup_id,omitempty"`
}

func (r RestoreFailed) GetType() EventType {
	return RestoreFailedEvent
}

// VersionCreated is published for every backup inserted into the store.
type VersionCreated struct {
	BaseEvent

	VersionID     string `json:"version_id"`
	VersionNumber int    `json:"version_number"`
	Trigger       string `json:"trigger"`
}

func (v VersionCreated) GetType() EventType {
	return VersionCreatedEvent
}

// VersionsPruned is published when retention removed old versions.
type VersionsPruned struct {
	BaseEvent

	Pruned int `json:"pruned"`
}

func (v VersionsPruned) GetType() EventType {
	return VersionsPrunedEvent
}
