package models

import (
	"encoding/json"
	"time"
)

// BackupTrigger records why a version snapshot was taken.
type BackupTrigger string

const (
	BackupTriggerPartialUpdate BackupTrigger = "partial_update" // Diff-based mutation or pre-rollback safety net
	BackupTriggerFullUpdate    BackupTrigger = "full_update"    // Whole-workflow replacement
	BackupTriggerAutofix       BackupTrigger = "autofix"        // Automated repair
)

// WorkflowVersion is one immutable full snapshot of a workflow. Rows are
// append-only: never mutated after creation, only deleted. IDs are UUIDv7,
// time-ordered and therefore monotonic across all versions of all
// workflows; VersionNumber is monotonic per workflow and starts at 1.
type WorkflowVersion struct {
	ID            string         `json:"id"`
	WorkflowID    string         `json:"workflowId"`
	VersionNumber int            `json:"versionNumber"`
	WorkflowName  string         `json:"workflowName"`
	Snapshot      *Workflow      `json:"snapshot"`
	Trigger       BackupTrigger  `json:"trigger"`
	Operations    []string       `json:"operations,omitempty"`
	FixTypes      []string       `json:"fixTypes,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// SnapshotSize returns the serialized length of the snapshot in bytes.
// Sizing is approximate by design; it feeds history listings and storage
// stats, not quotas.
func (v *WorkflowVersion) SnapshotSize() int {
	data, err := json.Marshal(v.Snapshot)
	if err != nil {
		return 0
	}

	return len(data)
}

// VersionInfo is a history entry without the full snapshot.
type VersionInfo struct {
	ID            string        `json:"id"`
	WorkflowID    string        `json:"workflowId"`
	VersionNumber int           `json:"versionNumber"`
	WorkflowName  string        `json:"workflowName"`
	Trigger       BackupTrigger `json:"trigger"`
	Size          int           `json:"size"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// Info strips the snapshot and computes the serialized size.
func (v *WorkflowVersion) Info() VersionInfo {
	return VersionInfo{
		ID:            v.ID,
		WorkflowID:    v.WorkflowID,
		VersionNumber: v.VersionNumber,
		WorkflowName:  v.WorkflowName,
		Trigger:       v.Trigger,
		Size:          v.SnapshotSize(),
		CreatedAt:     v.CreatedAt,
	}
}

// SettingChange records one settings key that differs between versions.
type SettingChange struct {
	Key    string `json:"key"`
	Before any    `json:"before,omitempty"`
	After  any    `json:"after,omitempty"`
}

// VersionDiff is the structural comparison of two snapshots.
type VersionDiff struct {
	FromVersionID      string          `json:"fromVersionId"`
	ToVersionID        string          `json:"toVersionId"`
	AddedNodes         []string        `json:"addedNodes"`
	RemovedNodes       []string        `json:"removedNodes"`
	ModifiedNodes      []string        `json:"modifiedNodes"`
	ConnectionsChanged bool            `json:"connectionsChanged"`
	SettingsChanges    []SettingChange `json:"settingsChanges,omitempty"`
}

// WorkflowStorage aggregates version storage for one workflow.
type WorkflowStorage struct {
	WorkflowID   string `json:"workflowId"`
	WorkflowName string `json:"workflowName"`
	Versions     int    `json:"versions"`
	Size         int64  `json:"size"`
}

// StorageStats aggregates version storage across all workflows.
type StorageStats struct {
	TotalVersions int               `json:"totalVersions"`
	TotalSize     int64             `json:"totalSize"`
	ByWorkflow    []WorkflowStorage `json:"byWorkflow"`
}
