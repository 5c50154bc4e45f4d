package web

import "encoding/json"

// ApplyDiffRequest is the request body for the diff endpoint. Operations
// stay raw until the schema set has validated their shapes.
type ApplyDiffRequest struct {
	Operations      []json.RawMessage `json:"operations"      validate:"required,min=1"`
	ValidateOnly    bool              `json:"validateOnly"`
	ContinueOnError bool              `json:"continueOnError"`
	CreateBackup    *bool             `json:"createBackup"`
	Intent          string            `json:"intent"          validate:"max=500"`
}

// CreateBackupRequest is the request body for an explicit backup.
type CreateBackupRequest struct {
	Trigger  string         `json:"trigger"  validate:"omitempty,oneof=partial_update full_update autofix"`
	Metadata map[string]any `json:"metadata"`
}

// RestoreRequest is the request body for a rollback. An empty versionId
// restores the latest stored version.
type RestoreRequest struct {
	VersionID      string `json:"versionId"`
	ValidateBefore *bool  `json:"validateBefore"`
}

// PruneRequest is the request body for an explicit prune.
type PruneRequest struct {
	MaxVersions int `json:"maxVersions" validate:"required,min=1"`
}

// TruncateRequest guards the store-wide wipe behind explicit confirmation.
type TruncateRequest struct {
	Confirm bool `json:"confirm"`
}
