package models

// DiffRequest is one ordered batch of operations against a single workflow.
type DiffRequest struct {
	WorkflowID string          `json:"workflowId" validate:"required"`
	Operations []DiffOperation `json:"operations" validate:"required,min=1"`

	// ValidateOnly dry-applies the batch without any caller-visible
	// mutation or external push.
	ValidateOnly bool `json:"validateOnly,omitempty"`

	// ContinueOnError switches from atomic (default) to best-effort mode.
	ContinueOnError bool `json:"continueOnError,omitempty"`

	// CreateBackup defaults to true; nil means unset.
	CreateBackup *bool `json:"createBackup,omitempty"`

	// Intent is free text describing what the caller is trying to achieve;
	// recorded in the backup metadata.
	Intent string `json:"intent,omitempty"`
}

// ShouldBackup resolves the CreateBackup default.
func (r *DiffRequest) ShouldBackup() bool {
	return r.CreateBackup == nil || *r.CreateBackup
}

// OperationFailure records one failed operation by batch index.
type OperationFailure struct {
	Index   int    `json:"index"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// DiffResult describes the outcome of applying one operation batch.
// Workflow is present even on partial success in best-effort mode.
type DiffResult struct {
	Success           bool               `json:"success"`
	Workflow          *Workflow          `json:"workflow,omitempty"`
	OperationsApplied int                `json:"operationsApplied"`
	Applied           []int              `json:"applied"`
	Failed            []OperationFailure `json:"failed,omitempty"`
	Errors            []string           `json:"errors,omitempty"`
	Warnings          []string           `json:"warnings,omitempty"`
	Guidance          []string           `json:"guidance,omitempty"`
}
