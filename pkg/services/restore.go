package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowpatch/flowpatch/pkg/eventbus"
	"github.com/flowpatch/flowpatch/pkg/events"
	"github.com/flowpatch/flowpatch/pkg/models"
	"github.com/flowpatch/flowpatch/pkg/otelhelper"
	"github.com/flowpatch/flowpatch/pkg/validation"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/flowpatch/flowpatch/pkg/platform"
)

// Restore outcome statuses.
const (
	RestoreStatusRestored = "restored"
	RestoreStatusRejected = "rejected-by-validation"
	RestoreStatusFailed   = "failed-to-push"
)

// RestoreRequest asks for a workflow to be rolled back to a stored
// snapshot. An empty VersionID selects the latest stored version.
type RestoreRequest struct {
	WorkflowID string `json:"workflowId" validate:"required"`
	VersionID  string `json:"versionId,omitempty"`

	// ValidateBefore defaults to true; nil means unset.
	ValidateBefore *bool `json:"validateBefore,omitempty"`
}

// ShouldValidate resolves the ValidateBefore default.
func (r *RestoreRequest) ShouldValidate() bool {
	return r.ValidateBefore == nil || *r.ValidateBefore
}

// RestoreOutcome describes how far a restore got. SafetyBackupID is set
// whenever the pre-rollback snapshot was taken, including on push failure.
type RestoreOutcome struct {
	Status         string           `json:"status"`
	VersionID      string           `json:"versionId"`
	VersionNumber  int              `json:"versionNumber"`
	SafetyBackupID string           `json:"safetyBackupId,omitempty"`
	Errors         []string         `json:"errors,omitempty"`
	Guidance       []string         `json:"guidance,omitempty"`
	Workflow       *models.Workflow `json:"workflow,omitempty"`
}

// Restorer rolls workflows back to stored snapshots. Unlike the mutation
// pipeline's optional backup, the safety backup here is mandatory: a
// restore replaces the whole definition, so losing the current state would
// be unrecoverable.
type Restorer struct {
	platform  platform.Client
	validator *validation.Validator
	versions  *Versions
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

// NewRestorer creates a restore pipeline.
func NewRestorer(
	client platform.Client,
	validator *validation.Validator,
	versions *Versions,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Restorer {
	return &Restorer{
		platform:  client,
		validator: validator,
		versions:  versions,
		publisher: publisher,
		logger:    logger.With("module", "restore"),
	}
}

// Restore rolls the workflow back to the requested snapshot.
//
// The pipeline is: resolve the version, validate its snapshot, take a
// safety backup of the current state, push the snapshot. Validation and
// push failures are reported through the outcome status; a missing version
// or a failed safety backup is a hard error and nothing is pushed.
func (r *Restorer) Restore(ctx context.Context, req *RestoreRequest) (*RestoreOutcome, error) {
	if req.WorkflowID == "" {
		return nil, ErrEmptyWorkflowID
	}

	tracer := otel.Tracer("flowpatch")
	ctx, span := otelhelper.StartSpan(ctx, tracer, "restore.restore",
		attribute.String(otelhelper.WorkflowIDKey, req.WorkflowID),
		attribute.String(otelhelper.VersionIDKey, req.VersionID),
	)
	defer span.End()

	version, err := r.resolveVersion(ctx, req)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	outcome := &RestoreOutcome{
		VersionID:     version.ID,
		VersionNumber: version.VersionNumber,
	}

	if req.ShouldValidate() {
		check := r.validator.Validate(version.Snapshot)
		if !check.Valid() {
			outcome.Status = RestoreStatusRejected
			outcome.Errors = check.Errors
			outcome.Guidance = check.Guidance

			r.publishFailure(ctx, req.WorkflowID, version.ID, "snapshot failed structural validation", "")

			return outcome, nil
		}
	}

	current, err := r.platform.GetWorkflow(ctx, req.WorkflowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	safety, err := r.versions.CreateBackup(ctx, current,
		models.BackupTriggerPartialUpdate, nil,
		map[string]any{"reason": "pre-restore safety backup", "restoring_version": version.ID})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("refusing to restore without a safety backup: %w", err)
	}

	outcome.SafetyBackupID = safety.VersionID

	pushed, err := r.platform.UpdateWorkflow(ctx, req.WorkflowID, version.Snapshot)
	if err != nil {
		outcome.Status = RestoreStatusFailed
		outcome.Errors = []string{err.Error()}

		r.publishFailure(ctx, req.WorkflowID, version.ID, err.Error(), safety.VersionID)
		otelhelper.SetError(span, err)

		return outcome, nil
	}

	outcome.Status = RestoreStatusRestored
	outcome.Workflow = pushed

	r.publish(ctx, req.WorkflowID, events.WorkflowRestored{
		BaseEvent:      r.baseEvent(events.WorkflowRestoredEvent, req.WorkflowID),
		VersionID:      version.ID,
		VersionNumber:  version.VersionNumber,
		SafetyBackupID: safety.VersionID,
	})

	r.logger.InfoContext(ctx, "Restored workflow",
		"workflow_id", req.WorkflowID,
		"version_id", version.ID,
		"version_number", version.VersionNumber,
		"safety_backup_id", safety.VersionID)

	return outcome, nil
}

func (r *Restorer) resolveVersion(ctx context.Context, req *RestoreRequest) (*models.WorkflowVersion, error) {
	if req.VersionID == "" {
		return r.versions.persistence.LatestVersion(ctx, req.WorkflowID)
	}

	version, err := r.versions.Version(ctx, req.VersionID)
	if err != nil {
		return nil, err
	}

	if version.WorkflowID != req.WorkflowID {
		return nil, NewValidationError("Restore", "VERSION_MISMATCH",
			fmt.Sprintf("version %s belongs to workflow %s", version.ID, version.WorkflowID), ErrInvalidRequest)
	}

	return version, nil
}

func (r *Restorer) publishFailure(ctx context.Context, workflowID, versionID, reason, safetyBackupID string) {
	r.publish(ctx, workflowID, events.RestoreFailed{
		BaseEvent:      r.baseEvent(events.RestoreFailedEvent, workflowID),
		VersionID:      versionID,
		Reason:         reason,
		SafetyBackupID: safetyBackupID,
	})
}

func (r *Restorer) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	return events.BaseEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

func (r *Restorer) publish(ctx context.Context, key string, event eventbus.Event) {
	if r.publisher == nil {
		return
	}

	err := r.publisher.Publish(ctx, key, event)
	if err != nil {
		r.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "error", err)
	}
}
