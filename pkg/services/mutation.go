package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/flowpatch/flowpatch/pkg/diff"
	"github.com/flowpatch/flowpatch/pkg/eventbus"
	"github.com/flowpatch/flowpatch/pkg/events"
	"github.com/flowpatch/flowpatch/pkg/models"
	"github.com/flowpatch/flowpatch/pkg/otelhelper"
	"github.com/flowpatch/flowpatch/pkg/platform"
	"github.com/flowpatch/flowpatch/pkg/validation"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Mutations is the diff application pipeline: fetch, backup, apply,
// validate, push.
//
// There is no lock between fetch and push; two concurrent batches against
// the same workflow race and the later push wins. The pre-apply backup is
// what makes that recoverable.
type Mutations struct {
	platform       platform.Client
	engine         *diff.Engine
	validator      *validation.Validator
	versions       *Versions
	publisher      eventbus.EventPublisher
	logger         *slog.Logger
	skipValidation bool
}

// NewMutations creates the mutation pipeline. skipValidation disables the
// whole-graph check before pushing; it exists for operators recovering a
// workflow that is already broken upstream.
func NewMutations(
	client platform.Client,
	engine *diff.Engine,
	validator *validation.Validator,
	versions *Versions,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	skipValidation bool,
) *Mutations {
	return &Mutations{
		platform:       client,
		engine:         engine,
		validator:      validator,
		versions:       versions,
		publisher:      publisher,
		logger:         logger.With("module", "mutations"),
		skipValidation: skipValidation,
	}
}

// ApplyDiff runs one operation batch end to end. On success the mutated
// workflow has been pushed to the platform; any failure before the push
// leaves the platform untouched.
func (m *Mutations) ApplyDiff(ctx context.Context, req *models.DiffRequest) (*models.DiffResult, error) {
	if req.WorkflowID == "" {
		return nil, ErrEmptyWorkflowID
	}

	if len(req.Operations) == 0 {
		return nil, ErrNoOperations
	}

	tracer := otel.Tracer("flowpatch")
	ctx, span := otelhelper.StartSpan(ctx, tracer, "mutations.apply_diff",
		attribute.String(otelhelper.WorkflowIDKey, req.WorkflowID),
		attribute.Int(otelhelper.OperationCountKey, len(req.Operations)),
	)
	defer span.End()

	if req.ValidateOnly {
		return m.validateOnly(ctx, req)
	}

	workflow, err := m.platform.GetWorkflow(ctx, req.WorkflowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	var backupID string

	var backupWarning string

	if req.ShouldBackup() {
		backup, err := m.versions.CreateBackup(ctx, workflow,
			models.BackupTriggerPartialUpdate, models.OperationNames(req.Operations), backupMetadata(req.Intent))
		if err != nil {
			// A failed backup does not block the mutation; the caller asked
			// for a change, not a snapshot.
			m.logger.WarnContext(ctx, "Failed to create pre-apply backup",
				"workflow_id", req.WorkflowID, "error", err)

			backupWarning = "pre-apply backup failed: " + err.Error()
		} else {
			backupID = backup.VersionID
		}
	}

	result, err := m.engine.Apply(ctx, workflow, req)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if backupWarning != "" {
		result.Warnings = append(result.Warnings, backupWarning)
	}

	if !result.Success {
		return result, nil
	}

	if !m.validate(ctx, result) {
		return result, nil
	}

	pushed, err := m.platform.UpdateWorkflow(ctx, req.WorkflowID, result.Workflow)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	result.Workflow = pushed

	m.publish(ctx, req.WorkflowID, events.WorkflowMutated{
		BaseEvent:         m.baseEvent(events.WorkflowMutatedEvent, req.WorkflowID, req.Intent),
		OperationsApplied: result.OperationsApplied,
		Operations:        models.OperationNames(req.Operations),
		Intent:            req.Intent,
		BackupVersionID:   backupID,
	})

	m.logger.InfoContext(ctx, "Applied diff batch",
		"workflow_id", req.WorkflowID,
		"operations_applied", result.OperationsApplied,
		"failed", len(result.Failed))

	return result, nil
}

// validateOnly dry-applies the batch against the current workflow. Nothing
// is stored or pushed, so there is no backup either.
func (m *Mutations) validateOnly(ctx context.Context, req *models.DiffRequest) (*models.DiffResult, error) {
	workflow, err := m.platform.GetWorkflow(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	result, err := m.engine.Apply(ctx, workflow, req)
	if err != nil {
		return nil, err
	}

	if result.Success {
		m.validate(ctx, result)
	}

	return result, nil
}

// validate folds whole-graph findings into the result. It returns false
// when the graph was rejected and must not be pushed.
func (m *Mutations) validate(ctx context.Context, result *models.DiffResult) bool {
	if m.skipValidation {
		m.logger.WarnContext(ctx, "Structural validation disabled by configuration")
		result.Warnings = append(result.Warnings, "structural validation was skipped")

		return true
	}

	check := m.validator.Validate(result.Workflow)
	if check.Valid() {
		return true
	}

	result.Success = false
	result.Errors = append(result.Errors, check.Errors...)
	result.Guidance = append(result.Guidance, check.Guidance...)

	return false
}

func (m *Mutations) baseEvent(eventType events.EventType, workflowID, intent string) events.BaseEvent {
	event := events.BaseEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}

	if intent != "" {
		event.Metadata = map[string]any{"intent": intent}
	}

	return event
}

func (m *Mutations) publish(ctx context.Context, key string, event eventbus.Event) {
	if m.publisher == nil {
		return
	}

	err := m.publisher.Publish(ctx, key, event)
	if err != nil {
		m.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "error", err)
	}
}

func backupMetadata(intent string) map[string]any {
	if intent == "" {
		return nil
	}

	return map[string]any{"intent": intent}
}
