package diff

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowpatch/flowpatch/pkg/models"
)

// Engine applies ordered operation batches to a deep copy of a workflow.
// The input workflow is never mutated: in atomic mode a failed batch
// returns it byte-for-byte untouched, and in best-effort mode the partially
// mutated copy is returned alongside per-operation failures.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates a new diff engine.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{
		logger: logger.With("module", "diff"),
	}
}

// Apply runs the batch described by req against workflow.
//
// Atomic mode (ContinueOnError=false, the default) stops at the first
// failing operation and reports Success=false with the original workflow.
// Best-effort mode records failures by index and keeps going; the result is
// Success=true as long as at least one operation applied.
func (e *Engine) Apply(ctx context.Context, workflow *models.Workflow, req *models.DiffRequest) (*models.DiffResult, error) {
	working, err := workflow.Clone()
	if err != nil {
		return nil, err
	}

	result := &models.DiffResult{
		Applied: make([]int, 0, len(req.Operations)),
	}

	for i, op := range req.Operations {
		warning, opErr := e.applyOperation(working, op)
		if warning != "" {
			result.Warnings = append(result.Warnings, warning)
		}

		if opErr == nil {
			result.Applied = append(result.Applied, i)

			continue
		}

		failure := &OperationError{Index: i, Type: op.OperationType(), Err: opErr}

		if !req.ContinueOnError {
			e.logger.DebugContext(ctx, "Aborting atomic batch",
				"workflow_id", workflow.ID, "index", i, "operation", op.OperationType(), "error", opErr)

			return &models.DiffResult{
				Success:  false,
				Workflow: workflow,
				Applied:  []int{},
				Failed: []models.OperationFailure{{
					Index:   i,
					Type:    string(op.OperationType()),
					Message: opErr.Error(),
				}},
				Errors: []string{failure.Error()},
			}, nil
		}

		result.Failed = append(result.Failed, models.OperationFailure{
			Index:   i,
			Type:    string(op.OperationType()),
			Message: opErr.Error(),
		})
		result.Errors = append(result.Errors, failure.Error())
	}

	result.OperationsApplied = len(result.Applied)
	result.Success = result.OperationsApplied > 0 || len(req.Operations) == 0
	result.Workflow = working

	if !result.Success {
		// Best-effort batch where nothing applied; hand back the original.
		result.Workflow = workflow
	}

	return result, nil
}

func (e *Engine) applyOperation(workflow *models.Workflow, op models.DiffOperation) (string, error) {
	switch o := op.(type) {
	case *models.AddNodeOperation:
		return "", applyAddNode(workflow, o)
	case *models.RemoveNodeOperation:
		return "", applyRemoveNode(workflow, o)
	case *models.UpdateNodeOperation:
		return "", applyUpdateNode(workflow, o)
	case *models.MoveNodeOperation:
		return "", applyMoveNode(workflow, o)
	case *models.EnableNodeOperation:
		return "", applySetDisabled(workflow, o.NodeRef, false)
	case *models.DisableNodeOperation:
		return "", applySetDisabled(workflow, o.NodeRef, true)
	case *models.AddConnectionOperation:
		return "", applyAddConnection(workflow, o)
	case *models.RemoveConnectionOperation:
		return "", applyRemoveConnection(workflow, o)
	case *models.ReplaceConnectionsOperation:
		return "", applyReplaceConnections(workflow, o)
	case *models.RewireConnectionOperation:
		return "", applyRewireConnection(workflow, o)
	case *models.CleanStaleConnectionsOperation:
		removed := applyCleanStaleConnections(workflow, o)
		if o.DryRun {
			return fmt.Sprintf("cleanStaleConnections dry run: %d stale connections would be removed", removed), nil
		}

		if removed > 0 {
			return fmt.Sprintf("cleanStaleConnections removed %d stale connections", removed), nil
		}

		return "", nil
	case *models.UpdateSettingsOperation:
		return "", applyUpdateSettings(workflow, o)
	case *models.UpdateNameOperation:
		return "", applyUpdateName(workflow, o)
	case *models.AddTagOperation:
		return "", applyAddTag(workflow, o)
	case *models.RemoveTagOperation:
		return "", applyRemoveTag(workflow, o)
	default:
		return "", fmt.Errorf("%w: unhandled operation type %q", ErrInvalidOperation, op.OperationType())
	}
}
