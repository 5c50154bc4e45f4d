// Package web exposes the mutation and version store pipelines over a
// REST API.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/flowpatch/flowpatch/pkg/diff"
	"github.com/flowpatch/flowpatch/pkg/models"
	"github.com/flowpatch/flowpatch/pkg/platform"
	"github.com/flowpatch/flowpatch/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	mutations *services.Mutations
	restorer  *services.Restorer
	versions  *services.Versions
	platform  platform.Client
	schemas   *diff.SchemaSet
	validator *validator.Validate
}

func NewAPIHandlers(
	mutations *services.Mutations,
	restorer *services.Restorer,
	versions *services.Versions,
	client platform.Client,
	schemas *diff.SchemaSet,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		mutations: mutations,
		restorer:  restorer,
		versions:  versions,
		platform:  client,
		schemas:   schemas,
		validator: validator,
	}
}

// ApplyDiff applies one ordered operation batch against a workflow.
func (h *APIHandlers) ApplyDiff(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req ApplyDiffRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	operations, err := h.schemas.DecodeOperations(req.Operations)
	if err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.mutations.ApplyDiff(c.Context(), &models.DiffRequest{
		WorkflowID:      workflowID,
		Operations:      operations,
		ValidateOnly:    req.ValidateOnly,
		ContinueOnError: req.ContinueOnError,
		CreateBackup:    req.CreateBackup,
		Intent:          req.Intent,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

// CreateBackup snapshots the workflow's current platform state on demand.
func (h *APIHandlers) CreateBackup(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req CreateBackupRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	trigger := models.BackupTrigger(req.Trigger)
	if trigger == "" {
		trigger = models.BackupTriggerFullUpdate
	}

	workflow, err := h.platform.GetWorkflow(c.Context(), workflowID)
	if err != nil {
		return handleServiceError(c, err)
	}

	backup, err := h.versions.CreateBackup(c.Context(), workflow, trigger, nil, req.Metadata)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(backup)
}

// GetVersionHistory lists stored versions newest first, snapshots elided.
func (h *APIHandlers) GetVersionHistory(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	limit := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "Invalid limit parameter")
		}

		limit = parsed
	}

	history, err := h.versions.VersionHistory(c.Context(), workflowID, limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflowId": workflowID,
		"versions":   history,
	})
}

// GetVersion returns one full version including its snapshot.
func (h *APIHandlers) GetVersion(c fiber.Ctx) error {
	versionID := c.Params("versionId")
	if versionID == "" {
		return badRequest(c, "Version ID is required")
	}

	version, err := h.versions.Version(c.Context(), versionID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(version)
}

// DeleteVersion removes one stored version.
func (h *APIHandlers) DeleteVersion(c fiber.Ctx) error {
	versionID := c.Params("versionId")
	if versionID == "" {
		return badRequest(c, "Version ID is required")
	}

	err := h.versions.DeleteVersion(c.Context(), versionID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// DeleteWorkflowVersions wipes one workflow's full history.
func (h *APIHandlers) DeleteWorkflowVersions(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	deleted, err := h.versions.DeleteAllVersions(c.Context(), workflowID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"deleted": deleted})
}

// PruneVersions trims one workflow's history to the requested bound.
func (h *APIHandlers) PruneVersions(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req PruneRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	pruned, err := h.versions.PruneVersions(c.Context(), workflowID, req.MaxVersions)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"pruned": pruned})
}

// TruncateVersions deletes every stored version of every workflow. Without
// confirm=true the store is untouched and the response says so.
func (h *APIHandlers) TruncateVersions(c fiber.Ctx) error {
	var req TruncateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	result, err := h.versions.TruncateAllVersions(c.Context(), req.Confirm)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

// RestoreWorkflow rolls the workflow back to a stored snapshot.
func (h *APIHandlers) RestoreWorkflow(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req RestoreRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	outcome, err := h.restorer.Restore(c.Context(), &services.RestoreRequest{
		WorkflowID:     workflowID,
		VersionID:      req.VersionID,
		ValidateBefore: req.ValidateBefore,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(outcome)
}

// CompareVersions reports the structural difference between two snapshots.
func (h *APIHandlers) CompareVersions(c fiber.Ctx) error {
	fromID := c.Query("from")
	toID := c.Query("to")

	if fromID == "" || toID == "" {
		return badRequest(c, "Both from and to version IDs are required")
	}

	versionDiff, err := h.versions.CompareVersions(c.Context(), fromID, toID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(versionDiff)
}

// GetStorageStats aggregates version counts and sizes per workflow.
func (h *APIHandlers) GetStorageStats(c fiber.Ctx) error {
	stats, err := h.versions.StorageStats(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(stats)
}

// ActivateWorkflow enables the workflow on the platform.
func (h *APIHandlers) ActivateWorkflow(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	err := h.platform.ActivateWorkflow(c.Context(), workflowID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"id": workflowID, "active": true})
}

// DeactivateWorkflow disables the workflow on the platform.
func (h *APIHandlers) DeactivateWorkflow(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	err := h.platform.DeactivateWorkflow(c.Context(), workflowID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"id": workflowID, "active": false})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	storeCheck, storeOk := h.versions.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Flowpatch API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if storeOk {
		status = "healthy"
		message = "Flowpatch API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"version_store": storeCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
