package web

import (
	"github.com/flowpatch/flowpatch/pkg/platform"
	"github.com/flowpatch/flowpatch/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError provides typed error handling for service layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case services.IsNotFound(err):
		return notFound(c, err.Error())

	case services.IsConfirmationRequired(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("confirmation_required").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case services.IsStructuralError(err):
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType("structural_validation_failed").
			WithDetail(err.Error())

		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)

	case platform.IsUpstreamError(err):
		problem := problems.NewStatusProblem(502).
			WithInstance(c.Path()).
			WithType("upstream_error").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadGateway).JSON(problem)

	default:
		// Unexpected errors stay opaque to the client
		return internalError(c, err)
	}
}
