package web

import (
	"errors"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/services"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/triggers/webhook"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/workflow"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// problemWithDetails carries builder problems alongside the RFC 7807 fields.
type problemWithDetails struct {
	*problems.Problem

	Problems any `json:"problems,omitempty"`
}

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

// handleServiceError maps service, trigger and engine errors to problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	var (
		invalidWorkflow *services.InvalidWorkflowError
		schemaErr       *webhook.SchemaError
		validationErr   *workflow.ValidationError
	)

	switch {
	case errors.As(err, &schemaErr):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("payload_schema_mismatch").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problemWithDetails{Problem: problem, Problems: schemaErr.Problems})

	case services.IsValidationError(err), errors.As(err, &validationErr):
		return badRequest(c, err.Error())

	case errors.As(err, &invalidWorkflow):
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType("invalid_workflow").
			WithDetail(err.Error())

		return c.Status(fiber.StatusUnprocessableEntity).JSON(problemWithDetails{Problem: problem, Problems: invalidWorkflow.Problems})

	case services.IsNotFoundError(err):
		return notFound(c, err.Error())

	case errors.Is(err, workflow.ErrWorkflowInactive), errors.Is(err, webhook.ErrNotWebhookWorkflow):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	default:
		return internalError(c, err)
	}
}
