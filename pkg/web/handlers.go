// Package web provides the HTTP handlers of the workflow API: workflow
// management, webhook ingestion, callback correlation, CARE events and
// execution history.
package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/nodes"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/services"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/triggers/care"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/triggers/webhook"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/spf13/cast"
)

type APIHandlers struct {
	workflowService  *services.Workflow
	executionService *services.Execution
	webhooks         *webhook.Trigger
	callbacks        *webhook.Correlator
	care             *care.Trigger
	runner           webhook.Starter
	validator        *validator.Validate
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	executionService *services.Execution,
	webhooks *webhook.Trigger,
	callbacks *webhook.Correlator,
	careTrigger *care.Trigger,
	runner webhook.Starter,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflowService:  workflowService,
		executionService: executionService,
		webhooks:         webhooks,
		callbacks:        callbacks,
		care:             careTrigger,
		runner:           runner,
		validator:        validator,
	}
}

// Register mounts every API route on router.
func (h *APIHandlers) Register(router fiber.Router) {
	api := router.Group("/api")

	w := api.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Post("/callbacks", h.DeliverCallback)
	w.Get("/:id", h.GetWorkflow)
	w.Put("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Post("/:id/connections", h.ConnectNodes)
	w.Delete("/:id/connections", h.DisconnectNodes)
	w.Post("/:id/activate", h.ActivateWorkflow)
	w.Post("/:id/deactivate", h.DeactivateWorkflow)
	w.Get("/:id/validate", h.ValidateWorkflow)
	w.Post("/:id/run", h.RunWorkflow)
	w.Post("/:id/webhook", h.FireWebhook)
	w.Get("/:id/executions", h.GetExecutions)

	api.Get("/executions/:id", h.GetExecution)
	api.Post("/care/events", h.ReceiveCareEvent)
	api.Get("/nodes", h.GetNodeCatalog)

	router.Get("/health", h.HealthCheck)
}

func tenantOf(c fiber.Ctx) string {
	return strings.TrimSpace(c.Get(TenantHeader))
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflowService.List(c.Context(), tenantOf(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	if workflows == nil {
		workflows = []*models.Workflow{}
	}

	return c.JSON(WorkflowListResponse{Workflows: workflows, TotalCount: len(workflows)})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.workflowService.FetchByID(c.Context(), tenantOf(c), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, ok := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Workflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		message = "Workflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req WorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflowService.Create(c.Context(), tenantOf(c), req.toModel())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req WorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.workflowService.Update(c.Context(), tenantOf(c), id, req.toModel())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.workflowService.Delete(c.Context(), tenantOf(c), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ConnectNodes(c fiber.Ctx) error {
	var req services.ConnectRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	updated, err := h.workflowService.Connect(c.Context(), tenantOf(c), c.Params("id"), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DisconnectNodes(c fiber.Ctx) error {
	from, to := c.Query("from"), c.Query("to")
	if from == "" || to == "" {
		return badRequest(c, "Query parameters 'from' and 'to' are required")
	}

	updated, err := h.workflowService.Disconnect(c.Context(), tenantOf(c), c.Params("id"), from, to)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) ActivateWorkflow(c fiber.Ctx) error {
	return h.setActive(c, true)
}

func (h *APIHandlers) DeactivateWorkflow(c fiber.Ctx) error {
	return h.setActive(c, false)
}

func (h *APIHandlers) setActive(c fiber.Ctx, active bool) error {
	updated, err := h.workflowService.SetActive(c.Context(), tenantOf(c), c.Params("id"), active)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) ValidateWorkflow(c fiber.Ctx) error {
	problems, err := h.workflowService.Validate(c.Context(), tenantOf(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ValidationResponse{Valid: len(problems) == 0, Problems: problems})
}

// RunWorkflow starts an active workflow by hand with origin "manual".
func (h *APIHandlers) RunWorkflow(c fiber.Ctx) error {
	var req RunWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	wf, err := h.workflowService.FetchByID(c.Context(), tenantOf(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if req.TriggerData == nil {
		req.TriggerData = map[string]any{}
	}

	execution, err := h.runner.Start(c.Context(), workflow.StartRequest{
		Workflow:    wf,
		TriggerData: req.TriggerData,
		Origin:      models.ActionOriginManual,
		Shadow:      req.Shadow,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(execution)
}

// FireWebhook ingests any JSON object for a webhook_trigger workflow. The
// response is sent once the execution finished or suspended.
func (h *APIHandlers) FireWebhook(c fiber.Ctx) error {
	body := map[string]any{}
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&body); err != nil {
			return badRequest(c, "Webhook body must be a JSON object")
		}
	}

	execution, err := h.webhooks.Fire(c.Context(), c.Params("id"), body)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

// DeliverCallback resumes the executions waiting for the correlation key
// carried by an inbound provider callback. The tenant comes from the body,
// falling back to the tenant header.
func (h *APIHandlers) DeliverCallback(c fiber.Ctx) error {
	payload := map[string]any{}
	if err := c.Bind().JSON(&payload); err != nil {
		return badRequest(c, "Callback body must be a JSON object")
	}

	tenantID := cast.ToString(payload["tenant_id"])
	if tenantID == "" {
		tenantID = tenantOf(c)
	}

	if tenantID == "" {
		return badRequest(c, "tenant_id is required")
	}

	resumed, err := h.callbacks.Deliver(c.Context(), tenantID, payload)
	if err != nil {
		return handleServiceError(c, err)
	}

	if resumed == nil {
		resumed = []string{}
	}

	return c.JSON(CallbackResponse{Resumed: resumed})
}

// ReceiveCareEvent routes a CARE event to the care_trigger workflows. Events
// that match no workflow of their tenant are acknowledged without executions.
func (h *APIHandlers) ReceiveCareEvent(c fiber.Ctx) error {
	var event models.CareEvent
	if err := c.Bind().JSON(&event); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	outcomes, err := h.care.Handle(c.Context(), event)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(CareEventResponse{Outcomes: outcomes})
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	req := services.ListExecutionsRequest{
		TenantID:     tenantOf(c),
		WorkflowID:   c.Params("id"),
		ActionOrigin: models.ActionOrigin(c.Query("action_origin")),
		Status:       models.ExecutionStatus(c.Query("status")),
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "Invalid query parameters: limit must be a number")
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return badRequest(c, "Invalid query parameters: offset must be a number")
		}

		req.Offset = offset
	}

	page, err := h.executionService.List(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(page)
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.executionService.FetchByID(c.Context(), tenantOf(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetNodeCatalog(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"nodes": nodes.Catalog()})
}
