// Package web provides the REST API handlers for automation and
// workflow management.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/casaflow/casaflow/pkg/automation"
	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/persistence"
	"github.com/casaflow/casaflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	automationService *services.Automation
	workflowService   *services.Workflow
	tester            *automation.Tester
	validator         *validator.Validate
}

func NewAPIHandlers(
	automationService *services.Automation,
	workflowService *services.Workflow,
	tester *automation.Tester,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		automationService: automationService,
		workflowService:   workflowService,
		tester:            tester,
		validator:         validator,
	}
}

// RegisterRoutes mounts every API route on the app. The API server and
// the handler tests share this wiring.
func RegisterRoutes(app *fiber.App, handlers *APIHandlers) {
	a := app.Group("/automations")
	a.Get("/", handlers.GetAutomations)
	a.Post("/", handlers.CreateAutomation)
	a.Get("/:id", handlers.GetAutomation)
	a.Patch("/:id", handlers.UpdateAutomation)
	a.Delete("/:id", handlers.DeleteAutomation)
	a.Get("/:id/stats", handlers.GetAutomationStats)
	a.Post("/:id/test", handlers.TestAutomation)

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Get("/:id/stats", handlers.GetWorkflowStats)

	app.Get("/executions", handlers.GetExecutions)
	app.Get("/entities/:entityId/enrollments", handlers.GetEnrollments)
	app.Get("/health", handlers.HealthCheck)
}

func (h *APIHandlers) GetAutomations(c fiber.Ctx) error {
	limit, offset, err := parsePagination(c)
	if err != nil {
		return badRequest(c, "Invalid pagination parameters: "+err.Error())
	}

	automations, err := h.automationService.List(c.Context(), limit, offset)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"automations": automations,
		"pagination": fiber.Map{
			"limit":  limit,
			"offset": offset,
		},
	})
}

func (h *APIHandlers) GetAutomation(c fiber.Ctx) error {
	automation, err := h.automationService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(automation)
}

func (h *APIHandlers) CreateAutomation(c fiber.Ctx) error {
	var req CreateAutomationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.automationService.Save(c.Context(), &models.Automation{
		Name:         req.Name,
		Description:  req.Description,
		TriggerType:  req.TriggerType,
		TriggerRules: req.TriggerRules,
		Conditions:   req.Conditions,
		Actions:      req.Actions,
		Priority:     req.Priority,
		IsActive:     req.IsActive,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateAutomation(c fiber.Ctx) error {
	var req UpdateAutomationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.automationService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.Description != nil {
		existing.Description = *req.Description
	}

	if req.TriggerType != nil {
		existing.TriggerType = *req.TriggerType
	}

	if req.TriggerRules != nil {
		existing.TriggerRules = req.TriggerRules
	}

	if req.Conditions != nil {
		existing.Conditions = req.Conditions
	}

	if req.Actions != nil {
		existing.Actions = req.Actions
	}

	if req.Priority != nil {
		existing.Priority = *req.Priority
	}

	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}

	updated, err := h.automationService.Save(c.Context(), existing)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteAutomation(c fiber.Ctx) error {
	err := h.automationService.Delete(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// GetAutomationStats aggregates the automation's ledger entries. An
// optional since query parameter (RFC 3339) bounds the window.
func (h *APIHandlers) GetAutomationStats(c fiber.Ctx) error {
	since, err := parseSince(c)
	if err != nil {
		return badRequest(c, "Invalid since parameter: "+err.Error())
	}

	stats, err := h.automationService.Stats(c.Context(), c.Params("id"), since)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(stats)
}

// TestAutomation dry-runs the stored automation against a sample event.
// Nothing is persisted and no collaborator is called for real.
func (h *APIHandlers) TestAutomation(c fiber.Ctx) error {
	var req TestAutomationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if req.Event.Type == "" {
		return badRequest(c, "Sample event requires a type")
	}

	stored, err := h.automationService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(h.tester.Run(c.Context(), stored, req.Event))
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	limit, offset, err := parsePagination(c)
	if err != nil {
		return badRequest(c, "Invalid pagination parameters: "+err.Error())
	}

	workflows, err := h.workflowService.List(c.Context(), limit, offset)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows": workflows,
		"pagination": fiber.Map{
			"limit":  limit,
			"offset": offset,
		},
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflowService.Save(c.Context(), &models.Workflow{
		Name:         req.Name,
		Description:  req.Description,
		Category:     req.Category,
		TriggerType:  req.TriggerType,
		TriggerRules: req.TriggerRules,
		Steps:        req.Steps,
		IsActive:     req.IsActive,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.workflowService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.Description != nil {
		existing.Description = *req.Description
	}

	if req.Category != nil {
		existing.Category = *req.Category
	}

	if req.TriggerType != nil {
		existing.TriggerType = *req.TriggerType
	}

	if req.TriggerRules != nil {
		existing.TriggerRules = req.TriggerRules
	}

	if req.Steps != nil {
		existing.Steps = req.Steps
	}

	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}

	updated, err := h.workflowService.Save(c.Context(), existing)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	err := h.workflowService.Delete(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetWorkflowStats(c fiber.Ctx) error {
	since, err := parseSince(c)
	if err != nil {
		return badRequest(c, "Invalid since parameter: "+err.Error())
	}

	stats, err := h.workflowService.Stats(c.Context(), c.Params("id"), since)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(stats)
}

// GetExecutions returns ledger entries filtered by automation_id,
// workflow_id, entity_id and status query parameters.
func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	limit, offset, err := parsePagination(c)
	if err != nil {
		return badRequest(c, "Invalid pagination parameters: "+err.Error())
	}

	query := persistence.ExecutionQuery{
		AutomationID: c.Query("automation_id"),
		WorkflowID:   c.Query("workflow_id"),
		EntityID:     c.Query("entity_id"),
		Status:       models.ExecutionStatus(c.Query("status")),
		Limit:        limit,
		Offset:       offset,
	}

	records, err := h.automationService.Executions(c.Context(), query)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions": records,
		"pagination": fiber.Map{
			"limit":  limit,
			"offset": offset,
		},
	})
}

func (h *APIHandlers) GetEnrollments(c fiber.Ctx) error {
	enrollments, err := h.workflowService.Enrollments(c.Context(), c.Params("entityId"))
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"enrollments": enrollments})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.automationService.HealthCheck(c.Context())

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func parsePagination(c fiber.Ctx) (int, int, error) {
	limit := 0
	offset := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return 0, 0, err
		}

		limit = parsed
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		parsed, err := strconv.Atoi(offsetStr)
		if err != nil {
			return 0, 0, err
		}

		offset = parsed
	}

	return limit, offset, nil
}

func parseSince(c fiber.Ctx) (time.Time, error) {
	sinceStr := c.Query("since")
	if sinceStr == "" {
		return time.Time{}, nil
	}

	return time.Parse(time.RFC3339, sinceStr)
}
