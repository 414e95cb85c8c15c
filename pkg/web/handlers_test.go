package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/casaflow/casaflow/pkg/automation"
	"github.com/casaflow/casaflow/pkg/clients"
	"github.com/casaflow/casaflow/pkg/clients/capture"
	"github.com/casaflow/casaflow/pkg/cmd"
	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/persistence"
	"github.com/casaflow/casaflow/pkg/persistence/file"
	"github.com/casaflow/casaflow/pkg/registry"
	"github.com/casaflow/casaflow/pkg/services"
	"github.com/casaflow/casaflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) (*fiber.App, persistence.Persistence) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	p := file.NewPersistence(t.TempDir())
	reg := cmd.NewRegistry(logger, capture.NewRecorder().Set())

	automationService := services.NewAutomation(p, reg, logger)
	workflowService := services.NewWorkflow(p, reg, logger)
	tester := automation.NewTester(func(set *clients.Set) *registry.Registry {
		return cmd.NewRegistry(logger, set)
	}, logger)

	handlers := web.NewAPIHandlers(automationService, workflowService, tester, validator.New())

	app := fiber.New()
	web.RegisterRoutes(app, handlers)

	return app, p
}

func doJSON(t *testing.T, app *fiber.App, method, path string, payload any) (*http.Response, []byte) {
	t.Helper()

	var body []byte

	if str, ok := payload.(string); ok {
		body = []byte(str)
	} else if payload != nil {
		var err error

		body, err = json.Marshal(payload)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, respBody
}

func createAutomationPayload() web.CreateAutomationRequest {
	return web.CreateAutomationRequest{
		Name:        "Qualified deal task",
		TriggerType: models.TriggerDealStageChange,
		TriggerRules: map[string]any{
			"target_stage": "Qualified",
		},
		Conditions: []models.Condition{
			{Source: models.SourceTrigger, Field: "new_stage", Operator: models.OperatorEquals, Value: "Qualified"},
		},
		Actions: []models.ActionItem{
			{Type: "create_task", Parameters: map[string]any{"title": "Prepare proposal"}},
		},
		IsActive: true,
	}
}

func TestCreateAutomation(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/automations", createAutomationPayload())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Automation
	require.NoError(t, json.Unmarshal(body, &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Qualified deal task", created.Name)
	assert.True(t, created.IsActive)
}

func TestCreateAutomationValidation(t *testing.T) {
	app, _ := setupTestApp(t)

	payload := createAutomationPayload()
	payload.Name = "ab"

	resp, _ := doJSON(t, app, http.MethodPost, "/automations", payload)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, "/automations", "not-json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Active automation without actions is a service-level rejection.
	payload = createAutomationPayload()
	payload.Actions = nil

	resp, body := doJSON(t, app, http.MethodPost, "/automations", payload)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "action")
}

func TestUpdateAutomationPartial(t *testing.T) {
	app, _ := setupTestApp(t)

	_, body := doJSON(t, app, http.MethodPost, "/automations", createAutomationPayload())

	var created models.Automation
	require.NoError(t, json.Unmarshal(body, &created))

	newName := "Renamed automation"
	resp, body := doJSON(t, app, http.MethodPatch, "/automations/"+created.ID, web.UpdateAutomationRequest{
		Name: &newName,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated models.Automation
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, "Renamed automation", updated.Name)
	// Untouched fields survive the patch.
	assert.Equal(t, created.TriggerType, updated.TriggerType)
	assert.Len(t, updated.Actions, 1)
}

func TestGetAutomationNotFound(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/automations/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "automation_not_found")
}

func TestDeleteAutomation(t *testing.T) {
	app, _ := setupTestApp(t)

	_, body := doJSON(t, app, http.MethodPost, "/automations", createAutomationPayload())

	var created models.Automation
	require.NoError(t, json.Unmarshal(body, &created))

	resp, _ := doJSON(t, app, http.MethodDelete, "/automations/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodGet, "/automations/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTestAutomationDryRun(t *testing.T) {
	app, p := setupTestApp(t)

	_, body := doJSON(t, app, http.MethodPost, "/automations", createAutomationPayload())

	var created models.Automation
	require.NoError(t, json.Unmarshal(body, &created))

	resp, body := doJSON(t, app, http.MethodPost, "/automations/"+created.ID+"/test", web.TestAutomationRequest{
		Event: models.DomainEvent{
			Type: models.TriggerDealStageChange,
			Entity: models.EntityRef{
				ID:       "d1",
				Type:     "deal",
				Snapshot: map[string]any{"status": "Lead"},
			},
			Payload: map[string]any{"new_stage": "Qualified"},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result automation.TestResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.True(t, result.Matched)
	assert.True(t, result.ConditionsMet)
	require.Len(t, result.Calls, 1)
	assert.Equal(t, "create_task", result.Calls[0].Operation)

	// Dry runs never reach the ledger.
	records, err := p.Executions(context.Background(), persistence.ExecutionQuery{AutomationID: created.ID})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAutomationStats(t *testing.T) {
	app, p := setupTestApp(t)

	_, body := doJSON(t, app, http.MethodPost, "/automations", createAutomationPayload())

	var created models.Automation
	require.NoError(t, json.Unmarshal(body, &created))

	for _, status := range []models.ExecutionStatus{models.ExecutionSuccess, models.ExecutionFailed} {
		require.NoError(t, p.RecordExecution(context.Background(), &models.ExecutionRecord{
			ID:           string(status) + "-1",
			AutomationID: created.ID,
			EntityID:     "d1",
			EntityType:   "deal",
			TriggerType:  created.TriggerType,
			Status:       status,
			StartedAt:    time.Now().UTC(),
			DurationMs:   100,
		}))
	}

	resp, body := doJSON(t, app, http.MethodGet, "/automations/"+created.ID+"/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats models.ExecutionStats
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.EqualValues(t, 2, stats.TotalExecutions)
	assert.EqualValues(t, 1, stats.SuccessfulExecutions)
	assert.EqualValues(t, 1, stats.FailedExecutions)
	assert.InDelta(t, 0.5, stats.SuccessRate, 0.001)
}

func TestExecutionsEndpointFilters(t *testing.T) {
	app, p := setupTestApp(t)

	require.NoError(t, p.RecordExecution(context.Background(), &models.ExecutionRecord{
		ID:           "x1",
		AutomationID: "a1",
		EntityID:     "d1",
		EntityType:   "deal",
		TriggerType:  models.TriggerDealStageChange,
		Status:       models.ExecutionSuccess,
		StartedAt:    time.Now().UTC(),
	}))
	require.NoError(t, p.RecordExecution(context.Background(), &models.ExecutionRecord{
		ID:           "x2",
		AutomationID: "a2",
		EntityID:     "d2",
		EntityType:   "deal",
		TriggerType:  models.TriggerDealStageChange,
		Status:       models.ExecutionFailed,
		StartedAt:    time.Now().UTC(),
	}))

	resp, body := doJSON(t, app, http.MethodGet, "/executions?automation_id=a1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "x1")
	assert.NotContains(t, string(body), "x2")

	resp, body = doJSON(t, app, http.MethodGet, "/executions?status=failed", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "x2")
	assert.NotContains(t, string(body), "x1")
}

func TestCreateAndGetWorkflow(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/workflows", web.CreateWorkflowRequest{
		Name:        "Buyer onboarding",
		TriggerType: models.TriggerClientStatusChange,
		IsActive:    true,
		Steps: []models.WorkflowStep{
			{
				Name:      "welcome task",
				DelayDays: 1,
				Actions: []models.ActionItem{
					{Type: "create_task", Parameters: map[string]any{"title": "Welcome call"}},
				},
			},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Workflow
	require.NoError(t, json.Unmarshal(body, &created))
	assert.NotEmpty(t, created.ID)

	resp, body = doJSON(t, app, http.MethodGet, "/workflows/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var loaded models.Workflow
	require.NoError(t, json.Unmarshal(body, &loaded))
	assert.Len(t, loaded.Steps, 1)
}

func TestHealthCheck(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "healthy")
}
