// Package webhook provides the outbound HTTP webhook action.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/protocol"
	"github.com/casaflow/casaflow/pkg/template"
)

// The timeout bounds how long the dispatcher can be blocked by a slow
// receiver.
const defaultTimeoutSeconds = 10

var (
	// ErrURLRequired is returned when the webhook URL is missing.
	ErrURLRequired = errors.New("webhook requires a 'url' parameter")
	// ErrMethodInvalid is returned for an unsupported HTTP method.
	ErrMethodInvalid = errors.New("invalid webhook HTTP method")
)

var allowedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// Action calls an external URL with the serialized execution context
// plus any static payload configured on the automation.
type Action struct {
	URL     string
	Method  string
	Headers map[string]string
	Payload map[string]any
	Timeout time.Duration
}

func NewAction(params map[string]any) (*Action, error) {
	url, _ := params["url"].(string)
	if url == "" {
		return nil, ErrURLRequired
	}

	method, _ := params["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	method = strings.ToUpper(method)
	if !allowedMethods[method] {
		return nil, fmt.Errorf("%w: %s", ErrMethodInvalid, method)
	}

	headers := make(map[string]string)

	if headersParam, exists := params["headers"].(map[string]any); exists {
		for k, v := range headersParam {
			if s, ok := v.(string); ok {
				headers[k] = s
			}
		}
	}

	payload, _ := params["payload"].(map[string]any)

	timeout := defaultTimeoutSeconds * time.Second
	if seconds, ok := params["timeout_seconds"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds * float64(time.Second))
	}

	return &Action{
		URL:     url,
		Method:  method,
		Headers: headers,
		Payload: payload,
		Timeout: timeout,
	}, nil
}

func (a *Action) Validate(_ context.Context) error {
	if a.URL == "" {
		return ErrURLRequired
	}

	if !allowedMethods[a.Method] {
		return fmt.Errorf("%w: %s", ErrMethodInvalid, a.Method)
	}

	return nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("action_type", "webhook", "url", a.URL)

	req, err := a.buildRequest(ctx, executionCtx)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: a.Timeout}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook call failed: %w: %w", err, protocol.ErrTransient)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("webhook returned status %d: %w", resp.StatusCode, protocol.ErrTransient)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return a.processResponse(ctx, resp, logger)
}

func (a *Action) buildRequest(ctx context.Context, executionCtx models.ExecutionContext) (*http.Request, error) {
	body := map[string]any{
		"execution_id": executionCtx.ID,
		"event":        executionCtx.Event,
	}

	for k, v := range template.RenderParameters(a.Payload, &executionCtx) {
		body[k] = v
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal webhook body: %w", err)
	}

	url := template.RenderWithContext(a.URL, &executionCtx)

	req, err := http.NewRequestWithContext(ctx, a.Method, url, strings.NewReader(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	for key, value := range a.Headers {
		req.Header.Set(key, template.RenderWithContext(value, &executionCtx))
	}

	return req, nil
}

func (a *Action) processResponse(ctx context.Context, resp *http.Response, logger *slog.Logger) (any, error) {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook response: %w", err)
	}

	var body any

	err = json.Unmarshal(bodyBytes, &body)
	if err != nil {
		body = string(bodyBytes)
	}

	logger.InfoContext(ctx, "Webhook completed", "status_code", resp.StatusCode, "body_length", len(bodyBytes))

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        body,
	}, nil
}
