// Package rest implements the collaborator ports against the CRM's
// internal REST APIs.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/casaflow/casaflow/pkg/clients"
	"github.com/casaflow/casaflow/pkg/protocol"
)

const defaultTimeout = 10 * time.Second

// Client talks to the CRM backend. One instance implements all three
// collaborator ports since they share the same base URL and auth.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

func NewClient(baseURL, authToken string) *Client {
	return &Client{
		baseURL:   baseURL,
		authToken: authToken,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// Set returns a collaborator set backed by this client.
func (c *Client) Set() *clients.Set {
	return &clients.Set{
		Tasks:     c,
		Messaging: c,
		Entities:  c,
	}
}

func (c *Client) CreateTask(ctx context.Context, task clients.Task) (string, error) {
	var created struct {
		ID string `json:"id"`
	}

	err := c.do(ctx, http.MethodPost, "/api/tasks", task, &created)
	if err != nil {
		return "", err
	}

	return created.ID, nil
}

func (c *Client) CreateNote(ctx context.Context, note clients.Note) (string, error) {
	var created struct {
		ID string `json:"id"`
	}

	err := c.do(ctx, http.MethodPost, "/api/notes", note, &created)
	if err != nil {
		return "", err
	}

	return created.ID, nil
}

func (c *Client) SendEmail(ctx context.Context, email clients.Email) error {
	return c.do(ctx, http.MethodPost, "/api/messages/email", email, nil)
}

func (c *Client) SendSMS(ctx context.Context, sms clients.SMS) error {
	return c.do(ctx, http.MethodPost, "/api/messages/sms", sms, nil)
}

func (c *Client) GetEntity(ctx context.Context, entityType, entityID string) (map[string]any, error) {
	var snapshot map[string]any

	err := c.do(ctx, http.MethodGet, "/api/"+entityType+"s/"+entityID, nil, &snapshot)
	if err != nil {
		return nil, err
	}

	return snapshot, nil
}

func (c *Client) UpdateStatus(ctx context.Context, entityType, entityID, status string) error {
	body := map[string]any{"status": status}

	return c.do(ctx, http.MethodPatch, "/api/"+entityType+"s/"+entityID, body, nil)
}

func (c *Client) UpdateScore(ctx context.Context, entityType, entityID string, delta float64) error {
	body := map[string]any{"score_delta": delta}

	return c.do(ctx, http.MethodPatch, "/api/"+entityType+"s/"+entityID+"/score", body, nil)
}

func (c *Client) MoveToStage(ctx context.Context, dealID, stage string) error {
	body := map[string]any{"stage": stage}

	return c.do(ctx, http.MethodPatch, "/api/deals/"+dealID+"/stage", body, nil)
}

func (c *Client) AssignToUser(ctx context.Context, entityType, entityID, userID string) error {
	body := map[string]any{"assigned_to": userID}

	return c.do(ctx, http.MethodPatch, "/api/"+entityType+"s/"+entityID+"/assignee", body, nil)
}

// do performs one JSON request. Network errors, timeouts and 5xx
// responses are wrapped as transient so the dispatcher retries them;
// 4xx responses are permanent.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}

		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w: %w", method, path, err, protocol.ErrTransient)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("request %s %s returned status %d: %w", method, path, resp.StatusCode, protocol.ErrTransient)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("request %s %s returned status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
