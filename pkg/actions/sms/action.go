// Package sms provides the send_sms action.
package sms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/casaflow/casaflow/pkg/clients"
	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/protocol"
	"github.com/casaflow/casaflow/pkg/template"
)

var (
	// ErrRecipientRequired is returned when the 'to' parameter is missing.
	ErrRecipientRequired = errors.New("send_sms requires a 'to' parameter")
	// ErrBodyRequired is returned when the message body is missing.
	ErrBodyRequired = errors.New("send_sms requires a 'body' parameter")
	// ErrRecipientUnresolved is returned when the recipient template
	// renders empty at execution time.
	ErrRecipientUnresolved = errors.New("sms recipient resolved to empty string")
)

type Action struct {
	To   string
	Body string

	messaging clients.MessagingClient
}

func NewAction(params map[string]any, messaging clients.MessagingClient) (*Action, error) {
	to, _ := params["to"].(string)
	if to == "" {
		return nil, ErrRecipientRequired
	}

	body, _ := params["body"].(string)
	if body == "" {
		return nil, ErrBodyRequired
	}

	return &Action{To: to, Body: body, messaging: messaging}, nil
}

func (a *Action) Validate(_ context.Context) error {
	if a.To == "" {
		return ErrRecipientRequired
	}

	if a.Body == "" {
		return ErrBodyRequired
	}

	return nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("action_type", "send_sms")

	to := template.RenderWithContext(a.To, &executionCtx)
	if to == "" {
		return nil, ErrRecipientUnresolved
	}

	message := clients.SMS{
		To:   to,
		Body: template.RenderWithContext(a.Body, &executionCtx),
	}

	err := a.messaging.SendSMS(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("failed to send sms: %w", err)
	}

	logger.InfoContext(ctx, "SMS sent", "to", to)

	return map[string]any{"to": to}, nil
}

type Factory struct {
	messaging clients.MessagingClient
}

func NewFactory(messaging clients.MessagingClient) *Factory {
	return &Factory{messaging: messaging}
}

func (f *Factory) ID() string {
	return "send_sms"
}

func (f *Factory) Create(_ context.Context, params map[string]any) (protocol.Action, error) {
	return NewAction(params, f.messaging)
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Recipient phone number. Usually {{client.phone}}.",
			},
			"body": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Message text. Supports placeholders.",
			},
		},
		"required":             []string{"to", "body"},
		"additionalProperties": false,
	}
}
