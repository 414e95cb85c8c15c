// Package email provides the send_email action.
package email

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
	ErrRecipientRequired = errors.New("send_email requires a 'to' parameter")
	// ErrSubjectRequired is returned when the subject is missing.
	ErrSubjectRequired = errors.New("send_email requires a 'subject' parameter")
	// ErrRecipientUnresolved is returned when the recipient template
	// renders empty at execution time. The send is not attempted.
	ErrRecipientUnresolved = errors.New("email recipient resolved to empty string")
)

// Action sends an email through the messaging collaborator. All three
// fields support template placeholders; an unresolvable recipient fails
// the action deterministically instead of sending to nobody.
type Action struct {
	To      string
	Subject string
	Body    string

	messaging clients.MessagingClient
}

func NewAction(params map[string]any, messaging clients.MessagingClient) (*Action, error) {
	to, _ := params["to"].(string)
	if to == "" {
		return nil, ErrRecipientRequired
	}

	subject, _ := params["subject"].(string)
	if subject == "" {
		return nil, ErrSubjectRequired
	}

	body, _ := params["body"].(string)

	return &Action{To: to, Subject: subject, Body: body, messaging: messaging}, nil
}

func (a *Action) Validate(_ context.Context) error {
	if a.To == "" {
		return ErrRecipientRequired
	}

	if a.Subject == "" {
		return ErrSubjectRequired
	}

	return nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("action_type", "send_email")

	to := template.RenderWithContext(a.To, &executionCtx)
	if to == "" {
		return nil, ErrRecipientUnresolved
	}

	message := clients.Email{
		To:      to,
		Subject: template.RenderWithContext(a.Subject, &executionCtx),
		Body:    template.RenderWithContext(a.Body, &executionCtx),
	}

	err := a.messaging.SendEmail(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("failed to send email: %w", err)
	}

	logger.InfoContext(ctx, "Email sent", "to", to)

	return map[string]any{"to": to}, nil
}

type Factory struct {
	messaging clients.MessagingClient
}

func NewFactory(messaging clients.MessagingClient) *Factory {
	return &Factory{messaging: messaging}
}

func (f *Factory) ID() string {
	return "send_email"
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
				"description": "Recipient address. Usually a placeholder like {{client.email}}.",
			},
			"subject": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Email subject. Supports placeholders.",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Email body. Supports placeholders.",
			},
		},
		"required":             []string{"to", "subject"},
		"additionalProperties": false,
	}
}
