package webhook

import (
	"context"

	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/protocol"
)

type Factory struct{}

func NewFactory() protocol.ActionFactory {
	return &Factory{}
}

func (f *Factory) ID() string {
	return string(models.ActionWebhook)
}

func (f *Factory) Create(_ context.Context, params map[string]any) (protocol.Action, error) {
	return NewAction(params)
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"$schema":     "http://json-schema.org/draft-07/schema#",
		"title":       "Webhook",
		"description": "Calls an external URL with the event payload",
		"type":        "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Destination URL, supports {{placeholder}} templates",
				"minLength":   1,
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method, defaults to POST",
				"enum":        []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Additional request headers",
				"additionalProperties": map[string]any{
					"type": "string",
				},
			},
			"payload": map[string]any{
				"type":        "object",
				"description": "Extra fields merged into the request body",
			},
			"timeout_seconds": map[string]any{
				"type":        "number",
				"description": "Request timeout in seconds, defaults to 10",
				"minimum":     1,
			},
		},
		"required":             []string{"url"},
		"additionalProperties": false,
	}
}
