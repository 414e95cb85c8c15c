// Package clients defines the outbound collaborator ports the action
// dispatcher calls into: task/note storage, messaging, and entity
// mutation. Implementations live in subpackages; the engine never
// talks to a provider directly.
package clients

import (
	"context"
	"time"
)

// Task is a CRM task to be created for an entity.
type Task struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	DueAt       time.Time `json:"due_at"`
	AssigneeID  string    `json:"assignee_id,omitempty"`
	EntityID    string    `json:"entity_id"`
	EntityType  string    `json:"entity_type"`
}

// Note is a free-form note attached to an entity.
type Note struct {
	Content    string `json:"content"`
	EntityID   string `json:"entity_id"`
	EntityType string `json:"entity_type"`
	AuthorID   string `json:"author_id,omitempty"`
}

// Email is an outbound email message.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// SMS is an outbound text message.
type SMS struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// TaskClient is the task/notes storage collaborator.
type TaskClient interface {
	CreateTask(ctx context.Context, task Task) (string, error)
	CreateNote(ctx context.Context, note Note) (string, error)
}

// MessagingClient is the email/SMS provider collaborator.
type MessagingClient interface {
	SendEmail(ctx context.Context, email Email) error
	SendSMS(ctx context.Context, sms SMS) error
}

// EntityClient is the entity mutation collaborator, scoped per entity
// type by the CRM's CRUD layer.
type EntityClient interface {
	GetEntity(ctx context.Context, entityType, entityID string) (map[string]any, error)
	UpdateStatus(ctx context.Context, entityType, entityID, status string) error
	UpdateScore(ctx context.Context, entityType, entityID string, delta float64) error
	MoveToStage(ctx context.Context, dealID, stage string) error
	AssignToUser(ctx context.Context, entityType, entityID, userID string) error
}

// Set bundles every collaborator the action factories need.
type Set struct {
	Tasks     TaskClient
	Messaging MessagingClient
	Entities  EntityClient
}
