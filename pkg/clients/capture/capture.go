// Package capture provides collaborator implementations that record
// calls instead of performing side effects. The dry-run tester and the
// dispatcher tests run against them.
package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/casaflow/casaflow/pkg/clients"
)

// Call is one recorded collaborator invocation.
type Call struct {
	Collaborator string `json:"collaborator"`
	Operation    string `json:"operation"`
	Detail       any    `json:"detail"`
}

// Recorder collects every collaborator call made during a run. It
// implements all three collaborator ports; GetEntity serves from a
// configurable sample snapshot.
type Recorder struct {
	mu       sync.Mutex
	calls    []Call
	Entities map[string]map[string]any
}

func NewRecorder() *Recorder {
	return &Recorder{
		Entities: make(map[string]map[string]any),
	}
}

// Set returns a collaborator set wired entirely to this recorder.
func (r *Recorder) Set() *clients.Set {
	return &clients.Set{
		Tasks:     r,
		Messaging: r,
		Entities:  r,
	}
}

// Calls returns a copy of everything recorded so far.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Call, len(r.calls))
	copy(out, r.calls)

	return out
}

func (r *Recorder) record(collaborator, operation string, detail any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, Call{
		Collaborator: collaborator,
		Operation:    operation,
		Detail:       detail,
	})
}

func (r *Recorder) CreateTask(_ context.Context, task clients.Task) (string, error) {
	r.record("tasks", "create_task", task)

	return fmt.Sprintf("task-%d", len(r.calls)), nil
}

func (r *Recorder) CreateNote(_ context.Context, note clients.Note) (string, error) {
	r.record("tasks", "create_note", note)

	return fmt.Sprintf("note-%d", len(r.calls)), nil
}

func (r *Recorder) SendEmail(_ context.Context, email clients.Email) error {
	r.record("messaging", "send_email", email)

	return nil
}

func (r *Recorder) SendSMS(_ context.Context, sms clients.SMS) error {
	r.record("messaging", "send_sms", sms)

	return nil
}

func (r *Recorder) GetEntity(_ context.Context, entityType, entityID string) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot, exists := r.Entities[entityType+"/"+entityID]
	if !exists {
		return map[string]any{}, nil
	}

	return snapshot, nil
}

func (r *Recorder) UpdateStatus(_ context.Context, entityType, entityID, status string) error {
	r.record("entities", "update_status", map[string]any{
		"entity_type": entityType,
		"entity_id":   entityID,
		"status":      status,
	})

	return nil
}

func (r *Recorder) UpdateScore(_ context.Context, entityType, entityID string, delta float64) error {
	r.record("entities", "update_score", map[string]any{
		"entity_type": entityType,
		"entity_id":   entityID,
		"delta":       delta,
	})

	return nil
}

func (r *Recorder) MoveToStage(_ context.Context, dealID, stage string) error {
	r.record("entities", "move_to_stage", map[string]any{
		"deal_id": dealID,
		"stage":   stage,
	})

	return nil
}

func (r *Recorder) AssignToUser(_ context.Context, entityType, entityID, userID string) error {
	r.record("entities", "assign_to_user", map[string]any{
		"entity_type": entityType,
		"entity_id":   entityID,
		"user_id":     userID,
	})

	return nil
}
