// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/casaflow/casaflow/pkg/actions/email"
	"github.com/casaflow/casaflow/pkg/actions/entity"
	"github.com/casaflow/casaflow/pkg/actions/followup"
	"github.com/casaflow/casaflow/pkg/actions/note"
	"github.com/casaflow/casaflow/pkg/actions/sms"
	"github.com/casaflow/casaflow/pkg/actions/task"
	"github.com/casaflow/casaflow/pkg/actions/webhook"
	"github.com/casaflow/casaflow/pkg/clients"
	"github.com/casaflow/casaflow/pkg/registry"
)

// NewRegistry registers every native action factory against the given
// collaborator set. The worker passes real CRM clients; the dry-run
// tester passes recording ones.
func NewRegistry(logger *slog.Logger, set *clients.Set) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.RegisterAction(task.NewFactory(set.Tasks))
	reg.RegisterAction(note.NewFactory(set.Tasks))
	reg.RegisterAction(followup.NewFactory(set.Tasks))
	reg.RegisterAction(email.NewFactory(set.Messaging))
	reg.RegisterAction(sms.NewFactory(set.Messaging))
	reg.RegisterAction(webhook.NewFactory())

	for _, factory := range entity.Factories(set.Entities) {
		reg.RegisterAction(factory)
	}

	return reg
}
