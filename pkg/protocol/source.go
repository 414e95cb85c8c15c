package protocol

import (
	"context"

	"github.com/casaflow/casaflow/pkg/models"
)

// SourceCallback receives domain events produced by a source.
type SourceCallback func(ctx context.Context, event models.DomainEvent) error

// Source is a long-running producer of domain events: the queue
// consumer and the schedule poller implement it.
type Source interface {
	Start(ctx context.Context, callback SourceCallback) error
	Stop(ctx context.Context) error
	Validate() error
}
