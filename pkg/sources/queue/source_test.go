package queue

import (
	"log/slog"
	"os"
	"testing"

	"github.com/casaflow/casaflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSource(t *testing.T) *Source {
	t.Helper()

	source, err := NewSource(Config{Queue: "test:events"}, slog.New(slog.NewTextHandler(os.Stdout, nil)))
	require.NoError(t, err)

	return source
}

func TestNewSourceDefaults(t *testing.T) {
	source, err := NewSource(Config{}, slog.New(slog.NewTextHandler(os.Stdout, nil)))
	require.NoError(t, err)

	assert.Equal(t, "localhost:6379", source.Addr)
	assert.Equal(t, DefaultQueue, source.Queue)
}

func TestDecodeFillsOptionalFields(t *testing.T) {
	source := newTestSource(t)

	event, err := source.decode(`{"type": "deal_stage_change", "entity": {"id": "d1", "type": "deal"}, "payload": {"new_stage": "Qualified"}}`)
	require.NoError(t, err)

	assert.Equal(t, models.TriggerDealStageChange, event.Type)
	assert.Equal(t, "d1", event.Entity.ID)
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.OccurredAt.IsZero())
}

func TestDecodeRejectsMalformedMessages(t *testing.T) {
	source := newTestSource(t)

	_, err := source.decode("not json")
	assert.Error(t, err)

	_, err = source.decode(`{"entity": {"id": "d1"}}`)
	assert.ErrorContains(t, err, "no type")
}
