package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/casaflow/casaflow/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionKeyComesFromBusMetadata(t *testing.T) {
	msg := message.NewMessage("msg-1", []byte("{}"))
	msg.Metadata.Set(events.EventMetadataKey, "deal-42")

	key, err := partitionKey(events.CRMTopic, msg)
	require.NoError(t, err)
	assert.Equal(t, "deal-42", key)
}

func TestConsumerGroupMatchesTopicNaming(t *testing.T) {
	assert.Equal(t, "casaflow.worker", consumerGroup("casaflow-worker"))
	assert.Equal(t, "casaflow.scheduler", consumerGroup("casaflow-scheduler"))
}

func TestBrokersFromEnv(t *testing.T) {
	t.Setenv(brokersEnv, "kafka-1:9092, kafka-2:9092")

	brokers, err := brokersFromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, brokers)

	t.Setenv(brokersEnv, "")

	_, err = brokersFromEnv()
	assert.Error(t, err)
}
