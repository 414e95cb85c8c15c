// Package queue consumes CRM domain events from a Redis list. CRM
// deployments that cannot publish to Kafka push JSON events onto the
// list instead; this source bridges them onto the engine's event bus.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/casaflow/casaflow/pkg/models"
	"github.com/casaflow/casaflow/pkg/protocol"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// DefaultQueue is the list key events are popped from.
const DefaultQueue = "casaflow:events"

var ErrQueueNameRequired = errors.New("queue source requires a queue name")

// Source pops JSON-encoded domain events off a Redis list with BLPOP
// and hands them to the callback. Malformed payloads are logged and
// dropped, never retried.
type Source struct {
	Addr     string
	Password string
	DB       int
	Queue    string

	client   redis.UniversalClient
	callback protocol.SourceCallback
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// Config carries the Redis connection settings for the queue source.
type Config struct {
	Addr     string
	Password string
	DB       int
	Queue    string
}

func NewSource(config Config, logger *slog.Logger) (*Source, error) {
	if config.Addr == "" {
		config.Addr = "localhost:6379"
	}

	if config.Queue == "" {
		config.Queue = DefaultQueue
	}

	source := &Source{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		Queue:    config.Queue,
		stopCh:   make(chan struct{}),
		logger: logger.With(
			"module", "queue_source",
			"queue", config.Queue,
		),
	}

	err := source.Validate()
	if err != nil {
		return nil, err
	}

	return source, nil
}

func (s *Source) Validate() error {
	if s.Queue == "" {
		return ErrQueueNameRequired
	}

	return nil
}

func (s *Source) Start(ctx context.Context, callback protocol.SourceCallback) error {
	s.logger.InfoContext(ctx, "Starting queue source")
	s.callback = callback

	err := s.initializeClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize queue client: %w", err)
	}

	s.wg.Add(1)

	go s.consume(ctx)

	return nil
}

func (s *Source) initializeClient(ctx context.Context) error {
	s.client = redis.NewClient(&redis.Options{
		Addr:     s.Addr,
		Password: s.Password,
		DB:       s.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := s.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s.logger.InfoContext(ctx, "Connected to Redis", "addr", s.Addr, "db", s.DB)

	return nil
}

func (s *Source) consume(ctx context.Context) {
	defer s.wg.Done()

	s.logger.InfoContext(ctx, "Starting queue consumer")

	for {
		select {
		case <-s.stopCh:
			s.logger.InfoContext(ctx, "Queue consumer stopped")

			return
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Context cancelled, stopping queue consumer")

			return
		default:
			err := s.processMessage(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "Error processing message", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (s *Source) processMessage(ctx context.Context) error {
	result, err := s.client.BLPop(ctx, 1*time.Second, s.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	event, err := s.decode(result[1])
	if err != nil {
		s.logger.WarnContext(ctx, "Dropping malformed queue message", "error", err)

		return nil
	}

	go func() {
		err := s.callback(ctx, event)
		if err != nil {
			s.logger.ErrorContext(ctx, "Error handling queued event",
				"event_id", event.ID,
				"event_type", event.Type,
				"error", err)
		}
	}()

	return nil
}

// decode parses a queued message into a DomainEvent and fills the
// fields the CRM side commonly leaves out.
func (s *Source) decode(message string) (models.DomainEvent, error) {
	var event models.DomainEvent

	err := json.Unmarshal([]byte(message), &event)
	if err != nil {
		return event, fmt.Errorf("failed to decode domain event: %w", err)
	}

	if event.Type == "" {
		return event, errors.New("domain event has no type")
	}

	if event.ID == "" {
		event.ID = newID()
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	return event, nil
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

func (s *Source) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Stopping queue source")

	close(s.stopCh)
	s.wg.Wait()

	if s.client != nil {
		err := s.client.Close()
		if err != nil {
			s.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
		}
	}

	return nil
}
