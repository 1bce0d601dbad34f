package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"browserfetch/internal/logging"
)

// RedisClient is the subset of *redis.Client the sink uses.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

const (
	redisWriteTimeout = 2 * time.Second
	statusKeyTTL      = 24 * time.Hour
)

// RedisSink publishes JSON envelopes to a Redis channel and keeps the latest
// status of each task in a hash. Events are queued and written by a
// background goroutine; a full queue drops events.
type RedisSink struct {
	client  RedisClient
	channel string
	logger  *slog.Logger
	queue   chan Envelope
	seq     atomic.Uint64
	dropped atomic.Uint64
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewRedisClient dials addr and verifies the connection with PING.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, redisWriteTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// NewRedisSink starts the background writer. Close stops it.
func NewRedisSink(client RedisClient, channel string, buffer int, logger *slog.Logger) *RedisSink {
	if buffer <= 0 {
		buffer = 256
	}
	s := &RedisSink{
		client:  client,
		channel: channel,
		logger:  logging.NewComponentLogger(logger, "events.redis"),
		queue:   make(chan Envelope, buffer),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *RedisSink) PublishStatus(evt Status) {
	s.enqueue(Envelope{Name: NameStatus, Status: &evt})
}

func (s *RedisSink) PublishProgress(evt Progress) {
	s.enqueue(Envelope{Name: NameProgress, Progress: &evt})
}

func (s *RedisSink) enqueue(env Envelope) {
	env.Seq = s.seq.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.queue <- env:
	default:
		s.dropped.Add(1)
	}
}

// Dropped reports how many events were discarded.
func (s *RedisSink) Dropped() uint64 {
	return s.dropped.Load()
}

// Close flushes queued events and stops the writer.
func (s *RedisSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	<-s.done
}

func (s *RedisSink) run() {
	defer close(s.done)
	for env := range s.queue {
		if err := s.write(env); err != nil {
			logging.WarnWithContext(s.logger, "redis event publish failed", "event_publish_failed",
				logging.String(logging.FieldTaskID, env.TaskID()),
				logging.String("event", env.Name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check events.redis_addr and that redis is reachable"),
				logging.String(logging.FieldImpact, "remote observers miss this event"),
			)
		}
	}
}

func (s *RedisSink) write(env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisWriteTimeout)
	defer cancel()
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", s.channel, err)
	}
	if env.Status == nil {
		return nil
	}
	key := StatusKey(env.Status.TaskID)
	fields := map[string]any{
		"status":      env.Status.Status,
		"retry_count": env.Status.RetryCount,
		"updated_at":  env.Status.Timestamp.UTC().Format(time.RFC3339),
		"error":       env.Status.ErrorMessage,
	}
	if env.Status.InstallPath != "" {
		fields["install_path"] = env.Status.InstallPath
	}
	if err := s.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("store status %s: %w", key, err)
	}
	return s.client.Expire(ctx, key, statusKeyTTL).Err()
}

// StatusKey is the hash holding the latest status of a task.
func StatusKey(taskID string) string {
	return "browserfetch:task:" + taskID
}
