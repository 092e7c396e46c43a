// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jason-s-yu/arena/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list finished matches are pushed to.
const DefaultQueueName = "arena_matches"

// Connect creates a client and checks the server is reachable.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// MatchPublisher records matches by queueing them for the historian instead
// of writing to the database on the room's goroutine.
type MatchPublisher struct {
	rdb   *redis.Client
	queue string
}

// NewMatchPublisher returns a publisher pushing to queue.
func NewMatchPublisher(rdb *redis.Client, queue string) *MatchPublisher {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &MatchPublisher{rdb: rdb, queue: queue}
}

// RecordMatch serializes rec to JSON and pushes it onto the queue.
func (p *MatchPublisher) RecordMatch(ctx context.Context, rec models.MatchRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal MatchRecord: %w", err)
	}
	if err := p.rdb.RPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.queue, err)
	}
	return nil
}
