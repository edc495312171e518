// Package analysis dispatches advisory-analysis requests to the external
// generator. Requests are queued fire-and-forget; the negotiation engine
// never waits on, or fails because of, this collaborator.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"dealdesk/api/internal/deal"
)

const queueKey = "analysis:requests"

// Request asks the generator to produce commentary on a deal version for
// one of the two parties.
type Request struct {
	DealID        string     `json:"dealId"`
	VersionNumber int        `json:"versionNumber"`
	TargetRole    deal.Role  `json:"targetRole"`
	Terms         deal.Terms `json:"terms"`
	RequestedAt   time.Time  `json:"requestedAt"`
}

// Queue is a Redis-backed trigger for the analysis generator.
type Queue struct {
	client *redis.Client
}

func NewQueue(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func NewQueueWithClient(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// Enqueue pushes a request onto the generator's work queue.
func (q *Queue) Enqueue(ctx context.Context, req Request) error {
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now()
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal analysis request: %w", err)
	}
	if err := q.client.LPush(ctx, queueKey, payload).Err(); err != nil {
		return fmt.Errorf("enqueue analysis request: %w", err)
	}
	return nil
}

// Pending reports the queue depth, mostly for tests and readiness probes.
func (q *Queue) Pending(ctx context.Context) (int64, error) {
	depth, err := q.client.LLen(ctx, queueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("analysis queue depth: %w", err)
	}
	return depth, nil
}

// Close closes the Redis connection
func (q *Queue) Close() error {
	return q.client.Close()
}

// Ping checks if Redis is reachable
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}
