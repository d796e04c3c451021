package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/poiesic/recordstream/core"
)

// DefaultRedisKey prefixes the keys of the Redis delay queue.
const DefaultRedisKey = "recordstream:deferred"

// popDueScript removes every event scored at or below ARGV[1] and returns
// them as a flat list of due score and encoded event pairs. KEYS[1] is the
// sorted set of record ids by due time, KEYS[2] the hash of encoded events
// by record id.
var popDueScript = redis.NewScript(`
local scored = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'WITHSCORES')
if #scored == 0 then
  return {}
end
local ids = {}
local scores = {}
for i = 1, #scored, 2 do
  ids[#ids + 1] = scored[i]
  scores[#scores + 1] = scored[i + 1]
end
local events = redis.call('HMGET', KEYS[2], unpack(ids))
redis.call('ZREM', KEYS[1], unpack(ids))
redis.call('HDEL', KEYS[2], unpack(ids))
local out = {}
for i = 1, #ids do
  out[#out + 1] = scores[i]
  out[#out + 1] = events[i]
end
return out
`)

// RedisQueue is a DelayQueue shared by every consumer instance pointed at
// the same Redis.
type RedisQueue struct {
	client    redis.UniversalClient
	dueKey    string
	eventsKey string
	owned     bool
	logger    *slog.Logger
}

// NewRedisQueue creates a queue on an existing client. The caller keeps
// ownership of the client.
func NewRedisQueue(client redis.UniversalClient, key string) *RedisQueue {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisQueue{
		client:    client,
		dueKey:    key + ":due",
		eventsKey: key + ":events",
		logger:    slog.Default().With("component", "delay_queue"),
	}
}

// DialRedisQueue connects to Redis and verifies the connection.
func DialRedisQueue(ctx context.Context, addr, password string, db int, key string) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	q := NewRedisQueue(client, key)
	q.owned = true
	return q, nil
}

// Schedule stores event under its record id, replacing any queued event
// for the same record.
func (q *RedisQueue) Schedule(ctx context.Context, event *core.Event, due time.Time) error {
	if event == nil {
		return ErrNilEvent
	}
	data, err := core.EncodeEvent(event)
	if err != nil {
		return fmt.Errorf("failed to encode deferred event: %w", err)
	}

	id := event.Payload.RecordID
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, q.dueKey, &redis.Z{Score: float64(due.UnixMilli()), Member: id})
		pipe.HSet(ctx, q.eventsKey, id, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", id, err)
	}
	return nil
}

// PopDue atomically removes the entries due at or before now. An entry
// that cannot be decoded is logged and skipped.
func (q *RedisQueue) PopDue(ctx context.Context, now time.Time) ([]Entry, error) {
	res, err := popDueScript.Run(ctx, q.client,
		[]string{q.dueKey, q.eventsKey},
		strconv.FormatInt(now.UnixMilli(), 10),
	).Slice()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to pop due events: %w", err)
	}

	entries := make([]Entry, 0, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		data, ok := res[i+1].(string)
		if !ok {
			// Hash entry missing for a scored id; nothing to replay.
			continue
		}
		event, err := core.DecodeEvent([]byte(data))
		if err != nil {
			q.logger.Error("dropping undecodable deferred event", "err", err)
			continue
		}
		entries = append(entries, Entry{Event: event, Due: scoreTime(res[i])})
	}
	return entries, nil
}

// Requeue restores entries whose record is not queued. Both writes are
// conditional, so a newer Schedule for the record wins.
func (q *RedisQueue) Requeue(ctx context.Context, entries []Entry) error {
	type encoded struct {
		id    string
		data  []byte
		score float64
	}
	batch := make([]encoded, 0, len(entries))
	for _, entry := range entries {
		if entry.Event == nil {
			continue
		}
		data, err := core.EncodeEvent(entry.Event)
		if err != nil {
			return fmt.Errorf("failed to encode deferred event: %w", err)
		}
		batch = append(batch, encoded{id: entry.Event.Payload.RecordID, data: data, score: float64(entry.Due.UnixMilli())})
	}
	if len(batch) == 0 {
		return nil
	}

	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range batch {
			pipe.ZAddNX(ctx, q.dueKey, &redis.Z{Score: e.score, Member: e.id})
			pipe.HSetNX(ctx, q.eventsKey, e.id, e.data)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to requeue deferred events: %w", err)
	}
	return nil
}

func scoreTime(raw any) time.Time {
	s, _ := raw.(string)
	ms, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(int64(ms))
}

// Len returns the number of queued records.
func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.ZCard(ctx, q.dueKey).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Close releases the client when the queue dialled it.
func (q *RedisQueue) Close() error {
	if q.owned {
		return q.client.Close()
	}
	return nil
}
