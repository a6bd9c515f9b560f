package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const sessionKeyPrefix = "session:"

// RedisPersister stores each session under its own key with a TTL matching
// the idle timeout, so Redis itself expires abandoned conversations.
type RedisPersister struct {
	client *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewRedisPersister creates a Redis-backed persister.
func NewRedisPersister(client *redis.Client, ttl time.Duration, tracer trace.Tracer) *RedisPersister {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if tracer == nil {
		tracer = otel.Tracer("chatrelay.internal.session.redis")
	}
	return &RedisPersister{
		client: client,
		ttl:    ttl,
		tracer: tracer,
	}
}

func sessionKey(contactID string) string {
	return sessionKeyPrefix + contactID
}

// LoadAll scans every session key and decodes the stored sessions.
func (p *RedisPersister) LoadAll(ctx context.Context) (map[string]*ContactSession, error) {
	ctx, span := p.tracer.Start(ctx, "session.load_all")
	defer span.End()

	sessions := map[string]*ContactSession{}
	iter := p.client.Scan(ctx, 0, sessionKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := p.client.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			span.RecordError(err)
			return nil, fmt.Errorf("session: failed to load %s: %w", key, err)
		}

		var sess ContactSession
		if err := json.Unmarshal(data, &sess); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("session: corrupt session at %s: %w", key, err)
		}
		sessions[sess.ID] = &sess
	}
	if err := iter.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: scan failed: %w", err)
	}
	return sessions, nil
}

// SaveAll writes every session under its own key and removes keys for
// sessions that no longer exist in the mapping.
func (p *RedisPersister) SaveAll(ctx context.Context, sessions map[string]*ContactSession) error {
	ctx, span := p.tracer.Start(ctx, "session.save_all")
	defer span.End()

	pipe := p.client.Pipeline()
	for id, sess := range sessions {
		data, err := json.Marshal(sess)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("session: failed to encode %s: %w", id, err)
		}
		pipe.Set(ctx, sessionKey(id), data, p.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to persist sessions: %w", err)
	}

	// Drop keys for sessions evicted since the last save.
	iter := p.client.Scan(ctx, 0, sessionKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if _, ok := sessions[key[len(sessionKeyPrefix):]]; !ok {
			p.client.Del(ctx, key)
		}
	}
	return iter.Err()
}
