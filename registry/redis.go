package registry

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/room4-2/zellolink/messages"
)

const (
	activeStreamsKey = "active_streams"
	streamKeyPrefix  = "stream:"
	pingTimeout      = 5 * time.Second
)

// Entry is the mirrored view of one open stream
type Entry struct {
	StreamID  uint32
	Session   string
	Channel   string
	From      string
	Codec     string
	StartedAt time.Time
}

// Registry mirrors the streams a session has open into Redis so other
// processes can see who is talking. A nil client turns every call into a
// local-only update.
type Registry struct {
	redis  *redis.Client
	ttl    time.Duration
	logger logrus.FieldLogger

	mu      sync.RWMutex
	entries map[uint32]Entry
}

// Connect creates a registry backed by the Redis server at addr. An
// unreachable server is logged and the registry runs local-only.
func Connect(ctx context.Context, addr, password string, ttl time.Duration, logger logrus.FieldLogger) *Registry {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.WithError(err).WithField("addr", addr).Warn("⚠️ Redis unavailable, stream registry is local only")
		client.Close()
		client = nil
	}
	return New(client, ttl, logger)
}

// New wraps an existing client, which may be nil
func New(client *redis.Client, ttl time.Duration, logger logrus.FieldLogger) *Registry {
	return &Registry{
		redis:   client,
		ttl:     ttl,
		logger:  logger,
		entries: make(map[uint32]Entry),
	}
}

func streamKey(id uint32) string {
	return streamKeyPrefix + strconv.FormatUint(uint64(id), 10)
}

// Track records a started stream
func (r *Registry) Track(ctx context.Context, sessionID string, start *messages.StreamStart, startedAt time.Time) {
	entry := Entry{
		StreamID:  start.StreamID,
		Session:   sessionID,
		Channel:   start.Channel,
		From:      start.From,
		Codec:     start.Codec,
		StartedAt: startedAt,
	}

	r.mu.Lock()
	r.entries[start.StreamID] = entry
	r.mu.Unlock()

	if r.redis == nil {
		return
	}

	key := streamKey(start.StreamID)
	id := strconv.FormatUint(uint64(start.StreamID), 10)
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]interface{}{
			"session":    entry.Session,
			"channel":    entry.Channel,
			"from":       entry.From,
			"codec":      entry.Codec,
			"started_at": entry.StartedAt.Format(time.RFC3339),
			"status":     "active",
		})
		pipe.SAdd(ctx, activeStreamsKey, id)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		r.logger.WithError(err).WithField("stream_id", start.StreamID).Warn("⚠️ Failed to mirror stream")
	}
}

// Untrack removes a stream once its consumer has finished
func (r *Registry) Untrack(ctx context.Context, streamID uint32) {
	r.mu.Lock()
	delete(r.entries, streamID)
	r.mu.Unlock()

	if r.redis == nil {
		return
	}

	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, streamKey(streamID))
		pipe.SRem(ctx, activeStreamsKey, strconv.FormatUint(uint64(streamID), 10))
		return nil
	})
	if err != nil {
		r.logger.WithError(err).WithField("stream_id", streamID).Warn("⚠️ Failed to remove mirrored stream")
	}
}

// Get returns the local entry for a stream
func (r *Registry) Get(streamID uint32) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[streamID]
	return entry, ok
}

// Count returns the number of tracked streams
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// ActiveIDs lists the stream ids currently mirrored in Redis, including
// those tracked by other processes
func (r *Registry) ActiveIDs(ctx context.Context) ([]uint32, error) {
	if r.redis == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		ids := make([]uint32, 0, len(r.entries))
		for id := range r.entries {
			ids = append(ids, id)
		}
		return ids, nil
	}

	members, err := r.redis.SMembers(ctx, activeStreamsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list active streams: %w", err)
	}
	ids := make([]uint32, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid stream id %q in %s: %w", m, activeStreamsKey, err)
		}
		ids = append(ids, uint32(id))
	}
	return ids, nil
}

// Prune drops set members whose hash has expired
func (r *Registry) Prune(ctx context.Context) (int, error) {
	if r.redis == nil {
		return 0, nil
	}

	members, err := r.redis.SMembers(ctx, activeStreamsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list active streams: %w", err)
	}

	pruned := 0
	for _, m := range members {
		exists, err := r.redis.Exists(ctx, streamKeyPrefix+m).Result()
		if err != nil {
			return pruned, fmt.Errorf("failed to check stream %s: %w", m, err)
		}
		if exists == 0 {
			r.redis.SRem(ctx, activeStreamsKey, m)
			pruned++
		}
	}
	return pruned, nil
}

// StartPruneRoutine prunes expired entries every interval until ctx is done
func (r *Registry) StartPruneRoutine(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := r.Prune(ctx); err != nil {
				r.logger.WithError(err).Warn("⚠️ Failed to prune stream registry")
			} else if n > 0 {
				r.logger.WithField("pruned", n).Debug("🧹 Pruned expired streams")
			}
		}
	}
}

// Close releases the Redis connection
func (r *Registry) Close() error {
	if r.redis == nil {
		return nil
	}
	return r.redis.Close()
}
