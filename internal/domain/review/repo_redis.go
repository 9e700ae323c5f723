package review

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	redisKeyPrefix  = "alert:review:"
	redisUndoSuffix = ":undo"
	redisIndexKey   = "alert:reviews"
)

type snapshotStoreRedis struct {
	c   *redis.Client
	ttl time.Duration
}

// NewSnapshotStoreRedis keeps each snapshot under its own key and indexes
// reviews in a sorted set by last update. A zero ttl keeps snapshots forever.
func NewSnapshotStoreRedis(c *redis.Client, ttl time.Duration) SnapshotStore {
	return &snapshotStoreRedis{c: c, ttl: ttl}
}

func snapshotKey(id string) string { return redisKeyPrefix + id }
func undoKey(id string) string     { return redisKeyPrefix + id + redisUndoSuffix }

func (r *snapshotStoreRedis) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	pipe := r.c.TxPipeline()
	pipe.Set(ctx, snapshotKey(snap.ID), data, r.ttl)
	pipe.ZAdd(ctx, redisIndexKey, &redis.Z{Score: float64(snap.UpdatedAt.UnixNano()), Member: snap.ID})
	_, err = pipe.Exec(ctx)
	return err
}

func (r *snapshotStoreRedis) get(ctx context.Context, key string) (*Snapshot, error) {
	data, err := r.c.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeSnapshot(data)
}

func (r *snapshotStoreRedis) Load(ctx context.Context, id string) (*Snapshot, error) {
	return r.get(ctx, snapshotKey(id))
}

func (r *snapshotStoreRedis) Delete(ctx context.Context, id string) error {
	pipe := r.c.TxPipeline()
	pipe.Del(ctx, snapshotKey(id), undoKey(id))
	pipe.ZRem(ctx, redisIndexKey, id)
	_, err := pipe.Exec(ctx)
	return err
}

// List walks the index newest first. Index entries whose snapshot expired are
// pruned as they are found.
func (r *snapshotStoreRedis) List(ctx context.Context, limit, offset int) ([]*Snapshot, int, error) {
	ids, err := r.c.ZRevRange(ctx, redisIndexKey, 0, -1).Result()
	if err != nil {
		return nil, 0, err
	}
	var live []*Snapshot
	for _, id := range ids {
		s, err := r.Load(ctx, id)
		if err == ErrNotFound {
			r.c.ZRem(ctx, redisIndexKey, id)
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		live = append(live, s)
	}
	total := len(live)
	if offset >= total {
		return []*Snapshot{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return live[offset:end], total, nil
}

func (r *snapshotStoreRedis) SaveUndo(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return r.c.Set(ctx, undoKey(snap.ID), data, r.ttl).Err()
}

func (r *snapshotStoreRedis) LoadUndo(ctx context.Context, id string) (*Snapshot, error) {
	return r.get(ctx, undoKey(id))
}

func (r *snapshotStoreRedis) DeleteUndo(ctx context.Context, id string) error {
	return r.c.Del(ctx, undoKey(id)).Err()
}
