package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the shared-deployment wallet cache. Keys are namespaced per
// owner; values use the same last-writer-wins semantics as browser storage,
// so no cross-client locking is attempted.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects and pings the Redis instance at addr.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error { return s.client.Close() }

func pendingRedisKey(owner string) string {
	return "decleanup:pending:" + ownerKey(owner)
}

func claimedRedisKey(owner string) string {
	return "decleanup:claimed:" + ownerKey(owner)
}

func geoRedisKey(owner string) string {
	return "decleanup:geo:" + ownerKey(owner)
}

func dismissedRedisKey(owner string) string {
	return "decleanup:dismissed:" + ownerKey(owner)
}

func (s *RedisStore) PendingSubmissionID(ctx context.Context, owner string) (uint64, bool, error) {
	raw, err := s.client.Get(ctx, pendingRedisKey(owner)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get pending: %w", err)
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		// Malformed entries count as absent; drop so the next resolve
		// rediscovers from the ledger.
		_ = s.client.Del(ctx, pendingRedisKey(owner)).Err()
		return 0, false, nil
	}
	return id, true, nil
}

func (s *RedisStore) SetPendingSubmissionID(ctx context.Context, owner string, id uint64) error {
	return s.client.Set(ctx, pendingRedisKey(owner), strconv.FormatUint(id, 10), 0).Err()
}

func (s *RedisStore) ClearPendingSubmissionID(ctx context.Context, owner string) error {
	return s.client.Del(ctx, pendingRedisKey(owner)).Err()
}

func (s *RedisStore) IsClaimed(ctx context.Context, owner string, id uint64) (bool, error) {
	claimed, err := s.client.SIsMember(ctx, claimedRedisKey(owner), strconv.FormatUint(id, 10)).Result()
	if err != nil {
		return false, fmt.Errorf("redis sismember claimed: %w", err)
	}
	return claimed, nil
}

func (s *RedisStore) AddClaimed(ctx context.Context, owner string, id uint64) error {
	return s.client.SAdd(ctx, claimedRedisKey(owner), strconv.FormatUint(id, 10)).Err()
}

func (s *RedisStore) RemoveClaimed(ctx context.Context, owner string, id uint64) error {
	return s.client.SRem(ctx, claimedRedisKey(owner), strconv.FormatUint(id, 10)).Err()
}

// ClaimedSubmissionIDs lists every id this client believes it has claimed.
func (s *RedisStore) ClaimedSubmissionIDs(ctx context.Context, owner string) ([]uint64, error) {
	members, err := s.client.SMembers(ctx, claimedRedisKey(owner)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers claimed: %w", err)
	}
	ids := make([]uint64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *RedisStore) SetGeolocation(ctx context.Context, owner string, loc Geolocation) error {
	raw, err := json.Marshal(loc)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, geoRedisKey(owner), raw, 0).Err()
}

func (s *RedisStore) Geolocation(ctx context.Context, owner string) (Geolocation, bool, error) {
	raw, err := s.client.Get(ctx, geoRedisKey(owner)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Geolocation{}, false, nil
	}
	if err != nil {
		return Geolocation{}, false, fmt.Errorf("redis get geolocation: %w", err)
	}
	var loc Geolocation
	if err := json.Unmarshal(raw, &loc); err != nil {
		_ = s.client.Del(ctx, geoRedisKey(owner)).Err()
		return Geolocation{}, false, nil
	}
	return loc, true, nil
}

func (s *RedisStore) DismissNotification(ctx context.Context, owner, note string) error {
	return s.client.SAdd(ctx, dismissedRedisKey(owner), note).Err()
}

func (s *RedisStore) IsNotificationDismissed(ctx context.Context, owner, note string) (bool, error) {
	dismissed, err := s.client.SIsMember(ctx, dismissedRedisKey(owner), note).Result()
	if err != nil {
		return false, fmt.Errorf("redis sismember dismissed: %w", err)
	}
	return dismissed, nil
}
