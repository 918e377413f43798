package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"socialgraph/internal/models"
	"socialgraph/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRecordKeyPrefix = "presence:"
	defaultOnlineSetKey    = "presence:online"
)

// upsertScript writes the record unless the stored last_seen is newer and
// keeps the online index in step. It returns {applied, prev_is_online, prev_last_seen}.
var upsertScript = redis.NewScript(`
local prev = redis.call('HMGET', KEYS[1], 'is_online', 'last_seen')
local prevOnline = prev[1] or ''
local prevSeen = prev[2] or ''
if prevSeen ~= '' and tonumber(prevSeen) > tonumber(ARGV[2]) then
  return {0, prevOnline, prevSeen}
end
redis.call('HSET', KEYS[1], 'is_online', ARGV[1], 'last_seen', ARGV[2])
if ARGV[1] == '1' then
  redis.call('ZADD', KEYS[2], ARGV[2], ARGV[3])
else
  redis.call('ZREM', KEYS[2], ARGV[3])
end
return {1, prevOnline, prevSeen}
`)

// expireScript flips a record offline only if it is still online and stale.
var expireScript = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'is_online', 'last_seen')
if cur[1] ~= '1' then
  redis.call('ZREM', KEYS[2], ARGV[2])
  return 0
end
if cur[2] and tonumber(cur[2]) > tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'is_online', '0')
redis.call('ZREM', KEYS[2], ARGV[2])
return 1
`)

// RedisStore keeps each record in a hash presence:<uid> with fields is_online
// and last_seen (unix milliseconds), plus a sorted set of online uids scored by
// last_seen for the reaper.
type RedisStore struct {
	rdb          *redis.Client
	keyPrefix    string
	onlineSetKey string
}

// NewRedisStore creates a Store backed by rdb.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{
		rdb:          rdb,
		keyPrefix:    defaultRecordKeyPrefix,
		onlineSetKey: defaultOnlineSetKey,
	}
}

func (s *RedisStore) recordKey(uid string) string {
	return s.keyPrefix + uid
}

func (s *RedisStore) Upsert(ctx context.Context, rec models.PresenceRecord) (UpsertResult, error) {
	ctx, span := observability.TraceRedisOperation(ctx, "presence_upsert")
	defer span.End()

	online := "0"
	if rec.IsOnline {
		online = "1"
	}
	raw, err := upsertScript.Run(ctx, s.rdb,
		[]string{s.recordKey(rec.UID), s.onlineSetKey},
		online, rec.LastSeen.UnixMilli(), rec.UID,
	).Slice()
	if err != nil {
		span.RecordError(err)
		return UpsertResult{}, fmt.Errorf("presence upsert: %w", err)
	}
	if len(raw) != 3 {
		return UpsertResult{}, fmt.Errorf("presence upsert: unexpected reply %v", raw)
	}

	applied, _ := raw[0].(int64)
	res := UpsertResult{Applied: applied == 1}
	prevOnline, _ := raw[1].(string)
	prevSeen, _ := raw[2].(string)
	if prev, ok := decodeRecord(rec.UID, prevOnline, prevSeen); ok {
		res.Previous = &prev
	}
	return res, nil
}

func (s *RedisStore) Get(ctx context.Context, uid string) (*models.PresenceRecord, error) {
	vals, err := s.rdb.HMGet(ctx, s.recordKey(uid), "is_online", "last_seen").Result()
	if err != nil {
		return nil, fmt.Errorf("presence get: %w", err)
	}
	online, _ := vals[0].(string)
	seen, _ := vals[1].(string)
	rec, ok := decodeRecord(uid, online, seen)
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *RedisStore) GetMany(ctx context.Context, uids []string) (map[string]models.PresenceRecord, error) {
	out := make(map[string]models.PresenceRecord, len(uids))
	if len(uids) == 0 {
		return out, nil
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.SliceCmd, len(uids))
	for i, uid := range uids {
		cmds[i] = pipe.HMGet(ctx, s.recordKey(uid), "is_online", "last_seen")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("presence get many: %w", err)
	}

	for i, uid := range uids {
		vals := cmds[i].Val()
		if len(vals) != 2 {
			continue
		}
		online, _ := vals[0].(string)
		seen, _ := vals[1].(string)
		if rec, ok := decodeRecord(uid, online, seen); ok {
			out[uid] = rec
		}
	}
	return out, nil
}

func (s *RedisStore) StaleOnline(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	opt := &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff.UnixMilli(), 10),
	}
	if limit > 0 {
		opt.Count = int64(limit)
	}
	uids, err := s.rdb.ZRangeByScore(ctx, s.onlineSetKey, opt).Result()
	if err != nil {
		return nil, fmt.Errorf("presence stale scan: %w", err)
	}
	return uids, nil
}

func (s *RedisStore) ExpireIfStale(ctx context.Context, uid string, cutoff time.Time) (bool, error) {
	n, err := expireScript.Run(ctx, s.rdb,
		[]string{s.recordKey(uid), s.onlineSetKey},
		cutoff.UnixMilli(), uid,
	).Int()
	if err != nil {
		return false, fmt.Errorf("presence expire: %w", err)
	}
	return n == 1, nil
}

func decodeRecord(uid, online, seen string) (models.PresenceRecord, bool) {
	if seen == "" {
		return models.PresenceRecord{}, false
	}
	ms, err := strconv.ParseInt(seen, 10, 64)
	if err != nil {
		return models.PresenceRecord{}, false
	}
	return models.PresenceRecord{
		UID:      uid,
		IsOnline: online == "1",
		LastSeen: time.UnixMilli(ms).UTC(),
	}, true
}
