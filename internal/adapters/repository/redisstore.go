package repository

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/rivalry/internal/domain/model"
	"github.com/okian/rivalry/pkg/metrics"
)

// Hash fields for a participant's details.
const (
	fieldTotal         = "total"
	fieldRegion        = "region"
	fieldSubRegion     = "sub_region"
	fieldActivityCount = "activity_count"
	fieldActivityAvg   = "activity_avg"
	fieldLastActivity  = "last_activity"
)

// RedisStore keeps totals in a sorted set and details in one hash per
// participant under "<key>:p:<id>".
type RedisStore struct {
	client  *redis.Client
	key     string
	timeout time.Duration
}

// NewRedisStore wraps a connected client.
func NewRedisStore(client *redis.Client, key string, timeout time.Duration) *RedisStore {
	if key == "" {
		key = "rivalry:leaderboard"
	}
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	return &RedisStore{client: client, key: key, timeout: timeout}
}

// DialRedis connects to addr and verifies the connection with a ping.
func DialRedis(ctx context.Context, addr, key string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  30 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStore(client, key, defaultQueryTimeout), nil
}

func (s *RedisStore) hashKey(id string) string {
	return s.key + ":p:" + id
}

// recordScript keeps the larger of the stored and incoming totals and
// rewrites the detail hash in one atomic step. It returns {changed, total}.
var recordScript = redis.NewScript(`
local prev = redis.call('ZSCORE', KEYS[1], ARGV[1])
local total = ARGV[2]
local changed = 1
if prev and tonumber(prev) >= tonumber(total) then
	total = prev
	changed = 0
end
redis.call('ZADD', KEYS[1], total, ARGV[1])
redis.call('HSET', KEYS[2],
	'` + fieldTotal + `', total,
	'` + fieldRegion + `', ARGV[3],
	'` + fieldSubRegion + `', ARGV[4],
	'` + fieldActivityCount + `', ARGV[5],
	'` + fieldActivityAvg + `', ARGV[6],
	'` + fieldLastActivity + `', ARGV[7])
return {changed, total}
`)

// Record upserts p keeping the larger total. Concurrent writers for the same
// participant are serialized by Redis, so the stored total never decreases.
func (s *RedisStore) Record(ctx context.Context, p model.Participant) (bool, error) {
	if err := validate(p); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	defer observe(backendRedis, "record", time.Now())

	res, err := recordScript.Run(ctx, s.client, []string{s.key, s.hashKey(p.ID)}, recordArgs(p)...).Slice()
	if err != nil {
		metrics.RecordErrorByComponent("repository", "query_failed")
		return false, fmt.Errorf("%w: write %s: %w", ErrQuery, p.ID, err)
	}
	if len(res) != 2 {
		return false, fmt.Errorf("%w: write %s: unexpected reply %v", ErrQuery, p.ID, res)
	}
	changed, _ := res[0].(int64)
	return changed == 1, nil
}

func recordArgs(p model.Participant) []any {
	last := ""
	if !p.Activity.LastActivity.IsZero() {
		last = p.Activity.LastActivity.UTC().Format(time.RFC3339Nano)
	}
	return []any{
		p.ID,
		strconv.FormatFloat(p.Total, 'f', -1, 64),
		p.Location.Region,
		p.Location.SubRegion,
		strconv.Itoa(p.Activity.Count),
		strconv.FormatFloat(p.Activity.Average, 'f', -1, 64),
		last,
	}
}

// Get returns one participant.
func (s *RedisStore) Get(ctx context.Context, id string) (model.Participant, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	defer observe(backendRedis, "get", time.Now())

	fields, err := s.client.HGetAll(ctx, s.hashKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Participant{}, ErrNotFound
		}
		metrics.RecordErrorByComponent("repository", "query_failed")
		return model.Participant{}, fmt.Errorf("%w: get %s: %w", ErrQuery, id, err)
	}
	if len(fields) == 0 {
		return model.Participant{}, ErrNotFound
	}
	return fromHash(id, fields), nil
}

// Snapshot returns all participants in rank order.
func (s *RedisStore) Snapshot(ctx context.Context) ([]model.Participant, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	defer observe(backendRedis, "snapshot", time.Now())

	members, err := s.client.ZRangeWithScores(ctx, s.key, 0, -1).Result()
	if err != nil {
		metrics.RecordErrorByComponent("repository", "query_failed")
		return nil, fmt.Errorf("%w: snapshot: %w", ErrQuery, err)
	}
	if len(members) == 0 {
		return []model.Participant{}, nil
	}

	ids := make([]string, len(members))
	cmds := make([]*redis.MapStringStringCmd, len(members))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, m := range members {
			ids[i] = fmt.Sprint(m.Member)
			cmds[i] = pipe.HGetAll(ctx, s.hashKey(ids[i]))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		metrics.RecordErrorByComponent("repository", "query_failed")
		return nil, fmt.Errorf("%w: snapshot details: %w", ErrQuery, err)
	}

	out := make([]model.Participant, len(members))
	for i, m := range members {
		p := fromHash(ids[i], cmds[i].Val())
		// The sorted set is authoritative for totals.
		p.Total = m.Score
		out[i] = p
	}
	// Redis orders equal scores by member ascending within ZRANGE, which
	// reverses the tie order once totals are descending.
	slices.SortFunc(out, func(a, b model.Participant) int {
		if c := cmp.Compare(b.Total, a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Count returns the number of participants.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.client.ZCard(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: count: %w", ErrQuery, err)
	}
	return int(n), nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func fromHash(id string, fields map[string]string) model.Participant {
	p := model.Participant{
		ID: id,
		Location: model.Location{
			Region:    fields[fieldRegion],
			SubRegion: fields[fieldSubRegion],
		},
	}
	if v, err := strconv.ParseFloat(fields[fieldTotal], 64); err == nil {
		p.Total = v
	}
	if v, err := strconv.Atoi(fields[fieldActivityCount]); err == nil {
		p.Activity.Count = v
	}
	if v, err := strconv.ParseFloat(fields[fieldActivityAvg], 64); err == nil {
		p.Activity.Average = v
	}
	if v, err := time.Parse(time.RFC3339Nano, fields[fieldLastActivity]); err == nil {
		p.Activity.LastActivity = v
	}
	return p
}
