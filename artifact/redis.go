package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisStore keeps records as JSON strings, a sorted index by id, and an
// INCR counter for id allocation.
type RedisStore struct {
	rdb    *goredis.Client
	prefix string
	user   string
	now    func() time.Time
}

// DialRedis 连接并 ping，失败时关闭客户端。
func DialRedis(ctx context.Context, addr string, db int) (*goredis.Client, error) {
	if addr == "" {
		return nil, errors.New("missing redis addr")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func NewRedisStore(rdb *goredis.Client, prefix, user string) *RedisStore {
	if prefix == "" {
		prefix = "blogpkg"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, user: user, now: time.Now}
}

func (s *RedisStore) counterKey() string { return s.prefix + ":artifact:counter" }
func (s *RedisStore) indexKey() string { return s.prefix + ":artifact:index" }
func (s *RedisStore) recordKey(n string) string { return s.prefix + ":artifact:" + n }

func (s *RedisStore) Save(ctx context.Context, rec Record) (Record, error) {
	id, err := s.rdb.Incr(ctx, s.counterKey()).Result()
	if err != nil {
		return Record{}, fmt.Errorf("allocate artifact id: %w", err)
	}
	rec = prepare(rec, id, s.user, s.now())
	raw, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("encode artifact: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(rec.Name), raw, 0)
		pipe.ZAdd(ctx, s.indexKey(), goredis.Z{Score: float64(id), Member: rec.Name})
		return nil
	})
	if err != nil {
		return Record{}, fmt.Errorf("store artifact %s: %w", rec.Name, err)
	}
	return rec, nil
}

func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	names, err := s.rdb.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return names, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Record, error) {
	name := id
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		score := strconv.FormatInt(n, 10)
		names, err := s.rdb.ZRangeByScore(ctx, s.indexKey(), &goredis.ZRangeBy{Min: score, Max: score}).Result()
		if err != nil {
			return Record{}, fmt.Errorf("lookup artifact %s: %w", id, err)
		}
		if len(names) == 0 {
			return Record{}, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		name = names[0]
	}
	raw, err := s.rdb.Get(ctx, s.recordKey(name)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return Record{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("read artifact %s: %w", name, err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("decode artifact %s: %w", name, err)
	}
	return rec, nil
}
