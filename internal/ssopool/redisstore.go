package ssopool

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Esquema de claves en Redis:
//
//	sso:keys              -> Set: hashes de las credenciales cargadas
//	sso:failed            -> Set: hashes marcados como fallidos
//	sso:usage:{hash}      -> Hash: count, last_used, first_used, age_verified
//	sso:index             -> String: cursor de round robin
//	sso:daily_reset       -> String: epoch del último reset diario
const (
	redisPrefix    = "sso:"
	redisKeysSet   = redisPrefix + "keys"
	redisFailedSet = redisPrefix + "failed"
	redisIndexKey  = redisPrefix + "index"
	redisResetKey  = redisPrefix + "daily_reset"
)

func usageKey(hash string) string {
	return redisPrefix + "usage:" + hash
}

// dailyResetScript sella el vencimiento de la ventana de forma atómica:
// como mucho un llamador por ventana obtiene 1, aunque varios procesos del
// gateway observen el mismo límite a la vez. La primera ejecución sólo
// registra el instante inicial.
var dailyResetScript = redis.NewScript(`
local last = redis.call('GET', KEYS[1])
if not last then
  redis.call('SET', KEYS[1], ARGV[1])
  return 0
end
if tonumber(ARGV[1]) - tonumber(last) < tonumber(ARGV[2]) then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1])
return 1
`)

// RedisStore persiste el estado del pool en Redis, lo que permite compartir
// un mismo pool entre varios procesos del gateway. Cada campo se persiste de
// forma independiente con operaciones atómicas del servidor.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore conecta con Redis y verifica la conexión
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Init(ctx context.Context, hashes []string, now time.Time) error {
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, h := range hashes {
			p.SAdd(ctx, redisKeysSet, h)
			uk := usageKey(h)
			p.HSetNX(ctx, uk, "count", 0)
			p.HSetNX(ctx, uk, "last_used", 0)
			p.HSetNX(ctx, uk, "first_used", now.Unix())
			p.HSetNX(ctx, uk, "age_verified", 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("init credentials: %w", err)
	}
	return nil
}

func (s *RedisStore) States(ctx context.Context, hashes []string) (map[string]CredState, error) {
	var failedCmd *redis.StringSliceCmd
	usageCmds := make([]*redis.MapStringStringCmd, len(hashes))

	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		failedCmd = p.SMembers(ctx, redisFailedSet)
		for i, h := range hashes {
			usageCmds[i] = p.HGetAll(ctx, usageKey(h))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read credential states: %w", err)
	}

	failed := make(map[string]bool)
	for _, h := range failedCmd.Val() {
		failed[h] = true
	}

	out := make(map[string]CredState, len(hashes))
	for i, h := range hashes {
		fields := usageCmds[i].Val()
		out[h] = CredState{
			Count:       atoiField(fields, "count"),
			LastUsed:    fromEpoch(float64(int64Field(fields, "last_used"))),
			FirstUsed:   fromEpoch(float64(int64Field(fields, "first_used"))),
			Failed:      failed[h],
			AgeVerified: atoiField(fields, "age_verified") != 0,
		}
	}
	return out, nil
}

func (s *RedisStore) IncrUsage(ctx context.Context, hash string, now time.Time) error {
	uk := usageKey(hash)
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.HIncrBy(ctx, uk, "count", 1)
		p.HSet(ctx, uk, "last_used", now.Unix())
		return nil
	})
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

func (s *RedisStore) SetFailed(ctx context.Context, hash string, failed bool) error {
	var err error
	if failed {
		err = s.client.SAdd(ctx, redisFailedSet, hash).Err()
	} else {
		err = s.client.SRem(ctx, redisFailedSet, hash).Err()
	}
	if err != nil {
		return fmt.Errorf("set failed flag: %w", err)
	}
	return nil
}

func (s *RedisStore) ClearFailed(ctx context.Context) error {
	if err := s.client.Del(ctx, redisFailedSet).Err(); err != nil {
		return fmt.Errorf("clear failed set: %w", err)
	}
	return nil
}

func (s *RedisStore) AgeVerified(ctx context.Context, hash string) (bool, error) {
	v, err := s.client.HGet(ctx, usageKey(hash), "age_verified").Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get age_verified: %w", err)
	}
	return v == "1", nil
}

func (s *RedisStore) SetAgeVerified(ctx context.Context, hash string, verified bool) error {
	v := 0
	if verified {
		v = 1
	}
	if err := s.client.HSet(ctx, usageKey(hash), "age_verified", v).Err(); err != nil {
		return fmt.Errorf("set age_verified: %w", err)
	}
	return nil
}

func (s *RedisStore) NextIndex(ctx context.Context) (int64, error) {
	n, err := s.client.Incr(ctx, redisIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("advance rotation index: %w", err)
	}
	return n, nil
}

func (s *RedisStore) LastReset(ctx context.Context) (time.Time, error) {
	v, err := s.client.Get(ctx, redisResetKey).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get last reset: %w", err)
	}
	epoch, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse last reset: %w", err)
	}
	return fromEpoch(float64(epoch)), nil
}

func (s *RedisStore) TryDailyReset(ctx context.Context, hashes []string, now time.Time, window time.Duration) (bool, error) {
	won, err := dailyResetScript.Run(ctx, s.client,
		[]string{redisResetKey},
		now.Unix(), int64(window.Seconds()),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("daily reset check: %w", err)
	}
	if won != 1 {
		return false, nil
	}
	if err := s.resetCounters(ctx, hashes); err != nil {
		return true, err
	}
	return true, nil
}

func (s *RedisStore) ResetUsage(ctx context.Context, hashes []string, now time.Time) error {
	if err := s.resetCounters(ctx, hashes); err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisResetKey, now.Unix(), 0).Err(); err != nil {
		return fmt.Errorf("set last reset: %w", err)
	}
	return nil
}

func (s *RedisStore) resetCounters(ctx context.Context, hashes []string) error {
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, h := range hashes {
			p.HSet(ctx, usageKey(h), "count", 0)
		}
		p.Del(ctx, redisFailedSet)
		return nil
	})
	if err != nil {
		return fmt.Errorf("reset usage counters: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, redisKeysSet).Err(); err != nil {
		return fmt.Errorf("clear key set: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func atoiField(fields map[string]string, name string) int {
	n, _ := strconv.Atoi(fields[name])
	return n
}

func int64Field(fields map[string]string, name string) int64 {
	n, _ := strconv.ParseInt(fields[name], 10, 64)
	return n
}
