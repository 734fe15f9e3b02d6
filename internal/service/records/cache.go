package records

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"snowbotium/internal/redis"
)

const defaultHistoryTTL = time.Minute

// HistoryCache is the subset of the redis client used to keep a snapshot of
// the responses table.
type HistoryCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// UseHistoryCache serves FetchAllResponses from cache until the next insert
// or until ttl passes.
func (s *Service) UseHistoryCache(cache HistoryCache, ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultHistoryTTL
	}
	s.cache = cache
	s.cacheTTL = ttl
}

func (s *Service) historyKey() string {
	return "snowbotium:history:" + s.tables.Responses
}

func (s *Service) loadHistory(ctx context.Context) ([]string, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, s.historyKey())
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			s.logCacheError("get", err)
		}
		return nil, false
	}
	var responses []string
	if err := json.Unmarshal([]byte(raw), &responses); err != nil {
		s.logCacheError("decode", err)
		return nil, false
	}
	if responses == nil {
		responses = make([]string, 0)
	}
	return responses, true
}

func (s *Service) storeHistory(ctx context.Context, responses []string) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(responses)
	if err != nil {
		s.logCacheError("encode", err)
		return
	}
	if err := s.cache.Set(ctx, s.historyKey(), payload, s.cacheTTL); err != nil {
		s.logCacheError("set", err)
	}
}

func (s *Service) invalidateHistory(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, s.historyKey()); err != nil {
		s.logCacheError("del", err)
	}
}
