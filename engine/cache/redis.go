package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SILVESTRIKE/document-to-quiz/engine/domain"
)

// RedisStore keeps each cached answer in a Redis hash keyed by the
// composite (stemHash, choicesHash). HSETNX gives the set-on-insert
// guarantee per field and HINCRBY the atomic hit counter.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func answerKey(stemHash, choicesHash string) string {
	return "answer:" + stemHash + ":" + choicesHash
}

func (s *RedisStore) Get(ctx context.Context, stemHash, choicesHash string) (domain.CachedAnswer, error) {
	key := answerKey(stemHash, choicesHash)

	fields, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.CachedAnswer{}, fmt.Errorf("cache get %s: %w", key, err)
	}
	if len(fields) == 0 {
		return domain.CachedAnswer{}, domain.ErrAnswerNotCached
	}

	now := time.Now().UTC()
	pipe := s.rdb.TxPipeline()
	hits := pipe.HIncrBy(ctx, key, "hitCount", 1)
	pipe.HSet(ctx, key, "lastHitAt", now.Format(time.RFC3339Nano))
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.CachedAnswer{}, fmt.Errorf("cache hit bump %s: %w", key, err)
	}

	ans := domain.CachedAnswer{
		StemHash:    stemHash,
		ChoicesHash: choicesHash,
		CorrectKey:  fields["correctKey"],
		Explanation: fields["explanation"],
		Provider:    fields["provider"],
		HitCount:    hits.Val(),
		LastHitAt:   now,
	}
	if v := fields["confidence"]; v != "" {
		ans.Confidence, _ = strconv.ParseFloat(v, 64)
	}
	return ans, nil
}

func (s *RedisStore) Put(ctx context.Context, entries []domain.CachedAnswer) error {
	pipe := s.rdb.TxPipeline()
	for _, e := range entries {
		key := answerKey(e.StemHash, e.ChoicesHash)
		pipe.HSetNX(ctx, key, "correctKey", e.CorrectKey)
		pipe.HSetNX(ctx, key, "explanation", e.Explanation)
		pipe.HSetNX(ctx, key, "confidence", strconv.FormatFloat(e.Confidence, 'f', -1, 64))
		pipe.HSetNX(ctx, key, "provider", e.Provider)
		pipe.HSetNX(ctx, key, "hitCount", "0")
		pipe.HSetNX(ctx, key, "lastHitAt", e.LastHitAt.UTC().Format(time.RFC3339Nano))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache put %d entries: %w", len(entries), err)
	}
	return nil
}
