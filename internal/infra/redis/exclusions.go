package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/vidlex/vidlex-extraction-service/internal/wordlist"
	"go.uber.org/zap"
)

// ExclusionStore keeps the user-curated exclusion word list under a single
// key as a JSON array of lowercase strings. A missing or unreadable value
// falls back to the built-in defaults; the store never fails a pipeline read.
type ExclusionStore struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

func NewExclusionStore(client *redis.Client, key string, logger *zap.Logger) *ExclusionStore {
	return &ExclusionStore{client: client, key: key, logger: logger}
}

func (s *ExclusionStore) Load(ctx context.Context) ([]string, error) {
	raw, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return defaults(), nil
	}
	if err != nil {
		s.logger.Warn("exclusion list read failed, using defaults", zap.Error(err))
		return defaults(), nil
	}

	words, ok := decodeWordList([]byte(raw))
	if !ok {
		s.logger.Warn("exclusion list malformed, using defaults", zap.String("key", s.key))
		return defaults(), nil
	}
	return words, nil
}

func (s *ExclusionStore) Save(ctx context.Context, words []string) error {
	payload, err := json.Marshal(wordlist.Normalize(words))
	if err != nil {
		return fmt.Errorf("encode exclusion list: %w", err)
	}
	if err := s.client.Set(ctx, s.key, payload, 0).Err(); err != nil {
		return fmt.Errorf("save exclusion list: %w", err)
	}
	return nil
}

// decodeWordList accepts only a JSON array of strings; anything else is
// treated as malformed so stale or hand-edited values cannot poison results.
func decodeWordList(raw []byte) ([]string, bool) {
	var words []string
	if err := json.Unmarshal(raw, &words); err != nil {
		return nil, false
	}
	return wordlist.Normalize(words), true
}

func defaults() []string {
	out := make([]string, len(wordlist.DefaultExclusions))
	copy(out, wordlist.DefaultExclusions)
	return out
}
