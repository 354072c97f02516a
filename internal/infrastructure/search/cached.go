package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
	"github.com/kirillkom/document-chat-assistant/internal/core/ports"
)

const DefaultTTL = 10 * time.Minute

// CachedSearcher serves repeated queries from a SearchCache. Cache
// failures fall through to the provider. Provider errors are not cached.
type CachedSearcher struct {
	next   ports.WebSearcher
	cache  ports.SearchCache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedSearcher(next ports.WebSearcher, cache ports.SearchCache, ttl time.Duration, logger *slog.Logger) *CachedSearcher {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedSearcher{next: next, cache: cache, ttl: ttl, logger: logger}
}

func (s *CachedSearcher) SearchWeb(ctx context.Context, query string) (domain.WebSearchResponse, error) {
	key := cacheKey(query)
	if raw, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn("search_cache_get_failed", "error", err)
	} else if ok {
		var cached domain.WebSearchResponse
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	}

	resp, err := s.next.SearchWeb(ctx, query)
	if err != nil {
		return resp, err
	}
	if raw, err := json.Marshal(resp); err == nil {
		if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
			s.logger.Warn("search_cache_set_failed", "error", err)
		}
	}
	return resp, nil
}

func cacheKey(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return "websearch:" + hex.EncodeToString(sum[:])
}
