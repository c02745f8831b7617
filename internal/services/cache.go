package services

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/singleflight"

	"github.com/bobarin/mathcast/internal/audio"
	"github.com/bobarin/mathcast/internal/logger"
)

// CacheKey is the content address of a piece of narration text.
func CacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// AudioCache stores encoded clips by CacheKey.
type AudioCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// encodeClip prefixes the PCM payload with its sample rate.
func encodeClip(c *audio.Clip) []byte {
	out := make([]byte, 4, 4+2*len(c.Samples))
	binary.LittleEndian.PutUint32(out, uint32(c.SampleRate))
	return append(out, audio.EncodePCM(c.Samples)...)
}

func decodeClip(data []byte) (*audio.Clip, error) {
	if len(data) < 4 {
		return nil, errors.New("cached clip too short")
	}
	rate := int(binary.LittleEndian.Uint32(data))
	if rate <= 0 {
		return nil, fmt.Errorf("cached clip has invalid sample rate %d", rate)
	}
	return audio.NewClip(audio.DecodePCM(data[4:]), rate), nil
}

// ---------------------------------------------------------------------------
// CachingSynthesizer
// Wraps a provider so identical narration is synthesized once. Concurrent
// requests for the same text share one upstream call. Cache failures are
// logged and bypassed; they never fail synthesis.
// ---------------------------------------------------------------------------

type CachingSynthesizer struct {
	next  SpeechSynthesizer
	cache AudioCache
	group singleflight.Group
	log   *logger.Logger
}

var _ SpeechSynthesizer = (*CachingSynthesizer)(nil)

func NewCachingSynthesizer(next SpeechSynthesizer, cache AudioCache, log *logger.Logger) *CachingSynthesizer {
	return &CachingSynthesizer{next: next, cache: cache, log: log}
}

func (s *CachingSynthesizer) Synthesize(ctx context.Context, text string) (*audio.Clip, error) {
	key := CacheKey(text)

	if data, ok, err := s.cache.Get(ctx, key); err != nil {
		s.log.Warn("audio cache read failed", "key", key, "error", err)
	} else if ok {
		clip, derr := decodeClip(data)
		if derr == nil {
			return clip, nil
		}
		s.log.Warn("discarding corrupt cached clip", "key", key, "error", derr)
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		clip, err := s.next.Synthesize(ctx, text)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, key, encodeClip(clip)); err != nil {
			s.log.Warn("audio cache write failed", "key", key, "error", err)
		}
		return clip, nil
	})
	if err != nil {
		return nil, err
	}
	// Callers own their clip; hand each a private copy of the samples.
	shared := v.(*audio.Clip)
	return audio.NewClip(append([]int16(nil), shared.Samples...), shared.SampleRate), nil
}

// MemoryCache is a bounded in-process cache. When full, an arbitrary entry
// is evicted.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string][]byte
	maxEntries int
}

func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 512
	}
	return &MemoryCache{entries: make(map[string][]byte), maxEntries: maxEntries}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		for k := range c.entries {
			delete(c.entries, k)
			break
		}
	}
	c.entries[key] = value
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RedisCache keeps synthesized clips in Redis with a TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

const audioCachePrefix = "cache:tts:"

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: audioCachePrefix, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached audio: %w", err)
	}
	return data, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	if err := c.client.Set(ctx, c.prefix+key, value, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache audio: %w", err)
	}
	return nil
}
