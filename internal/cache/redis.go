package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Alias1177/SignalScanner/models"
)

// RedisConfig holds the connection settings of the sentiment store
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Prefix   string
}

type RedisOption func(*RedisConfig)

func WithAddr(addr string) RedisOption {
	return func(c *RedisConfig) { c.Addr = addr }
}

func WithPassword(password string) RedisOption {
	return func(c *RedisConfig) { c.Password = password }
}

func WithDB(db int) RedisOption {
	return func(c *RedisConfig) { c.DB = db }
}

func WithPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) {
		if prefix != "" {
			c.Prefix = prefix
		}
	}
}

// SentimentStore keeps card counts in a single Redis hash
type SentimentStore struct {
	client *redis.Client
	key    string
}

// NewSentimentStore connects to Redis and checks the connection
func NewSentimentStore(ctx context.Context, opts ...RedisOption) (*SentimentStore, error) {
	cfg := &RedisConfig{
		Addr:     "localhost:6379",
		PoolSize: 10,
		Prefix:   "scanner",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &SentimentStore{client: client, key: SentimentKey(cfg.Prefix)}, nil
}

// SentimentKey is the hash holding every symbol's card count
func SentimentKey(prefix string) string {
	return prefix + ":card_counts"
}

func (s *SentimentStore) Close() error {
	return s.client.Close()
}

func (s *SentimentStore) LoadSentiment(ctx context.Context) (map[string]int, error) {
	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", s.key, err)
	}
	return parseCounts(raw)
}

func (s *SentimentStore) SaveSentiment(ctx context.Context, symbol string, value int) error {
	if err := s.client.HSet(ctx, s.key, symbol, value).Err(); err != nil {
		return fmt.Errorf("redis hset %s %s: %w", s.key, symbol, err)
	}
	return nil
}

func parseCounts(raw map[string]string) (map[string]int, error) {
	out := make(map[string]int, len(raw))
	for symbol, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("card count of %s: %w", symbol, err)
		}
		out[symbol] = n
	}
	return out, nil
}

var _ models.SentimentStore = (*SentimentStore)(nil)
