// Package audit persists analysis artifacts to Redis with a TTL. The trail
// is optional; triage itself never depends on it.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/phishguard/phish-triage/pkg/config"
)

const defaultTTL = 168 * time.Hour

// Trail writes analysis records to Redis
type Trail struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *logrus.Logger
}

// NewTrail connects to Redis per the audit configuration. A disabled
// configuration returns (nil, nil).
func NewTrail(cfg config.AuditConfig, logger *logrus.Logger) (*Trail, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = logrus.New()
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing audit redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to audit redis: %w", err)
	}

	ttl := defaultTTL
	if cfg.TTL != "" {
		parsed, err := time.ParseDuration(cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("parsing audit ttl: %w", err)
		}
		ttl = parsed
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "phish-triage"
	}
	return &Trail{client: client, prefix: prefix, ttl: ttl, logger: logger}, nil
}

// Record stores one artifact under kind and message id. Failures are
// reported but the caller is expected to treat them as non-fatal.
func (t *Trail) Record(ctx context.Context, kind, messageID string, artifact interface{}) error {
	if t == nil {
		return nil
	}

	payload, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("marshaling audit artifact: %w", err)
	}

	key := fmt.Sprintf("%s:%s:%s:%d", t.prefix, kind, messageID, time.Now().UnixNano())
	if err := t.client.Set(ctx, key, payload, t.ttl).Err(); err != nil {
		t.logger.WithField("key", key).WithError(err).Warn("audit write failed")
		return fmt.Errorf("writing audit record: %w", err)
	}
	return nil
}

// Close releases the Redis connection
func (t *Trail) Close() error {
	if t == nil || t.client == nil {
		return nil
	}
	return t.client.Close()
}
