package stream

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisTLSConfig controls TLS behaviour for Redis connections.
type RedisTLSConfig struct {
	CAFile             string
	CertFile           string
	KeyFile            string
	ServerName         string
	InsecureSkipVerify bool
}

// RedisStoreConfig configures the Redis-backed status store.
type RedisStoreConfig struct {
	Addr         string
	Addrs        []string
	Username     string
	Password     string
	KeyPrefix    string
	MasterName   string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	TLS          RedisTLSConfig
}

// upsertScript merges the provided hash fields and stamps updatedAt from the
// Redis server clock in one atomic step, so concurrent readers never observe
// a partially merged record or a client-assigned timestamp.
var upsertScript = redis.NewScript(`
for i = 1, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i+1])
end
local t = redis.call('TIME')
local stamp = t[1] .. '.' .. string.format('%06d', tonumber(t[2]))
redis.call('HSET', KEYS[1], 'updatedAt', stamp)
return stamp
`)

// RedisStore persists one hash per channel in Redis. HSET provides the
// per-key atomic merge the Store contract requires.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore connects a status store backed by Redis. The caller is
// responsible for ensuring the Redis instance is reachable.
func NewRedisStore(cfg RedisStoreConfig) (*RedisStore, error) {
	addrs := make([]string, 0, len(cfg.Addrs)+1)
	for _, addr := range cfg.Addrs {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			addrs = append(addrs, trimmed)
		}
	}
	if addr := strings.TrimSpace(cfg.Addr); addr != "" {
		addrs = append(addrs, addr)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("redis addr is required")
	}
	prefix := strings.TrimSpace(cfg.KeyPrefix)
	if prefix == "" {
		prefix = "odysee:stream:"
	}
	tlsConfig, err := buildRedisTLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        addrs,
		MasterName:   strings.TrimSpace(cfg.MasterName),
		Username:     strings.TrimSpace(cfg.Username),
		Password:     cfg.Password,
		TLSConfig:    tlsConfig,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) key(channelID string) string {
	return s.prefix + NormalizeChannelID(channelID)
}

func (s *RedisStore) Upsert(ctx context.Context, channelID string, update Update) (Status, error) {
	key := s.key(channelID)

	args := []interface{}{"channelId", NormalizeChannelID(channelID)}
	if update.Live != nil {
		args = append(args, "live", encodeBool(*update.Live))
	}
	if update.PlaybackURL != nil {
		args = append(args, "playbackUrl", *update.PlaybackURL)
	}
	if update.ContentType != nil {
		args = append(args, "contentType", *update.ContentType)
	}
	if update.ThumbnailURL != nil {
		args = append(args, "thumbnailUrl", *update.ThumbnailURL)
	}
	if update.ArchiveEnabled != nil {
		args = append(args, "archiveEnabled", encodeBool(*update.ArchiveEnabled))
	}

	if err := upsertScript.Run(ctx, s.client, []string{key}, args...).Err(); err != nil {
		return Status{}, fmt.Errorf("redis upsert: %w", err)
	}
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return Status{}, fmt.Errorf("redis read after upsert: %w", err)
	}
	return decodeHash(fields)
}

func (s *RedisStore) Get(ctx context.Context, channelID string) (Status, error) {
	fields, err := s.client.HGetAll(ctx, s.key(channelID)).Result()
	if err != nil {
		return Status{}, fmt.Errorf("redis get: %w", err)
	}
	if len(fields) == 0 {
		return Status{}, ErrNotFound
	}
	return decodeHash(fields)
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying Redis connections.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func encodeBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func decodeHash(fields map[string]string) (Status, error) {
	status := Status{
		ChannelID:      fields["channelId"],
		Live:           fields["live"] == "1",
		PlaybackURL:    fields["playbackUrl"],
		ContentType:    fields["contentType"],
		ThumbnailURL:   fields["thumbnailUrl"],
		ArchiveEnabled: fields["archiveEnabled"] == "1",
	}
	if raw := fields["updatedAt"]; raw != "" {
		stamp, err := decodeServerTime(raw)
		if err != nil {
			return Status{}, fmt.Errorf("decode updatedAt %q: %w", raw, err)
		}
		status.UpdatedAt = stamp
	}
	return status, nil
}

func decodeServerTime(raw string) (time.Time, error) {
	parts := strings.SplitN(raw, ".", 2)
	seconds, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	var micros int64
	if len(parts) == 2 && parts[1] != "" {
		micros, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return time.Time{}, err
		}
	}
	return time.Unix(seconds, micros*int64(time.Microsecond)).UTC(), nil
}

func buildRedisTLSConfig(cfg RedisTLSConfig) (*tls.Config, error) {
	if cfg.CAFile == "" && cfg.CertFile == "" && cfg.KeyFile == "" && !cfg.InsecureSkipVerify {
		return nil, nil
	}
	tlsCfg := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}
	if cfg.ServerName != "" {
		tlsCfg.ServerName = cfg.ServerName
	}
	if cfg.CAFile != "" {
		caPath := filepath.Clean(cfg.CAFile)
		pemData, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("read redis tls ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, fmt.Errorf("redis tls ca is invalid")
		}
		tlsCfg.RootCAs = pool
	}
	if cfg.CertFile != "" || cfg.KeyFile != "" {
		certPath := filepath.Clean(cfg.CertFile)
		keyPath := filepath.Clean(cfg.KeyFile)
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return nil, fmt.Errorf("load redis tls certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}
