// Package redisstore implements the TokenStore port on a Redis key.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ericfisherdev/chargegw/internal/adapter/driven/secretbox"
	"github.com/ericfisherdev/chargegw/internal/domain/model"
	"github.com/ericfisherdev/chargegw/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TokenStore = (*Store)(nil)

// DefaultKey is the Redis key holding the credential record.
const DefaultKey = "chargegw:credential"

// kv is the subset of Redis commands the store needs.
type kv interface {
	get(ctx context.Context, key string) (string, error)
	set(ctx context.Context, key, value string, ttl time.Duration) error
	del(ctx context.Context, key string) error
}

// errMiss is returned by kv.get for a missing key.
var errMiss = errors.New("redis: key not found")

// Store keeps the sealed credential under a single key whose TTL matches the
// credential's remaining lifetime, so Redis drops it once it has expired.
type Store struct {
	client kv
	key    string
	sealer *secretbox.Sealer
	logger *slog.Logger
	now    func() time.Time
}

// New connects to Redis at addr and verifies the connection.
func New(ctx context.Context, addr, password string, sealer *secretbox.Sealer, logger *slog.Logger) (*Store, func() error, error) {
	rc := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		_ = rc.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}

	logger.Info("connected to redis token store", "addr", addr)
	return newStore(&redisClient{rc: rc}, DefaultKey, sealer, logger), rc.Close, nil
}

func newStore(client kv, key string, sealer *secretbox.Sealer, logger *slog.Logger) *Store {
	return &Store{client: client, key: key, sealer: sealer, logger: logger, now: time.Now}
}

// Load returns the stored credential, or (nil, nil) if the key is missing or
// its value cannot be decoded.
func (s *Store) Load(ctx context.Context) (*model.Credential, error) {
	payload, err := s.client.get(ctx, s.key)
	if errors.Is(err, errMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, &model.StorageError{Op: "load", Err: err}
	}

	cred, err := s.sealer.OpenCredential(payload)
	if err != nil {
		s.logger.Warn("ignoring malformed stored credential", "key", s.key, "error", err)
		return nil, nil
	}
	return cred, nil
}

// Save replaces the stored credential. A credential that has already expired
// is written without a TTL so Load still sees it; the session manager treats
// it as expired.
func (s *Store) Save(ctx context.Context, cred model.Credential) error {
	payload, err := s.sealer.SealCredential(cred)
	if err != nil {
		return &model.StorageError{Op: "save", Err: err}
	}

	ttl := cred.ExpiresAt.Sub(s.now())
	if ttl < time.Second {
		ttl = 0
	}

	if err := s.client.set(ctx, s.key, payload, ttl); err != nil {
		return &model.StorageError{Op: "save", Err: err}
	}
	return nil
}

// Clear deletes the key.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.client.del(ctx, s.key); err != nil {
		return &model.StorageError{Op: "clear", Err: err}
	}
	return nil
}

// redisClient adapts *redis.Client to kv.
type redisClient struct {
	rc *redis.Client
}

func (r *redisClient) get(ctx context.Context, key string) (string, error) {
	val, err := r.rc.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", errMiss
	}
	return val, err
}

func (r *redisClient) set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.rc.Set(ctx, key, value, ttl).Err()
}

func (r *redisClient) del(ctx context.Context, key string) error {
	return r.rc.Del(ctx, key).Err()
}
