package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sitechat/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DistributedLock = (*Lock)(nil)

// DefaultLockPrefix namespaces lock keys
const DefaultLockPrefix = "sitechat:lock:"

// ErrLockNotHeld is returned by Extend when this process does not own the lock
var ErrLockNotHeld = errors.New("lock not held")

// Lock implements DistributedLock using Redis SET NX with TTL.
//
// Every successful Acquire stores a fresh token (hostname:pid:uuid) as the
// key's value, so Release and Extend only touch locks this process took.
// Two goroutines of one process contending for the same name are therefore
// excluded exactly like two processes would be.
type Lock struct {
	client *redis.Client
	prefix string
	host   string

	mu     sync.Mutex
	tokens map[string]string // lock name -> token
}

// LockConfig holds configuration for the Redis lock
type LockConfig struct {
	Prefix string // Key prefix (default: DefaultLockPrefix)
}

// NewLock creates a new Redis-backed distributed lock.
func NewLock(client *redis.Client, cfg LockConfig) *Lock {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultLockPrefix
	}
	hostname, _ := os.Hostname()
	return &Lock{
		client: client,
		prefix: prefix,
		host:   fmt.Sprintf("%s:%d", hostname, os.Getpid()),
		tokens: make(map[string]string),
	}
}

func (l *Lock) key(name string) string {
	return l.prefix + name
}

func (l *Lock) token(name string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	token, ok := l.tokens[name]
	return token, ok
}

// Acquire attempts to acquire a named lock with the given TTL.
// Returns true if acquired, false if already held by anyone, including this process.
func (l *Lock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	token := l.host + ":" + uuid.NewString()

	acquired, err := l.client.SetNX(ctx, l.key(name), token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !acquired {
		return false, nil
	}

	l.mu.Lock()
	l.tokens[name] = token
	l.mu.Unlock()
	return true, nil
}

// releaseScript deletes the key only while it still carries our token
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Release releases a named lock if held by this process.
// Safe to call even if the lock is not held or has expired.
func (l *Lock) Release(ctx context.Context, name string) error {
	l.mu.Lock()
	token, ok := l.tokens[name]
	delete(l.tokens, name)
	l.mu.Unlock()

	if !ok {
		return nil
	}

	_, err := releaseScript.Run(ctx, l.client, []string{l.key(name)}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

// extendScript resets the TTL only while the key still carries our token
var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// Extend extends the TTL of a currently held lock.
// Returns ErrLockNotHeld if the lock expired or belongs to someone else.
func (l *Lock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	token, ok := l.token(name)
	if !ok {
		return fmt.Errorf("extend lock %s: %w", name, ErrLockNotHeld)
	}

	result, err := extendScript.Run(ctx, l.client, []string{l.key(name)}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", name, err)
	}
	if result == 0 {
		return fmt.Errorf("extend lock %s: %w", name, ErrLockNotHeld)
	}
	return nil
}

// Ping checks if the Redis backend is healthy.
func (l *Lock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
