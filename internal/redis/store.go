// Package redis provides the key-value store that holds all short-lived
// authorization server state: authorization codes, refresh grants, revoked
// token IDs, login sessions, confirmation codes, rate-limit records and the
// client cache.
//
// Keys are organized with prefixes to avoid collisions (see the constants
// package):
//   - auth:code:{code} - authorization grants
//   - auth:refresh:{jti} - refresh grants
//   - auth:revoked:{jti} - revoked access tokens until their expiry
//   - auth:session:{id} - resource-owner sessions
//   - auth:confirmation:{id} - sensitive operation confirmation codes
//   - auth:rate_limit:{preset}:{key} - rate limiter records
//   - auth:client:{id} - cached client registrations
//
// Two implementations exist: Client on Redis, and MemoryStore for local
// development and tests. Both give the same atomicity guarantees for the
// compare operations.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	// MinTokenLengthForMasking is the minimum token length before masking is applied.
	MinTokenLengthForMasking = 8
)

// ErrCacheMiss is returned when a key does not exist in the store.
// This is a sentinel error that callers can check to distinguish between
// a missing key (expected) and an actual error (unexpected).
var ErrCacheMiss = errors.New("cache miss")

// Store is a byte-oriented key-value store with per-key TTL and atomic
// compare operations. Implementations must be safe for concurrent use.
//
// A ttl of zero stores the value without expiry.
type Store interface {
	// Get returns the value stored at key or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores value at key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// PutIfAbsent stores value only when key does not exist and reports
	// whether it did.
	PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// CompareAndDelete removes key only if it still holds expected and
	// reports whether it did. Exactly one of several concurrent callers
	// presenting the same expected value succeeds.
	CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error)
	// CompareAndSwap replaces the value at key with value only if it still
	// holds expected and reports whether it did.
	CompareAndSwap(ctx context.Context, key string, expected, value []byte, ttl time.Duration) (bool, error)
	// Scan returns all live keys starting with prefix.
	Scan(ctx context.Context, prefix string) ([]string, error)
	// Ping checks store connectivity.
	Ping(ctx context.Context) error
	// Close releases the store's resources.
	Close() error
}

// GetJSON loads the value at key into v. It returns ErrCacheMiss when the
// key does not exist, and the raw bytes so callers can compare-and-swap
// against exactly what they read.
func GetJSON(ctx context.Context, s Store, key string, v interface{}) ([]byte, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return data, nil
}

// PutJSON stores v as JSON at key.
func PutJSON(ctx context.Context, s Store, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return s.Put(ctx, key, data, ttl)
}

// MaskToken masks a sensitive token for logging by showing only the first and
// last 4 characters.
//
// Examples:
//   - "abc123xyz789" -> "abc1***x789"
//   - "short" -> "***"
func MaskToken(token string) string {
	if len(token) <= MinTokenLengthForMasking {
		return "***"
	}
	return token[:4] + "***" + token[len(token)-4:]
}
