// Package kv wraps the external key-value store behind the small set of
// atomic primitives the coordination core relies on: SET NX, TTLs, lists and
// hashes. No multi-key transactions are assumed.
package kv

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist or has expired.
var ErrNotFound = errors.New("kv: key not found")

type Store interface {
	// Set writes a value. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX writes only if the key is absent. Returns true when the write won.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	// Expire refreshes the TTL of an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)

	// List primitives for the per-player outbox.
	RPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string) ([]string, error)
	// LTrim keeps only the last n elements, dropping the oldest.
	LTrim(ctx context.Context, key string, n int) error
	LLen(ctx context.Context, key string) (int64, error)

	// Hash primitives for the waiting pool and accept state.
	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error

	Close() error
}

// Key layout. Every key the core touches is built here so the whole footprint
// is visible in one place.

func PlayerLockKey(summonerName string) string        { return "player:" + summonerName }
func SessionKey(randomSessionID string) string        { return "session:" + randomSessionID }
func SessionBySummonerKey(summonerName string) string { return "session_by_summoner:" + summonerName }
func CustomSessionKey(customSessionID string) string {
	return "custom_session_mapping:" + customSessionID
}
func PendingEventsKey(customSessionID string) string { return "pending:" + customSessionID }
func MatchOwnerKey(matchID int64) string             { return "match:" + itoa(matchID) + ":owner" }
func BackendAliveKey(backendID string) string        { return "backend:" + backendID + ":alive" }
func QueuePoolKey(region string) string              { return "queue:" + region }
func AcceptStateKey(matchID int64) string            { return "accept:" + itoa(matchID) }
func DeclineCountKey(summonerName string) string     { return "decline_count:" + summonerName }

func AckKey(class string, matchID int64, summonerName string) string {
	return class + "_ack:" + itoa(matchID) + ":" + summonerName
}

func IdentityRequestKey(summonerName string, ts int64) string {
	return "identity_request:" + summonerName + ":" + itoa(ts)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
