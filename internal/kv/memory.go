package kv

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// memoryStore is an in-process Store used by tests and single-node
// development. Semantics mirror the redis implementation, including lazy
// expiry.
type memoryStore struct {
	mu     sync.Mutex
	values map[string]memoryValue
	lists  map[string][]string
	hashes map[string]map[string]string
}

type memoryValue struct {
	value     string
	expiresAt time.Time
}

// NewMemory returns an empty in-memory Store.
func NewMemory() Store {
	return &memoryStore{
		values: make(map[string]memoryValue),
		lists:  make(map[string][]string),
		hashes: make(map[string]map[string]string),
	}
}

func (s *memoryStore) expired(v memoryValue) bool {
	return !v.expiresAt.IsZero() && time.Now().After(v.expiresAt)
}

func (s *memoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = memoryValue{value: value, expiresAt: deadline(ttl)}
	return nil
}

func (s *memoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key]; ok && !s.expired(v) {
		return false, nil
	}
	s.values[key] = memoryValue{value: value, expiresAt: deadline(ttl)}
	return true, nil
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok || s.expired(v) {
		delete(s.values, key)
		return "", ErrNotFound
	}
	return v.value, nil
}

func (s *memoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.values, key)
		delete(s.lists, key)
		delete(s.hashes, key)
	}
	return nil
}

func (s *memoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key]; ok && !s.expired(v) {
		v.expiresAt = deadline(ttl)
		s.values[key] = v
	}
	return nil
}

func (s *memoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(0)
	if v, ok := s.values[key]; ok && !s.expired(v) {
		parsed, err := strconv.ParseInt(v.value, 10, 64)
		if err != nil {
			return 0, err
		}
		n = parsed
	}
	n++
	expiresAt := time.Time{}
	if v, ok := s.values[key]; ok {
		expiresAt = v.expiresAt
	}
	s.values[key] = memoryValue{value: strconv.FormatInt(n, 10), expiresAt: expiresAt}
	return n, nil
}

func (s *memoryStore) RPush(_ context.Context, key string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[key] = append(s.lists[key], values...)
	return nil
}

func (s *memoryStore) LRange(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[key]
	out := make([]string, len(list))
	copy(out, list)
	return out, nil
}

func (s *memoryStore) LTrim(_ context.Context, key string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[key]
	if len(list) > n {
		s.lists[key] = append([]string(nil), list[len(list)-n:]...)
	}
	return nil
}

func (s *memoryStore) LLen(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.lists[key])), nil
}

func (s *memoryStore) HSet(_ context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (s *memoryStore) HGet(_ context.Context, key, field string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.hashes[key][field]; ok {
		return v, nil
	}
	return "", ErrNotFound
}

func (s *memoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.hashes[key]))
	for f, v := range s.hashes[key] {
		out[f] = v
	}
	return out, nil
}

func (s *memoryStore) HDel(_ context.Context, key string, fields ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range fields {
		delete(s.hashes[key], f)
	}
	return nil
}

func (s *memoryStore) Close() error {
	return nil
}

func deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}
