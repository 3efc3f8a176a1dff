// Package session owns player identity at runtime: the 1-1 mapping between a
// summoner name and its single live gateway connection, plus the durable
// per-player event outbox. The KV store is the source of truth; in-process
// maps elsewhere are caches of it.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/riftbridge/custom-match-core/internal/domain"
	"github.com/riftbridge/custom-match-core/internal/kv"
)

// LiveSessionTable is the local live-connection table the registry consults
// to tell a real duplicate from a zombie left behind by a crashed backend.
type LiveSessionTable interface {
	Has(randomSessionID string) bool
}

// LiveFunc adapts a lookup function to LiveSessionTable, letting the table
// be wired after the registry is built.
type LiveFunc func(randomSessionID string) bool

func (f LiveFunc) Has(randomSessionID string) bool { return f(randomSessionID) }

// Info is the KV record for one connection.
type Info struct {
	RandomSessionID string    `json:"randomSessionId"`
	CustomSessionID string    `json:"customSessionId"`
	SummonerName    string    `json:"summonerName"`
	PUUID           string    `json:"puuid,omitempty"`
	RemoteAddr      string    `json:"remoteAddr"`
	UserAgent       string    `json:"userAgent,omitempty"`
	LCUPort         int       `json:"lcuPort,omitempty"`
	LCUToken        string    `json:"lcuToken,omitempty"`
	LastActivity    time.Time `json:"lastActivity"`
}

// RegisterResult reports the outcome of a registration attempt. When the
// name is already held by a live connection, HolderSessionID names it.
type RegisterResult struct {
	Accepted        bool
	HolderSessionID string
}

type Registry struct {
	store kv.Store
	live  LiveSessionTable
	ttl   time.Duration
}

func NewRegistry(store kv.Store, live LiveSessionTable, sessionTTL time.Duration) *Registry {
	return &Registry{store: store, live: live, ttl: sessionTTL}
}

// RegisterSession atomically binds a summoner name to a connection. If the
// exclusion lock is already held, the holder is checked against the local
// live-session table: a holder absent there is a zombie from a crashed
// backend and is force-released, then the claim retried once.
func (r *Registry) RegisterSession(ctx context.Context, randomSessionID, summonerName, remoteAddr, userAgent string) (*RegisterResult, error) {
	name := domain.NormalizeSummonerName(summonerName)
	if name == "" {
		return nil, fmt.Errorf("empty summoner name")
	}

	lockKey := kv.PlayerLockKey(name)
	won, err := r.store.SetNX(ctx, lockKey, randomSessionID, r.ttl)
	if err != nil {
		return nil, err
	}

	if !won {
		holder, err := r.store.Get(ctx, lockKey)
		if err != nil && err != kv.ErrNotFound {
			return nil, err
		}
		if holder == randomSessionID {
			// Re-identify on the same connection: refresh and accept.
			won = true
		} else if holder != "" && r.live.Has(holder) {
			return &RegisterResult{Accepted: false, HolderSessionID: holder}, nil
		} else {
			// Zombie from a crashed backend.
			log.Printf("[registry] force-releasing zombie lock for %q (held by absent session %s)", name, holder)
			if err := r.store.Del(ctx, lockKey); err != nil {
				return nil, err
			}
			won, err = r.store.SetNX(ctx, lockKey, randomSessionID, r.ttl)
			if err != nil {
				return nil, err
			}
		}
	}

	if !won {
		holder, _ := r.store.Get(ctx, lockKey)
		return &RegisterResult{Accepted: false, HolderSessionID: holder}, nil
	}

	info := &Info{
		RandomSessionID: randomSessionID,
		CustomSessionID: domain.CustomSessionID(name),
		SummonerName:    name,
		RemoteAddr:      remoteAddr,
		UserAgent:       userAgent,
		LastActivity:    time.Now().UTC(),
	}
	if err := r.writeInfo(ctx, info); err != nil {
		return nil, err
	}
	if err := r.store.Set(ctx, kv.SessionBySummonerKey(name), randomSessionID, r.ttl); err != nil {
		return nil, err
	}
	if err := r.BindCustomToRandom(ctx, info.CustomSessionID, randomSessionID); err != nil {
		return nil, err
	}

	return &RegisterResult{Accepted: true, HolderSessionID: randomSessionID}, nil
}

// AcquirePlayerLock takes (or re-takes) the leased exclusion lock and returns
// the holder's session id. The caller succeeded iff the returned holder is
// its own session id.
func (r *Registry) AcquirePlayerLock(ctx context.Context, summonerName, randomSessionID string) (string, error) {
	name := domain.NormalizeSummonerName(summonerName)
	lockKey := kv.PlayerLockKey(name)

	won, err := r.store.SetNX(ctx, lockKey, randomSessionID, r.ttl)
	if err != nil {
		return "", err
	}
	if won {
		return randomSessionID, nil
	}
	holder, err := r.store.Get(ctx, lockKey)
	if err == kv.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if holder == randomSessionID {
		// Refresh the lease on re-acquire by the holder.
		if err := r.store.Expire(ctx, lockKey, r.ttl); err != nil {
			return "", err
		}
	}
	return holder, nil
}

// ForceReleasePlayerLock drops the lock unconditionally. Only for zombie
// cleanup when the holder is proven absent from the live-session table.
func (r *Registry) ForceReleasePlayerLock(ctx context.Context, summonerName string) error {
	return r.store.Del(ctx, kv.PlayerLockKey(domain.NormalizeSummonerName(summonerName)))
}

// BindCustomToRandom registers the stable-to-volatile session id mapping.
func (r *Registry) BindCustomToRandom(ctx context.Context, customSessionID, randomSessionID string) error {
	return r.store.Set(ctx, kv.CustomSessionKey(customSessionID), randomSessionID, r.ttl)
}

func (r *Registry) GetRandomByCustom(ctx context.Context, customSessionID string) (string, error) {
	return r.store.Get(ctx, kv.CustomSessionKey(customSessionID))
}

func (r *Registry) GetCustomByRandom(ctx context.Context, randomSessionID string) (string, error) {
	info, err := r.GetInfo(ctx, randomSessionID)
	if err != nil {
		return "", err
	}
	return info.CustomSessionID, nil
}

func (r *Registry) GetSessionBySummoner(ctx context.Context, summonerName string) (string, error) {
	return r.store.Get(ctx, kv.SessionBySummonerKey(domain.NormalizeSummonerName(summonerName)))
}

func (r *Registry) GetSummonerBySession(ctx context.Context, randomSessionID string) (string, error) {
	info, err := r.GetInfo(ctx, randomSessionID)
	if err != nil {
		return "", err
	}
	return info.SummonerName, nil
}

// GetInfo loads the KV record for a connection.
func (r *Registry) GetInfo(ctx context.Context, randomSessionID string) (*Info, error) {
	raw, err := r.store.Get(ctx, kv.SessionKey(randomSessionID))
	if err == kv.ErrNotFound {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// UpdateInfo rewrites the connection record, refreshing its TTL.
func (r *Registry) UpdateInfo(ctx context.Context, info *Info) error {
	return r.writeInfo(ctx, info)
}

// UpdateHeartbeat refreshes every lease tied to the connection.
func (r *Registry) UpdateHeartbeat(ctx context.Context, randomSessionID string) error {
	info, err := r.GetInfo(ctx, randomSessionID)
	if err != nil {
		return err
	}
	info.LastActivity = time.Now().UTC()
	if err := r.writeInfo(ctx, info); err != nil {
		return err
	}
	if info.SummonerName != "" {
		if err := r.store.Expire(ctx, kv.PlayerLockKey(info.SummonerName), r.ttl); err != nil {
			return err
		}
		if err := r.store.Expire(ctx, kv.SessionBySummonerKey(info.SummonerName), r.ttl); err != nil {
			return err
		}
	}
	if info.CustomSessionID != "" {
		if err := r.store.Expire(ctx, kv.CustomSessionKey(info.CustomSessionID), r.ttl); err != nil {
			return err
		}
	}
	return nil
}

// RemoveSession drops the connection's records and releases any lock it
// still holds.
func (r *Registry) RemoveSession(ctx context.Context, randomSessionID string) error {
	info, err := r.GetInfo(ctx, randomSessionID)
	if err == domain.ErrSessionNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	if info.SummonerName != "" {
		lockKey := kv.PlayerLockKey(info.SummonerName)
		if holder, err := r.store.Get(ctx, lockKey); err == nil && holder == randomSessionID {
			if err := r.store.Del(ctx, lockKey); err != nil {
				return err
			}
		}
		idxKey := kv.SessionBySummonerKey(info.SummonerName)
		if current, err := r.store.Get(ctx, idxKey); err == nil && current == randomSessionID {
			if err := r.store.Del(ctx, idxKey); err != nil {
				return err
			}
		}
	}
	if info.CustomSessionID != "" {
		mapKey := kv.CustomSessionKey(info.CustomSessionID)
		if current, err := r.store.Get(ctx, mapKey); err == nil && current == randomSessionID {
			if err := r.store.Del(ctx, mapKey); err != nil {
				return err
			}
		}
	}
	return r.store.Del(ctx, kv.SessionKey(randomSessionID))
}

func (r *Registry) writeInfo(ctx context.Context, info *Info) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, kv.SessionKey(info.RandomSessionID), string(raw), r.ttl)
}
