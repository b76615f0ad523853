package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/model"
)

const (
	defaultStageTTL     = 5 * time.Second
	defaultCacheTimeout = 200 * time.Millisecond
)

// Staging keeps recently sent messages in the ephemeral cache. Every call is
// bounded by its own short deadline and no failure is returned: a slow or
// absent cache only costs the fast path.
//
// A nil *Staging is a disabled cache.
type Staging struct {
	cache   CacheBackend
	ttl     time.Duration
	timeout time.Duration
	logger  *slog.Logger
}

func NewStaging(cache CacheBackend, ttl, timeout time.Duration, logger *slog.Logger) *Staging {
	if ttl <= 0 {
		ttl = defaultStageTTL
	}
	if timeout <= 0 {
		timeout = defaultCacheTimeout
	}
	return &Staging{cache: cache, ttl: ttl, timeout: timeout, logger: logger}
}

// Put stages msg under MessageKey.
func (s *Staging) Put(ctx context.Context, msg *model.Message) {
	if s == nil {
		return
	}
	raw, err := json.Marshal(msg)
	if err == nil {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		err = s.cache.Set(ctx, MessageKey(msg.ID), raw, s.ttl)
	}
	if err != nil {
		s.logger.Warn("CACHE_STAGE_FAILED", "err", err, "message_id", msg.ID)
	}
}

// Get returns the staged copy of id, if any.
func (s *Staging) Get(ctx context.Context, id uuid.UUID) (*model.Message, bool) {
	if s == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.cache.Get(ctx, MessageKey(id))
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			s.logger.Debug("CACHE_LOOKUP_FAILED", "err", err, "message_id", id)
		}
		return nil, false
	}
	var msg model.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logger.Debug("CACHE_ENTRY_CORRUPT", "err", err, "message_id", id)
		return nil, false
	}
	return &msg, true
}

// Evict drops the staged copy of id. Called after every committed change to
// the message so the fast path never serves an older status than the store.
// It outlives the caller's cancellation: the change is already committed.
func (s *Staging) Evict(ctx context.Context, id uuid.UUID) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.cache.Delete(ctx, MessageKey(id)); err != nil {
		s.logger.Warn("CACHE_EVICT_FAILED", "err", err, "message_id", id)
	}
}
