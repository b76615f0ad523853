package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/model"
)

// Reconciler evicts staged messages from the ephemeral cache once the durable
// store confirms them. TTL expiry in the cache is the fallback when sweeps stall.
type Reconciler struct {
	cache    CacheBackend
	store    MessageStore
	interval time.Duration
	logger   *slog.Logger
}

func NewReconciler(cache CacheBackend, store MessageStore, interval time.Duration, logger *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Reconciler{cache: cache, store: store, interval: interval, logger: logger}
}

// ReconcileOnce runs a single sweep and returns how many keys it evicted.
// A key whose message the store cannot confirm right now is left for the next sweep.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (int, error) {
	keys, err := r.cache.Keys(ctx, MessageKeyPattern)
	if err != nil {
		return 0, fmt.Errorf("reconciler: list staged keys: %w: %w", model.ErrCache, err)
	}

	evicted := 0
	for _, key := range keys {
		if ctx.Err() != nil {
			return evicted, ctx.Err()
		}

		id, ok := r.decode(ctx, key)
		if !ok {
			if r.evict(ctx, key) {
				evicted++
			}
			continue
		}
		if id == uuid.Nil {
			// expired between Keys and Get
			continue
		}

		if _, err := r.store.GetMessage(ctx, id); err != nil {
			r.logger.Debug("RECONCILE_UNCONFIRMED", "key", key, "err", err)
			continue
		}
		if r.evict(ctx, key) {
			evicted++
		}
	}
	return evicted, nil
}

// decode reports false for an entry that can never be confirmed.
// A nil id with ok=true means the entry vanished.
func (r *Reconciler) decode(ctx context.Context, key string) (uuid.UUID, bool) {
	keyID, err := uuid.Parse(strings.TrimPrefix(key, MessageKeyPrefix))
	if err != nil {
		r.logger.Warn("RECONCILE_BAD_KEY", "key", key)
		return uuid.Nil, false
	}

	raw, err := r.cache.Get(ctx, key)
	if errors.Is(err, model.ErrNotFound) {
		return uuid.Nil, true
	}
	if err != nil {
		// Treat as unconfirmed; the next sweep retries.
		r.logger.Debug("RECONCILE_READ_FAILED", "key", key, "err", err)
		return uuid.Nil, true
	}

	var staged model.Message
	if err := json.Unmarshal(raw, &staged); err != nil || staged.ID != keyID {
		r.logger.Warn("RECONCILE_UNDECODABLE", "key", key)
		return uuid.Nil, false
	}
	return keyID, true
}

func (r *Reconciler) evict(ctx context.Context, key string) bool {
	if err := r.cache.Delete(ctx, key); err != nil {
		r.logger.Warn("RECONCILE_EVICT_FAILED", "key", key, "err", err)
		return false
	}
	return true
}

// Run sweeps on every tick until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.ReconcileOnce(ctx)
			if err != nil && ctx.Err() == nil {
				r.logger.Warn("RECONCILE_SWEEP_FAILED", "err", err, "evicted", n)
				continue
			}
			if n > 0 {
				r.logger.Debug("RECONCILE_SWEEP_COMPLETED", "evicted", n)
			}
		}
	}
}
