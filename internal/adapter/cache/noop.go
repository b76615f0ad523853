package cache

import (
	"context"
	"time"

	"github.com/webitel/im-realtime-service/internal/domain/model"
)

// Noop disables caching. Every read misses; the core falls back to the store.
type Noop struct{}

func (Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Noop) Get(context.Context, string) ([]byte, error)              { return nil, model.ErrNotFound }
func (Noop) Delete(context.Context, string) error                     { return nil }
func (Noop) Keys(context.Context, string) ([]string, error)           { return nil, nil }
