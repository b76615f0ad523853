package service

import (
	"encoding/binary"
	"sync"

	"github.com/google/uuid"
)

const lockStripes = 64

// stripedLock serialises read-modify-write cycles on one message within this
// node. Cross-node races are settled by the store's version check.
type stripedLock struct {
	mu [lockStripes]sync.Mutex
}

func (l *stripedLock) lock(id uuid.UUID) func() {
	m := &l.mu[binary.BigEndian.Uint64(id[8:])%lockStripes]
	m.Lock()
	return m.Unlock
}
