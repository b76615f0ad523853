package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/event"
)

// Interface guard
var _ Connector = (*connect)(nil)

// [CONNECTOR] THE INTERFACE FOR EXTERNAL LAYERS (REGISTRY/HUB)
// One Connector is one live session of a user.
type Connector interface {
	GetID() uuid.UUID
	GetUserID() uuid.UUID
	CreatedAt() time.Time
	Send(ev event.Eventer, timeout time.Duration) bool // Thread-safe send with backpressure handling
	Recv() <-chan event.Eventer
	Done() <-chan struct{} // Closed once the session is terminated
	Dropped() uint64
	Close() // Terminate connection and release resources
}

// [METADATA] EXPORTED FOR TRANSPORT AND ANALYTICS LAYERS
type ConnectMetadata struct {
	Platform  string
	Version   string
	RemoteIP  string
	UserAgent string
}

// [CONNECT] CONCRETE IMPLEMENTATION (UNEXPORTED TO FORCE INTERFACE USAGE)
type connect struct {
	id           uuid.UUID
	userID       uuid.UUID
	metadata     ConnectMetadata
	createdAt    time.Time
	ctx          context.Context
	cancelFn     context.CancelFunc
	sendCh       chan event.Eventer
	closeOnce    sync.Once // [PROTECTION]
	droppedCount uint64    // [ATOMIC_FIELD]
}

// NewConnector creates a session for userID with a fresh session id.
// The session ends when ctx is cancelled or Close is called.
func NewConnector(ctx context.Context, userID uuid.UUID, bufferSize int) Connector {
	return NewConnectorWithID(ctx, uuid.New(), userID, bufferSize, ConnectMetadata{})
}

// NewConnectorWithID is used by transports that allocate the session id themselves.
func NewConnectorWithID(ctx context.Context, id, userID uuid.UUID, bufferSize int, meta ConnectMetadata) Connector {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	childCtx, cancel := context.WithCancel(ctx)
	return &connect{
		id:        id,
		userID:    userID,
		metadata:  meta,
		createdAt: time.Now(),
		ctx:       childCtx,
		cancelFn:  cancel,
		sendCh:    make(chan event.Eventer, bufferSize),
	}
}

// --- IMPLEMENTATION OF CONNECTOR INTERFACE ---

func (c *connect) GetID() uuid.UUID           { return c.id }
func (c *connect) GetUserID() uuid.UUID       { return c.userID }
func (c *connect) CreatedAt() time.Time       { return c.createdAt }
func (c *connect) Recv() <-chan event.Eventer { return c.sendCh }
func (c *connect) Done() <-chan struct{}      { return c.ctx.Done() }
func (c *connect) Dropped() uint64            { return atomic.LoadUint64(&c.droppedCount) }

// Send attempts to push an event into the session buffer.
// If the buffer stays full for the whole timeout, it tries to evict a lower priority event.
func (c *connect) Send(ev event.Eventer, timeout time.Duration) bool {
	// [LIFECYCLE_GATE] Immediately abort if the underlying transport is already dead.
	select {
	case <-c.ctx.Done():
		return false
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.ctx.Done():
		return false

	// [PRIMARY_DELIVERY] Wait up to 'timeout' for space to become available.
	case c.sendCh <- ev:
		return true

	// [BACKPRESSURE_THRESHOLD] Persistent slow consumer.
	case <-timer.C:
		return c.handleBackpressure(ev)
	}
}

// handleBackpressure manages full buffers by dropping low-priority events.
func (c *connect) handleBackpressure(ev event.Eventer) bool {
	if ev.GetPriority() <= event.PriorityLow {
		atomic.AddUint64(&c.droppedCount, 1)
		return false
	}

	// Evict the oldest buffered event when it is less important than the new one.
	select {
	case oldEv := <-c.sendCh:
		if oldEv.GetPriority() < ev.GetPriority() {
			select {
			case c.sendCh <- ev:
				atomic.AddUint64(&c.droppedCount, 1) // the evicted one
				return true
			default:
			}
		}
		// Put it back (best effort).
		select {
		case c.sendCh <- oldEv:
		default:
			atomic.AddUint64(&c.droppedCount, 1)
		}
	default:
	}

	atomic.AddUint64(&c.droppedCount, 1)
	return false
}

// Close terminates the session. The buffer channel is left open so that a
// concurrent Send can never panic; readers select on Done instead.
func (c *connect) Close() {
	c.closeOnce.Do(func() {
		c.cancelFn()
	})
}
