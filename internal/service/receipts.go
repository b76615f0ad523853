package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/event"
	"github.com/webitel/im-realtime-service/internal/domain/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxCommitAttempts = 3

// Receipts drives the delivery state machine: sent -> delivered -> read.
// Transitions are computed by model.Message and written back under the
// message's stripe lock with an optimistic version check.
type Receipts struct {
	store        MessageStore
	dir          Directory
	staging      *Staging
	emit         *Emitter
	locks        stripedLock
	storeTimeout time.Duration
	tracer       trace.Tracer
	logger       *slog.Logger
	now          func() time.Time
}

func NewReceipts(
	store MessageStore,
	dir Directory,
	staging *Staging,
	emit *Emitter,
	storeTimeout time.Duration,
	logger *slog.Logger,
) *Receipts {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Receipts{
		store:        store,
		dir:          dir,
		staging:      staging,
		emit:         emit,
		storeTimeout: storeTimeout,
		tracer:       otel.Tracer(tracerName),
		logger:       logger,
		now:          time.Now,
	}
}

// AcknowledgeDelivered records that userID's client received the message.
func (r *Receipts) AcknowledgeDelivered(ctx context.Context, messageID, userID uuid.UUID) (*model.Message, error) {
	return r.acknowledge(ctx, "Receipts.AcknowledgeDelivered", messageID, userID, (*model.Message).MarkDelivered)
}

// AcknowledgeRead records that readerID has seen the message. Repeating it is
// a no-op, and it implies delivered.
func (r *Receipts) AcknowledgeRead(ctx context.Context, messageID, readerID uuid.UUID) (*model.Message, error) {
	return r.acknowledge(ctx, "Receipts.AcknowledgeRead", messageID, readerID, (*model.Message).MarkRead)
}

type markFunc func(m *model.Message, userID uuid.UUID, at time.Time) bool

func (r *Receipts) acknowledge(ctx context.Context, op string, messageID, userID uuid.UUID, mark markFunc) (_ *model.Message, err error) {
	ctx, span := r.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("message_id", messageID.String()),
		attribute.String("user_id", userID.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if messageID == uuid.Nil || userID == uuid.Nil {
		return nil, fmt.Errorf("receipts: %w: message and user are required", model.ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	unlock := r.locks.lock(messageID)
	defer unlock()

	msg, err := r.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, storeErr("receipts: load message", err)
	}
	// The sender acknowledging its own message changes nothing.
	if msg.SenderID == userID {
		return msg, nil
	}
	if err := r.authorize(ctx, msg, userID); err != nil {
		return nil, err
	}

	msg, changed, err := r.commit(ctx, msg, func(m *model.Message) bool {
		return mark(m, userID, r.now().UTC())
	})
	if err != nil {
		return nil, err
	}
	if changed {
		r.notify(ctx, msg)
	}
	return msg, nil
}

// AcknowledgeAllRead marks every unread direct message from senderID to
// readerID as read and tells the sender with a single batch event.
func (r *Receipts) AcknowledgeAllRead(ctx context.Context, readerID, senderID uuid.UUID) (_ int, err error) {
	ctx, span := r.tracer.Start(ctx, "Receipts.AcknowledgeAllRead", trace.WithAttributes(
		attribute.String("reader_id", readerID.String()),
		attribute.String("sender_id", senderID.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if readerID == uuid.Nil || senderID == uuid.Nil {
		return 0, fmt.Errorf("receipts: %w: reader and sender are required", model.ErrInvalidInput)
	}
	if readerID == senderID {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	unread, err := r.store.ListUnread(ctx, senderID, readerID)
	if err != nil {
		return 0, storeErr("receipts: list unread", err)
	}

	at := r.now().UTC()
	var (
		changed []uuid.UUID
		bulkErr error
	)
	for _, msg := range unread {
		ok, err := r.markReadLocked(ctx, msg, readerID, at)
		if err != nil {
			bulkErr = err
			// Keep what already committed and report it; the client may retry.
			r.logger.Warn("BULK_READ_PARTIAL", "err", err, "message_id", msg.ID, "committed", len(changed))
			break
		}
		if ok {
			changed = append(changed, msg.ID)
		}
	}

	if len(changed) > 0 {
		readAt := at
		r.emit.Emit(ctx, event.NewStatusEvent(senderID, &model.StatusPayload{
			MessageID:   changed[0],
			MessageIDs:  changed,
			To:          model.NewPeer(readerID, model.PeerUser),
			Status:      model.StatusRead,
			DeliveredAt: &readAt,
			ReadAt:      &readAt,
		}))
	}
	if bulkErr != nil {
		return len(changed), bulkErr
	}
	return len(changed), nil
}

func (r *Receipts) markReadLocked(ctx context.Context, msg *model.Message, readerID uuid.UUID, at time.Time) (bool, error) {
	unlock := r.locks.lock(msg.ID)
	defer unlock()
	_, changed, err := r.commit(ctx, msg, func(m *model.Message) bool {
		return m.MarkRead(readerID, at)
	})
	return changed, err
}

// MarkDeliveredOnSend applies the automatic delivered transition for the
// recipients that were online when the message was routed.
func (r *Receipts) MarkDeliveredOnSend(ctx context.Context, msg *model.Message, online []uuid.UUID) (*model.Message, error) {
	if len(online) == 0 {
		return msg, nil
	}
	ctx, span := r.tracer.Start(ctx, "Receipts.MarkDeliveredOnSend", trace.WithAttributes(
		attribute.String("message_id", msg.ID.String()),
		attribute.Int("online", len(online)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	unlock := r.locks.lock(msg.ID)
	defer unlock()

	at := r.now().UTC()
	updated, changed, err := r.commit(ctx, msg.Clone(), func(m *model.Message) bool {
		advanced := false
		for _, userID := range online {
			if userID == m.SenderID {
				continue
			}
			if m.MarkDelivered(userID, at) {
				advanced = true
			}
		}
		return advanced
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if changed {
		r.notify(ctx, updated)
	}
	return updated, nil
}

// commit applies mutate and writes the delivery fields back. On a version
// conflict the message is reloaded and mutate is applied again. A committed
// change evicts the staged copy. Callers hold the message's stripe lock.
func (r *Receipts) commit(ctx context.Context, msg *model.Message, mutate func(*model.Message) bool) (*model.Message, bool, error) {
	for attempt := 1; ; attempt++ {
		if !mutate(msg) {
			return msg, false, nil
		}
		msg.UpdatedAt = r.now().UTC()

		err := r.store.UpdateStatus(ctx, msg.ID, msg.Patch(), msg.Version)
		if err == nil {
			msg.Version++
			r.staging.Evict(ctx, msg.ID)
			return msg, true, nil
		}
		if !errors.Is(err, model.ErrVersionConflict) || attempt >= maxCommitAttempts {
			return nil, false, storeErr("receipts: update status", err)
		}

		r.logger.Debug("STATUS_VERSION_CONFLICT", "message_id", msg.ID, "attempt", attempt)
		if msg, err = r.store.GetMessage(ctx, msg.ID); err != nil {
			return nil, false, storeErr("receipts: reload message", err)
		}
	}
}

// authorize checks that userID is a legitimate recipient of msg.
func (r *Receipts) authorize(ctx context.Context, msg *model.Message, userID uuid.UUID) error {
	if !msg.To.IsGroup() {
		if msg.To.ID != userID {
			return fmt.Errorf("receipts: %w: %s is not the receiver of %s", model.ErrUnauthorized, userID, msg.ID)
		}
		return nil
	}
	ok, err := r.dir.ValidateRecipient(ctx, msg.To, userID)
	if err != nil {
		return fmt.Errorf("receipts: validate recipient: %w", err)
	}
	if !ok {
		return fmt.Errorf("receipts: %w: %s is not a member of %s", model.ErrUnauthorized, userID, msg.To.ID)
	}
	return nil
}

// notify tells the sender about a committed transition.
func (r *Receipts) notify(ctx context.Context, msg *model.Message) {
	r.emit.Emit(ctx, event.NewStatusEvent(msg.SenderID, model.NewStatusPayload(msg)))
}
