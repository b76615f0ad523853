package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/event"
	"github.com/webitel/im-realtime-service/internal/domain/model"
	"github.com/webitel/im-realtime-service/internal/domain/registry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	tracerName = "github.com/webitel/im-realtime-service/internal/service"

	// MessageKeyPrefix namespaces staged messages in the ephemeral cache.
	MessageKeyPrefix  = "message:"
	MessageKeyPattern = MessageKeyPrefix + "*"
)

func MessageKey(id uuid.UUID) string { return MessageKeyPrefix + id.String() }

// SendRequest is one inbound send, as decoded by a transport.
type SendRequest struct {
	SenderID      uuid.UUID
	Target        model.Peer
	Content       string
	Attachment    *model.Attachment
	CorrelationID string
}

// RouterOptions tunes the router's external calls.
type RouterOptions struct {
	StoreTimeout time.Duration
}

// Router accepts sends, persists them and delivers them to the recipients.
type Router struct {
	store    MessageStore
	dir      Directory
	staging  *Staging
	fanout   *FanoutResolver
	receipts *Receipts
	hub      registry.Hubber
	emit     *Emitter
	opts     RouterOptions
	tracer   trace.Tracer
	logger   *slog.Logger
	now      func() time.Time
}

func NewRouter(
	store MessageStore,
	dir Directory,
	staging *Staging,
	fanout *FanoutResolver,
	receipts *Receipts,
	hub registry.Hubber,
	emit *Emitter,
	opts RouterOptions,
	logger *slog.Logger,
) *Router {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	return &Router{
		store:    store,
		dir:      dir,
		staging:  staging,
		fanout:   fanout,
		receipts: receipts,
		hub:      hub,
		emit:     emit,
		opts:     opts,
		tracer:   otel.Tracer(tracerName),
		logger:   logger,
		now:      time.Now,
	}
}

// Send validates, persists, stages and delivers one message.
//
// Only validation and persistence can fail the call. Once the store has
// committed, every later step (staging, fan-out, delivery, the automatic
// delivered transition) logs its failures and carries on.
func (r *Router) Send(ctx context.Context, req SendRequest) (*model.Message, error) {
	ctx, span := r.tracer.Start(ctx, "Router.Send", trace.WithAttributes(
		attribute.String("sender_id", req.SenderID.String()),
		attribute.String("target_id", req.Target.ID.String()),
		attribute.String("target_type", req.Target.Type.String()),
	))
	defer span.End()

	msg, err := r.accept(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("message_id", msg.ID.String()))

	recipients := r.recipients(ctx, msg)
	online := make([]uuid.UUID, 0, len(recipients))
	for _, userID := range recipients {
		if r.hub.IsOnline(userID) {
			online = append(online, userID)
		}
		r.emit.Emit(ctx, event.NewMessageEvent(msg.Clone(), userID, req.CorrelationID))
	}

	if len(online) > 0 {
		updated, err := r.receipts.MarkDeliveredOnSend(ctx, msg, online)
		if err != nil {
			r.logger.Warn("AUTO_DELIVERED_FAILED", "err", err, "message_id", msg.ID)
		} else {
			msg = updated
		}
	}

	return msg, nil
}

// accept runs every check that may reject the send, then persists and
// stages it.
func (r *Router) accept(ctx context.Context, req SendRequest) (*model.Message, error) {
	if err := validateSend(req); err != nil {
		return nil, err
	}
	if err := r.resolveTarget(ctx, req.SenderID, req.Target); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	msg := &model.Message{
		ID:         uuid.New(),
		SenderID:   req.SenderID,
		To:         req.Target,
		Content:    strings.TrimSpace(req.Content),
		Attachment: req.Attachment,
		Type:       model.ClassifyMessage(req.Content, req.Attachment),
		Status:     model.StatusSent,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if !req.Attachment.Present() {
		msg.Attachment = nil
	}

	// Held until staged: a status commit racing the send must evict after the put.
	unlock := r.receipts.locks.lock(msg.ID)
	defer unlock()

	storeCtx, cancel := context.WithTimeout(ctx, r.opts.StoreTimeout)
	defer cancel()
	if err := r.store.SaveMessage(storeCtx, msg); err != nil {
		return nil, fmt.Errorf("router: save message: %w: %w", model.ErrPersistence, err)
	}
	r.staging.Put(ctx, msg)
	return msg, nil
}

func validateSend(req SendRequest) error {
	switch {
	case req.SenderID == uuid.Nil:
		return fmt.Errorf("router: %w: sender is required", model.ErrInvalidInput)
	case !req.Target.Valid():
		return fmt.Errorf("router: %w: malformed target", model.ErrInvalidInput)
	case strings.TrimSpace(req.Content) == "" && !req.Attachment.Present():
		return fmt.Errorf("router: %w: message has neither content nor attachment", model.ErrInvalidInput)
	}
	return nil
}

// resolveTarget checks the target exists and, for groups, that the sender
// belongs to it. Both directory calls run concurrently.
func (r *Router) resolveTarget(ctx context.Context, senderID uuid.UUID, to model.Peer) error {
	var exists, allowed bool

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if to.IsGroup() {
			exists, err = r.dir.GroupExists(gCtx, to.ID)
		} else {
			exists, err = r.dir.UserExists(gCtx, to.ID)
		}
		return err
	})
	g.Go(func() error {
		var err error
		if to.IsGroup() {
			allowed, err = r.dir.ValidateRecipient(gCtx, to, senderID)
		} else {
			allowed = true
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("router: resolve target %s: %w", to.ID, err)
	}

	if !exists {
		return fmt.Errorf("router: %w: %s %s does not exist", model.ErrInvalidTarget, to.Type, to.ID)
	}
	if !allowed {
		return fmt.Errorf("router: %w: sender is not a member of group %s", model.ErrUnauthorized, to.ID)
	}
	return nil
}

func (r *Router) recipients(ctx context.Context, msg *model.Message) []uuid.UUID {
	if !msg.To.IsGroup() {
		return []uuid.UUID{msg.To.ID}
	}
	members, err := r.fanout.MembersOf(ctx, msg.To.ID, msg.SenderID)
	if err != nil {
		r.logger.Error("FANOUT_FAILED", "err", err, "message_id", msg.ID, "group_id", msg.To.ID)
		return nil
	}
	return members
}

// Lookup reads a message through the ephemeral cache, falling back to the
// store. Staged copies are evicted on every committed change, so a hit is
// never behind the store.
func (r *Router) Lookup(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	if msg, ok := r.staging.Get(ctx, id); ok {
		return msg, nil
	}

	storeCtx, cancel := context.WithTimeout(ctx, r.opts.StoreTimeout)
	defer cancel()
	msg, err := r.store.GetMessage(storeCtx, id)
	if err != nil {
		return nil, storeErr("router: lookup", err)
	}
	return msg, nil
}
