package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/webitel/im-realtime-service/internal/domain/event"
	"github.com/webitel/im-realtime-service/internal/domain/model"
	"github.com/webitel/im-realtime-service/internal/domain/registry"
	"github.com/webitel/im-realtime-service/internal/handler/auth"
	wsmarshaller "github.com/webitel/im-realtime-service/internal/handler/marshaller/ws"
	"github.com/webitel/im-realtime-service/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	replyTimeout   = time.Second
)

// Services groups the core operations reachable from a client frame.
type Services struct {
	Deliverer service.Deliverer
	Router    *service.Router
	Receipts  *service.Receipts
	Typing    *service.Typing
	Reactions *service.Reactions
	Presence  *service.PresenceTracker
}

type WSHandler struct {
	logger   *slog.Logger
	svc      Services
	upgrader websocket.Upgrader
}

func NewWSHandler(logger *slog.Logger, svc Services) *WSHandler {
	return &WSHandler{
		logger: logger,
		svc:    svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true }, // tokens, not cookies, authenticate
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. IDENTITY IS PLACED BY THE AUTH MIDDLEWARE
	userID, ok := auth.UserFrom(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	// 2. UPGRADE TO WEBSOCKET
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WS_UPGRADE_FAILED", "err", err, "user_id", userID)
		return
	}
	defer ws.Close()

	// 3. SUBSCRIBE: handshake and presence snapshot are queued here
	conn, err := h.svc.Deliverer.Subscribe(r.Context(), userID, registry.ConnectMetadata{
		Platform:  r.URL.Query().Get("platform"),
		Version:   r.URL.Query().Get("version"),
		RemoteIP:  r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.logger.Error("WS_SUBSCRIBE_FAILED", "err", err, "user_id", userID)
		return
	}
	defer h.svc.Deliverer.Unsubscribe(conn.GetID())
	defer conn.Close()

	log := h.logger.With("user_id", userID, "conn_id", conn.GetID())
	log.Info("WS_OPENED", "remote_ip", r.RemoteAddr)

	// 4. PUMPS: the write pump owns every write to the socket
	var clientGone atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(ws, conn, &clientGone, log)
	}()
	h.readPump(ws, conn, log)

	clientGone.Store(true)
	conn.Close()
	<-done
	log.Info("WS_CLOSED", "dropped", conn.Dropped())
}

func (h *WSHandler) readPump(ws *websocket.Conn, conn registry.Connector, log *slog.Logger) {
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-conn.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("WS_READ_FAILED", "err", err)
			}
			return
		}

		in, err := wsmarshaller.UnmarshallInbound(raw)
		if err != nil {
			h.reject(conn, "", "", err, log)
			continue
		}
		h.dispatch(ctx, conn, in, log)
	}
}

func (h *WSHandler) writePump(ws *websocket.Conn, conn registry.Connector, clientGone *atomic.Bool, log *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-conn.Done():
			// The server ended the session; tell the client before closing.
			if !clientGone.Load() {
				h.writeDisconnected(ws, conn)
			}
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			// Unblocks the read pump.
			_ = ws.Close()
			return

		case ev := <-conn.Recv():
			data, err := wsmarshaller.MarshallDeliveryEvent(ev)
			if err != nil {
				log.Error("WS_MARSHAL_FAILED", "err", err, "event", ev.GetKind())
				continue
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn("WS_WRITE_FAILED", "err", err)
				conn.Close()
				return
			}

		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}

func (h *WSHandler) writeDisconnected(ws *websocket.Conn, conn registry.Connector) {
	data, err := wsmarshaller.MarshallDeliveryEvent(event.NewSystemEvent(conn.GetUserID(), event.Disconnected, event.PriorityHigh,
		&model.DisconnectedPayload{Reason: "session closed by server", Code: "SHUTDOWN"}))
	if err != nil {
		return
	}
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = ws.WriteMessage(websocket.TextMessage, data)
}

// dispatch runs one client request. Requests of a session are handled in
// arrival order.
func (h *WSHandler) dispatch(ctx context.Context, conn registry.Connector, in *wsmarshaller.Inbound, log *slog.Logger) {
	userID := conn.GetUserID()

	switch in.Event {
	case wsmarshaller.OpSend:
		req, err := wsmarshaller.Decode[wsmarshaller.SendData](in)
		if err != nil {
			h.reject(conn, in.Event, "", err, log)
			return
		}
		msg, err := h.svc.Router.Send(ctx, service.SendRequest{
			SenderID:      userID,
			Target:        req.To,
			Content:       req.Content,
			Attachment:    req.Attachment,
			CorrelationID: req.CorrelationID,
		})
		if err != nil {
			h.reject(conn, in.Event, req.CorrelationID, err, log)
			return
		}
		// Confirmation goes to the requesting session only. A note to self
		// already reached every session of the user through the fan-out.
		if msg.To.IsGroup() || msg.To.ID != userID {
			conn.Send(event.NewMessageEvent(msg, userID, req.CorrelationID), replyTimeout)
		}

	case wsmarshaller.OpStartTyping, wsmarshaller.OpStopTyping:
		req, err := wsmarshaller.Decode[wsmarshaller.TypingData](in)
		if err == nil {
			if in.Event == wsmarshaller.OpStartTyping {
				err = h.svc.Typing.StartTyping(ctx, userID, req.To)
			} else {
				err = h.svc.Typing.StopTyping(ctx, userID, req.To)
			}
		}
		if err != nil {
			h.reject(conn, in.Event, "", err, log)
		}

	case wsmarshaller.OpAcknowledgeDeliver, wsmarshaller.OpAcknowledgeRead:
		req, err := wsmarshaller.Decode[wsmarshaller.AckData](in)
		if err == nil {
			if in.Event == wsmarshaller.OpAcknowledgeDeliver {
				_, err = h.svc.Receipts.AcknowledgeDelivered(ctx, req.MessageID, userID)
			} else {
				_, err = h.svc.Receipts.AcknowledgeRead(ctx, req.MessageID, userID)
			}
		}
		if err != nil {
			h.reject(conn, in.Event, "", err, log)
		}

	case wsmarshaller.OpAcknowledgeAllRead:
		req, err := wsmarshaller.Decode[wsmarshaller.AckAllData](in)
		if err == nil {
			_, err = h.svc.Receipts.AcknowledgeAllRead(ctx, userID, req.SenderID)
		}
		if err != nil {
			h.reject(conn, in.Event, "", err, log)
		}

	case wsmarshaller.OpReact:
		req, err := wsmarshaller.Decode[wsmarshaller.ReactData](in)
		if err == nil {
			_, err = h.svc.Reactions.React(ctx, req.MessageID, userID, req.Reaction)
		}
		if err != nil {
			h.reject(conn, in.Event, "", err, log)
		}

	case wsmarshaller.OpPresenceSnapshot:
		h.svc.Presence.SendSnapshot(conn)

	default:
		h.reject(conn, in.Event, "", fmt.Errorf("%w: unknown event %q", model.ErrInvalidInput, in.Event), log)
	}
}

// reject answers a failed request with an error event on the same session.
func (h *WSHandler) reject(conn registry.Connector, op, correlationID string, err error, log *slog.Logger) {
	code := model.ErrorCode(err)
	log.Debug("WS_REQUEST_REJECTED", "err", err, "op", op, "code", code)

	conn.Send(event.NewSystemEvent(conn.GetUserID(), event.Failed, event.PriorityHigh, &model.ErrorPayload{
		Code:          code,
		Message:       err.Error(),
		Request:       op,
		CorrelationID: correlationID,
	}), replyTimeout)
}
