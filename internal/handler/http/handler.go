// Package http exposes the WebSocket endpoint, the history read path and
// the operational endpoints over chi.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/model"
	"github.com/webitel/im-realtime-service/internal/domain/registry"
	"github.com/webitel/im-realtime-service/internal/handler/auth"
	"github.com/webitel/im-realtime-service/internal/service"
)

type Handler struct {
	history *service.History
	hub     registry.Hubber
	logger  *slog.Logger
}

func NewHandler(history *service.History, hub registry.Hubber, logger *slog.Logger) *Handler {
	return &Handler{history: history, hub: hub, logger: logger}
}

// Routes mounts every endpoint. ws is the WebSocket upgrade handler.
func (h *Handler) Routes(verifier *auth.Verifier, ws http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, h.accessLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/stats", h.stats)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier))
		r.Method(http.MethodGet, "/ws", ws)
		r.Get("/v1/conversations/{peerID}/messages", h.conversation)
		r.Get("/v1/groups/{groupID}/messages", h.group)
		r.Get("/v1/messages/{messageID}", h.message)
	})
	return r
}

func (h *Handler) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.hub.Stats())
}

func (h *Handler) conversation(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserFrom(r.Context())
	peerID, ok := h.pathID(w, r, "peerID")
	if !ok {
		return
	}
	page, size := paging(r)
	msgs, err := h.history.Conversation(r.Context(), userID, peerID, page, size)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse{Messages: msgs})
}

func (h *Handler) group(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserFrom(r.Context())
	groupID, ok := h.pathID(w, r, "groupID")
	if !ok {
		return
	}
	page, size := paging(r)
	msgs, err := h.history.Group(r.Context(), userID, groupID, page, size)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse{Messages: msgs})
}

func (h *Handler) message(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserFrom(r.Context())
	messageID, ok := h.pathID(w, r, "messageID")
	if !ok {
		return
	}
	msg, err := h.history.Message(r.Context(), userID, messageID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

type pageResponse struct {
	Messages []*model.Message `json:"messages"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "INVALID_INPUT", Message: name + " is not a uuid"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("HTTP_REQUEST_FAILED", "err", err, "path", r.URL.Path)
	}
	writeJSON(w, status, errorResponse{Code: model.ErrorCode(err), Message: err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidInput), errors.Is(err, model.ErrInvalidTarget):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// paging reads ?page&size; the history service clamps the values.
func paging(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	return page, size
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("HTTP_REQUEST",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
