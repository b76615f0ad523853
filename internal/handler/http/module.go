package http

import (
	"log/slog"
	"net/http"

	"github.com/webitel/im-realtime-service/config"
	"github.com/webitel/im-realtime-service/internal/domain/registry"
	"github.com/webitel/im-realtime-service/internal/handler/auth"
	"github.com/webitel/im-realtime-service/internal/handler/ws"
	"github.com/webitel/im-realtime-service/internal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("http-handler",
	fx.Provide(
		func(cfg *config.Config) *auth.Verifier {
			return auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
		},
		func(history *service.History, hub registry.Hubber, logger *slog.Logger) *Handler {
			return NewHandler(history, hub, logger.With("component", "http"))
		},
		func(h *Handler, verifier *auth.Verifier, wsh *ws.WSHandler) http.Handler {
			return h.Routes(verifier, wsh)
		},
	),
)
