package cmd

import (
	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/config"
	grpcsrv "github.com/webitel/im-realtime-service/infra/server/grpc"
	httpsrv "github.com/webitel/im-realtime-service/infra/server/http"
	"github.com/webitel/im-realtime-service/internal/adapter/cache"
	"github.com/webitel/im-realtime-service/internal/adapter/pubsub"
	"github.com/webitel/im-realtime-service/internal/domain/model"
	"github.com/webitel/im-realtime-service/internal/domain/registry"
	amqphandler "github.com/webitel/im-realtime-service/internal/handler/amqp"
	httphandler "github.com/webitel/im-realtime-service/internal/handler/http"
	"github.com/webitel/im-realtime-service/internal/handler/ws"
	"github.com/webitel/im-realtime-service/internal/service"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

func NewApp(cfg *config.Config, opts ...fx.Option) *fx.App {
	return fx.New(appOptions(cfg, opts...)...)
}

func appOptions(cfg *config.Config, extra ...fx.Option) []fx.Option {
	// [NODE_IDENTITY] Bus consumers skip events published by this id
	if cfg.Service.NodeID == "" {
		cfg.Service.NodeID = uuid.NewString()
	}
	model.ServerVersion = version

	return append([]fx.Option{
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWatermillLogger,
			ProvideTracerProvider,
			ProvideMessageStore,
			ProvideDirectory,
		),
		fx.Invoke(func(*sdktrace.TracerProvider) {}),
		registry.Module,
		cache.Module,
		pubsub.Module,
		service.Module,
		amqphandler.Module,
		ws.Module,
		httphandler.Module,
		httpsrv.Module,
		grpcsrv.Module,
	}, extra...)
}
