package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/webitel/im-realtime-service/config"
	"github.com/webitel/im-realtime-service/internal/adapter/directory/sql"
	"github.com/webitel/im-realtime-service/internal/adapter/memory"
	"github.com/webitel/im-realtime-service/internal/adapter/store/mongo"
	"github.com/webitel/im-realtime-service/internal/service"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// ProvideLogger builds the process logger. Its level follows cfg.LogLevel,
// which the config watcher updates on file changes.
func ProvideLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var h slog.Handler
	if cfg.Log.Format == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	if cfg.Log.Otel {
		h = teeHandler{h, otelslog.NewHandler(ServiceName)}
	}

	logger := slog.New(h).With(
		"service", ServiceName,
		"version", version,
		"node_id", cfg.Service.NodeID,
	)
	slog.SetDefault(logger)
	return logger
}

func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger.With("component", "watermill"))
}

// ProvideTracerProvider installs the global tracer provider. Without an
// endpoint spans are still created so trace ids reach logs and bus metadata.
func ProvideTracerProvider(lc fx.Lifecycle, cfg *config.Config) (*sdktrace.TracerProvider, error) {
	if !cfg.Tracing.Enabled {
		return nil, nil
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", ServiceName),
		attribute.String("service.namespace", ServiceNamespace),
		attribute.String("service.version", version),
		attribute.String("service.instance.id", cfg.Service.NodeID),
	)
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Tracing.SampleRatio))),
	}
	if cfg.Tracing.Endpoint != "" {
		exp, err := otlptracegrpc.New(context.Background(),
			otlptracegrpc.WithEndpoint(cfg.Tracing.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("tracing: exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	lc.Append(fx.Hook{OnStop: tp.Shutdown})
	return tp, nil
}

// ProvideMessageStore selects the durable store.
func ProvideMessageStore(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (service.MessageStore, error) {
	if cfg.Store.Driver == "memory" {
		logger.Warn("STORE_IN_MEMORY", "reason", "messages are lost on restart")
		return memory.NewStore(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Store.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, mongo.Config{
		URI:         cfg.Store.Mongo.URI,
		Database:    cfg.Store.Mongo.Database,
		Collection:  cfg.Store.Mongo.Collection,
		MaxPoolSize: cfg.Store.Mongo.MaxPoolSize,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: client.Disconnect})

	store := mongo.NewStore(client.Database(cfg.Store.Mongo.Database), cfg.Store.Mongo.Collection)
	if err := store.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// ProvideDirectory selects the user and group directory.
func ProvideDirectory(lc fx.Lifecycle, cfg *config.Config) (service.Directory, error) {
	if cfg.Directory.Driver == "memory" {
		return memory.NewDirectory(), nil
	}

	db, err := sql.Open(cfg.Directory.Dialect, cfg.Directory.DSN)
	if err != nil {
		return nil, err
	}
	if err := sql.Migrate(db); err != nil {
		return nil, fmt.Errorf("directory: migrate: %w", err)
	}
	raw, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("directory: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return raw.Close() }})
	return sql.NewDirectory(db), nil
}

// teeHandler writes every record to both handlers.
type teeHandler [2]slog.Handler

func (t teeHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return t[0].Enabled(ctx, l) || t[1].Enabled(ctx, l)
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range t {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return teeHandler{t[0].WithAttrs(attrs), t[1].WithAttrs(attrs)}
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return teeHandler{t[0].WithGroup(name), t[1].WithGroup(name)}
}
