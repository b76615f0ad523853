package cmd

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/webitel/im-realtime-service/config"
	"go.uber.org/fx"
)

func testConfig(t *testing.T, args ...string) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig("", append([]string{"--auth.jwt_secret=test"}, args...))
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestApp_GraphIsComplete(t *testing.T) {
	for _, broker := range []string{"none", "gochannel", "amqp"} {
		t.Run(broker, func(t *testing.T) {
			cfg := testConfig(t, "--broker.driver="+broker)
			if err := fx.ValidateApp(appOptions(cfg)...); err != nil {
				t.Fatalf("validate: %v", err)
			}
		})
	}
}

func TestApp_StartsOnMemoryAdapters(t *testing.T) {
	cfg := testConfig(t,
		"--store.driver=memory",
		"--directory.driver=memory",
		"--cache.driver=memory",
		"--broker.driver=gochannel",
		"--http.addr=127.0.0.1:0",
		"--grpc.addr=127.0.0.1:0",
		"--tracing.enabled",
	)

	app := fx.New(append(appOptions(cfg),
		fx.NopLogger,
		fx.Decorate(func() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }),
	)...)
	if err := app.Err(); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if cfg.Service.NodeID == "" {
		t.Fatal("node id must be generated")
	}
	if err := app.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
