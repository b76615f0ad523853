package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"github.com/webitel/im-realtime-service/config"
	"github.com/webitel/im-realtime-service/internal/handler/auth"
)

const (
	ServiceName      = "im-realtime-service"
	ServiceNamespace = "webitel"
)

var (
	version        = "0.0.0"
	commit         = "hash"
	commitDate     = time.Now().String()
	branch         = "branch"
	buildTimestamp = ""
)

func Run() error {
	app := &cli.App{
		Name:    ServiceName,
		Usage:   "Real-time chat delivery service",
		Version: fmt.Sprintf("%s (%s@%s, %s) %s", version, branch, commit, commitDate, buildTimestamp),
		Commands: []*cli.Command{
			serverCmd(),
			tokenCmd(),
		},
	}

	return app.Run(os.Args)
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config_file",
		Usage:   "Path to the configuration file",
		EnvVars: []string{"IM_CONFIG_FILE"},
	}
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Run the WebSocket, HTTP and gRPC health servers",
		Flags:   []cli.Flag{configFlag()},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config_file"), c.Args().Slice())
			if err != nil {
				return err
			}
			app := NewApp(cfg)

			startCtx, cancel := context.WithTimeout(c.Context, app.StartTimeout())
			defer cancel()
			if err := app.Start(startCtx); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("SHUTTING_DOWN")
			stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
			defer cancelStop()
			return app.Stop(stopCtx)
		},
	}
}

// tokenCmd signs a connection token with the configured secret, for local
// testing against a running server.
func tokenCmd() *cli.Command {
	return &cli.Command{
		Name:      "token",
		Usage:     "Issue a connection token for a user id",
		ArgsUsage: "<user-id>",
		Flags: []cli.Flag{
			configFlag(),
			&cli.DurationFlag{Name: "ttl", Value: time.Hour, Usage: "Token lifetime"},
		},
		Action: func(c *cli.Context) error {
			userID, err := uuid.Parse(c.Args().First())
			if err != nil {
				return fmt.Errorf("token: user id: %w", err)
			}
			cfg, err := config.LoadConfig(c.String("config_file"), nil)
			if err != nil {
				return err
			}
			token, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer).Issue(userID, c.Duration("ttl"))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.App.Writer, token)
			return err
		},
	}
}
