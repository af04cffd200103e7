// cmd/himera/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/keshon/himera/internal/app"
	"github.com/keshon/himera/internal/config"
	"github.com/keshon/himera/internal/console"
	"github.com/keshon/himera/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "himera:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	log.Info().Str("storage", cfg.StoragePath).Int("authorized", len(cfg.AuthorizedUsers)).Msg("starting himera")

	out := console.NewOutput(os.Stdout)
	a, err := app.New(cfg, log, app.Options{Sender: out, RequireLLM: true})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobs, err := a.Start(ctx)
	if err != nil {
		return err
	}

	con := console.New(os.Stdin, out, a.Pipeline, a.Commands, cfg.ConsoleUserID, log)
	if err := jobs.Go("console", func(ctx context.Context) error {
		// end of input shuts the process down
		defer stop()
		return con.Run(ctx)
	}); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, waiting for jobs")
	if err := jobs.Wait(); err != nil {
		return err
	}
	log.Info().Msg("himera exited cleanly")
	return nil
}
