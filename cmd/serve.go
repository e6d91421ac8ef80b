package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/reportmark/internal/engine"
	"github.com/reportmark/internal/server"
)

// ServeCommand returns the serve command: the engine on a fixed
// interval plus the landing/health server.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the bot on an interval with a landing page",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := server.New(cfg.Server.Port)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error().Err(err).Msg("landing server stopped")
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()

			eng := buildEngine(cfg)
			interval := time.Duration(cfg.Bot.IntervalSeconds) * time.Second
			log.Info().Str("page", cfg.Wiki.Page).Dur("interval", interval).Msg("bot loop starting")

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			// The last successful edit carries over between runs to
			// space edits out.
			var lastEdit time.Time
			for {
				res, err := eng.Run(ctx, lastEdit)
				switch {
				case errors.Is(err, engine.ErrNoOpenReports),
					errors.Is(err, engine.ErrNothingToUpdate):
					log.Info().Msg("nothing to do")
				case errors.Is(err, context.Canceled):
					return nil
				case err != nil:
					log.Error().Err(err).Msg("run failed")
				default:
					lastEdit = res.EditedAt
					srv.RecordEdit(res.EditedAt)
					log.Info().
						Int("sanctioned", res.Sanctioned).
						Int("normalized", res.Normalized).
						Msg("run complete")
				}

				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
}
