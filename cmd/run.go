package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/reportmark/internal/engine"
)

// RunCommand returns the run command: a single pass over the page.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Scan the noticeboard page once and mark up resolved reports",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			res, err := buildEngine(cfg).Run(c.Context, time.Time{})
			switch {
			case errors.Is(err, engine.ErrNoOpenReports),
				errors.Is(err, engine.ErrNothingToUpdate):
				log.Info().Msg("nothing to do")
				return nil
			case err != nil:
				return err
			}

			log.Info().
				Int("sanctioned", res.Sanctioned).
				Int("normalized", res.Normalized).
				Time("edited_at", res.EditedAt).
				Msg("run complete")
			return nil
		},
	}
}
