package cmd

import (
	"time"

	"github.com/reportmark/internal/config"
	"github.com/reportmark/internal/engine"
	"github.com/reportmark/internal/mediawiki"
	"github.com/reportmark/internal/resolver"
	"github.com/reportmark/internal/retry"
	"github.com/reportmark/internal/sanction"
)

// buildEngine wires the transport, resolver and aggregator into an
// engine from the loaded configuration.
func buildEngine(cfg *config.Config) *engine.Engine {
	client := mediawiki.NewClient(cfg.Wiki.API, cfg.Wiki.UserAgent)
	res := resolver.New(client, client)
	agg := sanction.New(client, time.Duration(cfg.Bot.UTCOffsetHours)*time.Hour)

	return engine.New(client, res, agg, engine.Options{
		Page:        cfg.Wiki.Page,
		Token:       cfg.Wiki.Token,
		CheckGlobal: cfg.Bot.CheckGlobal,
		EditSpacing: time.Duration(cfg.Bot.EditSpacingSeconds) * time.Second,
		Retry:       retry.DefaultConfig(),
	})
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
