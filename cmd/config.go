package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/reportmark/internal/config"
)

// ConfigCommand returns the config command
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Create a sample configuration file",
				Action: func(c *cli.Context) error {
					path := c.String("config")
					if path == "" {
						path = "reportmark.toml"
					}
					if err := config.InitConfig(path); err != nil {
						return err
					}
					fmt.Printf("Configuration file created at %s\n", path)
					return nil
				},
			},
			{
				Name:  "validate",
				Usage: "Check the configuration file",
				Action: func(c *cli.Context) error {
					if _, err := loadConfig(c.String("config")); err != nil {
						return err
					}
					fmt.Println("Configuration OK")
					return nil
				},
			},
		},
	}
}
