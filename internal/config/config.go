package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the application configuration
type Config struct {
	Wiki struct {
		API       string `koanf:"api"`
		Page      string `koanf:"page"`
		Token     string `koanf:"token"`
		UserAgent string `koanf:"user_agent"`
	} `koanf:"wiki"`

	Bot struct {
		CheckGlobal        bool `koanf:"check_global"`
		IntervalSeconds    int  `koanf:"interval_seconds"`
		EditSpacingSeconds int  `koanf:"edit_spacing_seconds"`
		// Offset applied to sanction timestamps for the short (M/D)
		// date labels, matching the wiki's display timezone.
		UTCOffsetHours int `koanf:"utc_offset_hours"`
	} `koanf:"bot"`

	Server struct {
		Port int `koanf:"port"`
	} `koanf:"server"`
}

// LoadConfig loads the configuration from a file
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	// Set up default configuration
	k.Load(confmap.Provider(map[string]interface{}{
		"wiki.user_agent":          "reportmark/0.1 (noticeboard markup bot)",
		"bot.check_global":         true,
		"bot.interval_seconds":     600,
		"bot.edit_spacing_seconds": 60,
		"bot.utc_offset_hours":     9,
		"server.port":              8080,
	}, "."), nil)

	// Load from TOML file if it exists
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		// Try to load from default locations
		defaultPaths := []string{"./reportmark.toml", "$HOME/.reportmark.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Load from environment variables with prefix REPORTMARK_
	k.Load(env.Provider("REPORTMARK_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "REPORTMARK_")), "_", ".", 1)
	}), nil)

	// Unmarshal into Config struct
	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# reportmark configuration

[wiki]
api = "https://example.org/w/api.php"
page = "Project:Noticeboard"
token = "your-csrf-token"

[bot]
check_global = true
interval_seconds = 600
edit_spacing_seconds = 60
utc_offset_hours = 9

[server]
port = 8080
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	if config.Wiki.API == "" {
		return fmt.Errorf("wiki api endpoint is required")
	}
	if config.Wiki.Page == "" {
		return fmt.Errorf("wiki page is required")
	}
	if config.Wiki.Token == "" {
		return fmt.Errorf("wiki edit token is required")
	}
	if config.Bot.IntervalSeconds <= 0 {
		return fmt.Errorf("bot interval must be positive")
	}
	return nil
}
