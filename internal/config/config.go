package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	HistoryJSON   = "json"
	HistorySQLite = "sqlite"

	ExtractorYTDLP   = "ytdlp"
	ExtractorYouTube = "youtube"
)

type Config struct {
	Port           string
	LogLevel       string
	LogJSON        bool
	DataDir        string
	DownloadDir    string
	History        string
	Extractor      string
	YTDLPPath      string
	InstallYTDLP   bool
	ResolveTimeout time.Duration
	SentryDSN      string `masq:"secret"`
	File           string
}

// Flags returns the global flags. Every flag also reads an environment variable.
func (c *Config) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "port",
			Usage:       "HTTP listen port",
			Value:       "8080",
			Destination: &c.Port,
			Sources:     cli.EnvVars("PORT"),
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &c.LogLevel,
			Sources:     cli.EnvVars("LOG_LEVEL"),
		},
		&cli.BoolFlag{
			Name:        "log-json",
			Usage:       "Output logs in JSON format",
			Destination: &c.LogJSON,
			Sources:     cli.EnvVars("LOG_JSON"),
		},
		&cli.StringFlag{
			Name:        "data-dir",
			Usage:       "Directory for the download history",
			Value:       "./data",
			Destination: &c.DataDir,
			Sources:     cli.EnvVars("DATA_DIR"),
		},
		&cli.StringFlag{
			Name:        "download-dir",
			Usage:       "Directory downloaded videos are written to",
			Value:       "./downloads",
			Destination: &c.DownloadDir,
			Sources:     cli.EnvVars("DOWNLOAD_DIR"),
		},
		&cli.StringFlag{
			Name:        "history",
			Usage:       "History backend (json, sqlite)",
			Value:       HistoryJSON,
			Destination: &c.History,
			Sources:     cli.EnvVars("HISTORY_BACKEND"),
		},
		&cli.StringFlag{
			Name:        "extractor",
			Usage:       "Metadata extractor (ytdlp, youtube)",
			Value:       ExtractorYTDLP,
			Destination: &c.Extractor,
			Sources:     cli.EnvVars("EXTRACTOR"),
		},
		&cli.StringFlag{
			Name:        "ytdlp-path",
			Usage:       "Path to the yt-dlp executable (default: yt-dlp on PATH)",
			Destination: &c.YTDLPPath,
			Sources:     cli.EnvVars("YTDLP_PATH"),
		},
		&cli.BoolFlag{
			Name:        "install-ytdlp",
			Usage:       "Download a yt-dlp build on start when no path is given",
			Destination: &c.InstallYTDLP,
			Sources:     cli.EnvVars("INSTALL_YTDLP"),
		},
		&cli.DurationFlag{
			Name:        "resolve-timeout",
			Usage:       "Timeout for fetching video info",
			Value:       60 * time.Second,
			Destination: &c.ResolveTimeout,
			Sources:     cli.EnvVars("RESOLVE_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:        "sentry-dsn",
			Usage:       "Sentry DSN for failure reports",
			Destination: &c.SentryDSN,
			Sources:     cli.EnvVars("SENTRY_DSN"),
		},
		&cli.StringFlag{
			Name:        "config",
			Usage:       "YAML or TOML file with defaults for unset flags",
			Destination: &c.File,
			Sources:     cli.EnvVars("MP4GRAB_CONFIG"),
		},
	}
}

type fileConfig struct {
	Port           string `yaml:"port" toml:"port"`
	LogLevel       string `yaml:"log_level" toml:"log_level"`
	LogJSON        *bool  `yaml:"log_json" toml:"log_json"`
	DataDir        string `yaml:"data_dir" toml:"data_dir"`
	DownloadDir    string `yaml:"download_dir" toml:"download_dir"`
	History        string `yaml:"history" toml:"history"`
	Extractor      string `yaml:"extractor" toml:"extractor"`
	YTDLPPath      string `yaml:"ytdlp_path" toml:"ytdlp_path"`
	InstallYTDLP   *bool  `yaml:"install_ytdlp" toml:"install_ytdlp"`
	ResolveTimeout string `yaml:"resolve_timeout" toml:"resolve_timeout"`
	SentryDSN      string `yaml:"sentry_dsn" toml:"sentry_dsn"`
}

// LoadFile fills every field whose flag was not set on the command line or
// through the environment from the config file c.File.
func (c *Config) LoadFile(isSet func(flag string) bool) error {
	if c.File == "" {
		return nil
	}

	data, err := os.ReadFile(c.File)
	if err != nil {
		return goerr.Wrap(err, "failed to read config file", goerr.V("path", c.File))
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(c.File)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	case ".toml":
		err = toml.Unmarshal(data, &fc)
	default:
		return goerr.New("unsupported config file format", goerr.V("path", c.File))
	}
	if err != nil {
		return goerr.Wrap(err, "failed to parse config file", goerr.V("path", c.File))
	}

	setString := func(flag string, dst *string, v string) {
		if v != "" && !isSet(flag) {
			*dst = v
		}
	}
	setBool := func(flag string, dst *bool, v *bool) {
		if v != nil && !isSet(flag) {
			*dst = *v
		}
	}

	setString("port", &c.Port, fc.Port)
	setString("log-level", &c.LogLevel, fc.LogLevel)
	setBool("log-json", &c.LogJSON, fc.LogJSON)
	setString("data-dir", &c.DataDir, fc.DataDir)
	setString("download-dir", &c.DownloadDir, fc.DownloadDir)
	setString("history", &c.History, fc.History)
	setString("extractor", &c.Extractor, fc.Extractor)
	setString("ytdlp-path", &c.YTDLPPath, fc.YTDLPPath)
	setBool("install-ytdlp", &c.InstallYTDLP, fc.InstallYTDLP)
	setString("sentry-dsn", &c.SentryDSN, fc.SentryDSN)

	if fc.ResolveTimeout != "" && !isSet("resolve-timeout") {
		timeout, err := time.ParseDuration(fc.ResolveTimeout)
		if err != nil {
			return goerr.Wrap(err, "invalid resolve_timeout", goerr.V("value", fc.ResolveTimeout))
		}
		c.ResolveTimeout = timeout
	}
	return nil
}

// Validate rejects backend names and values no component understands.
func (c *Config) Validate() error {
	switch c.History {
	case HistoryJSON, HistorySQLite:
	default:
		return goerr.New("unknown history backend", goerr.V("history", c.History))
	}
	switch c.Extractor {
	case ExtractorYTDLP, ExtractorYouTube:
	default:
		return goerr.New("unknown extractor", goerr.V("extractor", c.Extractor))
	}
	if c.ResolveTimeout <= 0 {
		return goerr.New("resolve timeout must be positive", goerr.V("timeout", c.ResolveTimeout))
	}
	return nil
}

// Level maps the configured name to a slog level. Unknown names mean info.
func (c *Config) Level() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
