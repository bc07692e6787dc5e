package config_test

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/urfave/cli/v3"

	"mp4grab/internal/config"
)

func parse(t *testing.T, args ...string) (*config.Config, *cli.Command) {
	t.Helper()
	var cfg config.Config
	var parsed *cli.Command
	cmd := &cli.Command{
		Name:  "mp4grab",
		Flags: cfg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			parsed = c
			return nil
		},
	}
	gt.NoError(t, cmd.Run(context.Background(), append([]string{"mp4grab"}, args...)))
	return &cfg, parsed
}

func TestFlags_Defaults(t *testing.T) {
	cfg, _ := parse(t)
	gt.Equal(t, cfg.Port, "8080")
	gt.Equal(t, cfg.LogLevel, "info")
	gt.Equal(t, cfg.DataDir, "./data")
	gt.Equal(t, cfg.DownloadDir, "./downloads")
	gt.Equal(t, cfg.History, config.HistoryJSON)
	gt.Equal(t, cfg.Extractor, config.ExtractorYTDLP)
	gt.Equal(t, cfg.ResolveTimeout, 60*time.Second)
	gt.NoError(t, cfg.Validate())
}

func TestFlags_EnvAndArgs(t *testing.T) {
	t.Setenv("DATA_DIR", "/var/lib/mp4grab")
	t.Setenv("HISTORY_BACKEND", "sqlite")
	t.Setenv("PORT", "9000")

	cfg, _ := parse(t, "--port", "9100", "--resolve-timeout", "5s")
	gt.Equal(t, cfg.DataDir, "/var/lib/mp4grab")
	gt.Equal(t, cfg.History, config.HistorySQLite)
	gt.Equal(t, cfg.Port, "9100")
	gt.Equal(t, cfg.ResolveTimeout, 5*time.Second)
}

func TestLoadFile(t *testing.T) {
	files := map[string]string{
		"mp4grab.yaml": "port: \"7000\"\nlog_level: debug\nhistory: sqlite\nresolve_timeout: 30s\ninstall_ytdlp: true\n",
		"mp4grab.toml": "port = \"7000\"\nlog_level = \"debug\"\nhistory = \"sqlite\"\nresolve_timeout = \"30s\"\ninstall_ytdlp = true\n",
	}
	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			gt.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			cfg, cmd := parse(t, "--config", path, "--log-level", "warn")
			gt.NoError(t, cfg.LoadFile(cmd.IsSet))

			gt.Equal(t, cfg.Port, "7000")
			gt.Equal(t, cfg.History, config.HistorySQLite)
			gt.Equal(t, cfg.ResolveTimeout, 30*time.Second)
			gt.True(t, cfg.InstallYTDLP)
			// flags given explicitly win over the file
			gt.Equal(t, cfg.LogLevel, "warn")
			gt.Equal(t, cfg.Level(), slog.LevelWarn)
		})
	}
}

func TestLoadFile_Errors(t *testing.T) {
	notSet := func(string) bool { return false }

	cfg := &config.Config{File: filepath.Join(t.TempDir(), "missing.yaml")}
	gt.Error(t, cfg.LoadFile(notSet))

	path := filepath.Join(t.TempDir(), "mp4grab.ini")
	gt.NoError(t, os.WriteFile(path, []byte("port=1"), 0o644))
	cfg = &config.Config{File: path}
	gt.Error(t, cfg.LoadFile(notSet))

	path = filepath.Join(t.TempDir(), "mp4grab.yaml")
	gt.NoError(t, os.WriteFile(path, []byte("resolve_timeout: soon\n"), 0o644))
	cfg = &config.Config{File: path}
	gt.Error(t, cfg.LoadFile(notSet))

	cfg = &config.Config{}
	gt.NoError(t, cfg.LoadFile(notSet))
}

func TestValidate(t *testing.T) {
	base := config.Config{History: config.HistoryJSON, Extractor: config.ExtractorYouTube, ResolveTimeout: time.Second}
	gt.NoError(t, base.Validate())

	bad := base
	bad.History = "redis"
	gt.Error(t, bad.Validate())

	bad = base
	bad.Extractor = "curl"
	gt.Error(t, bad.Validate())

	bad = base
	bad.ResolveTimeout = 0
	gt.Error(t, bad.Validate())
}

func TestLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"Warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"loud":  slog.LevelInfo,
		"":      slog.LevelInfo,
	}
	for name, want := range tests {
		cfg := config.Config{LogLevel: name}
		gt.Equal(t, cfg.Level(), want)
	}
}

func TestNewLogger_RedactsSecrets(t *testing.T) {
	for _, jsonOut := range []bool{true, false} {
		var buf bytes.Buffer
		cfg := config.Config{LogLevel: "info", LogJSON: jsonOut, SentryDSN: "https://key@sentry.example/1"}
		logger := cfg.NewLogger(&buf)

		logger.Info("Starting", "config", cfg)
		out := buf.String()
		gt.String(t, out).Contains("Starting")
		gt.True(t, !strings.Contains(out, "https://key@sentry.example/1"))
	}
}
