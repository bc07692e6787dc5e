package config

import (
	"io"
	"log/slog"

	"github.com/lmittmann/tint"
	"github.com/m-mizutani/masq"
)

// NewLogger builds the process logger: tint for terminals, JSON otherwise.
// Struct fields tagged masq:"secret" are redacted in both.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	redact := masq.New(masq.WithTag("secret"))

	var handler slog.Handler
	if c.LogJSON {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       c.Level(),
			AddSource:   true,
			ReplaceAttr: redact,
		})
	} else {
		handler = tint.NewHandler(w, &tint.Options{
			Level:       c.Level(),
			TimeFormat:  "2006-01-02 15:04:05",
			AddSource:   true,
			ReplaceAttr: redact,
		})
	}
	return slog.New(handler)
}
