package observability

import (
	"log/slog"
	"os"
	"strings"
)

// SetupLogging installs the process-wide slog handler. Production gets
// JSON for log shipping; everything else gets human-readable text.
func SetupLogging(env string) {
	level := slog.LevelInfo
	if strings.EqualFold(env, "development") {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if env == "production" || env == "prod" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}
