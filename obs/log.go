package obs

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

var loggerOnce sync.Once

// InitLogger installs a JSON slog handler as the process default. level is
// one of debug/info/warn/error; anything else means info.
func InitLogger(level string) {
	loggerOnce.Do(func() {
		handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLevel(level),
		})
		slog.SetDefault(slog.New(handler))
	})
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
