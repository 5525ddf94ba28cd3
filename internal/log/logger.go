package log

import (
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/zeebo/blake3"
)

var (
	mu     sync.Mutex
	once   sync.Once
	logger *slog.Logger
	out    io.Writer = os.Stdout

	pseudonymKey [32]byte
)

// Setup initializes the global logger.
// Level defaults to INFO and format defaults to JSON when unrecognized.
func Setup(level, format string) {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		logger = newLogger(out, level, format)
		slog.SetDefault(logger)
	})
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetOutput replaces the global logger with one writing to w.
// Intended for tests that need to inspect log output.
func SetOutput(w io.Writer, level, format string) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	logger = newLogger(w, level, format)
}

// SetPseudonymSecret keys the hash used by Pseudonym. An empty secret leaves
// pseudonyms unkeyed, which still keeps raw phone numbers out of the logs.
func SetPseudonymSecret(secret string) {
	mu.Lock()
	defer mu.Unlock()
	if secret == "" {
		pseudonymKey = [32]byte{}
		return
	}
	pseudonymKey = blake3.Sum256([]byte(secret))
}

// Pseudonym returns a stable, non-reversible identifier for a user id.
func Pseudonym(userID string) string {
	if userID == "" {
		return ""
	}
	mu.Lock()
	key := pseudonymKey
	mu.Unlock()

	h, err := blake3.NewKeyed(key[:])
	if err != nil {
		sum := blake3.Sum256([]byte(userID))
		return hex.EncodeToString(sum[:8])
	}
	_, _ = h.Write([]byte(userID))
	return hex.EncodeToString(h.Sum(nil)[:8])
}

// Get returns the configured logger, or a default one if Setup hasn't been called.
func Get() *slog.Logger {
	mu.Lock()
	l := logger
	mu.Unlock()
	if l == nil {
		Setup("INFO", "json")
		mu.Lock()
		l = logger
		mu.Unlock()
	}
	return l
}

// WithComponent returns a logger with the component field set.
func WithComponent(name string) *slog.Logger {
	return Get().With(slog.String("component", name))
}

// WithUser returns a logger carrying the pseudonymized user.
func WithUser(l *slog.Logger, userID string) *slog.Logger {
	return l.With(slog.String("user", Pseudonym(userID)))
}

// Info logs at INFO level.
func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

// Debug logs at DEBUG level.
func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}

// Warn logs at WARN level.
func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

// Error logs at ERROR level.
func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}
