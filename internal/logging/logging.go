// Package logging sestavuje slog logger, který používají všechny služby.
//
// Formát je JSON (standard pro kontejnery), volitelně se řádky logu
// přeposílají i do MQTT na topic logs/{služba}.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel převede LOG_LEVEL na slog.Level. Neznámá hodnota = Info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New vytvoří JSON logger nad writerem w (nil = stdout) a přidá atribut service.
func New(service, level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(handler).With("service", service)
}
