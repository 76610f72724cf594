package logging

import (
	"log/slog"
	"testing"

	"github.com/finchsec/doorman-core/internal/infrastructure/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	log := New(config.LoggingConfig{Level: "warn", Format: "json", Output: "stdout"}, "test")

	if log.Enabled(nil, slog.LevelInfo) { //nolint:staticcheck // nil context accepted by slog
		t.Error("info should be filtered at warn level")
	}
	if !log.Enabled(nil, slog.LevelWarn) { //nolint:staticcheck // nil context accepted by slog
		t.Error("warn should be enabled at warn level")
	}
}

func TestWith_ReturnsDerivedLogger(t *testing.T) {
	log := Default()
	derived := log.With("component", "test")

	if derived == nil || derived.Logger == nil {
		t.Fatal("With() returned nil logger")
	}
	if derived == log {
		t.Error("With() should return a new Logger instance")
	}
}
