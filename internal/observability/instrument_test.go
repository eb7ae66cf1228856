package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestInstrumentFormats(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	tests := []struct {
		format string
		check  func(t *testing.T, out string)
	}{
		{
			format: "text",
			check: func(t *testing.T, out string) {
				if !strings.Contains(out, "msg=hello") || !strings.Contains(out, "user_id=u1") {
					t.Errorf("unexpected text output %q", out)
				}
			},
		},
		{
			format: "json",
			check: func(t *testing.T, out string) {
				var rec map[string]any
				if err := json.Unmarshal([]byte(out), &rec); err != nil {
					t.Fatalf("invalid JSON %q: %v", out, err)
				}
				if rec["msg"] != "hello" || rec["user_id"] != "u1" {
					t.Errorf("unexpected record %v", rec)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			shutdown, err := Instrument(context.Background(), Options{Level: slog.LevelInfo, Format: tt.format, Output: &buf})
			if err != nil {
				t.Fatalf("Instrument: %v", err)
			}
			defer func() { _ = shutdown(context.Background()) }()

			slog.Debug("hidden")
			slog.Info("hello", "user_id", "u1")
			tt.check(t, strings.TrimSpace(buf.String()))
		})
	}
}

func TestInstrumentRejectsUnknownSettings(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	if _, err := Instrument(context.Background(), Options{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := Instrument(context.Background(), Options{Exporter: "kafka"}); err == nil {
		t.Error("expected error for unknown exporter")
	}
}

func TestFanout(t *testing.T) {
	var debug, warn bytes.Buffer
	h := fanout{
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}
	logger := slog.New(h).With("component", "test")

	logger.Debug("detail")
	logger.Warn("problem")

	if !strings.Contains(debug.String(), "detail") || !strings.Contains(debug.String(), "problem") {
		t.Errorf("debug handler missed records: %q", debug.String())
	}
	if strings.Contains(warn.String(), "detail") || !strings.Contains(warn.String(), "component=test") {
		t.Errorf("warn handler output wrong: %q", warn.String())
	}
}
