package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestSetupJSONWithComponent(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	Setup("debug", "json", &buf)
	WithComponent("producer").Debug("source opened", "source", "foo1.txt")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if entry["component"] != "producer" {
		t.Errorf("component = %v, want producer", entry["component"])
	}
	if entry["source"] != "foo1.txt" {
		t.Errorf("source = %v, want foo1.txt", entry["source"])
	}
}

func TestSetupLevelFilters(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	Setup("warn", "text", &buf)
	slog.Info("hidden")
	slog.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line leaked through warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn line missing: %q", out)
	}
}

func TestFromContextRunID(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	Setup("info", "text", &buf)
	ctx := WithRunID(context.Background(), "run-42")
	FromContext(ctx).Info("run started")

	if !strings.Contains(buf.String(), "run_id=run-42") {
		t.Errorf("run_id missing from %q", buf.String())
	}
}
