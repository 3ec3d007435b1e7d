package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewJSONHandlerEmitsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := &Logger{
		Logger:    slog.New(slog.NewJSONHandler(&buf, nil)).With("component", "engine"),
		component: "engine",
	}

	logger.Info("enrollment started", "volume_count", 2)

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected valid json log line, got %v", err)
	}
	if line["component"] != "engine" {
		t.Fatalf("expected component=engine, got %v", line["component"])
	}
	if line["msg"] != "enrollment started" {
		t.Fatalf("expected msg to be preserved, got %v", line["msg"])
	}
}

func TestSecurityEventIncludesCategory(t *testing.T) {
	var buf bytes.Buffer
	logger := &Logger{
		Logger: slog.New(slog.NewJSONHandler(&buf, nil)),
	}

	logger.SecurityEvent(context.Background(), "enroll", slog.String("volume_id", "abc"))

	out := buf.String()
	if !strings.Contains(out, `"category":"security"`) {
		t.Fatalf("expected category=security in output, got %s", out)
	}
	if !strings.Contains(out, `"event_type":"enroll"`) {
		t.Fatalf("expected event_type=enroll in output, got %s", out)
	}
}

func TestWithVolumeTagsSubsequentLines(t *testing.T) {
	var buf bytes.Buffer
	logger := &Logger{
		Logger: slog.New(slog.NewJSONHandler(&buf, nil)),
	}

	tagged := logger.WithVolume("c01f4eb5-71a0-4ad8-b054-d72d2b2e5389")
	tagged.Info("opened")

	if !strings.Contains(buf.String(), "c01f4eb5-71a0-4ad8-b054-d72d2b2e5389") {
		t.Fatalf("expected volume_id to be attached to log line")
	}
}
