package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestStartSpanNestsUnderParent(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := WithLogger(context.Background(), base)

	ctx, parent := StartSpan(ctx, "resolve", "video_id", "dQw4w9WgXcQ")
	_, child := StartSpan(ctx, "fetch")
	child.End(errors.New("boom"))
	parent.End(nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines got %d: %s", len(lines), buf.String())
	}

	var childEntry, parentEntry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &childEntry); err != nil {
		t.Fatalf("decode child: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &parentEntry); err != nil {
		t.Fatalf("decode parent: %v", err)
	}

	if childEntry["msg"] != "span failed" || childEntry["error"] != "boom" {
		t.Fatalf("unexpected child entry: %v", childEntry)
	}
	if childEntry["parent_span_id"] != parentEntry["span_id"] {
		t.Fatalf("child not linked to parent: %v vs %v", childEntry["parent_span_id"], parentEntry["span_id"])
	}
	if childEntry["video_id"] != "dQw4w9WgXcQ" {
		t.Fatalf("expected inherited attrs, got %v", childEntry)
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Fatal("expected default logger")
	}
	if RequestIDFromContext(WithRequestID(context.Background(), "req-1")) != "req-1" {
		t.Fatal("expected request id round trip")
	}
}

func TestNewParsesLevel(t *testing.T) {
	logger := New("warn")
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("info should be disabled at warn level")
	}
	if !New("bogus").Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("unknown level should fall back to info")
	}
}
