package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestNewJSONLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: "json", Output: &buf})

	log.Info(context.Background(), "dropped")
	log.Warn(context.Background(), "pair not classified",
		String("target", "Target 3"),
		Int("index", 2),
		Float("visible_fraction", 0.5),
		Err(errors.New("pick failed")),
	)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %s", len(lines), buf.String())
	}
	got := lines[0]
	if got["msg"] != "pair not classified" || got["target"] != "Target 3" || got["error"] != "pick failed" {
		t.Fatalf("record = %v", got)
	}
	if got["index"] != float64(2) || got["visible_fraction"] != 0.5 {
		t.Fatalf("numeric fields = %v", got)
	}
}

func TestErrNil(t *testing.T) {
	if f := Err(nil); f.Key != "error" || f.Value != "" {
		t.Fatalf("Err(nil) = %+v", f)
	}
}

func TestSessionLoggerAddsSessionID(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: "debug", Format: "json", Output: &buf})

	ctx, log := WithSessionLogger(context.Background(), base)
	id := SessionIDFromContext(ctx)
	if id == "" {
		t.Fatalf("session id not set")
	}
	if _, again := EnsureSessionID(ctx); again != id {
		t.Fatalf("EnsureSessionID = %q, want existing %q", again, id)
	}

	log.Info(ctx, "session complete")
	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0]["session_id"] != id {
		t.Fatalf("record = %v, want session_id %s", lines, id)
	}
}

func TestSessionLoggerPrefersContextLogger(t *testing.T) {
	var ctxBuf, baseBuf bytes.Buffer
	ctxLog := New(Config{Format: "json", Output: &ctxBuf}).With(String("request_id", "req-9"))
	base := New(Config{Format: "json", Output: &baseBuf})

	ctx := ContextWithLogger(context.Background(), ctxLog)
	ctx, log := WithSessionLogger(ctx, base)
	log.Info(ctx, "hello")

	if baseBuf.Len() != 0 {
		t.Fatalf("base logger used: %s", baseBuf.String())
	}
	lines := decodeLines(t, &ctxBuf)
	if len(lines) != 1 || lines[0]["request_id"] != "req-9" || lines[0]["session_id"] == nil {
		t.Fatalf("record = %v", lines)
	}
}

func TestRequestLogger(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "abc")
	ctx, log := WithRequestLogger(ctx, nil)
	if RequestIDFromContext(ctx) != "abc" || log == nil {
		t.Fatalf("request id = %q", RequestIDFromContext(ctx))
	}

	_, generated := EnsureRequestID(context.Background())
	if len(generated) != 32 {
		t.Fatalf("generated id = %q, want 32 hex chars", generated)
	}
	if LoggerFromContext(context.Background()) != nil {
		t.Fatalf("LoggerFromContext on empty context should be nil")
	}
}
