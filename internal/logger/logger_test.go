package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestSlogBridge_CarriesContextFields(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug", Service: "mapserver", Component: "resolver"}, &buf)
	l := NewSlog(&zl)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithSessionID(ctx, "sess-9")
	ctx = WithRegion(ctx, "Richmond")

	l.WarnContext(ctx, "remote boundary fetch failed", "status", 503)

	var got map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	want := map[string]any{
		"level":      "warn",
		"msg":        "remote boundary fetch failed",
		"request_id": "req-1",
		"session_id": "sess-9",
		"region":     "Richmond",
		"service":    "mapserver",
		"component":  "resolver",
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("field %q=%v want %v (line %s)", k, got[k], v, buf.String())
		}
	}
	if got["status"] != float64(503) {
		t.Fatalf("status=%v want 503", got["status"])
	}
}

func TestSlogBridge_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "warn"}, &buf)
	l := NewSlog(&zl)

	l.Debug("hidden")
	l.Info("hidden too")
	l.Error("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug/info lines leaked at warn level: %s", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("error line missing: %s", out)
	}
}

func TestWithGroup_PrefixesKeys(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "info"}, &buf)
	l := NewSlog(&zl).WithGroup("cache").With("driver", "redis")

	l.Info("opened")
	if !strings.Contains(buf.String(), `"cache.driver":"redis"`) {
		t.Fatalf("grouped key missing: %s", buf.String())
	}
}
