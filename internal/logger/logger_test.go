package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestSetup_ReturnsJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf)

	if l == nil {
		t.Fatal("expected non-nil logger")
	}

	l.Info("test message", slog.String("key", "value"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected valid JSON log output, got error: %v\nraw output: %s", err, buf.String())
	}

	if entry["msg"] != "test message" {
		t.Errorf("msg = %q, want %q", entry["msg"], "test message")
	}
	if entry["key"] != "value" {
		t.Errorf("key = %q, want %q", entry["key"], "value")
	}
}

func TestSetup_IncludesTimeField(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf)

	l.Info("test")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}

	if _, ok := entry["time"]; !ok {
		t.Error("expected 'time' field in JSON log output")
	}
}

func TestSetup_IncludesLevelField(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf)

	l.Warn("warning test")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}

	if entry["level"] != "WARN" {
		t.Errorf("level = %q, want %q", entry["level"], "WARN")
	}
}

func TestSetup_MultipleAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf)

	l.Info("archive completed",
		slog.String("user_id", "u-123"),
		slog.String("server", "hammerfest.fr"),
		slog.String("url", "http://www.hammerfest.fr/user.html/127"),
		slog.Int("http_status", 200),
		slog.Int("items", 25),
	)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}

	if entry["user_id"] != "u-123" {
		t.Errorf("user_id = %q, want %q", entry["user_id"], "u-123")
	}
	if entry["server"] != "hammerfest.fr" {
		t.Errorf("server = %q, want %q", entry["server"], "hammerfest.fr")
	}
	if entry["url"] != "http://www.hammerfest.fr/user.html/127" {
		t.Errorf("url = %q, want %q", entry["url"], "http://www.hammerfest.fr/user.html/127")
	}
	if entry["http_status"] != float64(200) {
		t.Errorf("http_status = %v, want %v", entry["http_status"], 200)
	}
	if entry["items"] != float64(25) {
		t.Errorf("items = %v, want %v", entry["items"], 25)
	}
}

func TestSetupDefault_SetsGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	SetupDefault(&buf)

	slog.Default().Info("global test", slog.String("test_key", "test_val"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v\nraw: %s", err, buf.String())
	}

	if entry["msg"] != "global test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "global test")
	}
	if entry["test_key"] != "test_val" {
		t.Errorf("test_key = %q, want %q", entry["test_key"], "test_val")
	}
}

// 秘匿対象の属性が出力されないことを検証する
func TestSetup_RedactsSensitiveAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf)

	l.Info("login",
		slog.String("password", "hunter2"),
		slog.String("username", "alice"),
		slog.String("session_key", "0123456789abcdefghijklmnop"),
		slog.Group("user", slog.String("email", "alice@example.com"), slog.String("id", "u-1")),
		slog.String("server", "hammerfest.fr"),
	)

	raw := buf.String()
	for _, secret := range []string{"hunter2", "alice@example.com", "0123456789abcdefghijklmnop"} {
		if bytes.Contains(buf.Bytes(), []byte(secret)) {
			t.Errorf("秘匿値 %q が出力されている: %s", secret, raw)
		}
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if entry["username"] != Redacted {
		t.Errorf("username = %v, want %q", entry["username"], Redacted)
	}
	if entry["server"] != "hammerfest.fr" {
		t.Errorf("server = %v, want %q", entry["server"], "hammerfest.fr")
	}
	group, ok := entry["user"].(map[string]interface{})
	if !ok {
		t.Fatalf("user group missing: %s", raw)
	}
	if group["id"] != "u-1" {
		t.Errorf("user.id = %v, want %q", group["id"], "u-1")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// デバッグレベル未満のログが抑制されることを検証する
func TestSetupWithLevel_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := SetupWithLevel(&buf, slog.LevelWarn)

	l.Info("ignored")
	if buf.Len() != 0 {
		t.Errorf("infoログが出力された: %s", buf.String())
	}
}
