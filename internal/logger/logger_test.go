package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func logEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected valid JSON log output, got error: %v\nraw output: %s", err, buf.String())
	}
	return entry
}

func TestSetup_ReturnsJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf)

	if l == nil {
		t.Fatal("expected non-nil logger")
	}

	l.Info("setup saved", slog.String("user_id", "user-builder-1"))

	entry := logEntry(t, &buf)
	if entry["msg"] != "setup saved" {
		t.Errorf("msg = %q, want %q", entry["msg"], "setup saved")
	}
	if entry["user_id"] != "user-builder-1" {
		t.Errorf("user_id = %q, want %q", entry["user_id"], "user-builder-1")
	}
}

func TestSetup_IncludesTimeAndLevelFields(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf)

	l.Warn("llm completion slow")

	entry := logEntry(t, &buf)
	if _, ok := entry["time"]; !ok {
		t.Error("expected 'time' field in JSON log output")
	}
	if entry["level"] != "WARN" {
		t.Errorf("level = %q, want %q", entry["level"], "WARN")
	}
}

func TestSetup_MultipleAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf)

	// 提案生成完了時のログと同じ形
	l.Info("suggestion generated",
		slog.String("user_id", "user-builder-1"),
		slog.String("query_id", "q-77201"),
		slog.String("model", "gpt-4o-mini"),
		slog.Int("prompt_chars", 842),
		slog.Int("duration_ms", 1250),
	)

	entry := logEntry(t, &buf)
	if entry["user_id"] != "user-builder-1" {
		t.Errorf("user_id = %q, want %q", entry["user_id"], "user-builder-1")
	}
	if entry["query_id"] != "q-77201" {
		t.Errorf("query_id = %q, want %q", entry["query_id"], "q-77201")
	}
	if entry["model"] != "gpt-4o-mini" {
		t.Errorf("model = %q, want %q", entry["model"], "gpt-4o-mini")
	}
	if entry["prompt_chars"] != float64(842) {
		t.Errorf("prompt_chars = %v, want %v", entry["prompt_chars"], 842)
	}
	if entry["duration_ms"] != float64(1250) {
		t.Errorf("duration_ms = %v, want %v", entry["duration_ms"], 1250)
	}
}

func TestSetup_LevelFollowsEnvironment(t *testing.T) {
	tests := []struct {
		name      string
		logLevel  string
		wantDebug bool
		wantWarn  bool
	}{
		{"debug設定ではDebugも出る", "debug", true, true},
		{"error設定ではWarnは落ちる", "error", false, false},
		{"未設定はInfoが既定", "", false, true},
		{"不明な値はInfoが既定", "verbose", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.logLevel)

			var buf bytes.Buffer
			l := Setup(&buf)

			l.Debug("debug line")
			gotDebug := buf.Len() > 0
			buf.Reset()

			l.Warn("warn line")
			gotWarn := buf.Len() > 0

			if gotDebug != tt.wantDebug {
				t.Errorf("debug emitted = %v, want %v", gotDebug, tt.wantDebug)
			}
			if gotWarn != tt.wantWarn {
				t.Errorf("warn emitted = %v, want %v", gotWarn, tt.wantWarn)
			}
		})
	}
}

func TestSetupDefault_SetsGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	SetupDefault(&buf)

	slog.Default().Info("query history pruned", slog.String("user_id", "user-builder-2"))

	entry := logEntry(t, &buf)
	if entry["msg"] != "query history pruned" {
		t.Errorf("msg = %q, want %q", entry["msg"], "query history pruned")
	}
	if entry["user_id"] != "user-builder-2" {
		t.Errorf("user_id = %q, want %q", entry["user_id"], "user-builder-2")
	}
}
