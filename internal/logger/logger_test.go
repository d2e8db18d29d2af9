package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestSetup_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(&buf, slog.LevelInfo)

	logger.Info("テストメッセージ", slog.String("key", "value"))

	var entry struct {
		Level string `json:"level"`
		Msg   string `json:"msg"`
		Key   string `json:"key"`
	}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("JSON形式ではない出力: %v", err)
	}
	if entry.Level != "INFO" {
		t.Errorf("level = %q", entry.Level)
	}
	if entry.Msg != "テストメッセージ" {
		t.Errorf("msg = %q", entry.Msg)
	}
	if entry.Key != "value" {
		t.Errorf("key = %q", entry.Key)
	}
}

func TestSetup_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(&buf, slog.LevelWarn)

	logger.Info("情報ログ")
	if buf.Len() != 0 {
		t.Errorf("Warnレベル設定時にInfoが出力された: %s", buf.String())
	}

	logger.Warn("警告ログ")
	if buf.Len() == 0 {
		t.Error("Warnログが出力されていない")
	}
}

func TestLevelFromEnv(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  slog.Level
	}{
		{"debug", "debug", slog.LevelDebug},
		{"warn", "warn", slog.LevelWarn},
		{"error", "error", slog.LevelError},
		{"大文字も許容", "DEBUG", slog.LevelDebug},
		{"未設定はinfo", "", slog.LevelInfo},
		{"不明な値はinfo", "verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.value)
			if got := LevelFromEnv(); got != tt.want {
				t.Errorf("LevelFromEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}
