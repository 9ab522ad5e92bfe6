package logger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	if err := Setup(LogConfig{Level: "debug", Format: "json", Output: path}); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	log := WithComponent("storage")
	log.Info().Str("file_id", "abc").Msg("uploaded")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := strings.TrimSpace(string(data))

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not JSON: %q", line)
	}
	if entry["component"] != "storage" || entry["file_id"] != "abc" || entry["message"] != "uploaded" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestSetupInvalidLevel(t *testing.T) {
	if err := Setup(LogConfig{Level: "loud", Output: "stderr"}); err == nil {
		t.Fatal("Setup() with invalid level should fail")
	}
}

func TestCtxFallsBackToGlobal(t *testing.T) {
	if err := Setup(DefaultConfig()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if l := Ctx(context.Background()); l == nil {
		t.Fatal("Ctx() returned nil for empty context")
	}

	reqLog := WithRequestID("req-1")
	ctx := NewContext(context.Background(), reqLog)
	if got := Ctx(ctx); got.GetLevel() != reqLog.GetLevel() {
		t.Errorf("Ctx() did not return the stored logger")
	}
}
