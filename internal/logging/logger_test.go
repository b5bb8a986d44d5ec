package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_WritesSystemAndErrorLogs(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Options{Dir: dir})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("step dispatched")
	logger.Error("step exhausted retries")
	_ = logger.Sync()

	system, err := os.ReadFile(filepath.Join(dir, "system.log"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(system), "step dispatched") {
		t.Error("system.log missing info entry")
	}
	if !strings.Contains(string(system), "step exhausted retries") {
		t.Error("system.log should also carry error entries")
	}

	errLog, err := os.ReadFile(filepath.Join(dir, "error.log"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(errLog), "step dispatched") {
		t.Error("error.log should not carry info entries")
	}
	if !strings.Contains(string(errLog), "step exhausted retries") {
		t.Error("error.log missing error entry")
	}
}

func TestNew_AppendOnly(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		logger, err := New(Options{Dir: dir})
		if err != nil {
			t.Fatal(err)
		}
		logger.Info("run started")
		_ = logger.Sync()
	}

	data, err := os.ReadFile(filepath.Join(dir, "system.log"))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), "run started"); got != 2 {
		t.Errorf("expected 2 appended entries, got %d", got)
	}
}
