package calibrate

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"sellflow/internal/coords"
)

const sampleSet = `{"search_button": [100, 200]}`

// fakeTool builds a shell script standing in for the calibration tool. It
// writes the coordinate file after a short delay and then lingers, like a
// real tool whose window stays open.
func fakeTool(t *testing.T, lingers bool) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script tool fake")
	}
	script := `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--out" ]; then out="$2"; shift; fi
  shift
done
sleep 0.1
printf '%s' '` + sampleSet + `' > "$out"
`
	if lingers {
		script += "sleep 30\n"
	}
	path := filepath.Join(t.TempDir(), "calibrator.sh")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_FileEventCompletesBeforeToolExits(t *testing.T) {
	dir := t.TempDir()
	store := coords.NewStore(dir)
	r := NewRunner(fakeTool(t, true), store, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	set, err := r.Run(ctx, "linux", "mercari")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !set.Has("search_button") {
		t.Error("loaded set missing calibrated element")
	}
	// The lingering tool must not hold us for its full sleep.
	if time.Since(start) > 5*time.Second {
		t.Error("Run waited for tool exit instead of the file event")
	}
}

func TestRun_CleanExitLoadsFile(t *testing.T) {
	dir := t.TempDir()
	store := coords.NewStore(dir)
	r := NewRunner(fakeTool(t, false), store, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	set, err := r.Run(ctx, "linux", "mercari")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if set.Len() != 1 {
		t.Errorf("set has %d elements, want 1", set.Len())
	}
}

func TestRun_MissingToolFails(t *testing.T) {
	store := coords.NewStore(t.TempDir())
	r := NewRunner("/nonexistent/calibrator", store, nil)

	if _, err := r.Run(context.Background(), "linux", "mercari"); err == nil {
		t.Fatal("missing tool accepted")
	}
}
