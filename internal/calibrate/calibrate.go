// Package calibrate launches the external coordinate-calibration tool and
// waits for it to write the coordinate set. The tool is a separate program;
// the only coupling is the file it produces.
package calibrate

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"sellflow/internal/coords"
)

// Runner invokes the calibration tool.
type Runner struct {
	toolPath string
	store    *coords.Store
	logger   *zap.Logger
}

// NewRunner builds a runner. toolPath is the calibration executable.
func NewRunner(toolPath string, store *coords.Store, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{toolPath: toolPath, store: store, logger: logger}
}

// Run starts the tool for the given platform and profile and blocks until
// the coordinate file lands, then loads it to confirm it parses. Some tools
// write the file and keep their UI open, so the file event is the completion
// signal, not process exit.
func (r *Runner) Run(ctx context.Context, platform, profile string) (*coords.Set, error) {
	target := r.store.Path(platform, profile)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create coordinate dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("start file watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	cmd := exec.CommandContext(ctx, r.toolPath,
		"--platform", platform,
		"--profile", profile,
		"--out", target,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start calibration tool: %w", err)
	}
	r.logger.Info("calibration tool started",
		zap.String("tool", r.toolPath),
		zap.String("target", target),
	)

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()
	toolExited := false
	defer func() {
		// Reap the tool if the file event arrived first.
		if !toolExited {
			_ = cmd.Process.Kill()
			go func() { <-exited }()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev := <-watcher.Events:
			if ev.Name != target || !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			r.logger.Info("coordinate file written", zap.String("path", target))
			return r.store.Load(platform, profile)
		case err := <-watcher.Errors:
			return nil, fmt.Errorf("file watcher: %w", err)
		case err := <-exited:
			toolExited = true
			if err != nil {
				return nil, fmt.Errorf("calibration tool exited: %w", err)
			}
			// Clean exit; the file should be in place.
			if _, statErr := os.Stat(target); statErr != nil {
				return nil, fmt.Errorf("calibration tool exited without writing %s", target)
			}
			return r.store.Load(platform, profile)
		}
	}
}
