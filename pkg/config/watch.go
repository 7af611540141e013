package config

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/fedbroker/fedbroker/pkg/telemetry"
)

// Watch watches the config file and applies the log level from each valid
// reload. Invalid files are logged and skipped, keeping the running
// configuration untouched. Watch returns once the watcher is installed;
// event processing runs until ctx is cancelled.
func Watch(ctx context.Context, path string, logger zerolog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch config file: %w", err)
	}

	go processEvents(ctx, watcher, path, logger)

	logger.Info().Str("path", path).Msg("watching config file")
	return nil
}

// processEvents debounces write events and applies reloads.
func processEvents(ctx context.Context, watcher *fsnotify.Watcher, path string, logger zerolog.Logger) {
	var reloadTimer *time.Timer
	reloadDelay := 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			_ = watcher.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDelay, func() {
				reload(path, logger)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn().Err(err).Msg("config watcher error")
		}
	}
}

// reload re-reads the file and applies the hot-reloadable settings.
func reload(path string, logger zerolog.Logger) {
	cfg, err := Load(path)
	if err != nil {
		logger.Error().Err(err).Msg("config reload failed; keeping current configuration")
		return
	}

	telemetry.SetGlobalLevel(cfg.Telemetry.Logging.Level)
	logger.Info().Str("level", cfg.Telemetry.Logging.Level).Msg("config reloaded")
}
