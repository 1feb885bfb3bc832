package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	monitoring "vessel-monitor/internal/monitoring/domain"
)

type rangesFile struct {
	Ranges map[string]struct {
		Min float64 `yaml:"min"`
		Max float64 `yaml:"max"`
	} `yaml:"ranges"`
}

// LoadRanges reads metric range overrides from a YAML file and applies
// them to the table. Metrics absent from the file keep their defaults.
func LoadRanges(path string, table *monitoring.RangeTable) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read ranges: %w", err)
	}

	var file rangesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("config: parse ranges: %w", err)
	}

	overrides := make(map[monitoring.MetricType]monitoring.MetricRange, len(file.Ranges))
	for name, entry := range file.Ranges {
		overrides[monitoring.MetricType(name)] = monitoring.MetricRange{Min: entry.Min, Max: entry.Max}
	}
	if err := table.Replace(overrides); err != nil {
		return fmt.Errorf("config: apply ranges: %w", err)
	}
	return nil
}

// WatchRanges reloads the range file whenever it changes on disk.
// Classification picks up the new table on the next reading; a file
// that fails to parse is logged and the previous table stays active.
// The watcher stops when ctx is cancelled.
func WatchRanges(ctx context.Context, path string, table *monitoring.RangeTable, logger *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch ranges: %w", err)
	}

	// Watch the directory, not the file: editors and config mounts
	// replace the file by rename, which drops a file-level watch.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("config: watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := LoadRanges(path, table); err != nil {
					logger.Error("range reload failed; keeping previous table",
						zap.String("path", path), zap.Error(err))
					continue
				}
				logger.Info("metric ranges reloaded", zap.String("path", path))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("range watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
