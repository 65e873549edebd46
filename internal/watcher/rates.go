package watcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/buildcost/internal/locale"
)

// ReloadRates reads the rates file at path and swaps it into reg as a whole table.
// On any error the registry keeps its current table.
func ReloadRates(reg *locale.Registry, path string) error {
	table, err := locale.LoadRatesFile(path)
	if err != nil {
		return err
	}
	if err := reg.SwapRates(table); err != nil {
		return fmt.Errorf("rates file %s: %w", path, err)
	}
	return nil
}

// WatchRates loads the rates file once and then keeps reg in sync with it until ctx is done.
// The initial load must succeed; later bad edits are logged and ignored.
func WatchRates(ctx context.Context, reg *locale.Registry, path string, logger *zap.Logger, opts ...WatcherOption) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := ReloadRates(reg, path); err != nil {
		return nil, err
	}
	logger.Info("rates loaded", zap.String("path", path), zap.Int("currencies", len(reg.Rates().Codes())))

	onChange := func(p string) {
		if err := ReloadRates(reg, p); err != nil {
			logger.Warn("rates reload failed; keeping current table", zap.String("path", p), zap.Error(err))
			return
		}
		logger.Info("rates reloaded", zap.String("path", p))
	}
	w := NewWatcher(path, onChange, append([]WatcherOption{WithLogger(logger)}, opts...)...)
	if err := w.Start(ctx); err != nil {
		return nil, fmt.Errorf("watch rates file: %w", err)
	}
	return w, nil
}
