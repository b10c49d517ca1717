// SPDX-License-Identifier: MPL-2.0

package manager

import (
	"context"
	"errors"

	"github.com/tuskcfg/tusk/internal/watch"
)

// ErrNothingToWatch is returned by Watch when no configuration has
// been loaded yet, so there are no source files to monitor.
var ErrNothingToWatch = errors.New("nothing to watch: no configuration loaded")

// Watch monitors every previously loaded source file and reloads the
// affected configurations when one changes. Successful reloads update
// the cache and fire change events; failed reloads keep the previous
// cache entry and fire error events only. Watch blocks until ctx is
// canceled.
//
// Sources loaded after Watch starts are not picked up; call Watch
// after the initial loads.
func (m *Manager) Watch(ctx context.Context) error {
	tracked := m.trackedSources()
	if len(tracked) == 0 {
		return ErrNothingToWatch
	}

	paths := make([]string, 0, len(tracked))
	for path := range tracked {
		paths = append(paths, path)
	}

	w, err := watch.New(watch.Config{
		Paths:    paths,
		Debounce: m.settings.Watch.Debounce,
		Logger:   m.logger,
		OnChange: func(ctx context.Context, changed []string) error {
			for _, path := range changed {
				for _, env := range tracked[path] {
					if _, err := m.Reload(ctx, path, env); err != nil {
						m.logger.Error("reload failed", "path", path, "env", env, "err", err)
					}
				}
			}
			return nil
		},
	})
	if err != nil {
		return err
	}

	return w.Run(ctx)
}
