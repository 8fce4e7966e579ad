package loader

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay gives a dropped-in artifact time to finish being written
// before the loader maps it.
const settleDelay = 500 * time.Millisecond

// Watch loads artifacts dropped into the plugin directory while the host is
// running. Each new valid artifact is registered, initialized, and started
// through the registrar; failures are logged and isolated to the artifact.
// Returns the watcher so the caller can close it at shutdown.
func (l *Loader) Watch(ctx context.Context, registrar Registrar) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(l.pluginDir); err != nil {
		watcher.Close()
		return nil, err
	}

	go l.watchLoop(ctx, watcher, registrar)
	l.logger.Info("watching plugin directory", "dir", l.pluginDir)
	return watcher, nil
}

func (l *Loader) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, registrar Registrar) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if _, ok := isArtifact(event.Name); !ok {
				continue
			}
			if registrar.Has(DeriveID(event.Name)) {
				continue
			}

			// Settling happens off the watch loop so one slow artifact
			// never stalls other events or the error channel.
			go func(path string) {
				select {
				case <-ctx.Done():
					return
				case <-time.After(settleDelay):
				}
				if registrar.Has(DeriveID(path)) {
					return
				}
				l.hotLoad(ctx, path, registrar)
			}(event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error("plugin watcher error", "error", err)
		}
	}
}

func (l *Loader) hotLoad(ctx context.Context, path string, registrar Registrar) {
	loaded, err := l.LoadPath(path)
	if err != nil {
		l.logger.Error("dropped artifact failed to load", "path", path, "error", err)
		return
	}
	if err := registrar.AddDynamic(ctx, loaded.Plugin, loaded.Source); err != nil {
		l.logger.Error("dropped artifact failed to start",
			"id", loaded.Plugin.Metadata().ID, "path", filepath.Base(path), "error", err)
	}
}
