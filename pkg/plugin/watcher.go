package plugin

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/nadscan/nadscan/pkg/duration"
)

// ScriptWatcher keeps the registry in sync with a script directory.
// New and edited scripts are (re)registered, deleted ones are dropped.
// Jobs already holding a tool keep the version they looked up.
type ScriptWatcher struct {
	dir      string
	reg      *Registry
	log      logrus.FieldLogger
	debounce time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewScriptWatcher creates a watcher for dir feeding reg.
func NewScriptWatcher(dir string, reg *Registry, log logrus.FieldLogger) *ScriptWatcher {
	return &ScriptWatcher{
		dir:      dir,
		reg:      reg,
		log:      log.WithField("component", "plugins"),
		debounce: duration.WatchDebounce,
		timers:   make(map[string]*time.Timer),
	}
}

// LoadAll registers every script currently in the directory and returns
// how many loaded. Compile errors are logged per file.
func (w *ScriptWatcher) LoadAll() int {
	tools, errs := LoadScriptDir(w.dir)
	for _, err := range errs {
		w.log.WithError(err).Warn("SKIPPED script")
	}
	loaded := 0
	for _, st := range tools {
		if err := w.reg.Replace(st.Name(), st, SourceScript); err != nil {
			w.log.WithError(err).WithField("tool", st.Name()).Warn("SKIPPED script")
			continue
		}
		loaded++
	}
	w.log.WithFields(logrus.Fields{"dir": w.dir, "count": loaded}).Info("LOADED scripts")
	return loaded
}

// Watch blocks until ctx is done, applying directory changes to the
// registry.
func (w *ScriptWatcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("script watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("script watcher: watch %s: %w", w.dir, err)
	}

	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("script watcher error")
		}
	}
}

func (w *ScriptWatcher) handle(ev fsnotify.Event) {
	if !IsScript(ev.Name) {
		return
	}
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.cancel(ev.Name)
		name := ScriptName(ev.Name)
		if w.reg.UnregisterSource(name, SourceScript) {
			w.log.WithField("tool", name).Info("REMOVED script")
		}
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		w.schedule(ev.Name)
	}
}

// schedule coalesces the burst of writes editors produce into one reload.
func (w *ScriptWatcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.reload(path)
	})
}

func (w *ScriptWatcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *ScriptWatcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *ScriptWatcher) reload(path string) {
	st, err := LoadScript(filepath.Clean(path))
	if err != nil {
		w.log.WithError(err).WithField("path", path).Warn("SKIPPED script")
		return
	}
	if err := w.reg.Replace(st.Name(), st, SourceScript); err != nil {
		w.log.WithError(err).WithField("tool", st.Name()).Warn("SKIPPED script")
		return
	}
	w.log.WithField("tool", st.Name()).Info("RELOADED script")
}
