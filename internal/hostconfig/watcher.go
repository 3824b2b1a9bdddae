package hostconfig

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher reloads the host list whenever the credential file changes and
// hands the fresh list to onChange. The parent directory is watched because
// Chiaki replaces the file on save.
type Watcher struct {
	store    *Store
	onChange func([]Host)
	debounce time.Duration

	fsw    *fsnotify.Watcher
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
	hosts   []Host
}

// NewWatcher creates a watcher for store. Call Start to begin watching.
func NewWatcher(store *Store, onChange func([]Host)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		store:    store,
		onChange: onChange,
		debounce: 200 * time.Millisecond,
		fsw:      fsw,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start loads the current hosts and begins watching.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.hosts = w.store.Hosts()
	w.mu.Unlock()

	dir := filepath.Dir(w.store.Path)
	if err := w.fsw.Add(dir); err != nil {
		log.Warn().Err(err).Str("path", dir).Msg("credential watch not established")
	}
	go w.loop()
	return nil
}

// Stop ends watching. It is safe to call more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	w.cancel()
	return w.fsw.Close()
}

// Hosts returns the most recently loaded host list.
func (w *Watcher) Hosts() []Host {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Host, len(w.hosts))
	copy(out, w.hosts)
	return out
}

func (w *Watcher) loop() {
	target := filepath.Clean(w.store.Path)
	var timer *time.Timer
	for {
		select {
		case <-w.ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("credential watcher error")
		}
	}
}

func (w *Watcher) reload() {
	hosts := w.store.Hosts()
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.hosts = hosts
	w.mu.Unlock()
	log.Info().Int("hosts", len(hosts)).Str("path", w.store.Path).Msg("credential store reloaded")
	if w.onChange != nil {
		w.onChange(hosts)
	}
}
