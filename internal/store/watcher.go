package store

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"articlereview/internal/logging"
)

// MetaWatcher reloads a MetaTable when its metadata file changes on disk.
// The parent directory is watched so editors that replace the file by
// rename are picked up.
type MetaWatcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	table       *MetaTable
	path        string
	debounceDur time.Duration
	pending     time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	reloads     int
}

// NewMetaWatcher creates a watcher for path feeding table.
func NewMetaWatcher(path string, table *MetaTable) (*MetaWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &MetaWatcher{
		watcher:     w,
		table:       table,
		path:        abs,
		debounceDur: 200 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking.
func (mw *MetaWatcher) Start(ctx context.Context) error {
	mw.mu.Lock()
	if mw.running {
		mw.mu.Unlock()
		return nil
	}
	mw.running = true
	mw.mu.Unlock()

	if err := mw.watcher.Add(filepath.Dir(mw.path)); err != nil {
		mw.mu.Lock()
		mw.running = false
		mw.mu.Unlock()
		return err
	}
	logging.Store("MetaWatcher: watching %s", mw.path)

	go mw.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the loop to exit.
func (mw *MetaWatcher) Stop() {
	mw.mu.Lock()
	if !mw.running {
		mw.mu.Unlock()
		_ = mw.watcher.Close()
		return
	}
	mw.running = false
	mw.mu.Unlock()

	close(mw.stopCh)
	<-mw.doneCh
	if err := mw.watcher.Close(); err != nil {
		logging.StoreWarn("MetaWatcher: error closing watcher: %v", err)
	}
}

// Reloads returns how many reloads have been applied.
func (mw *MetaWatcher) Reloads() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.reloads
}

func (mw *MetaWatcher) run(ctx context.Context) {
	defer close(mw.doneCh)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-mw.stopCh:
			return
		case event, ok := <-mw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != mw.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			mw.mu.Lock()
			mw.pending = time.Now()
			mw.mu.Unlock()
		case err, ok := <-mw.watcher.Errors:
			if !ok {
				return
			}
			logging.StoreWarn("MetaWatcher error: %v", err)
		case <-ticker.C:
			mw.reloadIfSettled()
		}
	}
}

func (mw *MetaWatcher) reloadIfSettled() {
	mw.mu.Lock()
	if mw.pending.IsZero() || time.Since(mw.pending) < mw.debounceDur {
		mw.mu.Unlock()
		return
	}
	mw.pending = time.Time{}
	mw.mu.Unlock()

	rows, err := LoadDocMeta(mw.path)
	if err != nil {
		// Keep serving the previous table.
		logging.StoreWarn("MetaWatcher: reload of %s failed: %v", mw.path, err)
		return
	}
	mw.table.Replace(rows)

	mw.mu.Lock()
	mw.reloads++
	mw.mu.Unlock()
	logging.Store("MetaWatcher: reloaded %d metadata rows", len(rows))
}
