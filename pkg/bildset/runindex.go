package bildset

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"k8s.io/klog/v2"
)

// RunIndex keeps an in-memory view of the runs in a store, refreshed when
// the store directory changes. Runs written by another process show up
// without a restart.
type RunIndex struct {
	store *Store

	mu   sync.RWMutex
	runs []RunMeta

	watcher *fsnotify.Watcher
}

// NewRunIndex builds an index over a store and performs an initial load.
func NewRunIndex(s *Store) (*RunIndex, error) {
	idx := &RunIndex{store: s}
	if err := idx.Refresh(); err != nil {
		return nil, err
	}
	return idx, nil
}

// Runs returns the most recently loaded run list, newest first.
func (x *RunIndex) Runs() []RunMeta {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.runs
}

// Refresh reloads the run list from the store.
func (x *RunIndex) Refresh() error {
	runs, err := x.store.List()
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	x.mu.Lock()
	x.runs = runs
	x.mu.Unlock()
	return nil
}

// Watch refreshes the index whenever the store's root directory changes.
// It returns once the watcher is installed; refreshes happen on a
// background goroutine until Close is called.
func (x *RunIndex) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}
	x.watcher = w

	go func() {
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
					klog.V(1).Infof("run store event: %s", event)
					if err := x.Refresh(); err != nil {
						klog.Errorf("refresh failed: %v", err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				klog.Errorf("watch error: %v", err)
			}
		}
	}()

	if err := w.Add(x.store.Root); err != nil {
		return fmt.Errorf("watch %s: %w", x.store.Root, err)
	}

	klog.Infof("watching %s for new runs", x.store.Root)
	return nil
}

// Close stops the background watcher, if one was started.
func (x *RunIndex) Close() error {
	if x.watcher == nil {
		return nil
	}
	return x.watcher.Close()
}
