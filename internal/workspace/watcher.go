package workspace

import (
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

func splitPath(path string) (dir, file string) {
	return filepath.Dir(path), filepath.Base(path)
}

// ChangeCallback is invoked with the job ID and the filenames that changed
// in its workspace since the last debounce window.
type ChangeCallback func(jobID string, changedFiles []string)

// Watcher monitors running jobs' workspaces for files the tools write
// outside the captured output streams (reports, wave databases, tool state)
// so observers see fresh log metadata without polling.
type Watcher struct {
	manager  *Manager
	watcher  *fsnotify.Watcher
	callback ChangeCallback
	debounce time.Duration

	mu      sync.Mutex
	jobs    map[string]string // workspace path -> job ID
	pending map[string]map[string]struct{}
	timer   *time.Timer
	closed  bool
}

// NewWatcher creates a workspace watcher. Call Run to start delivering
// callbacks and Close to stop.
func NewWatcher(manager *Manager, callback ChangeCallback) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		manager:  manager,
		watcher:  fsw,
		callback: callback,
		debounce: 500 * time.Millisecond,
		jobs:     make(map[string]string),
		pending:  make(map[string]map[string]struct{}),
	}, nil
}

// AddJob starts watching a job's workspace.
func (w *Watcher) AddJob(jobID string) error {
	path := w.manager.Path(jobID)

	w.mu.Lock()
	w.jobs[path] = jobID
	w.mu.Unlock()

	return w.watcher.Add(path)
}

// RemoveJob stops watching a job's workspace.
func (w *Watcher) RemoveJob(jobID string) {
	path := w.manager.Path(jobID)

	w.mu.Lock()
	delete(w.jobs, path)
	delete(w.pending, jobID)
	w.mu.Unlock()

	w.watcher.Remove(path) // best effort; workspace may already be gone
}

// Run processes filesystem events until Close is called.
func (w *Watcher) Run() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.record(ev.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[workspace] watch error: %v", err)
		}
	}
}

// Close stops the watcher. Pending debounced callbacks are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}

func (w *Watcher) record(path string) {
	dir, file := splitPath(path)

	w.mu.Lock()
	defer w.mu.Unlock()

	jobID, ok := w.jobs[dir]
	if !ok || w.closed {
		return
	}
	if w.pending[jobID] == nil {
		w.pending[jobID] = make(map[string]struct{})
	}
	w.pending[jobID][file] = struct{}{}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	batches := w.pending
	w.pending = make(map[string]map[string]struct{})
	closed := w.closed
	w.mu.Unlock()

	if closed {
		return
	}
	for jobID, files := range batches {
		var names []string
		for f := range files {
			names = append(names, f)
		}
		w.callback(jobID, names)
	}
}
