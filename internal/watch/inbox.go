// Package watch observes an inbox directory and hands finished document
// files to a submit callback. Writes are debounced so partially copied
// scans are not picked up mid-transfer.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Dropicx/docworker/internal/observability"
)

const defaultDebounce = 500 * time.Millisecond

var acceptedExtensions = []string{".pdf", ".jpg", ".jpeg", ".png"}

// Inbox watches one directory for incoming document files.
type Inbox struct {
	root     string
	submit   func(path string)
	debounce time.Duration
	logger   *observability.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	timers   map[string]*time.Timer
	started  bool
	done     chan struct{}
	stopOnce sync.Once
}

// NewInbox creates a watcher over root. submit is called once per settled
// file.
func NewInbox(root string, submit func(path string), logger *observability.Logger) *Inbox {
	return &Inbox{
		root:     root,
		submit:   submit,
		debounce: defaultDebounce,
		logger:   logger.WithComponent("inbox"),
		timers:   make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
}

// Start begins watching. The inbox directory is created when absent. Runs
// until ctx is cancelled or Stop is called.
func (in *Inbox) Start(ctx context.Context) error {
	in.mu.Lock()
	if in.started {
		in.mu.Unlock()
		return nil
	}

	if err := os.MkdirAll(in.root, 0o755); err != nil {
		in.mu.Unlock()
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		in.mu.Unlock()
		return err
	}
	if err := watcher.Add(in.root); err != nil {
		_ = watcher.Close()
		in.mu.Unlock()
		return err
	}

	in.watcher = watcher
	in.started = true
	in.mu.Unlock()

	in.logger.Info().Str("root", in.root).Msg("watching inbox")
	go in.run(ctx)
	return nil
}

// SubmitExisting hands over every matching file already present in the
// inbox. Call after Start to drain files that arrived while the watcher
// was down.
func (in *Inbox) SubmitExisting() error {
	entries, err := os.ReadDir(in.root)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(in.root, entry.Name())
		if accepted(path) {
			in.submit(path)
		}
	}
	return nil
}

func (in *Inbox) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			in.Stop()
			return
		case <-in.done:
			return
		case ev, ok := <-in.watcher.Events:
			if !ok {
				return
			}
			in.handleEvent(ev)
		case err, ok := <-in.watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				in.logger.Warn().Err(err).Msg("watcher error")
			}
		}
	}
}

func (in *Inbox) handleEvent(ev fsnotify.Event) {
	switch {
	case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write):
		if info, err := os.Stat(ev.Name); err != nil || info.IsDir() {
			return
		}
		if accepted(ev.Name) {
			in.scheduleSubmit(ev.Name)
		}
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		in.cancelSubmit(ev.Name)
	}
}

// scheduleSubmit resets the debounce timer for path; the file is
// submitted once no further write arrives within the window.
func (in *Inbox) scheduleSubmit(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if t, ok := in.timers[path]; ok {
		t.Stop()
	}
	in.timers[path] = time.AfterFunc(in.debounce, func() {
		in.mu.Lock()
		delete(in.timers, path)
		in.mu.Unlock()
		in.logger.Info().Str("path", path).Msg("inbox file settled")
		in.submit(path)
	})
}

func (in *Inbox) cancelSubmit(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if t, ok := in.timers[path]; ok {
		t.Stop()
		delete(in.timers, path)
	}
}

// Stop releases the watcher and cancels pending submissions.
func (in *Inbox) Stop() {
	in.mu.Lock()
	if !in.started || in.watcher == nil {
		in.mu.Unlock()
		return
	}
	for path, t := range in.timers {
		t.Stop()
		delete(in.timers, path)
	}
	_ = in.watcher.Close()
	in.watcher = nil
	in.started = false
	in.mu.Unlock()
	in.stopOnce.Do(func() { close(in.done) })
}

func accepted(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range acceptedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
