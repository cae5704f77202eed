package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const debounceInterval = 400 * time.Millisecond

// Watcher ingests .json batch files dropped into a directory. Writes are
// debounced per file so a batch still being copied in is picked up once,
// after it settles.
type Watcher struct {
	dir      string
	ingestor *Ingestor
	logger   *zap.Logger

	fsw    *fsnotify.Watcher
	mu     sync.Mutex
	timers map[string]*time.Timer
	done   chan struct{}
}

// NewWatcher creates a watcher on dir.
func NewWatcher(dir string, ingestor *Ingestor, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		dir:      dir,
		ingestor: ingestor,
		logger:   logger,
		fsw:      fsw,
		timers:   make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}, nil
}

// Start runs the event loop until ctx is canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if strings.ToLower(filepath.Ext(event.Name)) != ".json" {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// schedule arms (or re-arms) the debounce timer for a file.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Reset(debounceInterval)
		return
	}
	w.timers[path] = time.AfterFunc(debounceInterval, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		n, err := w.ingestor.IngestFile(ctx, path)
		if err != nil {
			w.logger.Warn("drop-dir ingest failed", zap.String("file", path), zap.Error(err))
			if n == 0 {
				return
			}
		}
		w.logger.Info("drop-dir batch ingested", zap.String("file", path), zap.Int("chunks", n))
	})
}

// Stop shuts the watcher down and cancels pending debounce timers.
func (w *Watcher) Stop() error {
	close(w.done)
	w.mu.Lock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	return w.fsw.Close()
}
