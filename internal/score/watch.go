package score

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/codalotl/skilleval/internal/fsutil"
)

// DefaultDebounce is how long the results directory must stay quiet before a rescore.
const DefaultDebounce = 500 * time.Millisecond

// Watcher calls OnChange after run files in a results directory are created or rewritten. Bursts of events collapse into
// one call once the directory has been quiet for Debounce.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	dir      string
	exclude  map[string]bool
	logger   *zap.Logger
	onChange func(context.Context)
	debounce time.Duration
	pending  bool
	lastSeen time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// NewWatcher watches dir. Files named in exclude (the scores sheets) never trigger a rescore.
func NewWatcher(dir string, exclude []string, logger *zap.Logger, onChange func(context.Context)) (*Watcher, error) {
	if onChange == nil {
		return nil, errors.New("onChange is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	ex := map[string]bool{}
	for _, name := range exclude {
		ex[name] = true
	}
	return &Watcher{
		watcher:  fw,
		dir:      dir,
		exclude:  ex,
		logger:   logger.With(zap.String("dir", dir)),
		onChange: onChange,
		debounce: DefaultDebounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// SetDebounce changes the quiet period. It must be called before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Start begins watching in a goroutine. It fails when the directory cannot be watched.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	w.running = true
	go w.run(ctx)
	w.logger.Info("watching for run files")
	return nil
}

// Stop ends the watch loop, waits for it to exit and releases the underlying watcher. A watcher that never started is
// just closed.
func (w *Watcher) Stop() {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("close watcher", zap.Error(err))
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounce / 5
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", zap.Error(err))
		case <-ticker.C:
			if w.pending && time.Since(w.lastSeen) >= w.debounce {
				w.pending = false
				w.onChange(ctx)
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	base := filepath.Base(event.Name)
	if w.exclude[base] || !fsutil.IsRunFile(base) {
		return
	}
	w.logger.Debug("run file changed", zap.String("file", base), zap.String("op", event.Op.String()))
	w.pending = true
	w.lastSeen = time.Now()
}
