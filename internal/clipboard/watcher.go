// Package clipboard watches the OS clipboard and records new content in the
// history repository.
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/berrythewa/clipsync/internal/metrics"
	"github.com/berrythewa/clipsync/internal/notify"
	"github.com/berrythewa/clipsync/internal/platform"
	"github.com/berrythewa/clipsync/internal/storage"
	"github.com/berrythewa/clipsync/internal/types"
	"github.com/berrythewa/clipsync/pkg/utils"
	"go.uber.org/zap"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultMaxItems     = 10000

	eventSource = "watcher"
)

// Store is the part of the repository the watcher writes through
type Store interface {
	GetByHash(ctx context.Context, hash string) (*types.ClipboardItem, error)
	GetItemByID(ctx context.Context, id int64) (*types.ClipboardItem, error)
	AddItem(ctx context.Context, item *types.ClipboardItem) (int64, error)
	CleanupOldItems(ctx context.Context, maxItems int) (int, error)
}

// WatcherConfig holds the watcher collaborators and tuning
type WatcherConfig struct {
	Clipboard     platform.Clipboard
	Store         Store
	Publisher     notify.Publisher
	DeviceID      string
	DeviceName    string
	PollInterval  time.Duration
	MaxItems      int
	ThumbnailSize int
	Logger        *zap.Logger
}

// WatcherStatus is a snapshot of the watcher state
type WatcherStatus struct {
	Running     bool      `json:"running"`
	Captured    int       `json:"captured"`
	ErrorCount  int       `json:"error_count"`
	LastCapture time.Time `json:"last_capture,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Watcher polls the clipboard and inserts new content.
// Stopped watchers can be started again.
type Watcher struct {
	clipboard platform.Clipboard
	store     Store
	publisher notify.Publisher
	builder   itemBuilder
	interval  time.Duration
	maxItems  int
	logger    *zap.Logger

	// last-seen markers
	markMu        sync.Mutex
	lastText      string
	lastImageHash string

	// serializes capture steps from the ticker and manual callers
	captureMu sync.Mutex

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	statMu sync.Mutex
	status WatcherStatus
}

// NewWatcher creates a stopped watcher
func NewWatcher(config WatcherConfig) *Watcher {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	publisher := config.Publisher
	if publisher == nil {
		publisher = notify.NewNoOpPublisher(logger)
	}
	interval := config.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	maxItems := config.MaxItems
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	thumb := config.ThumbnailSize
	if thumb <= 0 {
		thumb = DefaultThumbnailSize
	}

	return &Watcher{
		clipboard: config.Clipboard,
		store:     config.Store,
		publisher: publisher,
		builder: itemBuilder{
			deviceID:      config.DeviceID,
			deviceName:    config.DeviceName,
			thumbnailSize: thumb,
			now:           func() int64 { return time.Now().UnixMilli() },
		},
		interval: interval,
		maxItems: maxItems,
		logger:   logger.With(zap.String("component", "clipboard-watcher")),
	}
}

// Start primes the last-seen markers with the current clipboard content, so
// whatever is on the clipboard at launch is not captured, and begins polling.
func (w *Watcher) Start() error {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	if w.running {
		return nil
	}
	if w.clipboard == nil || w.store == nil {
		return fmt.Errorf("watcher needs a clipboard and a store")
	}

	if content, err := w.clipboard.Read(); err != nil {
		w.logger.Warn("Failed to read initial clipboard content", zap.Error(err))
	} else if content != nil {
		w.remember(content)
	}

	w.stopCh = make(chan struct{})
	w.running = true
	w.setRunning(true)

	w.wg.Add(1)
	go w.loop(w.stopCh)

	w.logger.Info("Clipboard watcher started", zap.Duration("interval", w.interval))
	return nil
}

// Stop ends polling. A poll already in progress runs to completion first.
func (w *Watcher) Stop() {
	w.runMu.Lock()
	if !w.running {
		w.runMu.Unlock()
		return
	}
	close(w.stopCh)
	w.running = false
	w.runMu.Unlock()

	w.wg.Wait()
	w.setRunning(false)
	w.logger.Info("Clipboard watcher stopped")
}

// Running reports whether the watcher is polling
func (w *Watcher) Running() bool {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	return w.running
}

// Status returns a snapshot of the watcher counters
func (w *Watcher) Status() WatcherStatus {
	w.statMu.Lock()
	defer w.statMu.Unlock()
	return w.status
}

func (w *Watcher) loop(stop <-chan struct{}) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

// poll is one tick. Failures stop here so the next tick still runs.
func (w *Watcher) poll() {
	content, err := w.clipboard.Read()
	if err != nil {
		w.logger.Debug("Clipboard read failed", zap.Error(err))
		metrics.Get().ItemsSkipped.WithLabelValues("read_error").Inc()
		return
	}

	if _, err := w.Capture(context.Background(), content); err != nil {
		w.logger.Error("Failed to record clipboard content", zap.Error(err))
		metrics.Get().WatcherErrors.Inc()
		w.recordError(err)
		w.publisher.Publish(notify.Failure(eventSource, err))
	}
}

// Capture runs the dedup and insert steps for content. It returns the new
// item, or nil when the content was skipped.
func (w *Watcher) Capture(ctx context.Context, content *types.ClipboardContent) (*types.ClipboardItem, error) {
	w.captureMu.Lock()
	defer w.captureMu.Unlock()

	if content.Empty() {
		return nil, nil
	}
	if !content.Type.Valid() {
		w.skip("unsupported")
		return nil, nil
	}
	if !w.remember(content) {
		return nil, nil
	}

	hash := utils.ContentHash(content.Data)

	_, err := w.store.GetByHash(ctx, hash)
	switch {
	case err == nil:
		w.logger.Debug("Content already in history", zap.String("hash", hash))
		w.skip("duplicate")
		return nil, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("failed to check for duplicate: %w", err)
	}

	item, thumbErr := w.builder.build(content, hash)
	if thumbErr != nil {
		w.logger.Warn("Thumbnail generation failed, saving image without one", zap.Error(thumbErr))
	}

	if _, err := w.store.AddItem(ctx, item); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			// another writer inserted the same content since the check
			w.logger.Debug("Content inserted concurrently", zap.String("hash", hash))
			w.skip("duplicate")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to save clipboard item: %w", err)
	}

	w.logger.Info("New clipboard item",
		zap.Int64("id", item.ID),
		zap.String("type", string(item.ContentType)),
		zap.String("preview", item.Preview))
	metrics.Get().ItemsCaptured.WithLabelValues(string(item.ContentType)).Inc()
	w.recordCapture()

	if _, err := w.store.CleanupOldItems(ctx, w.maxItems); err != nil {
		w.publisher.Publish(notify.ItemAdded(eventSource, item))
		return item, fmt.Errorf("failed to apply retention: %w", err)
	}

	w.publisher.Publish(notify.ItemAdded(eventSource, item))
	return item, nil
}

// CopyToClipboard writes item back to the OS clipboard. The last-seen
// markers are updated first so the next poll does not capture it again.
func (w *Watcher) CopyToClipboard(ctx context.Context, item *types.ClipboardItem) error {
	if item == nil {
		return fmt.Errorf("no item to copy")
	}

	content := &types.ClipboardContent{Type: item.ContentType}
	switch item.ContentType {
	case types.TypeText:
		content.Data = []byte(item.TextContent)
	case types.TypeImage:
		data := item.ImageData
		if len(data) == 0 {
			full, err := w.store.GetItemByID(ctx, item.ID)
			if err != nil {
				return fmt.Errorf("failed to load image %d: %w", item.ID, err)
			}
			data = full.ImageData
		}
		content.Data = data
	default:
		return fmt.Errorf("unsupported content type %q", item.ContentType)
	}

	w.remember(content)
	if err := w.clipboard.Write(content); err != nil {
		return err
	}

	w.logger.Debug("Item copied to clipboard", zap.Int64("id", item.ID))
	return nil
}

// remember updates the marker for content and reports whether it changed
func (w *Watcher) remember(content *types.ClipboardContent) bool {
	w.markMu.Lock()
	defer w.markMu.Unlock()

	switch content.Type {
	case types.TypeText:
		text := string(content.Data)
		if text == w.lastText {
			return false
		}
		w.lastText = text
	case types.TypeImage:
		hash := utils.ContentHash(content.Data)
		if hash == w.lastImageHash {
			return false
		}
		w.lastImageHash = hash
	default:
		return false
	}
	return true
}

func (w *Watcher) skip(reason string) {
	metrics.Get().ItemsSkipped.WithLabelValues(reason).Inc()
}

func (w *Watcher) setRunning(running bool) {
	w.statMu.Lock()
	w.status.Running = running
	w.statMu.Unlock()
}

func (w *Watcher) recordCapture() {
	w.statMu.Lock()
	w.status.Captured++
	w.status.LastCapture = time.Now()
	w.statMu.Unlock()
}

func (w *Watcher) recordError(err error) {
	w.statMu.Lock()
	w.status.ErrorCount++
	w.status.LastError = err.Error()
	w.statMu.Unlock()
}
