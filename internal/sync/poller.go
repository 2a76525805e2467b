// Package sync announces history rows written by other devices sharing the
// same database.
package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/berrythewa/clipsync/internal/metrics"
	"github.com/berrythewa/clipsync/internal/notify"
	"github.com/berrythewa/clipsync/internal/types"
	"go.uber.org/zap"
)

const (
	DefaultInterval = time.Second

	eventSource = "sync"
)

// Source is the read side of the repository the poller needs
type Source interface {
	GetLatestID(ctx context.Context) (int64, error)
	GetNewItemsSince(ctx context.Context, cursor int64, excludeDevice string) ([]*types.ClipboardItem, error)
}

// CursorStore persists the cursor between runs
type CursorStore interface {
	LoadCursor(key string) (int64, error)
	SaveCursor(key string, cursor int64) error
}

// PollerConfig holds the poller collaborators
type PollerConfig struct {
	Source    Source
	Cursors   CursorStore
	CursorKey string
	Publisher notify.Publisher
	DeviceID  string
	Interval  time.Duration
	Logger    *zap.Logger
}

// PollerStatus is a snapshot of the poller state
type PollerStatus struct {
	Running   bool      `json:"running"`
	CursorKey string    `json:"cursor_key"`
	Cursor    int64     `json:"cursor"`
	LastCheck time.Time `json:"last_check,omitempty"`
	LastBatch int       `json:"last_batch"`
	Received  int       `json:"received"`
	LastError string    `json:"last_error,omitempty"`
}

// Poller periodically asks the repository for rows from other devices
type Poller struct {
	source    Source
	cursors   CursorStore
	key       string
	publisher notify.Publisher
	deviceID  string
	interval  time.Duration
	logger    *zap.Logger

	// guards cursor, primed and status
	mu     sync.Mutex
	cursor int64
	primed bool
	status PollerStatus

	// one check at a time
	checkMu sync.Mutex

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewPoller creates a stopped poller
func NewPoller(config PollerConfig) *Poller {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	publisher := config.Publisher
	if publisher == nil {
		publisher = notify.NewNoOpPublisher(logger)
	}
	interval := config.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Poller{
		source:    config.Source,
		cursors:   config.Cursors,
		key:       config.CursorKey,
		publisher: publisher,
		deviceID:  config.DeviceID,
		interval:  interval,
		logger:    logger.With(zap.String("component", "sync-poller")),
		status:    PollerStatus{CursorKey: config.CursorKey},
	}
}

// Start initializes the cursor and begins polling. The cursor starts at the
// larger of the persisted value and the newest id, so history that existed
// before this run is not announced again.
func (p *Poller) Start(ctx context.Context) error {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.running {
		return nil
	}
	if p.source == nil {
		return fmt.Errorf("sync poller needs a source")
	}

	if err := p.prime(ctx); err != nil {
		return err
	}

	p.stopCh = make(chan struct{})
	p.running = true
	p.setRunning(true)

	p.wg.Add(1)
	go p.loop(p.stopCh)

	p.logger.Info("Sync poller started",
		zap.Duration("interval", p.interval),
		zap.Int64("cursor", p.Cursor()))
	return nil
}

// Stop ends polling after any in-flight check completes
func (p *Poller) Stop() {
	p.runMu.Lock()
	if !p.running {
		p.runMu.Unlock()
		return
	}
	close(p.stopCh)
	p.running = false
	p.runMu.Unlock()

	p.wg.Wait()
	p.setRunning(false)
	p.logger.Info("Sync poller stopped")
}

// Running reports whether the poller is active
func (p *Poller) Running() bool {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.running
}

// Cursor returns the current cursor
func (p *Poller) Cursor() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Status returns a snapshot of the poller state
func (p *Poller) Status() PollerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.status
	s.Cursor = p.cursor
	return s
}

// ForceSync runs a check now, outside the timer, and returns the batch
func (p *Poller) ForceSync(ctx context.Context) ([]*types.ClipboardItem, error) {
	p.mu.Lock()
	primed := p.primed
	p.mu.Unlock()
	if !primed {
		if err := p.prime(ctx); err != nil {
			return nil, err
		}
	}
	return p.check(ctx)
}

// Reset zeroes the cursor so the next check replays all history from other
// devices
func (p *Poller) Reset() error {
	p.checkMu.Lock()
	defer p.checkMu.Unlock()

	p.mu.Lock()
	p.cursor = 0
	p.primed = true
	p.mu.Unlock()

	metrics.Get().SyncCursor.Set(0)
	p.logger.Info("Sync cursor reset")
	return p.persist(0)
}

func (p *Poller) prime(ctx context.Context) error {
	p.checkMu.Lock()
	defer p.checkMu.Unlock()

	var persisted int64
	if p.cursors != nil {
		c, err := p.cursors.LoadCursor(p.key)
		if err != nil {
			p.logger.Warn("Failed to load persisted cursor", zap.Error(err))
		} else {
			persisted = c
		}
	}

	latest, err := p.source.GetLatestID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get latest id: %w", err)
	}

	cursor := max(persisted, latest)

	p.mu.Lock()
	p.cursor = cursor
	p.primed = true
	p.mu.Unlock()

	metrics.Get().SyncCursor.Set(float64(cursor))
	if cursor != persisted {
		if err := p.persist(cursor); err != nil {
			p.logger.Warn("Failed to persist cursor", zap.Error(err))
		}
	}
	return nil
}

func (p *Poller) loop(stop <-chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// errors are already logged and published
			_, _ = p.check(context.Background())
		}
	}
}

func (p *Poller) check(ctx context.Context) ([]*types.ClipboardItem, error) {
	p.checkMu.Lock()
	defer p.checkMu.Unlock()

	cursor := p.Cursor()
	items, err := p.source.GetNewItemsSince(ctx, cursor, p.deviceID)

	p.mu.Lock()
	p.status.LastCheck = time.Now()
	if err != nil {
		p.status.LastError = err.Error()
	} else {
		p.status.LastError = ""
		p.status.LastBatch = len(items)
		p.status.Received += len(items)
	}
	p.mu.Unlock()

	if err != nil {
		p.logger.Error("Sync check failed", zap.Int64("cursor", cursor), zap.Error(err))
		metrics.Get().SyncErrors.Inc()
		p.publisher.Publish(notify.Failure(eventSource, err))
		return nil, fmt.Errorf("failed to check for new items: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}

	next := cursor
	for _, item := range items {
		next = max(next, item.ID)
	}

	p.mu.Lock()
	p.cursor = next
	p.mu.Unlock()

	if err := p.persist(next); err != nil {
		p.logger.Warn("Failed to persist cursor", zap.Int64("cursor", next), zap.Error(err))
	}

	m := metrics.Get()
	m.SyncItemsReceived.Add(float64(len(items)))
	m.SyncCursor.Set(float64(next))

	p.logger.Info("New items from other devices",
		zap.Int("count", len(items)),
		zap.Int64("cursor", next))
	p.publisher.Publish(notify.NewItems(eventSource, items))
	return items, nil
}

func (p *Poller) persist(cursor int64) error {
	if p.cursors == nil {
		return nil
	}
	return p.cursors.SaveCursor(p.key, cursor)
}

func (p *Poller) setRunning(running bool) {
	p.mu.Lock()
	p.status.Running = running
	p.mu.Unlock()
}
