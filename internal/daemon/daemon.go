// Package daemon wires the history components into a long-running process
// and manages that process from the CLI.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/berrythewa/clipsync/internal/clipboard"
	"github.com/berrythewa/clipsync/internal/config"
	"github.com/berrythewa/clipsync/internal/ipc"
	"github.com/berrythewa/clipsync/internal/metrics"
	"github.com/berrythewa/clipsync/internal/notify"
	"github.com/berrythewa/clipsync/internal/platform"
	"github.com/berrythewa/clipsync/internal/repository"
	"github.com/berrythewa/clipsync/internal/state"
	"github.com/berrythewa/clipsync/internal/storage"
	syncpoller "github.com/berrythewa/clipsync/internal/sync"
	"github.com/berrythewa/clipsync/internal/types"
	"go.uber.org/zap"
)

const (
	eventHistory     = 100
	subscriberBuffer = 64
	shutdownTimeout  = 5 * time.Second
)

// Options are the collaborators a caller may substitute
type Options struct {
	Logger *zap.Logger

	// Clipboard defaults to the platform provider
	Clipboard platform.Clipboard
}

// Status is returned by the status IPC command
type Status struct {
	PID        int                     `json:"pid"`
	DeviceID   string                  `json:"device_id"`
	DeviceName string                  `json:"device_name"`
	Storage    string                  `json:"storage"`
	FullText   bool                    `json:"full_text"`
	Items      int                     `json:"items"`
	StartedAt  time.Time               `json:"started_at"`
	Watcher    clipboard.WatcherStatus `json:"watcher"`
	Sync       syncpoller.PollerStatus `json:"sync"`
	Watchers   int                     `json:"watch_streams"`
}

// Daemon owns every component for the lifetime of Run
type Daemon struct {
	cfg    *config.Config
	logger *zap.Logger
	clip   platform.Clipboard

	backend storage.Backend
	repo    *repository.Repository
	state   *state.Store
	hub     *notify.Hub
	watcher *clipboard.Watcher
	poller  *syncpoller.Poller
	ipc     *ipc.Server
	metrics *metrics.Server

	startedAt time.Time
}

// New creates a daemon for cfg. Nothing is opened until Run.
func New(cfg *config.Config, opts Options) *Daemon {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Daemon{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "daemon")),
		clip:   opts.Clipboard,
	}
}

// Run opens storage, starts the watcher, the sync poller and the IPC server,
// and blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	d.startedAt = time.Now()
	root := d.logger

	if err := d.open(ctx); err != nil {
		d.close()
		return err
	}
	defer d.close()

	if err := d.repo.TouchDevice(ctx, d.cfg.DeviceID, d.cfg.DeviceName); err != nil {
		root.Warn("Failed to register device", zap.Error(err))
	}

	if d.cfg.Metrics.ListenAddr != "" {
		d.metrics = metrics.NewServer(d.cfg.Metrics.ListenAddr, root)
		if err := d.metrics.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	ln, err := d.ipc.Listen()
	if err != nil {
		return err
	}

	if d.cfg.Watcher.Enabled {
		if err := d.watcher.Start(); err != nil {
			ln.Close()
			return fmt.Errorf("failed to start clipboard watcher: %w", err)
		}
	}
	if d.cfg.Sync.Enabled {
		if err := d.poller.Start(ctx); err != nil {
			d.watcher.Stop()
			ln.Close()
			return fmt.Errorf("failed to start sync poller: %w", err)
		}
	}

	if d.cfg.PIDFile != "" {
		if err := WritePIDFile(d.cfg.PIDFile, os.Getpid()); err != nil {
			root.Warn("Failed to write pid file", zap.Error(err))
		} else {
			defer RemovePIDFile(d.cfg.PIDFile)
		}
	}

	root.Info("Daemon running",
		zap.Int("pid", os.Getpid()),
		zap.String("device_id", d.cfg.DeviceID),
		zap.String("storage", d.backend.Target()))

	serveErr := d.ipc.Serve(ctx, ln)

	root.Info("Daemon shutting down")
	d.watcher.Stop()
	d.poller.Stop()
	return serveErr
}

func (d *Daemon) open(ctx context.Context) error {
	opts := d.cfg.StorageOptions()
	opts.Logger = d.logger

	backend, err := storage.Open(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	d.backend = backend
	d.repo = repository.New(repository.Config{
		Backend:   backend,
		OpTimeout: d.cfg.OpTimeout(),
		Logger:    d.logger,
	})

	st, err := state.Open(state.StoreConfig{Path: d.cfg.StatePath, Logger: d.logger})
	if err != nil {
		return err
	}
	d.state = st

	d.hub = notify.NewHub(eventHistory, d.logger)

	clip := d.clip
	if clip == nil {
		clip = platform.NewClipboard(d.logger)
	}

	d.watcher = clipboard.NewWatcher(clipboard.WatcherConfig{
		Clipboard:     clip,
		Store:         d.repo,
		Publisher:     d.hub,
		DeviceID:      d.cfg.DeviceID,
		DeviceName:    d.cfg.DeviceName,
		PollInterval:  d.cfg.WatcherInterval(),
		MaxItems:      d.cfg.History.MaxItems,
		ThumbnailSize: d.cfg.Watcher.ThumbnailSize,
		Logger:        d.logger,
	})

	d.poller = syncpoller.NewPoller(syncpoller.PollerConfig{
		Source:    d.repo,
		Cursors:   st,
		CursorKey: backend.Target(),
		Publisher: d.hub,
		DeviceID:  d.cfg.DeviceID,
		Interval:  d.cfg.SyncInterval(),
		Logger:    d.logger,
	})

	d.ipc = ipc.NewServer(d.cfg.IPC.SocketPath, d.logger)
	d.registerHandlers()
	return nil
}

func (d *Daemon) close() {
	if d.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := d.metrics.Stop(ctx); err != nil {
			d.logger.Warn("Failed to stop metrics server", zap.Error(err))
		}
		cancel()
	}
	if d.state != nil {
		if err := d.state.Close(); err != nil {
			d.logger.Warn("Failed to close state store", zap.Error(err))
		}
	}
	if d.backend != nil {
		if err := d.backend.Close(); err != nil {
			d.logger.Warn("Failed to close storage", zap.Error(err))
		}
	}
}

func (d *Daemon) registerHandlers() {
	d.ipc.Handle(ipc.CmdStatus, d.handleStatus)
	d.ipc.Handle(ipc.CmdCopy, d.handleCopy)
	d.ipc.Handle(ipc.CmdSyncForce, d.handleSyncForce)
	d.ipc.Handle(ipc.CmdSyncReset, d.handleSyncReset)
	d.ipc.Handle(ipc.CmdSyncStatus, func(context.Context, *ipc.Request) *ipc.Response {
		return ipc.OK(d.poller.Status())
	})
	d.ipc.HandleStream(ipc.CmdWatch, d.streamEvents)
}

func (d *Daemon) handleStatus(ctx context.Context, _ *ipc.Request) *ipc.Response {
	status := Status{
		PID:        os.Getpid(),
		DeviceID:   d.cfg.DeviceID,
		DeviceName: d.cfg.DeviceName,
		Storage:    d.backend.Target(),
		FullText:   d.backend.Dialect().FullText(),
		StartedAt:  d.startedAt,
		Watcher:    d.watcher.Status(),
		Sync:       d.poller.Status(),
		Watchers:   d.hub.Subscribers(),
	}
	count, err := d.repo.CountItems(ctx)
	if err != nil {
		return ipc.Errorf("failed to count items: %v", err)
	}
	status.Items = count
	return ipc.OK(status)
}

func (d *Daemon) handleCopy(ctx context.Context, req *ipc.Request) *ipc.Response {
	id, err := req.Int64Arg("id")
	if err != nil {
		return ipc.Errorf("%v", err)
	}
	item, err := d.repo.GetItemByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return ipc.Errorf("item %d not found", id)
	}
	if err != nil {
		return ipc.Errorf("failed to load item %d: %v", id, err)
	}
	if err := d.watcher.CopyToClipboard(ctx, item); err != nil {
		return ipc.Errorf("failed to copy item %d: %v", id, err)
	}
	return ipc.OK(withoutImage(item))
}

func (d *Daemon) handleSyncForce(ctx context.Context, _ *ipc.Request) *ipc.Response {
	items, err := d.poller.ForceSync(ctx)
	if err != nil {
		return ipc.Errorf("%v", err)
	}
	if items == nil {
		items = []*types.ClipboardItem{}
	}
	return ipc.OK(items)
}

func (d *Daemon) handleSyncReset(context.Context, *ipc.Request) *ipc.Response {
	if err := d.poller.Reset(); err != nil {
		return ipc.Errorf("failed to reset cursor: %v", err)
	}
	return ipc.OK(d.poller.Status())
}

// streamEvents forwards hub events until the client disconnects
func (d *Daemon) streamEvents(ctx context.Context, _ *ipc.Request, send func(any) error) error {
	events, cancel := d.hub.Subscribe(subscriberBuffer)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if err := send(slimEvent(e)); err != nil {
				return err
			}
		}
	}
}

// slimEvent drops image bytes; clients fetch them by id when needed
func slimEvent(e notify.Event) notify.Event {
	e.Item = withoutImage(e.Item)
	if len(e.Items) > 0 {
		items := make([]*types.ClipboardItem, len(e.Items))
		for i, it := range e.Items {
			items[i] = withoutImage(it)
		}
		e.Items = items
	}
	return e
}

func withoutImage(item *types.ClipboardItem) *types.ClipboardItem {
	if item == nil || item.ImageData == nil {
		return item
	}
	cp := *item
	cp.ImageData = nil
	return &cp
}
