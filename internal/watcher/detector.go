package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"modsync/pkg/logging"
)

// Detector watches the manifest directory and reports which tenant's
// manifest changed, debounced so editors that write in several steps
// trigger one reconcile instead of five.
type Detector struct {
	mu sync.Mutex

	// dir is the manifest directory being watched
	dir string

	// watcher is the fsnotify watcher instance
	watcher *fsnotify.Watcher

	// debounceInterval is how long to wait for additional changes
	debounceInterval time.Duration

	// pending tracks debounce timers per tenant
	pending map[string]*time.Timer

	// stopCh signals shutdown
	stopCh chan struct{}

	// running indicates if the detector is active
	running bool
}

// NewDetector creates a manifest change detector for the given directory.
func NewDetector(dir string, debounceInterval time.Duration) *Detector {
	if debounceInterval == 0 {
		debounceInterval = 500 * time.Millisecond
	}
	return &Detector{
		dir:              dir,
		debounceInterval: debounceInterval,
		pending:          make(map[string]*time.Timer),
		stopCh:           make(chan struct{}),
	}
}

// Start begins watching. Changed tenant names are sent to the tenants
// channel until Stop is called or the context is cancelled.
func (d *Detector) Start(ctx context.Context, tenants chan<- string) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.mu.Unlock()
		return err
	}
	if err := watcher.Add(d.dir); err != nil {
		watcher.Close()
		d.mu.Unlock()
		return err
	}

	d.watcher = watcher
	d.running = true
	d.stopCh = make(chan struct{})
	d.mu.Unlock()

	go d.watchLoop(ctx, tenants)

	logging.Info("Watcher", "Watching manifest directory %s", d.dir)
	return nil
}

// watchLoop consumes fsnotify events until shutdown.
func (d *Detector) watchLoop(ctx context.Context, tenants chan<- string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			tenant := manifestTenant(event.Name)
			if tenant == "" {
				continue
			}
			d.debounce(ctx, tenant, tenants)
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("Watcher", "Manifest watch error: %v", err)
		}
	}
}

// debounce schedules delivery of a tenant change, resetting the timer if
// another change for the same tenant arrives first.
func (d *Detector) debounce(ctx context.Context, tenant string, tenants chan<- string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, ok := d.pending[tenant]; ok {
		timer.Stop()
	}
	d.pending[tenant] = time.AfterFunc(d.debounceInterval, func() {
		d.mu.Lock()
		delete(d.pending, tenant)
		d.mu.Unlock()

		select {
		case tenants <- tenant:
		case <-ctx.Done():
		case <-d.stopCh:
		}
	})
}

// Stop gracefully stops the detector.
func (d *Detector) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}
	d.running = false
	close(d.stopCh)

	for tenant, timer := range d.pending {
		timer.Stop()
		delete(d.pending, tenant)
	}
	return d.watcher.Close()
}
