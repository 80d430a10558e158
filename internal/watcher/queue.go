package watcher

import (
	"context"
	"sync"
	"time"
)

// workQueue implements Queue. At most one entry exists per tenant: a second
// Add for a queued tenant updates the entry in place, and an Add for a tenant
// that is mid-reconcile is parked in dirty until Done re-queues it.
type workQueue struct {
	mu sync.Mutex

	queue      []Request
	processing map[string]bool
	dirty      map[string]Request

	// notify carries at most one wakeup token for blocked Get calls.
	notify chan struct{}

	// stopCh is closed by Shutdown.
	stopCh chan struct{}

	shuttingDown bool
}

// NewQueue creates a reconciliation work queue.
func NewQueue() Queue {
	return &workQueue{
		processing: make(map[string]bool),
		dirty:      make(map[string]Request),
		notify:     make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
	}
}

// Add adds or updates a request in the queue.
func (q *workQueue) Add(req Request) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shuttingDown {
		return
	}

	if q.processing[req.Tenant] {
		q.dirty[req.Tenant] = req
		return
	}
	for i, queued := range q.queue {
		if queued.Tenant == req.Tenant {
			q.queue[i] = req
			return
		}
	}

	q.queue = append(q.queue, req)
	q.wake()
}

// wake hands a token to one blocked Get call, dropping it if one is already
// pending.
func (q *workQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Get retrieves the next request, blocking until one is available, the
// context is cancelled, or the queue shuts down with nothing left to drain.
func (q *workQueue) Get(ctx context.Context) (Request, bool) {
	for {
		q.mu.Lock()
		if len(q.queue) > 0 {
			req := q.queue[0]
			q.queue = q.queue[1:]
			q.processing[req.Tenant] = true
			if len(q.queue) > 0 {
				// A single token can cover several Adds; pass it on so
				// other waiters see the remaining work.
				q.wake()
			}
			q.mu.Unlock()
			return req, true
		}
		down := q.shuttingDown
		q.mu.Unlock()

		if down {
			return Request{}, false
		}

		select {
		case <-ctx.Done():
			return Request{}, false
		case <-q.stopCh:
			// Loop once more to drain anything queued before shutdown.
		case <-q.notify:
		}
	}
}

// Done marks a request as completed, re-queueing the tenant if its manifest
// changed while it was being processed.
func (q *workQueue) Done(req Request) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.processing, req.Tenant)

	if dirtyReq, ok := q.dirty[req.Tenant]; ok {
		delete(q.dirty, req.Tenant)
		q.queue = append(q.queue, dirtyReq)
		q.wake()
	}
}

// Len returns the queue length.
func (q *workQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Shutdown stops the queue. Queued requests can still be drained by Get;
// new Adds are dropped.
func (q *workQueue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.shuttingDown {
		return
	}
	q.shuttingDown = true
	close(q.stopCh)
}

// delayedQueue wraps a queue with delayed requeue support, used for retry
// backoff when a tenant runtime is unreachable.
type delayedQueue struct {
	queue      Queue
	mu         sync.Mutex
	delayedMap map[string]*time.Timer
	stopCh     chan struct{}
}

// NewDelayedQueue creates a queue that supports delayed requeuing.
func NewDelayedQueue() *delayedQueue {
	return &delayedQueue{
		queue:      NewQueue(),
		delayedMap: make(map[string]*time.Timer),
		stopCh:     make(chan struct{}),
	}
}

// Add adds a request immediately.
func (d *delayedQueue) Add(req Request) {
	d.queue.Add(req)
}

// AddAfter adds a request after a delay.
func (d *delayedQueue) AddAfter(req Request, delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Cancel any existing timer for this tenant
	if timer, ok := d.delayedMap[req.Tenant]; ok {
		timer.Stop()
	}

	d.delayedMap[req.Tenant] = time.AfterFunc(delay, func() {
		d.mu.Lock()
		delete(d.delayedMap, req.Tenant)
		d.mu.Unlock()

		select {
		case <-d.stopCh:
			return
		default:
			d.queue.Add(req)
		}
	})
}

// Get retrieves the next request.
func (d *delayedQueue) Get(ctx context.Context) (Request, bool) {
	return d.queue.Get(ctx)
}

// Done marks a request as completed.
func (d *delayedQueue) Done(req Request) {
	d.queue.Done(req)
}

// Len returns the queue length.
func (d *delayedQueue) Len() int {
	return d.queue.Len()
}

// Shutdown stops the queue and cancels pending timers.
func (d *delayedQueue) Shutdown() {
	close(d.stopCh)

	d.mu.Lock()
	for _, timer := range d.delayedMap {
		timer.Stop()
	}
	d.delayedMap = make(map[string]*time.Timer)
	d.mu.Unlock()

	d.queue.Shutdown()
}
