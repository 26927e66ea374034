package visits

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DispatcherConfig holds configuration for the Dispatcher.
type DispatcherConfig struct {
	// Store persists the visits.
	Store Store

	// Logger for dispatcher operations.
	Logger zerolog.Logger

	// Workers is the number of concurrent savers.
	// Default: 2
	Workers int

	// QueueSize bounds the number of pending visits.
	// Default: 256
	QueueSize int

	// SaveTimeout bounds each Store.Save call.
	// Default: 5 seconds
	SaveTimeout time.Duration
}

// Dispatcher records visits in the background.
// Record never blocks; visits are dropped when the queue is full.
type Dispatcher struct {
	store       Store
	logger      zerolog.Logger
	saveTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Visit
	wg     sync.WaitGroup

	saved   atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// NewDispatcher creates a dispatcher and starts its workers.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}

	saveTimeout := cfg.SaveTimeout
	if saveTimeout <= 0 {
		saveTimeout = 5 * time.Second
	}

	d := &Dispatcher{
		store:       cfg.Store,
		logger:      cfg.Logger,
		saveTimeout: saveTimeout,
		queue:       make(chan Visit, queueSize),
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.work()
		}()
	}

	return d
}

// Record queues a visit for saving.
func (d *Dispatcher) Record(v Visit) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Debug().Str("system_id", v.SystemID).Msg("dispatcher closed, visit discarded")
		return
	}

	select {
	case d.queue <- v:
	default:
		d.dropped.Add(1)
		d.logger.Warn().
			Str("system_id", v.SystemID).
			Int("queue_size", cap(d.queue)).
			Msg("visit queue full, dropping visit")
	}
}

// Close stops accepting visits and waits for queued visits to be saved.
// It returns ctx.Err() if ctx expires before the queue is drained.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info().
			Int64("saved", d.saved.Load()).
			Int64("failed", d.failed.Load()).
			Int64("dropped", d.dropped.Load()).
			Msg("visit dispatcher drained")
		return nil
	case <-ctx.Done():
		d.logger.Warn().Int("pending", len(d.queue)).Msg("visit dispatcher close timed out")
		return ctx.Err()
	}
}

// Stats returns the saved, failed and dropped visit counts.
func (d *Dispatcher) Stats() (saved, failed, dropped int64) {
	return d.saved.Load(), d.failed.Load(), d.dropped.Load()
}

func (d *Dispatcher) work() {
	for v := range d.queue {
		d.save(v)
	}
}

func (d *Dispatcher) save(v Visit) {
	ctx, cancel := context.WithTimeout(context.Background(), d.saveTimeout)
	defer cancel()

	if err := d.store.Save(ctx, v); err != nil {
		d.failed.Add(1)
		d.logger.Error().
			Err(err).
			Str("system_id", v.SystemID).
			Msg("failed to save visit")
		return
	}

	d.saved.Add(1)
}
