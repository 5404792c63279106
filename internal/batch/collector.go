// Package batch groups bursts of records into debounced batches.
package batch

import (
	"log/slog"
	"sync"
	"time"

	"github.com/amishk599/jobtap/internal/model"
)

// DefaultDelay is the quiescence window before a batch is emitted.
const DefaultDelay = 600 * time.Millisecond

// Sink receives each completed batch.
type Sink func(records []model.JobRecord)

// Collector accumulates records and emits them as one batch once no new
// record has arrived for the configured delay. Records keep arrival order.
type Collector struct {
	mu      sync.Mutex
	pending []model.JobRecord
	timer   *time.Timer
	gen     uint64
	closed  bool

	delay  time.Duration
	sink   Sink
	logger *slog.Logger
}

// NewCollector returns a Collector that emits to sink. delay <= 0 means
// DefaultDelay.
func NewCollector(delay time.Duration, sink Sink, logger *slog.Logger) *Collector {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Collector{delay: delay, sink: sink, logger: logger}
}

// Add appends rec and restarts the quiescence timer.
func (c *Collector) Add(rec model.JobRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.pending = append(c.pending, rec)
	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	gen := c.gen
	c.timer = time.AfterFunc(c.delay, func() { c.fire(gen) })
}

// Pending returns the number of records waiting for the timer.
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Collector) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		// superseded by a later Add
		c.mu.Unlock()
		return
	}
	records := c.take()
	c.mu.Unlock()
	c.emit(records)
}

// take must be called with mu held.
func (c *Collector) take() []model.JobRecord {
	records := c.pending
	c.pending = nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
	return records
}

func (c *Collector) emit(records []model.JobRecord) {
	if len(records) == 0 {
		return
	}
	c.logger.Debug("emitting batch", "batch_size", len(records))
	c.sink(records)
}

// Flush emits whatever is pending right away.
func (c *Collector) Flush() {
	c.mu.Lock()
	records := c.take()
	c.mu.Unlock()
	c.emit(records)
}

// Discard drops pending records without emitting them.
func (c *Collector) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.take()
}

// Close flushes pending records and rejects further adds.
func (c *Collector) Close() {
	c.mu.Lock()
	c.closed = true
	records := c.take()
	c.mu.Unlock()
	c.emit(records)
}
