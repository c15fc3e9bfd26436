package api

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"breakdown-api/domain"
)

// DispatcherConfig sizes the event worker pool.
type DispatcherConfig struct {
	Workers        int
	Buffer         int
	Timeout        time.Duration
	HandoffTimeout time.Duration
}

// DefaultDispatcherConfig returns the settings used when none are configured.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Workers:        4,
		Buffer:         1024,
		Timeout:        30 * time.Second,
		HandoffTimeout: 15 * time.Millisecond,
	}
}

// EventDispatcher publishes task events off the request path. Delivery is
// best effort: failures are logged and dropped. A nil dispatcher discards
// every event.
type EventDispatcher struct {
	pub     EventPublisher
	log     *log.Logger
	jobs    chan []domain.Event
	timeout time.Duration
	handoff time.Duration
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool
}

// NewEventDispatcher starts cfg.Workers goroutines publishing through pub.
func NewEventDispatcher(pub EventPublisher, logger *log.Logger, cfg DispatcherConfig) *EventDispatcher {
	if pub == nil {
		panic("api.NewEventDispatcher: publisher is nil")
	}
	if logger == nil {
		panic("Logger is not initialized")
	}
	def := DefaultDispatcherConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = def.Buffer
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	d := &EventDispatcher{
		pub:     pub,
		log:     logger,
		jobs:    make(chan []domain.Event, cfg.Buffer),
		timeout: cfg.Timeout,
		handoff: cfg.HandoffTimeout,
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	logger.Infof("event dispatcher started, workers: %d, buffer: %d, timeout: %v, handoff: %v", cfg.Workers, cfg.Buffer, cfg.Timeout, cfg.HandoffTimeout)
	return d
}

// Dispatch stamps the events and hands them to a worker. When the buffer
// stays full past the handoff timeout the events are published inline.
func (d *EventDispatcher) Dispatch(events ...domain.Event) {
	if d == nil || len(events) == 0 {
		return
	}
	for i := range events {
		if events[i].Timestamp == 0 {
			events[i].Timestamp = nextTimestamp()
		}
	}
	if d.tryEnqueue(events) {
		return
	}
	d.log.Warn("event buffer saturated; publishing inline")
	d.publish(-1, events)
}

// Close stops accepting events and waits for queued ones to be published.
func (d *EventDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeMu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.closeMu.Unlock()
	d.wg.Wait()
}

func (d *EventDispatcher) worker(id int) {
	defer d.wg.Done()
	for events := range d.jobs {
		d.publish(id, events)
	}
}

func (d *EventDispatcher) publish(worker int, events []domain.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.pub.Publish(ctx, events...); err != nil {
		d.log.WithFields(log.Fields{
			"worker": worker,
			"count":  len(events),
			"type":   events[0].Type,
			"task":   events[0].TaskID,
		}).Errorf("event publish failed: %v", err)
	}
}

func (d *EventDispatcher) tryEnqueue(events []domain.Event) bool {
	if ok, closed := trySendNonBlocking(d.jobs, events); closed {
		return false
	} else if ok {
		return true
	}

	if d.handoff <= 0 {
		return false
	}

	timer := time.NewTimer(d.handoff)
	defer timer.Stop()

	ok, closed := sendWithTimer(d.jobs, events, timer.C)
	if closed {
		return false
	}
	return ok
}

func trySendNonBlocking(ch chan []domain.Event, events []domain.Event) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- events:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan []domain.Event, events []domain.Event, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- events:
		return true, false
	case <-timer:
		return false, false
	}
}

var lastTimestamp int64

func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return now
		}
	}
}
