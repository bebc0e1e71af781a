package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/harrisonrobin/tasklink/pkg/store"
)

// Dispatcher runs a Notifier off the write path. Its Hook can be registered
// with store.Store.OnTaskWrite.
type Dispatcher struct {
	log      *slog.Logger
	notifier *Notifier
	queue    chan store.TaskChange

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(log *slog.Logger, notifier *Notifier, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	d := &Dispatcher{
		log:      log,
		notifier: notifier,
		queue:    make(chan store.TaskChange, buffer),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Hook queues change for delivery. Changes that cannot trigger a message are
// dropped here; a full queue drops the change with a warning.
func (d *Dispatcher) Hook(_ context.Context, change store.TaskChange) {
	if !assigneeChanged(change.Before, change.After) {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("notification dispatcher closed, dropping", "task_id", change.TaskID)
		return
	}
	select {
	case d.queue <- change:
	default:
		d.log.Warn("notification queue full, dropping", "task_id", change.TaskID)
	}
}

// Close stops accepting changes and waits for queued ones to be handled.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for change := range d.queue {
		d.notifier.Handle(context.Background(), change)
	}
}
