package sink

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/9TreyRP/CryptoScanner/internal/model"
)

// Async hands records to a background writer so Record never blocks the
// verification path. When the buffer is full the record is dropped.
type Async struct {
	next    Recorder
	ch      chan model.ScanRecord
	done    chan struct{}
	dropped atomic.Int64
	failed  atomic.Int64

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	err       error
}

func NewAsync(next Recorder, buffer int) *Async {
	if buffer <= 0 {
		buffer = 64
	}
	a := &Async{
		next: next,
		ch:   make(chan model.ScanRecord, buffer),
		done: make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Async) Name() string { return a.next.Name() }

func (a *Async) loop() {
	defer close(a.done)
	for rec := range a.ch {
		if err := a.next.Record(context.Background(), rec); err != nil {
			a.failed.Add(1)
			log.Printf("sink %s: record %s: %v", a.next.Name(), rec.ID, err)
		}
	}
}

func (a *Async) Record(_ context.Context, rec model.ScanRecord) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.ch <- rec:
		return nil
	default:
		a.dropped.Add(1)
		return ErrFull
	}
}

// Dropped counts records rejected because the buffer was full.
func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Failed counts records the underlying recorder could not write.
func (a *Async) Failed() int64 { return a.failed.Load() }

// Close drains pending records, then closes the underlying recorder.
func (a *Async) Close() error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.ch)
		a.mu.Unlock()

		<-a.done
		a.err = a.next.Close()
	})
	return a.err
}
