package telemetry

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

type record struct {
	deviceID       uint32
	timestampNanos uint64
	value          float64
}

// AsyncWriter decouples metric producers from the sink. Records go through a
// bounded queue drained by one worker goroutine, so a slow sink can never
// apply backpressure onto simulated time. A full queue drops the record.
type AsyncWriter struct {
	sink Sink
	ch   chan record
	done chan struct{}

	closeOnce sync.Once
	dropped   atomic.Uint64

	log *logrus.Entry
}

// NewAsyncWriter starts a writer with the given queue depth draining into
// sink. A non-positive depth selects a default of 256.
func NewAsyncWriter(sink Sink, depth int) *AsyncWriter {
	if depth <= 0 {
		depth = 256
	}

	w := &AsyncWriter{
		sink: sink,
		ch:   make(chan record, depth),
		done: make(chan struct{}),
		log:  logrus.WithField("component", "telemetry"),
	}

	go w.drain()

	return w
}

func (w *AsyncWriter) drain() {
	defer close(w.done)

	for r := range w.ch {
		err := w.sink.LogMetric(
			context.Background(), r.deviceID, r.timestampNanos, r.value)
		if err != nil {
			w.log.WithError(err).Warn("telemetry write failed")
		}
	}
}

// Record enqueues one metric record without blocking. The record is dropped
// when the queue is full.
func (w *AsyncWriter) Record(
	deviceID uint32,
	timestampNanos uint64,
	value float64,
) {
	select {
	case w.ch <- record{deviceID, timestampNanos, value}:
	default:
		w.dropped.Add(1)
		w.log.Debug("telemetry queue full, record dropped")
	}
}

// Dropped returns the number of records discarded because the queue was
// full.
func (w *AsyncWriter) Dropped() uint64 {
	return w.dropped.Load()
}

// Close stops accepting records and waits for the queue to drain. Close is
// idempotent; Record must not be called afterward.
func (w *AsyncWriter) Close() {
	w.closeOnce.Do(func() {
		close(w.ch)
	})

	<-w.done
}
