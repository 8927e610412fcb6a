package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultQueueSize     = 256
	DefaultBatchSize     = 32
	DefaultFlushInterval = 500 * time.Millisecond
	DefaultWriteTimeout  = 5 * time.Second
)

type AsyncConfig struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	WriteTimeout  time.Duration
}

// Async batches entries onto a Store from its own goroutine. Record never
// blocks; when the queue is full the entry is dropped and logged.
type Async struct {
	cfg    AsyncConfig
	store  Store
	logger *zap.Logger

	queue chan Entry
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func NewAsync(s Store, cfg AsyncConfig, logger *zap.Logger) *Async {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Async{
		cfg:    cfg,
		store:  s,
		logger: logger,
		queue:  make(chan Entry, cfg.QueueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) Record(e Entry) {
	select {
	case <-a.stop:
		a.logger.Warn("transcript recorder closed, dropping entry", zap.String("token", e.Token))
		return
	default:
	}
	select {
	case a.queue <- e:
	default:
		a.logger.Warn("transcript queue full, dropping entry", zap.String("token", e.Token))
	}
}

// Close flushes what is queued and stops the writer. The underlying store is
// left open.
func (a *Async) Close() error {
	a.once.Do(func() { close(a.stop) })
	<-a.done
	return nil
}

func (a *Async) run() {
	defer close(a.done)
	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, a.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.WriteTimeout)
		err := a.store.Append(ctx, batch)
		cancel()
		if err != nil {
			a.logger.Warn("transcript write failed", zap.Int("entries", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case e := <-a.queue:
			batch = append(batch, e)
			if len(batch) >= a.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-a.stop:
			for {
				select {
				case e := <-a.queue:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		}
	}
}
