// Package worker runs the dequeuer pool and the stuck-job sweeper.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/docpipe/docpipe/internal/pipeline"
	"github.com/docpipe/docpipe/internal/queue"
)

// Pool runs N dequeuers against the work queue. Each in-flight message is
// owned by exactly one goroutine with its own in-memory job snapshot; workers
// share nothing but the external stores.
type Pool struct {
	Queue        queue.Queue
	Orchestrator *pipeline.Orchestrator

	workers        int
	receiveWait    time.Duration
	processTimeout time.Duration
	logger         *slog.Logger

	wg sync.WaitGroup
}

type PoolConfig struct {
	Workers        int
	ReceiveWait    time.Duration // idle sleep when the queue is empty
	ProcessTimeout time.Duration // hard ceiling for one message
}

func NewPool(q queue.Queue, orch *pipeline.Orchestrator, cfg PoolConfig, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.ReceiveWait <= 0 {
		cfg.ReceiveWait = time.Second
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = 10 * time.Minute
	}
	return &Pool{
		Queue:          q,
		Orchestrator:   orch,
		workers:        cfg.Workers,
		receiveWait:    cfg.ReceiveWait,
		processTimeout: cfg.ProcessTimeout,
		logger:         logger,
	}
}

// Start launches the dequeuers. They stop when ctx is cancelled; Wait blocks
// until all are done.
func (p *Pool) Start(ctx context.Context) {
	for i := 1; i <= p.workers; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			p.logger.Info("worker started", "worker_id", workerID)
			p.run(ctx, workerID)
			p.logger.Info("worker stopped", "worker_id", workerID)
		}(i)
	}
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, workerID int) {
	for {
		if ctx.Err() != nil {
			return
		}

		msg, err := p.Queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("receive failed", "worker_id", workerID, "error", err)
			p.sleep(ctx)
			continue
		}
		if msg == nil {
			p.sleep(ctx)
			continue
		}

		procCtx, cancel := context.WithTimeout(ctx, p.processTimeout)
		err = p.Orchestrator.Process(procCtx, msg)
		cancel()
		if err != nil {
			// Not acknowledged: the visibility timeout redelivers it.
			p.logger.Error("processing failed", "worker_id", workerID, "message_id", msg.MessageID, "error", err)
		}
	}
}

func (p *Pool) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.receiveWait):
	}
}
