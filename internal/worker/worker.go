package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/applicant-sync/internal/core/domain"
	"github.com/custodia-labs/applicant-sync/internal/core/ports/driven"
	"github.com/custodia-labs/applicant-sync/internal/core/ports/driving"
)

// Worker consumes sync triggers and runs each batch through the orchestrator.
// State updates are reported by the orchestrator; the worker only acks.
type Worker struct {
	triggers     driven.TriggerQueue
	orchestrator driving.SyncOrchestrator
	logger       *slog.Logger

	// Configuration
	concurrency    int
	dequeueTimeout time.Duration
	errorBackoff   time.Duration

	// Internal state
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	Triggers       driven.TriggerQueue
	Orchestrator   driving.SyncOrchestrator
	Logger         *slog.Logger
	Concurrency    int           // Number of concurrent trigger processors
	DequeueTimeout time.Duration // Wait for a trigger before checking again (default: 5s)
	ErrorBackoff   time.Duration // Pause after a failed dequeue (default: 1s)
}

// NewWorker creates a new trigger worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	dequeueTimeout := cfg.DequeueTimeout
	if dequeueTimeout <= 0 {
		dequeueTimeout = 5 * time.Second
	}

	errorBackoff := cfg.ErrorBackoff
	if errorBackoff <= 0 {
		errorBackoff = time.Second
	}

	return &Worker{
		triggers:       cfg.Triggers,
		orchestrator:   cfg.Orchestrator,
		logger:         logger,
		concurrency:    concurrency,
		dequeueTimeout: dequeueTimeout,
		errorBackoff:   errorBackoff,
	}
}

// Start begins the worker loop.
// It runs until Stop is called or context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting",
		"concurrency", w.concurrency,
		"dequeue_timeout", w.dequeueTimeout,
	)

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.processLoop(ctx, workerID)
		}(i)
	}

	go func() {
		wg.Wait()
		close(w.doneCh)
	}()

	return nil
}

// Stop gracefully stops the worker. A batch in progress runs to completion.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// Wait blocks until the worker stops.
func (w *Worker) Wait() {
	<-w.doneCh
}

// processLoop is the main processing loop for a worker goroutine.
func (w *Worker) processLoop(ctx context.Context, workerID int) {
	logger := w.logger.With("worker_id", workerID)
	logger.Info("worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker context cancelled")
			return
		case <-w.stopCh:
			logger.Info("worker stop signal received")
			return
		default:
		}

		msg, err := w.triggers.DequeueWithTimeout(ctx, w.dequeueTimeout)
		if err != nil {
			switch {
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			case errors.Is(err, domain.ErrMalformedTrigger):
				logger.Warn("dropped malformed trigger", "error", err)
			default:
				logger.Error("failed to dequeue trigger", "error", err)
				w.sleep(ctx, w.errorBackoff)
			}
			continue
		}

		if msg == nil {
			continue
		}

		w.processTrigger(ctx, msg, logger)
	}
}

// processTrigger runs one batch and acknowledges the trigger. Per-item
// failures are part of the reported state, so the trigger is acked either way.
func (w *Worker) processTrigger(ctx context.Context, msg *domain.TriggerMessage, logger *slog.Logger) {
	logger = logger.With("message_id", msg.ID, "items", len(msg.Items))
	logger.Info("processing trigger")

	startTime := time.Now()
	updates := w.orchestrator.SyncBatch(ctx, msg)

	failed := 0
	for _, u := range updates {
		if !u.Success {
			failed++
		}
	}

	logger.Info("trigger completed",
		"duration", time.Since(startTime),
		"synced", len(updates),
		"failed", failed,
	)

	if ackErr := w.triggers.Ack(context.WithoutCancel(ctx), msg.DeliveryID); ackErr != nil {
		logger.Error("failed to ack trigger", "ack_error", ackErr)
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// Health returns health status of the worker.
type Health struct {
	Running     bool   `json:"running"`
	QueueHealth bool   `json:"queue_health"`
	Error       string `json:"error,omitempty"`
}

// Health returns the health status of the worker.
func (w *Worker) Health(ctx context.Context) Health {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()

	health := Health{
		Running: running,
	}

	if err := w.triggers.Ping(ctx); err != nil {
		health.QueueHealth = false
		health.Error = err.Error()
	} else {
		health.QueueHealth = true
	}

	return health
}
