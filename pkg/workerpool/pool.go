// Package workerpool provides a bounded worker pool for controlled
// concurrency. The reminder dispatcher uses it to fan out notification
// deliveries without letting a slow channel stall the consumer.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one unit of work.
type Task struct {
	ID      string
	Payload interface{}
	Context context.Context
}

// Result is the outcome of one task.
type Result struct {
	TaskID  string
	Success bool
	Error   error
	Data    interface{}
}

// WorkerFunc processes one task.
type WorkerFunc func(ctx context.Context, task *Task) *Result

// Config holds pool configuration.
type Config struct {
	// Workers is the number of concurrent workers.
	Workers int
	// QueueSize bounds the task backlog; Submit fails beyond it.
	QueueSize int
	// MaxRetries is how many times a failed task is re-run.
	MaxRetries int
	// RetryDelay is the base backoff between attempts.
	RetryDelay time.Duration
	// ShutdownTimeout bounds how long Stop waits for in-flight tasks.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns defaults sized for notification dispatch.
func DefaultConfig() Config {
	return Config{
		Workers:         16,
		QueueSize:       2048,
		MaxRetries:      3,
		RetryDelay:      250 * time.Millisecond,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Pool runs tasks across a fixed set of workers.
type Pool struct {
	config Config
	fn     WorkerFunc
	logger *zap.Logger

	tasks   chan *Task
	results chan *Result
	quit    chan struct{}
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a pool. The worker function is required.
func New(cfg Config, fn WorkerFunc, logger *zap.Logger) (*Pool, error) {
	if fn == nil {
		return nil, fmt.Errorf("worker function is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		config:  cfg,
		fn:      fn,
		logger:  logger,
		tasks:   make(chan *Task, cfg.QueueSize),
		results: make(chan *Result, cfg.QueueSize),
		quit:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start launches the workers.
func (p *Pool) Start() {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.logger.Info("worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize))
}

// Submit enqueues a task. It fails fast when the pool is stopping or
// the queue is full; callers decide whether that is fatal.
func (p *Pool) Submit(task *Task) error {
	select {
	case <-p.quit:
		return fmt.Errorf("pool is shutting down")
	default:
	}

	select {
	case p.tasks <- task:
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

// Results returns the channel of task outcomes. Consumers must drain
// it; a full channel drops results rather than blocking workers.
func (p *Pool) Results() <-chan *Result {
	return p.results
}

// Stop drains queued tasks and shuts the workers down. Submit fails
// immediately once Stop has been called.
func (p *Pool) Stop() error {
	close(p.quit)
	close(p.tasks)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("worker pool stopped")
		close(p.results)
	case <-time.After(p.config.ShutdownTimeout):
		// Abort stragglers; results stays open since a worker may
		// still be mid-send.
		p.cancel()
		p.logger.Warn("worker pool shutdown timed out")
	}
	return nil
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.report(p.run(task))
	}
}

// run executes one task, retrying failures with linear backoff.
func (p *Pool) run(task *Task) *Result {
	ctx := task.Context
	if ctx == nil {
		ctx = p.ctx
	}

	var result *Result
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return &Result{TaskID: task.ID, Error: err}
		}

		result = p.fn(ctx, task)
		if result.Success {
			return result
		}

		if attempt == p.config.MaxRetries {
			break
		}
		p.logger.Debug("retrying task",
			zap.String("task_id", task.ID),
			zap.Int("attempt", attempt+1),
			zap.Error(result.Error))

		select {
		case <-ctx.Done():
			return &Result{TaskID: task.ID, Error: ctx.Err()}
		case <-time.After(p.config.RetryDelay * time.Duration(attempt+1)):
		}
	}

	return &Result{
		TaskID: task.ID,
		Error:  fmt.Errorf("task failed after %d retries: %w", p.config.MaxRetries, result.Error),
	}
}

func (p *Pool) report(result *Result) {
	if !result.Success {
		p.logger.Error("task failed",
			zap.String("task_id", result.TaskID),
			zap.Error(result.Error))
	}

	select {
	case p.results <- result:
	default:
		p.logger.Warn("result channel full, dropping result",
			zap.String("task_id", result.TaskID))
	}
}
