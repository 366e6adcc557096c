package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"order-gateway/internal/config"
	"order-gateway/internal/execution"
)

type job struct {
	req      execution.Request
	listener execution.CompletionListener
}

// Backend 将请求排入有界队列，由工作协程提交到交易所并回调结果。
// Execute 只等待入队，不等待成交。
type Backend struct {
	client        OrderClient
	cfg           config.BackendConfig
	logger        *zap.Logger
	retry         *retrier
	session       uuid.UUID
	workers       int
	acceptTimeout time.Duration

	queue chan job

	mu     sync.RWMutex
	closed bool
}

var _ execution.Backend = (*Backend)(nil)

// NewBackend 创建交易所后端，需调用 Run 启动工作协程。
func NewBackend(client OrderClient, cfg config.BackendConfig, logger *zap.Logger) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	acceptTimeout := cfg.AcceptTimeout
	if acceptTimeout <= 0 {
		acceptTimeout = 2 * time.Second
	}

	return &Backend{
		client:        client,
		cfg:           cfg,
		logger:        logger,
		retry:         newRetrier(cfg.Retry, logger),
		session:       uuid.New(),
		workers:       workers,
		acceptTimeout: acceptTimeout,
		queue:         make(chan job, queueSize),
	}
}

// Execute 实现 execution.Backend。
func (b *Backend) Execute(ctx context.Context, req execution.Request, listener execution.CompletionListener) error {
	if err := validateRequest(req, listener); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBackendClosed
	}

	timer := time.NewTimer(b.acceptTimeout)
	defer timer.Stop()

	select {
	case b.queue <- job{req: req, listener: listener}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w: waited %s", ErrBackendBusy, b.acceptTimeout)
	}
}

// Run 启动工作协程并阻塞到 ctx 结束。退出后不再受理新请求，
// 队列中尚未处理的请求以 ErrBackendClosed 失败回调。
func (b *Backend) Run(ctx context.Context) error {
	b.logger.Info("执行后端已启动",
		zap.String("backend", b.cfg.Name),
		zap.Int("workers", b.workers),
		zap.Int("queue_size", cap(b.queue)),
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < b.workers; i++ {
		worker := i
		g.Go(func() error {
			b.work(gctx, worker)
			return nil
		})
	}
	err := g.Wait()

	b.shutdown()
	b.logger.Info("执行后端已停止")
	return err
}

func (b *Backend) work(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-b.queue:
			b.process(ctx, worker, j)
		}
	}
}

func (b *Backend) process(ctx context.Context, worker int, j job) {
	start := time.Now()
	err := b.submitRequest(ctx, j.req)

	b.logger.Debug("请求处理完成",
		zap.Int("worker", worker),
		zap.Uint64("command_id", uint64(j.req.CommandID)),
		zap.Duration("latency", time.Since(start)),
		zap.Bool("success", err == nil),
	)

	b.complete(j, err)
}

func (b *Backend) complete(j job, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("结果回调异常",
				zap.Uint64("command_id", uint64(j.req.CommandID)),
				zap.Any("panic", r),
			)
		}
	}()

	j.listener.OnCompletion(j.req, execution.Outcome{
		CommandID:   j.req.CommandID,
		Success:     err == nil,
		Cause:       err,
		CompletedAt: time.Now().UTC(),
	})
}

func (b *Backend) shutdown() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	for {
		select {
		case j := <-b.queue:
			b.complete(j, ErrBackendClosed)
		default:
			return
		}
	}
}

func validateRequest(req execution.Request, listener execution.CompletionListener) error {
	switch {
	case listener == nil:
		return fmt.Errorf("%w: missing listener", ErrMalformedRequest)
	case req.CommandID == 0:
		return fmt.Errorf("%w: missing command id", ErrMalformedRequest)
	case req.AccountID <= 0:
		return fmt.Errorf("%w: missing account id", ErrMalformedRequest)
	case req.Action == nil:
		return fmt.Errorf("%w: missing action", ErrMalformedRequest)
	case strings.TrimSpace(req.Action.Symbol()) == "":
		return fmt.Errorf("%w: missing symbol", ErrMalformedRequest)
	}
	return nil
}
