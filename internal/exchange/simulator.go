package exchange

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"order-gateway/internal/execution"
)

// SimulatorOptions 控制模拟后端。
type SimulatorOptions struct {
	// Latency 为受理到回调之间的延迟。
	Latency time.Duration
	// Fail 返回非空错误时该请求以失败结束。
	Fail func(req execution.Request) error
}

// Simulator 为纸面交易后端：受理即返回，延迟后在独立协程中回调结果。
type Simulator struct {
	opts   SimulatorOptions
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

var _ execution.Backend = (*Simulator)(nil)

// NewSimulator 创建模拟后端。
func NewSimulator(opts SimulatorOptions, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{opts: opts, logger: logger}
}

// Execute 实现 execution.Backend。
func (s *Simulator) Execute(ctx context.Context, req execution.Request, listener execution.CompletionListener) error {
	if err := validateRequest(req, listener); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrBackendClosed
	}

	s.wg.Add(1)
	go s.fill(req, listener)
	return nil
}

func (s *Simulator) fill(req execution.Request, listener execution.CompletionListener) {
	defer s.wg.Done()

	if s.opts.Latency > 0 {
		time.Sleep(s.opts.Latency)
	}

	var cause error
	if s.opts.Fail != nil {
		cause = s.opts.Fail(req)
	}

	s.logger.Debug("模拟成交",
		zap.Uint64("command_id", uint64(req.CommandID)),
		zap.String("symbol", req.Action.Symbol()),
		zap.Bool("success", cause == nil),
	)

	listener.OnCompletion(req, execution.Outcome{
		CommandID:   req.CommandID,
		Success:     cause == nil,
		Cause:       cause,
		CompletedAt: time.Now().UTC(),
	})
}

// Run 阻塞到 ctx 结束，之后拒绝新请求并等待已受理请求回调完毕。
func (s *Simulator) Run(ctx context.Context) error {
	s.logger.Info("模拟执行后端已启动", zap.Duration("latency", s.opts.Latency))
	<-ctx.Done()
	s.Close()
	return nil
}

// Close 停止受理并等待在途请求完成。
func (s *Simulator) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}
