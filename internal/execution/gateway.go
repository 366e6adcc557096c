package execution

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Options 控制网关行为。
type Options struct {
	// StartCommandID 为首个命令编号，0 表示从 1 开始。
	StartCommandID CommandID
	// OCOQuantity 为组合单默认手数。
	OCOQuantity float64
	// SilentRejections 为 true 时拒单不写日志与审计记录，仍通过返回值告知调用方。
	SilentRejections bool
	// Journal 为可选的审计落盘。
	Journal Journal
}

// Stats 汇总网关处理情况。
type Stats struct {
	LastCommandID CommandID `json:"last_command_id"`
	Rejected      uint64    `json:"rejected"`
	Succeeded     uint64    `json:"succeeded"`
	Failed        uint64    `json:"failed"`
	SubmitFailed  uint64    `json:"submit_failed"`
}

// Gateway 持有账户与后端连接，负责构建、提交请求并登记结果回调。
// 每个实例拥有独立的命令编号序列。
type Gateway struct {
	backend    Backend
	seq        *Sequencer
	builder    *Builder
	correlator *Correlator
	journal    Journal
	logger     *zap.Logger
	silent     bool

	mu        sync.RWMutex
	accountID int64

	rejected atomic.Uint64
}

// NewGateway 创建网关。
func NewGateway(backend Backend, opts Options, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	journal := opts.Journal
	if journal == nil {
		journal = nopJournal{}
	}

	seq := NewSequencer(opts.StartCommandID)
	return &Gateway{
		backend:    backend,
		seq:        seq,
		builder:    NewBuilder(seq, BuilderOptions{OCOQuantity: opts.OCOQuantity}),
		correlator: NewCorrelator(journal, logger),
		journal:    journal,
		logger:     logger,
		silent:     opts.SilentRejections,
	}
}

// SetAccountID 绑定账户，只允许绑定一次；重复绑定同一账户视为成功。
func (g *Gateway) SetAccountID(id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAccount, id)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.accountID != 0 && g.accountID != id {
		return fmt.Errorf("%w: bound=%d requested=%d", ErrAccountBound, g.accountID, id)
	}
	g.accountID = id
	return nil
}

// AccountID 返回已绑定的账户，未绑定时为 0。
func (g *Gateway) AccountID() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.accountID
}

// Correlator 返回网关登记给后端的回调对象。
func (g *Gateway) Correlator() *Correlator {
	return g.correlator
}

// PlaceOrder 构建并提交新建委托。返回的错误只包含账户未绑定与拒单，
// 提交与执行失败只体现在日志和审计记录中。
func (g *Gateway) PlaceOrder(ctx context.Context, intent PlaceIntent) (CommandID, error) {
	return g.dispatch(ctx, ActionPlace, func(account int64) (Request, error) {
		return g.builder.BuildPlace(account, intent)
	})
}

// ModifyOrder 构建并提交改单。
func (g *Gateway) ModifyOrder(ctx context.Context, intent ModifyIntent) (CommandID, error) {
	return g.dispatch(ctx, ActionModify, func(account int64) (Request, error) {
		return g.builder.BuildModify(account, intent)
	})
}

// OCOOrder 构建并提交止损止盈组合。
func (g *Gateway) OCOOrder(ctx context.Context, intent OCOIntent) (CommandID, error) {
	return g.dispatch(ctx, ActionOCOGroup, func(account int64) (Request, error) {
		return g.builder.BuildOCO(account, intent)
	})
}

func (g *Gateway) dispatch(ctx context.Context, action ActionType, build func(account int64) (Request, error)) (CommandID, error) {
	account := g.AccountID()
	if account == 0 {
		return 0, ErrAccountUnset
	}

	req, err := build(account)
	if err != nil {
		g.onRejected(ctx, account, action, err)
		return 0, err
	}

	g.Submit(ctx, req)
	return req.CommandID, nil
}

// Submit 将请求交给后端，不等待执行结果。后端同步返回的错误或 panic
// 会被记录后吞掉，不会返回给调用方。
func (g *Gateway) Submit(ctx context.Context, req Request) {
	g.logger.Info("Executing command",
		zap.Uint64("command_id", uint64(req.CommandID)),
		zap.Int64("account_id", req.AccountID),
		zap.String("action", string(actionType(req))),
	)
	g.journal.RecordEvent(ctx, Event{
		Type:      EventExecuting,
		CommandID: req.CommandID,
		AccountID: req.AccountID,
		Action:    actionType(req),
		Request:   &req,
		Timestamp: time.Now().UTC(),
	})

	if err := g.execute(ctx, req); err != nil {
		g.correlator.OnSubmitFailure(ctx, req, err)
	}
}

func (g *Gateway) execute(ctx context.Context, req Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSubmitPanic, r)
		}
	}()
	return g.backend.Execute(ctx, req, g.correlator)
}

func (g *Gateway) onRejected(ctx context.Context, account int64, action ActionType, err error) {
	g.rejected.Add(1)
	if g.silent {
		return
	}

	reason := RejectionReason(err)
	g.logger.Warn("Command rejected",
		zap.Int64("account_id", account),
		zap.String("action", string(action)),
		zap.String("reason", reason),
	)
	g.journal.RecordEvent(ctx, Event{
		Type:      EventRejected,
		AccountID: account,
		Action:    action,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
}

// Stats 返回网关计数快照。
func (g *Gateway) Stats() Stats {
	stats := g.correlator.Stats()
	stats.LastCommandID = g.seq.Last()
	stats.Rejected = g.rejected.Load()
	return stats
}
