package execution

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Correlator 接收后端的完成回调并归类结果。它也是同步提交失败的落点，
// 保证两条终态路径写入同一日志与审计通道。
type Correlator struct {
	journal Journal
	logger  *zap.Logger

	succeeded    atomic.Uint64
	failed       atomic.Uint64
	submitFailed atomic.Uint64
}

// NewCorrelator 创建结果归类器。
func NewCorrelator(journal Journal, logger *zap.Logger) *Correlator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if journal == nil {
		journal = nopJournal{}
	}
	return &Correlator{
		journal: journal,
		logger:  logger,
	}
}

// OnCompletion 实现 CompletionListener，可被后端的任意 goroutine 并发调用。
// 结果与提交顺序无关，只按请求自身的编号记录，不做重试。
func (c *Correlator) OnCompletion(req Request, outcome Outcome) {
	at := outcome.CompletedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	if outcome.Success {
		c.succeeded.Add(1)
		c.logger.Info("Command is successfully executed",
			zap.Uint64("command_id", uint64(req.CommandID)),
			zap.String("action", string(actionType(req))),
		)
		c.journal.RecordEvent(context.Background(), Event{
			Type:      EventSucceeded,
			CommandID: req.CommandID,
			AccountID: req.AccountID,
			Action:    actionType(req),
			Timestamp: at,
		})
		return
	}

	cause := outcome.Cause
	if cause == nil {
		cause = ErrExecutionFailed
	}
	c.failed.Add(1)
	c.logger.Error("Command is failed to execute",
		zap.Uint64("command_id", uint64(req.CommandID)),
		zap.String("action", string(actionType(req))),
		zap.Error(cause),
	)
	c.journal.RecordEvent(context.Background(), Event{
		Type:      EventFailed,
		CommandID: req.CommandID,
		AccountID: req.AccountID,
		Action:    actionType(req),
		Error:     cause.Error(),
		Timestamp: at,
	})
}

// OnSubmitFailure 记录后端同步拒绝受理的请求。
func (c *Correlator) OnSubmitFailure(ctx context.Context, req Request, err error) {
	c.submitFailed.Add(1)
	c.logger.Error("Failed to submit command",
		zap.Uint64("command_id", uint64(req.CommandID)),
		zap.String("action", string(actionType(req))),
		zap.Error(err),
	)
	c.journal.RecordEvent(ctx, Event{
		Type:      EventSubmitFailed,
		CommandID: req.CommandID,
		AccountID: req.AccountID,
		Action:    actionType(req),
		Error:     err.Error(),
		Timestamp: time.Now().UTC(),
	})
}

// Stats 返回终态计数快照。
func (c *Correlator) Stats() Stats {
	return Stats{
		Succeeded:    c.succeeded.Load(),
		Failed:       c.failed.Load(),
		SubmitFailed: c.submitFailed.Load(),
	}
}

func actionType(req Request) ActionType {
	if req.Action == nil {
		return ""
	}
	return req.Action.Type()
}

type nopJournal struct{}

func (nopJournal) RecordEvent(context.Context, Event) {}
