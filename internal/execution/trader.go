package execution

import "context"

// Backend 为执行后端的提交接口。Execute 只负责受理，结果通过 listener 异步回调。
type Backend interface {
	Execute(ctx context.Context, req Request, listener CompletionListener) error
}

// CompletionListener 由后端在请求完成时调用，可能运行在任意 goroutine。
type CompletionListener interface {
	OnCompletion(req Request, outcome Outcome)
}

// Journal 为可选的审计落盘接口。
type Journal interface {
	RecordEvent(ctx context.Context, event Event)
}

// Trader 抽象网关对外提供的下单能力，方便上层替换实现。
type Trader interface {
	PlaceOrder(ctx context.Context, intent PlaceIntent) (CommandID, error)
	ModifyOrder(ctx context.Context, intent ModifyIntent) (CommandID, error)
	OCOOrder(ctx context.Context, intent OCOIntent) (CommandID, error)
}

var (
	_ Trader             = (*Gateway)(nil)
	_ CompletionListener = (*Correlator)(nil)
)
