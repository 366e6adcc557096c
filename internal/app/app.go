package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"order-gateway/internal/config"
	"order-gateway/internal/exchange"
	"order-gateway/internal/execution"
	"order-gateway/internal/monitor"
	"order-gateway/internal/position"
	"order-gateway/internal/store"
)

// runnableBackend 为带生命周期的执行后端。
type runnableBackend interface {
	execution.Backend
	Run(ctx context.Context) error
}

// App 聚合核心依赖并驱动网关生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 组装网关并阻塞到 ctx 结束。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("订单网关已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("backend", a.cfg.Backend.Name),
		zap.Int64("account_id", a.cfg.Gateway.AccountID),
	)

	journal, err := monitor.NewService(a.store, a.logger)
	if err != nil {
		return fmt.Errorf("初始化审计服务失败: %w", err)
	}

	backend, positions, err := a.newBackend()
	if err != nil {
		return err
	}

	gw := execution.NewGateway(backend, execution.Options{
		StartCommandID:   execution.CommandID(a.cfg.Gateway.StartCommandID),
		OCOQuantity:      a.cfg.Gateway.OCOQuantity,
		SilentRejections: !a.cfg.Gateway.LogRejections,
		Journal:          journal,
	}, a.logger)

	if a.cfg.Gateway.AccountID > 0 {
		if err := gw.SetAccountID(a.cfg.Gateway.AccountID); err != nil {
			return fmt.Errorf("绑定账户失败: %w", err)
		}
	} else {
		a.logger.Warn("未配置 gateway.account_id，下单请求将被拒绝")
	}

	srv := newServer(gw, positions, journal, a.cfg.Server, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return backend.Run(gctx)
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("系统异常退出: %w", err)
	}

	stats := gw.Stats()
	a.logger.Info("订单网关正在停止",
		zap.Uint64("last_command_id", uint64(stats.LastCommandID)),
		zap.Uint64("succeeded", stats.Succeeded),
		zap.Uint64("failed", stats.Failed),
		zap.Uint64("submit_failed", stats.SubmitFailed),
		zap.Uint64("rejected", stats.Rejected),
	)
	return nil
}

func (a *App) newBackend() (runnableBackend, position.Finder, error) {
	if a.cfg.Backend.Name == config.BackendPaper {
		a.logger.Info("执行后端处于模拟模式", zap.Duration("latency", a.cfg.Paper.Latency))
		sim := exchange.NewSimulator(exchange.SimulatorOptions{Latency: a.cfg.Paper.Latency}, a.logger)
		return sim, position.NewStatic(a.cfg.Paper.Positions), nil
	}

	client, err := exchange.NewTradeClient(a.cfg.Backend)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化交易客户端失败: %w", err)
	}
	return exchange.NewBackend(client, a.cfg.Backend, a.logger), position.NewLookup(client, a.logger), nil
}
