package exchange

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"order-gateway/internal/config"
)

const (
	defaultMinDelay = 500 * time.Millisecond
	defaultMaxDelay = 5 * time.Second
)

// retrier 对交易所调用做指数退避重试，只重试网络类错误。
type retrier struct {
	cfg    config.RetryConfig
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func newRetrier(cfg config.RetryConfig, logger *zap.Logger) *retrier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = defaultMinDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	return &retrier{cfg: cfg, logger: logger, sleep: sleepContext}
}

func (r *retrier) do(ctx context.Context, operation string, fields []zap.Field, fn func() error) error {
	attempt := 0
	delay := r.cfg.MinDelay

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		latency := time.Since(start)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("交易所调用重试后成功",
					append(fields,
						zap.String("operation", operation),
						zap.Int("attempts", attempt),
						zap.Duration("latency", latency),
					)...,
				)
			}
			return nil
		}

		normalizedErr, retry := classifyError(err)

		if errors.Is(normalizedErr, ErrMaintenance) {
			r.logger.Warn("交易所维护中",
				append(fields, zap.String("operation", operation), zap.Error(normalizedErr))...,
			)
			return normalizedErr
		}

		if !retry || attempt >= r.cfg.MaxAttempts {
			r.logger.Warn("交易所调用失败",
				append(fields,
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", latency),
					zap.Error(normalizedErr),
				)...,
			)
			return normalizedErr
		}

		wait := delay
		if wait > r.cfg.MaxDelay {
			wait = r.cfg.MaxDelay
		}

		r.logger.Warn("交易所调用失败，等待重试",
			append(fields,
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(normalizedErr),
			)...,
		)

		if err := r.sleep(ctx, wait); err != nil {
			return err
		}

		delay *= 2
		if delay > r.cfg.MaxDelay {
			delay = r.cfg.MaxDelay
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
