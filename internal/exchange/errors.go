package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

var (
	// ErrMaintenance 表示交易所处于维护状态，请求不再重试。
	ErrMaintenance = errors.New("exchange on maintenance")
	// ErrMalformedRequest 表示请求缺少必要字段，受理时直接拒绝。
	ErrMalformedRequest = errors.New("exchange: malformed request")
	// ErrBackendClosed 表示后端已停止受理。
	ErrBackendClosed = errors.New("exchange: backend closed")
	// ErrBackendBusy 表示受理队列在超时内仍然已满。
	ErrBackendBusy = errors.New("exchange: backend queue full")
	// ErrOCOLegFailed 表示组合单一腿失败，另一腿已撤销。
	ErrOCOLegFailed = errors.New("exchange: oco leg failed, sibling canceled")
	// ErrOCOLegOrphaned 表示组合单一腿失败且另一腿未能撤销，需要人工处理。
	ErrOCOLegOrphaned = errors.New("exchange: oco leg failed, sibling still open")
	// ErrUnsupportedBackend 表示配置了未知的交易所。
	ErrUnsupportedBackend = errors.New("exchange: unsupported backend")
)

// IsRetryable 判断错误是否可重试。
func IsRetryable(err error) bool {
	_, retry := classifyError(err)
	return retry
}

// classifyError 归一化交易所错误并判断是否值得重试。
func classifyError(err error) (error, bool) {
	if err == nil {
		return nil, false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return err, true
		case ccxt.OnMaintenanceErrType:
			message := strings.TrimSpace(ccxtErr.Message)
			if message == "" {
				message = "exchange under maintenance"
			}
			return fmt.Errorf("%w: %s", ErrMaintenance, message), false
		default:
			return err, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return err, true
	}

	return err, false
}
