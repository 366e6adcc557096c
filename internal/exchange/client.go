package exchange

import (
	"fmt"

	ccxt "github.com/ccxt/ccxt/go/v4"

	"order-gateway/internal/config"
)

// OrderClient 为下单所需的 ccxt 方法子集。
type OrderClient interface {
	CreateMarketOrder(symbol string, side string, amount float64, options ...ccxt.CreateMarketOrderOptions) (ccxt.Order, error)
	CreateLimitOrder(symbol string, side string, amount float64, price float64, options ...ccxt.CreateLimitOrderOptions) (ccxt.Order, error)
	CreateOrder(symbol string, typeVar string, side string, amount float64, options ...ccxt.CreateOrderOptions) (ccxt.Order, error)
	EditOrder(id string, symbol string, typeVar string, side string, options ...ccxt.EditOrderOptions) (ccxt.Order, error)
	CancelOrder(id string, options ...ccxt.CancelOrderOptions) (ccxt.Order, error)
}

// TradeClient 在下单能力之外提供持仓查询。
type TradeClient interface {
	OrderClient
	FetchPositions(options ...ccxt.FetchPositionsOptions) ([]ccxt.Position, error)
}

// NewTradeClient 根据配置创建 ccxt 交易客户端。
func NewTradeClient(cfg config.BackendConfig) (TradeClient, error) {
	userConfig := map[string]interface{}{
		"enableRateLimit": true,
	}
	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}
	if cfg.APIPass != "" {
		userConfig["password"] = cfg.APIPass
	}

	switch cfg.Name {
	case config.BackendHyperliquid:
		if cfg.Wallet != "" {
			userConfig["walletAddress"] = cfg.Wallet
		}
		if cfg.PrivateKey != "" {
			userConfig["privateKey"] = cfg.PrivateKey
		}
		client := ccxt.NewHyperliquid(userConfig)
		if cfg.UseSandbox {
			client.SetSandboxMode(true)
		}
		return client, nil
	case config.BackendBinanceUSDM:
		userConfig["options"] = map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "future",
		}
		client := ccxt.NewBinanceusdm(userConfig)
		if cfg.UseSandbox {
			client.SetSandboxMode(true)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.Name)
	}
}
