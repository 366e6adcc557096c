package position

import (
	"context"
	"fmt"
	"math"
	"strings"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"order-gateway/internal/execution"
)

type positionClient interface {
	FetchPositions(options ...ccxt.FetchPositionsOptions) ([]ccxt.Position, error)
}

// Finder 按交易对查找当前持仓，无持仓时返回 nil。
type Finder interface {
	OpenPosition(ctx context.Context, symbol string) (*execution.Position, error)
}

// Lookup 通过交易所接口读取持仓，只读，不做对账。
type Lookup struct {
	client positionClient
	logger *zap.Logger
}

var _ Finder = (*Lookup)(nil)

// NewLookup 创建持仓查询器。
func NewLookup(client positionClient, logger *zap.Logger) *Lookup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lookup{
		client: client,
		logger: logger,
	}
}

// OpenPosition 返回该交易对第一个非空持仓。
func (l *Lookup) OpenPosition(ctx context.Context, symbol string) (*execution.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := l.client.FetchPositions()
	if err != nil {
		return nil, fmt.Errorf("position: 获取持仓失败: %w", err)
	}

	for _, p := range raw {
		rawSymbol := derefString(p.Symbol)
		if rawSymbol == "" || !strings.EqualFold(rawSymbol, symbol) {
			continue
		}

		size := math.Abs(derefFloat(p.Contracts))
		if size == 0 {
			continue
		}

		side, ok := sideFromPosition(derefString(p.Side))
		if !ok {
			l.logger.Warn("无法识别持仓方向", zap.String("symbol", rawSymbol), zap.String("side", derefString(p.Side)))
			continue
		}

		return &execution.Position{
			ID:         positionID(rawSymbol, side),
			Instrument: execution.Instrument{Symbol: rawSymbol},
			Side:       side,
			Quantity:   size,
		}, nil
	}

	l.logger.Debug("未找到持仓", zap.String("symbol", symbol))
	return nil, nil
}

// sideFromPosition 将 long/short 映射为开仓方向；方向缺失时无法推断平仓方向，视为无法识别。
func sideFromPosition(side string) (execution.OrderSide, bool) {
	switch strings.ToLower(strings.TrimSpace(side)) {
	case "long", "buy":
		return execution.OrderSideBuy, true
	case "short", "sell":
		return execution.OrderSideSell, true
	default:
		return "", false
	}
}

func positionID(symbol string, side execution.OrderSide) string {
	return symbol + ":" + string(side)
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
