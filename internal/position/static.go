package position

import (
	"context"
	"strings"

	"order-gateway/internal/config"
	"order-gateway/internal/execution"
)

// Static 为模拟模式提供预置持仓。
type Static struct {
	positions map[string]execution.Position
}

var _ Finder = (*Static)(nil)

// NewStatic 根据配置创建预置持仓表，同一交易对以最后一条为准。
func NewStatic(entries []config.PaperPosition) *Static {
	positions := make(map[string]execution.Position, len(entries))
	for _, e := range entries {
		side, ok := sideFromPosition(e.Side)
		if !ok || e.Quantity <= 0 {
			continue
		}
		key := strings.ToUpper(e.Symbol)
		positions[key] = execution.Position{
			ID:         positionID(e.Symbol, side),
			Instrument: execution.Instrument{Symbol: e.Symbol},
			Side:       side,
			Quantity:   e.Quantity,
		}
	}
	return &Static{positions: positions}
}

// OpenPosition 返回预置持仓的副本。
func (s *Static) OpenPosition(_ context.Context, symbol string) (*execution.Position, error) {
	p, ok := s.positions[strings.ToUpper(symbol)]
	if !ok {
		return nil, nil
	}
	return &p, nil
}
