package exchange

import (
	"context"
	"fmt"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"order-gateway/internal/config"
	"order-gateway/internal/execution"
)

// 组合单两条腿的 clientOrderId 后缀。
const (
	legMain       = "main"
	legStopLoss   = "sl"
	legTakeProfit = "tp"
)

// submitRequest 将请求映射为 ccxt 调用并等待交易所返回。
func (b *Backend) submitRequest(ctx context.Context, req execution.Request) error {
	fields := []zap.Field{
		zap.Uint64("command_id", uint64(req.CommandID)),
		zap.String("symbol", req.Action.Symbol()),
	}

	switch action := req.Action.(type) {
	case execution.PlaceAction:
		return b.retry.do(ctx, "place_"+string(action.Leg.Kind), fields, func() error {
			_, err := b.placeLeg(req, action.Leg, legMain, false)
			return err
		})
	case execution.ModifyAction:
		return b.retry.do(ctx, "edit_order", fields, func() error {
			leg := action.Leg
			_, err := b.client.EditOrder(
				action.OrderID,
				leg.Instrument.Symbol,
				string(execution.OrderKindLimit),
				string(leg.Side),
				ccxt.WithEditOrderAmount(leg.Quantity),
				ccxt.WithEditOrderPrice(leg.LimitPrice),
				ccxt.WithEditOrderParams(b.legParams(req, leg, legMain, false)),
			)
			return err
		})
	case execution.OCOGroupAction:
		return b.submitOCO(ctx, req, action, fields)
	default:
		return fmt.Errorf("%w: unknown action %T", ErrMalformedRequest, req.Action)
	}
}

// submitOCO 并发提交两条腿；若仅一条成功，撤销该腿，避免交易所上残留单边挂单。
func (b *Backend) submitOCO(ctx context.Context, req execution.Request, action execution.OCOGroupAction, fields []zap.Field) error {
	var (
		g              errgroup.Group
		stopID, tpID   string
		stopErr, tpErr error
	)
	g.Go(func() error {
		stopErr = b.retry.do(ctx, "oco_stop_loss", fields, func() error {
			id, err := b.placeLeg(req, action.StopLoss, legStopLoss, true)
			stopID = id
			return err
		})
		return nil
	})
	g.Go(func() error {
		tpErr = b.retry.do(ctx, "oco_take_profit", fields, func() error {
			id, err := b.placeLeg(req, action.TakeProfit, legTakeProfit, true)
			tpID = id
			return err
		})
		return nil
	})
	_ = g.Wait()

	switch {
	case stopErr == nil && tpErr == nil:
		return nil
	case stopErr != nil && tpErr != nil:
		return multierr.Combine(stopErr, tpErr)
	case stopErr != nil:
		return b.rollbackLeg(ctx, action.TakeProfit, tpID, legTakeProfit, stopErr, fields)
	default:
		return b.rollbackLeg(ctx, action.StopLoss, stopID, legStopLoss, tpErr, fields)
	}
}

// rollbackLeg 撤销已被交易所受理的单腿，返回值总是包含 cause。
func (b *Backend) rollbackLeg(ctx context.Context, leg execution.OrderLeg, orderID, tag string, cause error, fields []zap.Field) error {
	fields = append(fields, zap.String("leg", tag), zap.String("order_id", orderID))
	if orderID == "" {
		b.logger.Error("组合单单腿已提交但缺少订单ID，无法撤销", append(fields, zap.Error(cause))...)
		return fmt.Errorf("%w: %s leg id unknown: %w", ErrOCOLegOrphaned, tag, cause)
	}

	// 停机时仍需完成撤单。
	cctx := context.WithoutCancel(ctx)
	err := b.retry.do(cctx, "oco_cancel_"+tag, fields, func() error {
		_, err := b.client.CancelOrder(orderID,
			ccxt.WithCancelOrderSymbol(leg.Instrument.Symbol),
		)
		return err
	})
	if err != nil {
		b.logger.Error("组合单单腿撤销失败", append(fields, zap.Error(err))...)
		return fmt.Errorf("%w: %s leg %s: %w", ErrOCOLegOrphaned, tag, orderID, multierr.Combine(cause, err))
	}

	b.logger.Warn("组合单另一腿失败，已撤销", append(fields, zap.Error(cause))...)
	return fmt.Errorf("%w: %s leg %s canceled: %w", ErrOCOLegFailed, tag, orderID, cause)
}

func (b *Backend) placeLeg(req execution.Request, leg execution.OrderLeg, tag string, reduceOnly bool) (string, error) {
	symbol := leg.Instrument.Symbol
	side := string(leg.Side)
	params := b.legParams(req, leg, tag, reduceOnly)

	var (
		order ccxt.Order
		err   error
	)
	switch leg.Kind {
	case execution.OrderKindMarket:
		order, err = b.client.CreateMarketOrder(symbol, side, leg.Quantity, ccxt.WithCreateMarketOrderParams(params))
	case execution.OrderKindLimit:
		order, err = b.client.CreateLimitOrder(symbol, side, leg.Quantity, leg.LimitPrice, ccxt.WithCreateLimitOrderParams(params))
	case execution.OrderKindStop:
		params["stopLossPrice"] = leg.StopPrice
		order, err = b.client.CreateOrder(symbol, string(execution.OrderKindMarket), side, leg.Quantity,
			ccxt.WithCreateOrderPrice(leg.StopPrice),
			ccxt.WithCreateOrderParams(params),
		)
	default:
		err = fmt.Errorf("%w: unsupported order kind %q", ErrMalformedRequest, leg.Kind)
	}
	if err != nil {
		return "", err
	}
	if order.Id == nil {
		return "", nil
	}
	return *order.Id, nil
}

func (b *Backend) legParams(req execution.Request, leg execution.OrderLeg, tag string, reduceOnly bool) map[string]interface{} {
	params := make(map[string]interface{})
	if tif := timeInForce(leg.Duration); tif != "" {
		params["timeInForce"] = tif
	}
	if reduceOnly {
		params["reduceOnly"] = true
	}
	if tag != legMain && b.cfg.Name == config.BackendHyperliquid {
		// 挂在持仓上的止盈止损，持仓平掉后另一腿由交易所移除。
		params["grouping"] = "positionTpsl"
		if tag == legTakeProfit {
			params["takeProfitPrice"] = leg.LimitPrice
		}
	}
	if b.cfg.Slippage > 0 && leg.Kind != execution.OrderKindLimit {
		params["slippage"] = formatSlippage(b.cfg.Slippage)
	}
	if b.cfg.ClientOrderIDs {
		params["clientOrderId"] = b.clientOrderID(req.CommandID, tag)
	}
	return params
}

// clientOrderID 在本次进程内对同一命令与腿稳定，重试时交易所可据此去重；
// 以进程级随机命名空间区分重启前后的同号命令。
func (b *Backend) clientOrderID(id execution.CommandID, tag string) string {
	u := uuid.NewSHA1(b.session, []byte(fmt.Sprintf("%d/%s", id, tag)))
	return fmt.Sprintf("0x%x", u[:])
}

func timeInForce(d execution.OrderDuration) string {
	switch d {
	case execution.DurationGTC:
		return "GTC"
	case execution.DurationIOC:
		return "IOC"
	case execution.DurationFOK:
		return "FOK"
	default:
		// 永续合约没有当日有效，交给交易所默认值。
		return ""
	}
}

func formatSlippage(value float64) string {
	return fmt.Sprintf("%.6f", value)
}
