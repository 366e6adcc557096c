package execution

import (
	"time"
)

// CommandID 为单个网关实例内单调递增的命令编号，仅用于日志与结果关联。
type CommandID uint64

// OrderSide 表示下单方向。
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite 返回平仓方向。
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

func (s OrderSide) valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// OrderKind 表示委托类型。
type OrderKind string

const (
	OrderKindMarket OrderKind = "market"
	OrderKindLimit  OrderKind = "limit"
	OrderKindStop   OrderKind = "stop"
)

// OrderDuration 表示委托有效期。
type OrderDuration string

const (
	DurationDay OrderDuration = "day"
	DurationGTC OrderDuration = "gtc"
	DurationIOC OrderDuration = "ioc"
	DurationFOK OrderDuration = "fok"
)

// Instrument 标识交易标的。
type Instrument struct {
	Symbol string `json:"symbol"`
}

// Order 为交易所上已存在的挂单引用。
type Order struct {
	ID         string        `json:"id"`
	Instrument Instrument    `json:"instrument"`
	Side       OrderSide     `json:"side"`
	Kind       OrderKind     `json:"kind"`
	Duration   OrderDuration `json:"duration"`
	Quantity   float64       `json:"quantity"`
	LimitPrice float64       `json:"limit_price"`
}

// Position 为当前持仓引用，Side 为开仓方向。
type Position struct {
	ID         string     `json:"id"`
	Instrument Instrument `json:"instrument"`
	Side       OrderSide  `json:"side"`
	Quantity   float64    `json:"quantity"`
}

// PlaceIntent 描述新建委托意图。LimitPrice 为 0 表示不带限价。
type PlaceIntent struct {
	Instrument Instrument
	Side       OrderSide
	Duration   OrderDuration
	Kind       OrderKind
	Quantity   float64
	LimitPrice float64
}

// ModifyIntent 描述改单意图。
type ModifyIntent struct {
	Order      *Order
	Duration   OrderDuration
	Quantity   float64
	LimitPrice float64
}

// OCOIntent 描述围绕持仓的止损止盈组合。Quantity 为 0 时使用网关默认手数。
type OCOIntent struct {
	Position        *Position
	StopLossPrice   float64
	TakeProfitPrice float64
	Quantity        float64
}

// ActionType 标识请求变体。
type ActionType string

const (
	ActionPlace    ActionType = "place"
	ActionModify   ActionType = "modify"
	ActionOCOGroup ActionType = "oco_group"
)

// Action 为请求携带的具体动作，仅由本包内的三种变体实现。
type Action interface {
	Type() ActionType
	Symbol() string
	isAction()
}

// OrderLeg 为一笔完整的委托参数。
type OrderLeg struct {
	Instrument Instrument    `json:"instrument"`
	Side       OrderSide     `json:"side"`
	Kind       OrderKind     `json:"kind"`
	Duration   OrderDuration `json:"duration"`
	Quantity   float64       `json:"quantity"`
	LimitPrice float64       `json:"limit_price,omitempty"`
	StopPrice  float64       `json:"stop_price,omitempty"`
}

// PlaceAction 新建委托。
type PlaceAction struct {
	Leg OrderLeg `json:"leg"`
}

func (PlaceAction) Type() ActionType { return ActionPlace }
func (a PlaceAction) Symbol() string { return a.Leg.Instrument.Symbol }
func (PlaceAction) isAction() {}

// ModifyAction 修改已有挂单，Leg 为修改后的参数。
type ModifyAction struct {
	OrderID string   `json:"order_id"`
	Leg     OrderLeg `json:"leg"`
}

func (ModifyAction) Type() ActionType { return ActionModify }
func (a ModifyAction) Symbol() string { return a.Leg.Instrument.Symbol }
func (ModifyAction) isAction() {}

// OCOGroupAction 一组互斥的止损单与止盈单。
type OCOGroupAction struct {
	PositionID string   `json:"position_id,omitempty"`
	StopLoss   OrderLeg `json:"stop_loss"`
	TakeProfit OrderLeg `json:"take_profit"`
}

func (OCOGroupAction) Type() ActionType { return ActionOCOGroup }
func (a OCOGroupAction) Symbol() string { return a.StopLoss.Instrument.Symbol }
func (OCOGroupAction) isAction() {}

// Request 为已校验、可提交的执行请求，构建后不可修改。
type Request struct {
	AccountID int64     `json:"account_id"`
	CommandID CommandID `json:"command_id"`
	Action    Action    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}

// Outcome 为后端异步返回的终态结果。
type Outcome struct {
	CommandID   CommandID
	Success     bool
	Cause       error
	CompletedAt time.Time
}

// EventType 表示网关生命周期事件类型。
type EventType string

const (
	EventRejected     EventType = "rejected"
	EventExecuting    EventType = "executing"
	EventSubmitFailed EventType = "submit_failed"
	EventSucceeded    EventType = "succeeded"
	EventFailed       EventType = "failed"
)

// Event 为写入审计日志的记录。
type Event struct {
	Type      EventType  `json:"type"`
	CommandID CommandID  `json:"command_id,omitempty"`
	AccountID int64      `json:"account_id"`
	Action    ActionType `json:"action"`
	Reason    string     `json:"reason,omitempty"`
	Error     string     `json:"error,omitempty"`
	Request   *Request   `json:"request,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}
