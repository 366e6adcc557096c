package execution

import (
	"math"
	"strings"
	"time"
)

// DefaultOCOQuantity 为止损止盈组合的默认手数。
const DefaultOCOQuantity = 3000.0

// BuilderOptions 控制请求构建行为。
type BuilderOptions struct {
	// OCOQuantity 为 OCOIntent 未指定手数时使用的默认值，<=0 时取 DefaultOCOQuantity。
	OCOQuantity float64
}

// Builder 校验交易意图并生成带命令编号的请求。
// 只有校验通过的意图才会消耗编号。
type Builder struct {
	seq  *Sequencer
	opts BuilderOptions
	now  func() time.Time
}

// NewBuilder 创建构建器，seq 为空时使用从 1 开始的新序列器。
func NewBuilder(seq *Sequencer, opts BuilderOptions) *Builder {
	if seq == nil {
		seq = NewSequencer(1)
	}
	if opts.OCOQuantity <= 0 || !finite(opts.OCOQuantity) {
		opts.OCOQuantity = DefaultOCOQuantity
	}
	return &Builder{
		seq:  seq,
		opts: opts,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// OCOQuantity 返回生效的默认组合手数。
func (b *Builder) OCOQuantity() float64 {
	return b.opts.OCOQuantity
}

// BuildPlace 校验并构建新建委托请求。
func (b *Builder) BuildPlace(account int64, intent PlaceIntent) (Request, error) {
	if strings.TrimSpace(intent.Instrument.Symbol) == "" {
		return Request{}, reject(ActionPlace, ReasonMissingInstrument)
	}
	if !intent.Side.valid() {
		return Request{}, reject(ActionPlace, ReasonInvalidSide)
	}
	if !positiveFinite(intent.Quantity) {
		return Request{}, reject(ActionPlace, ReasonInvalidQuantity)
	}
	if !finite(intent.LimitPrice) {
		return Request{}, reject(ActionPlace, ReasonInvalidLimitPrice)
	}

	switch intent.Kind {
	case OrderKindLimit:
		if intent.LimitPrice <= 0 {
			return Request{}, reject(ActionPlace, ReasonMissingLimitPrice)
		}
	case OrderKindMarket:
		if intent.LimitPrice != 0 {
			return Request{}, reject(ActionPlace, ReasonUnexpectedLimit)
		}
	default:
		return Request{}, reject(ActionPlace, ReasonUnsupportedKind)
	}

	leg := OrderLeg{
		Instrument: intent.Instrument,
		Side:       intent.Side,
		Kind:       intent.Kind,
		Duration:   durationOrDefault(intent.Duration, DurationDay),
		Quantity:   intent.Quantity,
		LimitPrice: intent.LimitPrice,
	}

	return b.stamp(account, PlaceAction{Leg: leg}), nil
}

// BuildModify 构建改单请求。改单一律按限价单处理，
// 除挂单引用外不做价格与数量校验，这一点与 BuildPlace 不同。
func (b *Builder) BuildModify(account int64, intent ModifyIntent) (Request, error) {
	if intent.Order == nil {
		return Request{}, reject(ActionModify, ReasonMissingOrder)
	}

	order := intent.Order
	leg := OrderLeg{
		Instrument: order.Instrument,
		Side:       order.Side,
		Kind:       OrderKindLimit,
		Duration:   intent.Duration,
		Quantity:   intent.Quantity,
		LimitPrice: intent.LimitPrice,
	}

	return b.stamp(account, ModifyAction{OrderID: order.ID, Leg: leg}), nil
}

// BuildOCO 围绕持仓构建止损止盈组合，两条腿均为平仓方向。
func (b *Builder) BuildOCO(account int64, intent OCOIntent) (Request, error) {
	if intent.Position == nil {
		return Request{}, reject(ActionOCOGroup, ReasonMissingPosition)
	}
	pos := intent.Position
	if !pos.Side.valid() {
		return Request{}, reject(ActionOCOGroup, ReasonInvalidPositionSide)
	}

	// 0 表示沿用默认数量。
	qty := intent.Quantity
	if qty == 0 {
		qty = b.opts.OCOQuantity
	} else if !positiveFinite(qty) {
		return Request{}, reject(ActionOCOGroup, ReasonInvalidQuantity)
	}
	closing := pos.Side.Opposite()

	action := OCOGroupAction{
		PositionID: pos.ID,
		StopLoss: OrderLeg{
			Instrument: pos.Instrument,
			Side:       closing,
			Kind:       OrderKindStop,
			Duration:   DurationGTC,
			Quantity:   qty,
			StopPrice:  intent.StopLossPrice,
		},
		TakeProfit: OrderLeg{
			Instrument: pos.Instrument,
			Side:       closing,
			Kind:       OrderKindLimit,
			Duration:   DurationGTC,
			Quantity:   qty,
			LimitPrice: intent.TakeProfitPrice,
		},
	}

	return b.stamp(account, action), nil
}

func (b *Builder) stamp(account int64, action Action) Request {
	return Request{
		AccountID: account,
		CommandID: b.seq.Next(),
		Action:    action,
		CreatedAt: b.now(),
	}
}

func durationOrDefault(d, fallback OrderDuration) OrderDuration {
	if d == "" {
		return fallback
	}
	return d
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func positiveFinite(v float64) bool {
	return v > 0 && finite(v)
}
