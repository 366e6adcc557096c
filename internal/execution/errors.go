package execution

import (
	"errors"
	"fmt"
)

var (
	// ErrRejected 表示交易意图参数自相矛盾，未生成请求。
	ErrRejected = errors.New("execution: order intent rejected")
	// ErrAccountUnset 表示尚未绑定账户。
	ErrAccountUnset = errors.New("execution: account id not set")
	// ErrAccountBound 表示账户已绑定，不支持运行中切换。
	ErrAccountBound = errors.New("execution: account id already bound")
	// ErrInvalidAccount 表示账户编号非法。
	ErrInvalidAccount = errors.New("execution: account id must be positive")
	// ErrExecutionFailed 为后端未给出原因时的默认失败原因。
	ErrExecutionFailed = errors.New("execution: request failed without cause")
	// ErrSubmitPanic 表示后端受理时发生 panic。
	ErrSubmitPanic = errors.New("execution: backend panicked on submit")
)

// 拒单原因。
const (
	ReasonMissingLimitPrice   = "limit order requires a positive limit price"
	ReasonUnexpectedLimit     = "market order must not carry a limit price"
	ReasonInvalidQuantity     = "quantity must be positive and finite"
	ReasonInvalidLimitPrice   = "limit price must be finite"
	ReasonMissingInstrument   = "instrument symbol is required"
	ReasonInvalidSide         = "order side must be buy or sell"
	ReasonUnsupportedKind     = "order kind must be market or limit"
	ReasonMissingOrder        = "order to modify is required"
	ReasonMissingPosition     = "position is required for an oco group"
	ReasonInvalidPositionSide = "position side must be buy or sell"
)

// RejectionError 携带拒单原因，errors.Is(err, ErrRejected) 为真。
type RejectionError struct {
	Action ActionType
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("execution: %s rejected: %s", e.Action, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return ErrRejected
}

func reject(action ActionType, reason string) error {
	return &RejectionError{Action: action, Reason: reason}
}

// RejectionReason 提取拒单原因，非拒单错误返回空串。
func RejectionReason(err error) string {
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		return rejection.Reason
	}
	return ""
}
