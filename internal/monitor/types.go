package monitor

import (
	"encoding/json"
	"time"

	"order-gateway/internal/execution"
)

// DefaultListLimit 为未指定条数时的查询上限。
const DefaultListLimit = 100

// MaxListLimit 为单次查询允许的最大条数。
const MaxListLimit = 1000

// Record 为审计表中的一行。
type Record struct {
	ID        int64                `json:"id"`
	Type      execution.EventType  `json:"type"`
	CommandID execution.CommandID  `json:"command_id,omitempty"`
	AccountID int64                `json:"account_id"`
	Action    execution.ActionType `json:"action"`
	Reason    string               `json:"reason,omitempty"`
	Error     string               `json:"error,omitempty"`
	Request   json.RawMessage      `json:"request,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// Filter 控制审计记录检索。
type Filter struct {
	Type      execution.EventType
	CommandID execution.CommandID
	Limit     int
}
