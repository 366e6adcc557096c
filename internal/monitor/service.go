package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"order-gateway/internal/execution"
	"order-gateway/internal/store"
)

// Service 将网关生命周期事件写入审计表。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ execution.Journal = (*Service)(nil)

// NewService 初始化审计服务，创建所需表结构。
func NewService(st *store.Store, logger *zap.Logger) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("monitor: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	err := st.Migrate(context.Background(),
		`CREATE TABLE IF NOT EXISTS gateway_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	command_id INTEGER NOT NULL DEFAULT 0,
	account_id INTEGER NOT NULL DEFAULT 0,
	action TEXT NOT NULL DEFAULT '',
	reason TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	request TEXT,
	created_at TEXT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_gateway_events_type ON gateway_events(event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_gateway_events_command ON gateway_events(command_id)`,
	)
	if err != nil {
		return nil, fmt.Errorf("monitor: 初始化表失败: %w", err)
	}

	return &Service{
		db:     st.DB(),
		logger: logger,
	}, nil
}

// Record 写入单个事件。
func (s *Service) Record(ctx context.Context, event execution.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	var request sql.NullString
	if event.Request != nil {
		payload, err := json.Marshal(event.Request)
		if err != nil {
			return fmt.Errorf("monitor: 序列化请求失败: %w", err)
		}
		request = sql.NullString{String: string(payload), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO gateway_events (event_type, command_id, account_id, action, reason, error, request, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(event.Type),
		int64(event.CommandID),
		event.AccountID,
		string(event.Action),
		event.Reason,
		event.Error,
		request,
		event.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("monitor: 写入事件失败: %w", err)
	}

	return nil
}

// RecordEvent 实现 execution.Journal，写入失败只记录告警。
func (s *Service) RecordEvent(ctx context.Context, event execution.Event) {
	if ctx == nil || ctx.Err() != nil {
		// 调用方的 ctx 已结束时仍要落盘终态。
		ctx = context.Background()
	}
	if err := s.Record(ctx, event); err != nil {
		s.logger.Warn("记录网关事件失败",
			zap.String("type", string(event.Type)),
			zap.Uint64("command_id", uint64(event.CommandID)),
			zap.Error(err),
		)
	}
}

// ListEvents 按条件检索最近事件，最新的在前。
func (s *Service) ListEvents(ctx context.Context, filter Filter) ([]Record, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	query := `SELECT id, event_type, command_id, account_id, action, reason, error, request, created_at FROM gateway_events WHERE 1=1`
	args := make([]interface{}, 0, 3)
	if filter.Type != "" {
		query += ` AND event_type = ?`
		args = append(args, string(filter.Type))
	}
	if filter.CommandID != 0 {
		query += ` AND command_id = ?`
		args = append(args, int64(filter.CommandID))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("monitor: 查询事件失败: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var (
			rec       Record
			typ       string
			commandID int64
			action    string
			request   sql.NullString
			created   string
		)
		if scanErr := rows.Scan(&rec.ID, &typ, &commandID, &rec.AccountID, &action, &rec.Reason, &rec.Error, &request, &created); scanErr != nil {
			return nil, fmt.Errorf("monitor: 解析事件失败: %w", scanErr)
		}

		ts, parseErr := time.Parse(time.RFC3339Nano, created)
		if parseErr != nil {
			s.logger.Warn("事件时间格式异常", zap.Int64("id", rec.ID), zap.String("created_at", created))
		}

		rec.Type = execution.EventType(typ)
		rec.CommandID = execution.CommandID(commandID)
		rec.Action = execution.ActionType(action)
		rec.Timestamp = ts
		if request.Valid {
			rec.Request = json.RawMessage(request.String)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("monitor: 读取事件失败: %w", err)
	}

	return records, nil
}
