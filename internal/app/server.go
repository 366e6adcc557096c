package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"order-gateway/internal/config"
	"order-gateway/internal/execution"
	"order-gateway/internal/monitor"
	"order-gateway/internal/position"
)

type orderGateway interface {
	execution.Trader
	Stats() execution.Stats
}

type eventLister interface {
	ListEvents(ctx context.Context, filter monitor.Filter) ([]monitor.Record, error)
}

// server 为网关的 HTTP 接入层。
type server struct {
	gateway   orderGateway
	positions position.Finder
	events    eventLister
	cfg       config.ServerConfig
	logger    *zap.Logger
	router    *mux.Router
}

func newServer(gw orderGateway, positions position.Finder, events eventLister, cfg config.ServerConfig, logger *zap.Logger) *server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &server{
		gateway:   gw,
		positions: positions,
		events:    events,
		cfg:       cfg,
		logger:    logger,
		router:    mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *server) routes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orders", s.handlePlaceOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}", s.handleModifyOrder).Methods(http.MethodPut)
	api.HandleFunc("/oco", s.handleOCOOrder).Methods(http.MethodPost)

	api.HandleFunc("/events", s.handleListEvents).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
}

func (s *server) handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(s.router)
}

// Run 启动 HTTP 服务并阻塞到 ctx 结束。
func (s *server) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("HTTP 接口已启动", zap.String("addr", addr))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP 服务异常: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("关闭 HTTP 服务失败", zap.Error(err))
		return err
	}
	return nil
}

type placeOrderBody struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Duration   string  `json:"duration"`
	Kind       string  `json:"kind"`
	Quantity   float64 `json:"quantity"`
	LimitPrice float64 `json:"limit_price"`
}

type modifyOrderBody struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Duration   string  `json:"duration"`
	Quantity   float64 `json:"quantity"`
	LimitPrice float64 `json:"limit_price"`
}

type ocoOrderBody struct {
	Symbol          string  `json:"symbol"`
	StopLossPrice   float64 `json:"stop_loss_price"`
	TakeProfitPrice float64 `json:"take_profit_price"`
	Quantity        float64 `json:"quantity"`
}

type acceptedResponse struct {
	CommandID execution.CommandID `json:"command_id"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func (s *server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var body placeOrderBody
	if !s.decode(w, r, &body) {
		return
	}

	id, err := s.gateway.PlaceOrder(r.Context(), execution.PlaceIntent{
		Instrument: execution.Instrument{Symbol: body.Symbol},
		Side:       execution.OrderSide(strings.ToLower(body.Side)),
		Duration:   execution.OrderDuration(strings.ToLower(body.Duration)),
		Kind:       execution.OrderKind(strings.ToLower(body.Kind)),
		Quantity:   body.Quantity,
		LimitPrice: body.LimitPrice,
	})
	s.respondCommand(w, id, err)
}

func (s *server) handleModifyOrder(w http.ResponseWriter, r *http.Request) {
	var body modifyOrderBody
	if !s.decode(w, r, &body) {
		return
	}

	order := &execution.Order{
		ID:         mux.Vars(r)["id"],
		Instrument: execution.Instrument{Symbol: body.Symbol},
		Side:       execution.OrderSide(strings.ToLower(body.Side)),
	}
	id, err := s.gateway.ModifyOrder(r.Context(), execution.ModifyIntent{
		Order:      order,
		Duration:   execution.OrderDuration(strings.ToLower(body.Duration)),
		Quantity:   body.Quantity,
		LimitPrice: body.LimitPrice,
	})
	s.respondCommand(w, id, err)
}

func (s *server) handleOCOOrder(w http.ResponseWriter, r *http.Request) {
	var body ocoOrderBody
	if !s.decode(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Symbol) == "" {
		respondError(w, http.StatusBadRequest, "symbol is required", "")
		return
	}

	// 无持仓时交给构建器拒单，保持审计记录一致。
	pos, err := s.positions.OpenPosition(r.Context(), body.Symbol)
	if err != nil {
		s.logger.Warn("查询持仓失败", zap.String("symbol", body.Symbol), zap.Error(err))
		respondError(w, http.StatusBadGateway, "position lookup failed", err.Error())
		return
	}

	id, err := s.gateway.OCOOrder(r.Context(), execution.OCOIntent{
		Position:        pos,
		StopLossPrice:   body.StopLossPrice,
		TakeProfitPrice: body.TakeProfitPrice,
		Quantity:        body.Quantity,
	})
	s.respondCommand(w, id, err)
}

func (s *server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := monitor.Filter{
		Type: execution.EventType(strings.ToLower(strings.TrimSpace(q.Get("type")))),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", v)
			return
		}
		filter.Limit = n
	}
	if v := q.Get("command_id"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid command_id", v)
			return
		}
		filter.CommandID = execution.CommandID(n)
	}

	records, err := s.events.ListEvents(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list events failed", err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, records)
}

func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, s.gateway.Stats())
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

func (s *server) respondCommand(w http.ResponseWriter, id execution.CommandID, err error) {
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusAccepted, acceptedResponse{CommandID: id})
	case errors.Is(err, execution.ErrRejected):
		respondError(w, http.StatusUnprocessableEntity, "intent rejected", execution.RejectionReason(err))
	case errors.Is(err, execution.ErrAccountUnset):
		respondError(w, http.StatusConflict, "account not bound", "")
	default:
		s.logger.Error("处理下单请求失败", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error", "")
	}
}

func (s *server) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("写入响应失败", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, msg, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg, Reason: reason})
}
