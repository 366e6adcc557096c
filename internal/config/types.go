package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// 支持的执行后端。
const (
	BackendPaper       = "paper"
	BackendHyperliquid = "hyperliquid"
	BackendBinanceUSDM = "binanceusdm"
)

// Config 聚合了网关运行所需的全部配置项。
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Paper    PaperConfig    `mapstructure:"paper"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// GatewayConfig 控制请求构建与编号。
type GatewayConfig struct {
	AccountID      int64   `mapstructure:"account_id"`
	OCOQuantity    float64 `mapstructure:"oco_quantity"`
	StartCommandID uint64  `mapstructure:"start_command_id"`
	LogRejections  bool    `mapstructure:"log_rejections"`
}

// BackendConfig 描述执行端交易所及受理队列。
type BackendConfig struct {
	Name           string        `mapstructure:"name"`
	APIKey         string        `mapstructure:"api_key"`
	APISecret      string        `mapstructure:"api_secret"`
	APIPass        string        `mapstructure:"api_password"`
	UseSandbox     bool          `mapstructure:"use_sandbox"`
	Wallet         string        `mapstructure:"wallet_address"`
	PrivateKey     string        `mapstructure:"private_key"`
	Workers        int           `mapstructure:"workers"`
	QueueSize      int           `mapstructure:"queue_size"`
	AcceptTimeout  time.Duration `mapstructure:"accept_timeout"`
	Slippage       float64       `mapstructure:"slippage"`
	ClientOrderIDs bool          `mapstructure:"client_order_ids"`
	Retry          RetryConfig   `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// PaperConfig 控制模拟后端。
type PaperConfig struct {
	Latency   time.Duration   `mapstructure:"latency"`
	Positions []PaperPosition `mapstructure:"positions"`
}

// PaperPosition 为模拟模式下预置的持仓，供组合单使用。
type PaperPosition struct {
	Symbol   string  `mapstructure:"symbol"`
	Side     string  `mapstructure:"side"`
	Quantity float64 `mapstructure:"quantity"`
}

// DatabaseConfig 管理审计库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// ServerConfig 控制 HTTP 接入。
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Validate 对配置进行基本校验，一次返回全部问题。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Gateway.AccountID < 0 {
		err = multierr.Append(err, errors.New("gateway.account_id 不能为负"))
	}
	if c.Gateway.OCOQuantity <= 0 {
		err = multierr.Append(err, errors.New("gateway.oco_quantity 必须大于0"))
	}

	switch strings.ToLower(c.Backend.Name) {
	case BackendPaper:
		if c.Paper.Latency < 0 {
			err = multierr.Append(err, errors.New("paper.latency 不能为负"))
		}
		for i, p := range c.Paper.Positions {
			if p.Symbol == "" || p.Quantity <= 0 {
				err = multierr.Append(err, fmt.Errorf("paper.positions[%d] 需要 symbol 与正数 quantity", i))
			}
			if side := strings.ToLower(p.Side); side != "long" && side != "short" {
				err = multierr.Append(err, fmt.Errorf("paper.positions[%d].side 必须为 long 或 short", i))
			}
		}
	case BackendHyperliquid:
		if c.Backend.Wallet == "" || c.Backend.PrivateKey == "" {
			err = multierr.Append(err, errors.New("hyperliquid 交易需要配置 wallet_address 与 private_key"))
		}
	case BackendBinanceUSDM:
		if c.Backend.APIKey == "" || c.Backend.APISecret == "" {
			err = multierr.Append(err, errors.New("binanceusdm 交易需要配置 api_key 与 api_secret"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("backend.name 不支持 %q", c.Backend.Name))
	}

	if c.Backend.Workers <= 0 {
		err = multierr.Append(err, errors.New("backend.workers 必须大于0"))
	}
	if c.Backend.QueueSize <= 0 {
		err = multierr.Append(err, errors.New("backend.queue_size 必须大于0"))
	}
	if c.Backend.AcceptTimeout <= 0 {
		err = multierr.Append(err, errors.New("backend.accept_timeout 必须大于0"))
	}
	if c.Backend.Slippage < 0 || c.Backend.Slippage > 0.2 {
		err = multierr.Append(err, errors.New("backend.slippage 应位于[0,0.2]"))
	}
	if c.Backend.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("backend.retry.max_attempts 必须大于0"))
	}
	if c.Backend.Retry.MinDelay <= 0 || c.Backend.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("backend.retry.delay 必须为正"))
	}
	if c.Backend.Retry.MinDelay > c.Backend.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("backend.retry.min_delay 不能大于 max_delay"))
	}

	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}

	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		err = multierr.Append(err, errors.New("server.port 必须位于(0,65535]"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		err = multierr.Append(err, errors.New("server.shutdown_timeout 必须大于0"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
