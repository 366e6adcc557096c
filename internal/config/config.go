package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	defaultEnvFile    = ".env"
	envPrefix         = "gateway"
)

// Load 读取配置文件并结合环境变量返回 Config。
// 优先级：环境变量 > .env > 配置文件 > 默认值。
func Load(path string) (*Config, error) {
	if err := loadEnvFile(defaultEnvFile); err != nil {
		return nil, err
	}

	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	cfg.Backend.Name = strings.ToLower(strings.TrimSpace(cfg.Backend.Name))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadEnvFile 加载 .env，文件不存在时忽略；已存在的环境变量不会被覆盖。
func loadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("读取 %s 失败: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("gateway.account_id", 0)
	v.SetDefault("gateway.oco_quantity", 3000.0)
	v.SetDefault("gateway.start_command_id", 1)
	v.SetDefault("gateway.log_rejections", true)

	v.SetDefault("backend.name", BackendPaper)
	v.SetDefault("backend.use_sandbox", false)
	v.SetDefault("backend.workers", 4)
	v.SetDefault("backend.queue_size", 256)
	v.SetDefault("backend.accept_timeout", "2s")
	v.SetDefault("backend.slippage", 0.01)
	v.SetDefault("backend.client_order_ids", true)
	v.SetDefault("backend.retry.max_attempts", 3)
	v.SetDefault("backend.retry.min_delay", "500ms")
	v.SetDefault("backend.retry.max_delay", "5s")

	v.SetDefault("paper.latency", "50ms")

	v.SetDefault("database.path", "data/order_gateway.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "5s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
