package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvConfigPath 指定配置文件路径的环境变量
const EnvConfigPath = "SCANSCALE_CONFIG"

// AppConfig 应用基础信息
type AppConfig struct {
	Name         string        `mapstructure:"name"`
	Env          string        `mapstructure:"env"`
	DeviceID     string        `mapstructure:"deviceId"`
	PollInterval time.Duration `mapstructure:"pollInterval"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Enable       bool          `mapstructure:"enable"`
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	Auth         AuthConfig    `mapstructure:"auth"`
	// TareRatePerMin 手动去皮接口每分钟请求上限，0 不限
	TareRatePerMin int `mapstructure:"tareRatePerMin"`
}

// AuthConfig HTTP API 认证
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	APIKeys []string `mapstructure:"apiKeys"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// SamplingConfig 日志采样，Initial 为 0 时关闭
type SamplingConfig struct {
	Initial    int `mapstructure:"initial"`
	Thereafter int `mapstructure:"thereafter"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level    string           `mapstructure:"level"`
	Format   string           `mapstructure:"format"`
	File     LumberjackConfig `mapstructure:"file"`
	Sampling SamplingConfig   `mapstructure:"sampling"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// SimulatorConfig 模拟读卡器脚本
type SimulatorConfig struct {
	Tags       []uint32      `mapstructure:"tags"`
	Hold       time.Duration `mapstructure:"hold"`
	FrameEvery time.Duration `mapstructure:"frameEvery"`
	Gap        time.Duration `mapstructure:"gap"`
	Loop       bool          `mapstructure:"loop"`
}

// ReaderConfig RFID 读卡器
type ReaderConfig struct {
	Driver      string          `mapstructure:"driver"` // serial | simulator
	Device      string          `mapstructure:"device"`
	Baud        int             `mapstructure:"baud"`
	ReadTimeout time.Duration   `mapstructure:"readTimeout"`
	ReopenDelay time.Duration   `mapstructure:"reopenDelay"`
	BufferSize  int             `mapstructure:"bufferSize"`
	Simulator   SimulatorConfig `mapstructure:"simulator"`
}

// SessionConfig 刷卡会话
type SessionConfig struct {
	Window      time.Duration `mapstructure:"window"`
	Debounce    time.Duration `mapstructure:"debounce"`
	SentinelTag uint64        `mapstructure:"sentinelTag"`
}

// LoadCellConfig 称重模块
type LoadCellConfig struct {
	Driver        string        `mapstructure:"driver"` // periph | simulator
	DoutPin       string        `mapstructure:"doutPin"`
	SckPin        string        `mapstructure:"sckPin"`
	ScaleDivisor  int32         `mapstructure:"scaleDivisor"`
	ReadTimeout   time.Duration `mapstructure:"readTimeout"`
	RefreshPeriod time.Duration `mapstructure:"refreshPeriod"`
	Invert        bool          `mapstructure:"invert"`
	TareOnStart   bool          `mapstructure:"tareOnStart"`
	SimulatedRaw  int32         `mapstructure:"simulatedRaw"`
	// MaxConsecutiveFaults 连续读数失败达到该次数时健康检查判定为不健康
	MaxConsecutiveFaults int `mapstructure:"maxConsecutiveFaults"`
}

// DisplayConfig 显示
type DisplayConfig struct {
	Log bool `mapstructure:"log"`
}

// CatalogConfig 卡号目录
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// UploadConfig Webhook 上传
type UploadConfig struct {
	Enable      bool          `mapstructure:"enable"`
	Mode        string        `mapstructure:"mode"` // direct | redis
	URL         string        `mapstructure:"url"`
	APIKey      string        `mapstructure:"apiKey"`
	Secret      string        `mapstructure:"secret"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Retries     int           `mapstructure:"retries"`
	RateLimit   float64       `mapstructure:"rateLimit"`
	Burst       int           `mapstructure:"burst"`
	MemoryQueue int           `mapstructure:"memoryQueue"`
	Workers     int           `mapstructure:"workers"`
	MaxRetries  int           `mapstructure:"maxRetries"`
	DedupTTL    time.Duration `mapstructure:"dedupTTL"`
	// 连续失败 BreakerThreshold 次后熔断 BreakerCooldown
	BreakerThreshold int           `mapstructure:"breakerThreshold"`
	BreakerCooldown  time.Duration `mapstructure:"breakerCooldown"`
}

// RedisConfig Redis 连接（仅 upload.mode=redis 使用）
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	KeyPrefix    string        `mapstructure:"keyPrefix"`
	DialTimeout  time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// Config 顶层配置结构
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Reader   ReaderConfig   `mapstructure:"reader"`
	Session  SessionConfig  `mapstructure:"session"`
	LoadCell LoadCellConfig `mapstructure:"loadcell"`
	Display  DisplayConfig  `mapstructure:"display"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// ErrInvalidConfig 配置校验失败
var ErrInvalidConfig = errors.New("invalid config")

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 SCANSCALE_CONFIG 读取；否则回退到 configs/example.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("example")
		v.SetConfigType("yaml")
	}

	// 默认值
	setDefaults(v)

	// 环境变量覆盖：前缀 SCANSCALE_，并将点号替换为下划线
	v.SetEnvPrefix("SCANSCALE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// 首次运行允许缺少配置文件，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验取值范围
func (c *Config) Validate() error {
	var problems []string
	if c.App.PollInterval <= 0 {
		problems = append(problems, "app.pollInterval must be > 0")
	}
	if c.Session.Window <= 0 {
		problems = append(problems, "session.window must be > 0")
	}
	if c.Session.Debounce <= 0 {
		problems = append(problems, "session.debounce must be > 0")
	}
	if c.LoadCell.ScaleDivisor == 0 {
		problems = append(problems, "loadcell.scaleDivisor must be non-zero")
	}
	if c.LoadCell.ReadTimeout <= 0 {
		problems = append(problems, "loadcell.readTimeout must be > 0")
	}
	switch c.Reader.Driver {
	case "serial":
		if c.Reader.Device == "" {
			problems = append(problems, "reader.device is required for the serial driver")
		}
	case "simulator":
	default:
		problems = append(problems, fmt.Sprintf("reader.driver %q is not serial|simulator", c.Reader.Driver))
	}
	switch c.LoadCell.Driver {
	case "periph":
		if c.LoadCell.DoutPin == "" || c.LoadCell.SckPin == "" {
			problems = append(problems, "loadcell.doutPin and loadcell.sckPin are required for the periph driver")
		}
	case "simulator":
	default:
		problems = append(problems, fmt.Sprintf("loadcell.driver %q is not periph|simulator", c.LoadCell.Driver))
	}
	if c.Upload.Enable {
		if c.Upload.URL == "" {
			problems = append(problems, "upload.url is required when upload is enabled")
		}
		switch c.Upload.Mode {
		case "direct":
		case "redis":
			if c.Redis.Addr == "" {
				problems = append(problems, "redis.addr is required for upload.mode=redis")
			}
		default:
			problems = append(problems, fmt.Sprintf("upload.mode %q is not direct|redis", c.Upload.Mode))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "scan-scale")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.deviceId", "scale-01")
	v.SetDefault("app.pollInterval", "5ms")

	v.SetDefault("http.enable", true)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")
	v.SetDefault("http.auth.enabled", false)
	v.SetDefault("http.tareRatePerMin", 30)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "logs/scan-scale.log")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("reader.driver", "serial")
	v.SetDefault("reader.device", "/dev/ttyS0")
	v.SetDefault("reader.baud", 9600)
	v.SetDefault("reader.readTimeout", "250ms")
	v.SetDefault("reader.reopenDelay", "900ms")
	v.SetDefault("reader.bufferSize", 256)
	v.SetDefault("reader.simulator.hold", "1s")
	v.SetDefault("reader.simulator.frameEvery", "100ms")
	v.SetDefault("reader.simulator.gap", "3s")
	v.SetDefault("reader.simulator.loop", true)

	v.SetDefault("session.window", "2s")
	v.SetDefault("session.debounce", "1s")
	v.SetDefault("session.sentinelTag", 10622595)

	v.SetDefault("loadcell.driver", "periph")
	v.SetDefault("loadcell.doutPin", "GPIO5")
	v.SetDefault("loadcell.sckPin", "GPIO6")
	v.SetDefault("loadcell.scaleDivisor", 100)
	v.SetDefault("loadcell.readTimeout", "500ms")
	v.SetDefault("loadcell.refreshPeriod", "20ms")
	v.SetDefault("loadcell.maxConsecutiveFaults", 50)
	v.SetDefault("loadcell.invert", true)
	v.SetDefault("loadcell.tareOnStart", true)

	v.SetDefault("display.log", true)

	v.SetDefault("logging.sampling.initial", 20)
	v.SetDefault("logging.sampling.thereafter", 100)
	v.SetDefault("upload.enable", false)
	v.SetDefault("upload.mode", "direct")
	v.SetDefault("upload.timeout", "10s")
	v.SetDefault("upload.retries", 3)
	v.SetDefault("upload.rateLimit", 5)
	v.SetDefault("upload.burst", 5)
	v.SetDefault("upload.memoryQueue", 32)
	v.SetDefault("upload.workers", 1)
	v.SetDefault("upload.maxRetries", 5)
	v.SetDefault("upload.dedupTTL", "1h")
	v.SetDefault("upload.breakerThreshold", 5)
	v.SetDefault("upload.breakerCooldown", "30s")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.keyPrefix", "scanscale:upload")
	v.SetDefault("redis.dialTimeout", "5s")
	v.SetDefault("redis.readTimeout", "3s")
	v.SetDefault("redis.writeTimeout", "3s")
}
