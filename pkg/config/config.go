package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// scraperPlatforms are the platforms whose gateway URL can be set from the
// environment as SCRAPER_PLATFORMS_<NAME>.
var scraperPlatforms = []string{"tiktok", "instagram", "youtube", "x"}

var (
	config       = viper.New()
	configHolder atomic.Pointer[Config]
	configType   = "yaml"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	NodeID     int64  `mapstructure:"NODE_ID"`
	Otel       struct {
		Addr     string `mapstructure:"ADDR"`
		Insecure bool   `mapstructure:"INSECURE"`
	} `mapstructure:"OTEL"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		AutoMigrate    bool   `mapstructure:"AUTO_MIGRATE"`
		EnableMetrics  bool   `mapstructure:"ENABLE_METRICS"`
		EnableTracing  bool   `mapstructure:"ENABLE_TRACING"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Flagsmith struct {
		Addr   string `mapstructure:"ADDR"`
		ApiKey string `mapstructure:"API_KEY"`
	} `mapstructure:"FLAGSMITH"`
	Scraper  Scraper  `mapstructure:"SCRAPER"`
	Tracking Tracking `mapstructure:"TRACKING"`
}

// Scraper configures the measurement gateway. Platforms maps a platform name
// to a dedicated gateway base URL; platforms without an entry use BaseURL.
type Scraper struct {
	BaseURL   string            `mapstructure:"BASE_URL"`
	Token     string            `mapstructure:"TOKEN"`
	Timeout   time.Duration     `mapstructure:"TIMEOUT"`
	Platforms map[string]string `mapstructure:"PLATFORMS"`
}

type Tracking struct {
	MaxDuration  time.Duration `mapstructure:"MAX_DURATION"`
	MaxClips     int           `mapstructure:"MAX_CLIPS"`
	DelayBetween time.Duration `mapstructure:"DELAY_BETWEEN"`
	BatchSize    int           `mapstructure:"BATCH_SIZE"`
	Interval     time.Duration `mapstructure:"INTERVAL"`
	LockTTL      time.Duration `mapstructure:"LOCK_TTL"`
	ClipShareCap float64       `mapstructure:"CLIP_SHARE_CAP"`
	EnabledFlag  string        `mapstructure:"ENABLED_FLAG"`
}

var Module = fx.Module("config",
	fx.Provide(LoadConfig),
	fx.Invoke(registerWatcher),
)

// setDefaults registers every key. Unmarshal only sees keys viper already
// knows, so a key without a default is never read from the environment.
func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "creatorpay-engine")
	v.SetDefault("APP_VERSION", "")
	v.SetDefault("NODE_ID", 1)

	v.SetDefault("OTEL.ADDR", "")
	v.SetDefault("OTEL.INSECURE", false)

	v.SetDefault("HTTP_SERVER.ADDR", ":8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 10*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 10*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)

	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.HOST", "localhost")
	v.SetDefault("DATABASE.PORT", "5432")
	v.SetDefault("DATABASE.DBNAME", "")
	v.SetDefault("DATABASE.USER", "")
	v.SetDefault("DATABASE.PASSWORD", "")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("DATABASE.AUTO_MIGRATE", false)
	v.SetDefault("DATABASE.ENABLE_METRICS", false)
	v.SetDefault("DATABASE.ENABLE_TRACING", false)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_IDLE_CONN", 5)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_OPEN_CONNS", 20)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_LIFETIME", 30*time.Minute)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_IDLE_TIME", 5*time.Minute)

	v.SetDefault("REDIS.ADDR", "localhost:6379")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 5*time.Second)

	v.SetDefault("FLAGSMITH.ADDR", "")
	v.SetDefault("FLAGSMITH.API_KEY", "")

	v.SetDefault("SCRAPER.BASE_URL", "")
	v.SetDefault("SCRAPER.TOKEN", "")
	v.SetDefault("SCRAPER.TIMEOUT", 30*time.Second)
	for _, platform := range scraperPlatforms {
		key := "SCRAPER.PLATFORMS." + strings.ToUpper(platform)
		_ = v.BindEnv(key, strings.ReplaceAll(key, ".", "_"))
	}

	v.SetDefault("TRACKING.MAX_DURATION", 50*time.Minute)
	v.SetDefault("TRACKING.MAX_CLIPS", 500)
	v.SetDefault("TRACKING.DELAY_BETWEEN", 2*time.Second)
	v.SetDefault("TRACKING.BATCH_SIZE", 50)
	v.SetDefault("TRACKING.INTERVAL", time.Hour)
	v.SetDefault("TRACKING.LOCK_TTL", 55*time.Minute)
	v.SetDefault("TRACKING.CLIP_SHARE_CAP", 0.30)
	v.SetDefault("TRACKING.ENABLED_FLAG", "tracking_enabled")
}

func newViper(v *viper.Viper) {
	v.SetConfigName("config")
	v.SetConfigType(configType)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
}

// LoadConfig reads config.yaml and the environment into the process-wide
// holder. A missing config file is not an error; defaults and environment
// variables still apply.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		zap.L().Debug("[Config] no .env file loaded", zap.Error(err))
	}

	newViper(config)
	if err := config.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		zap.L().Warn("[Config] config file not found, using defaults and environment")
	}

	cfg, err := decode(config)
	if err != nil {
		return nil, err
	}

	configHolder.Store(cfg)
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Current returns the most recently loaded config. Values read through it pick
// up hot reloads; the *Config injected at startup does not.
func Current() *Config {
	return configHolder.Load()
}

func registerWatcher() {
	if config.ConfigFileUsed() == "" {
		return
	}

	config.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decode(config)
		if err != nil {
			zap.L().Error("[Config] rejected config reload", zap.String("file", e.Name), zap.Error(err))
			return
		}

		configHolder.Store(cfg)
		zap.L().Info("[Config] reloaded",
			zap.String("file", e.Name),
			zap.String("op", e.Op.String()),
			zap.Duration("tracking_max_duration", cfg.Tracking.MaxDuration),
			zap.Int("tracking_max_clips", cfg.Tracking.MaxClips),
		)
	})
	config.WatchConfig()
}
