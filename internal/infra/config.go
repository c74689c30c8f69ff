package infra

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/xela07ax/crisisguard-client/internal/domain"
)

// Config — корневая структура конфигурации клиента.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Channel ChannelConfig `mapstructure:"channel"`
	Scanner ScannerConfig `mapstructure:"scanner"`
	Storage StorageConfig `mapstructure:"storage"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Console ConsoleConfig `mapstructure:"console"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// AgentConfig описывает REST-часть локального агента детекции.
type AgentConfig struct {
	BaseURL        string            `mapstructure:"base_url"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout"`
	PushOnStart    bool              `mapstructure:"push_on_start"` // Отправить rates при старте демона
	Rates          domain.RateConfig `mapstructure:"rates"`
}

// ChannelConfig — управляющий WebSocket-канал.
type ChannelConfig struct {
	URL               string        `mapstructure:"url"`
	Hello             string        `mapstructure:"hello"`
	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`

	// Задержка переподключения = min(BackoffMax, BackoffBase * counter), counter <= BackoffCeiling
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
	BackoffCeiling int           `mapstructure:"backoff_ceiling"`
}

// ScannerConfig — сервис классификации ссылок и поведение подсказки.
type ScannerConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryAttempts  uint          `mapstructure:"retry_attempts"` // Повторы только при 429 (Retry-After)

	// Ограничение нагрузки на сервис классификации
	RateLimit float64 `mapstructure:"rate_limit"` // запросов в секунду, 0 — без лимита
	RateBurst int     `mapstructure:"rate_burst"`

	// Настройки Circuit Breaker для сервиса классификации
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
	CBMaxFailures uint32        `mapstructure:"cb_max_failures"`

	FlashDuration time.Duration `mapstructure:"flash_duration"` // Авто-скрытие подсказки для INSECURE
	FadeDuration  time.Duration `mapstructure:"fade_duration"`
}

// StorageConfig — где живет слот последней тревоги и журнал вердиктов.
type StorageConfig struct {
	Driver string      `mapstructure:"driver"` // sqlite, postgres, redis
	DSN    string      `mapstructure:"dsn"`    // путь к файлу sqlite или URL postgres
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig описывает подключение к Redis (слот тревоги и Pub/Sub).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NotifyConfig struct {
	Backend string        `mapstructure:"backend"` // dbus, log
	AppName string        `mapstructure:"app_name"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ConsoleConfig — локальный HTTP API для UI-коллабораторов.
type ConsoleConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// Если оба пусты, авторизация выключена (API слушает только loopback)
	PublicKeyPath string `mapstructure:"public_key_path"`
	APIKeyHash    string `mapstructure:"api_key_hash"` // bcrypt
	PublicKey     []byte
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// ConfigLoader держит экземпляр viper, чтобы можно было следить за файлом.
type ConfigLoader struct {
	v  *viper.Viper
	mu sync.Mutex
}

// NewConfigLoader настраивает поиск файла и ENV. path может быть пустым.
func NewConfigLoader(path string) *ConfigLoader {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".crisisguard"))
		}
	}

	// CHANNEL_URL=ws://... перекроет channel.url
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	return &ConfigLoader{v: v}
}

// LoadConfig — короткий путь для команд, которым не нужен watch.
func LoadConfig(path string) (*Config, error) {
	return NewConfigLoader(path).Load()
}

// Load читает файл (если он есть) и собирает Config.
func (l *ConfigLoader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}
	return l.decode()
}

func (l *ConfigLoader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	cfg.Console.PublicKey = loadKeyResource(cfg.Console.PublicKeyPath, "CONSOLE_PUBLIC_KEY_DATA")
	return &cfg, nil
}

// Watch вызывает onChange с перечитанным конфигом при каждом изменении файла.
// Без файла (только ENV) следить не за чем.
func (l *ConfigLoader) Watch(onChange func(*Config, error)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		l.mu.Lock()
		cfg, err := l.decode()
		l.mu.Unlock()
		onChange(cfg, err)
	})
	l.v.WatchConfig()
}

// ConfigFileUsed — путь к прочитанному файлу, пусто если конфиг из ENV.
func (l *ConfigLoader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	// Порты и пути как у агента crisisguard
	v.SetDefault("agent.base_url", "http://127.0.0.1:8000")
	v.SetDefault("agent.request_timeout", 10*time.Second)
	v.SetDefault("agent.rates.files_modified_threshold", 5)
	v.SetDefault("agent.rates.time_window_seconds", 15)
	v.SetDefault("agent.rates.bytes_written_threshold", 10*1024)
	v.SetDefault("agent.rates.renames_threshold", 2)
	v.SetDefault("agent.rates.entropy_threshold", 2.0)

	v.SetDefault("channel.url", "ws://127.0.0.1:8000/ws")
	v.SetDefault("channel.hello", "Hello from CrisisGuard client")
	v.SetDefault("channel.keepalive_interval", 15*time.Second)
	v.SetDefault("channel.write_timeout", 5*time.Second)
	v.SetDefault("channel.backoff_base", 2*time.Second)
	v.SetDefault("channel.backoff_max", 30*time.Second)
	v.SetDefault("channel.backoff_ceiling", 16)

	v.SetDefault("scanner.base_url", "http://127.0.0.1:8080")
	v.SetDefault("scanner.request_timeout", 10*time.Second)
	v.SetDefault("scanner.retry_attempts", 2)
	v.SetDefault("scanner.rate_limit", 20)
	v.SetDefault("scanner.rate_burst", 5)
	v.SetDefault("scanner.cb_max_requests", 1)
	v.SetDefault("scanner.cb_interval", 60*time.Second)
	v.SetDefault("scanner.cb_timeout", 30*time.Second)
	v.SetDefault("scanner.cb_max_failures", 5)
	v.SetDefault("scanner.flash_duration", 3*time.Second)
	v.SetDefault("scanner.fade_duration", 200*time.Millisecond)

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", defaultStatePath())
	v.SetDefault("storage.redis.addr", "localhost:6379")

	v.SetDefault("notify.backend", "dbus")
	v.SetDefault("notify.app_name", "CrisisGuard")
	v.SetDefault("notify.timeout", 6*time.Second)

	v.SetDefault("console.addr", "127.0.0.1:8787")
	v.SetDefault("console.read_timeout", 5*time.Second)
	v.SetDefault("console.write_timeout", 30*time.Second)

	v.SetDefault("metrics.addr", "127.0.0.1:9090")
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "crisisguard-state.db"
	}
	return filepath.Join(home, ".crisisguard", "state.db")
}

// loadKeyResource — ключ либо целиком из ENV, либо из файла по пути
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
