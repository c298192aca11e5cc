package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Upstreams UpstreamsConfig `yaml:"upstreams"`
}

type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	LogLevel string `yaml:"log_level"`
	// CORSOrigins дополняют встроенный список фронтендов.
	CORSOrigins []string `yaml:"cors_origins"`
	// AdminToken лучше задавать через ADMIN_TOKEN, а не в файле.
	AdminToken string `yaml:"admin_token"`
}

type StoreConfig struct {
	Driver          string `yaml:"driver"` // "redis" | "postgres"
	SiteConfigKey   string `yaml:"site_config_key"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Addr (host:port) перекрывает Host/Port, приходит из REDIS_ADDR.
	Addr string `yaml:"addr"`
}

type KafkaConfig struct {
	Enabled                bool   `yaml:"enabled"`
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	ConfigUpdatedTopicName string `yaml:"config_updated_topic_name"`
	ConsumerGroupPrefix    string `yaml:"consumer_group_prefix"`
}

type UpstreamsConfig struct {
	Official OfficialConfig `yaml:"official"`
	Fallback FallbackConfig `yaml:"fallback"`
	// UTCOffsetHours — пояс для времени без зоны в ответах апстримов. nil — UTC+8.
	UTCOffsetHours *int `yaml:"utc_offset_hours"`
}

type OfficialConfig struct {
	BaseURL   string `yaml:"base_url"`
	Host      string `yaml:"host"`
	URLPath   string `yaml:"url_path"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type FallbackConfig struct {
	Endpoints          []FallbackEndpoint `yaml:"endpoints"`
	TimeoutMs          int                `yaml:"timeout_ms"`
	RateLimitPerMinute int64              `yaml:"rate_limit_per_minute"`
}

type FallbackEndpoint struct {
	BaseURL string `yaml:"base_url"`
	Origin  string `yaml:"origin"`
	Referer string `yaml:"referer"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}

// LoadDotEnv подгружает .env-файлы в окружение процесса. Отсутствующий файл не ошибка.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv перекрывает значения из файла переменными окружения.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv("CORS_ORIGINS")); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	if v := strings.TrimSpace(getenv("ADMIN_TOKEN")); v != "" {
		c.Server.AdminToken = v
	}
	if v := strings.TrimSpace(getenv("REDIS_ADDR")); v != "" {
		c.Redis.Addr = v
	}
	if v := strings.TrimSpace(getenv("LOG_LEVEL")); v != "" {
		c.Server.LogLevel = v
	}
}

func (c *Config) RedisAddr() string {
	if c.Redis.Addr != "" {
		return c.Redis.Addr
	}
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func (c *Config) PostgresDSN() string {
	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.Username, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.DBName, sslMode)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
