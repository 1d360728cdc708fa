// internal/pkg/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration 在 YAML 中以字符串书写，例如 "300s"。
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	App         AppConfig         `yaml:"app"`
	Infra       InfraConfig       `yaml:"infra"`
	Reservation ReservationConfig `yaml:"reservation"`
}

type AppConfig struct {
	Name     string `yaml:"name"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	// Workers 限制同时运行的 saga 数量
	Workers int `yaml:"workers"`
}

type InfraConfig struct {
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Mysql     MysqlConfig     `yaml:"mysql"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
	Nacos     NacosConfig     `yaml:"nacos"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type KafkaConfig struct {
	Brokers []string     `yaml:"brokers"`
	GroupID string       `yaml:"group_id"`
	Topics  TopicsConfig `yaml:"topics"`
}

type TopicsConfig struct {
	OrderCreated      string `yaml:"order_created"`
	ReservationMade   string `yaml:"reservation_made"`
	ReservationFailed string `yaml:"reservation_failed"`
	DeadLetter        string `yaml:"dead_letter"`
}

type RedisConfig struct {
	Addr           string   `yaml:"addr"`
	Password       string   `yaml:"password"`
	DB             int      `yaml:"db"`
	IdempotencyTTL Duration `yaml:"idempotency_ttl"`
}

type MysqlConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	Database    string `yaml:"database"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

type ZookeeperConfig struct {
	Servers        []string `yaml:"servers"`
	SessionTimeout Duration `yaml:"session_timeout"`
}

type NacosConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServerAddrs string `yaml:"server_addrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
}

type ReservationConfig struct {
	// LockBackend 取值 zookeeper / redis / memory
	LockBackend       string   `yaml:"lock_backend"`
	LockTTL           Duration `yaml:"lock_ttl"`
	LockWait          Duration `yaml:"lock_wait"`
	SortLockKeys      bool     `yaml:"sort_lock_keys"`
	ProcessingTimeout Duration `yaml:"processing_timeout"`
}

// Default 返回本地开发环境下可直接使用的配置。
func Default() *Config {
	return &Config{
		App: AppConfig{Name: "reservation-service", Port: 8081, LogLevel: "info", Workers: 8},
		Infra: InfraConfig{
			Jaeger: JaegerConfig{Endpoint: "http://localhost:14268/api/traces"},
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				GroupID: "reservation-service",
				Topics: TopicsConfig{
					OrderCreated:      "order-created",
					ReservationMade:   "reservation-made",
					ReservationFailed: "reservation-failed",
					DeadLetter:        "reservation-dlt",
				},
			},
			Redis:     RedisConfig{Addr: "localhost:6379", IdempotencyTTL: Duration(24 * time.Hour)},
			Mysql:     MysqlConfig{Host: "localhost", Port: 3306, User: "root", Database: "warehouse"},
			Zookeeper: ZookeeperConfig{Servers: []string{"localhost:2181"}, SessionTimeout: Duration(5 * time.Second)},
			Nacos:     NacosConfig{ServerAddrs: "localhost:8848", Group: "DEFAULT_GROUP"},
		},
		Reservation: ReservationConfig{
			LockBackend:       "zookeeper",
			LockTTL:           Duration(300 * time.Second),
			LockWait:          Duration(30 * time.Second),
			ProcessingTimeout: Duration(60 * time.Second),
		},
	}
}

// Load 读取 YAML 配置并叠加环境变量。path 为空时只使用默认值和环境变量。
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv 读取 CONFIG_FILE 指定的配置文件。
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv("CONFIG_FILE"))
}

func (c *Config) applyEnv() error {
	setString(&c.App.LogLevel, "LOG_LEVEL")
	setString(&c.Infra.Jaeger.Endpoint, "JAEGER_ENDPOINT")
	setList(&c.Infra.Kafka.Brokers, "KAFKA_BROKERS")
	setString(&c.Infra.Redis.Addr, "REDIS_ADDR")
	setString(&c.Infra.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Infra.Mysql.Host, "MYSQL_HOST")
	setString(&c.Infra.Mysql.User, "MYSQL_USER")
	setString(&c.Infra.Mysql.Password, "MYSQL_PASSWORD")
	setString(&c.Infra.Mysql.Database, "MYSQL_DATABASE")
	setList(&c.Infra.Zookeeper.Servers, "ZK_SERVERS")
	setString(&c.Infra.Nacos.ServerAddrs, "NACOS_SERVER_ADDRS")
	setString(&c.Infra.Nacos.Namespace, "NACOS_NAMESPACE")
	setString(&c.Infra.Nacos.Group, "NACOS_GROUP")
	setString(&c.Reservation.LockBackend, "LOCK_BACKEND")

	if v, ok := os.LookupEnv("APP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid APP_PORT %q: %w", v, err)
		}
		c.App.Port = port
	}
	if v, ok := os.LookupEnv("MYSQL_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MYSQL_PORT %q: %w", v, err)
		}
		c.Infra.Mysql.Port = port
	}
	if v, ok := os.LookupEnv("NACOS_ENABLED"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid NACOS_ENABLED %q: %w", v, err)
		}
		c.Infra.Nacos.Enabled = enabled
	}
	return nil
}

// Validate 检查启动所需的最小配置。锁后端名称由组装根解析。
func (c *Config) Validate() error {
	switch {
	case c.App.Port <= 0:
		return fmt.Errorf("app.port must be positive, got %d", c.App.Port)
	case c.App.Workers <= 0:
		return fmt.Errorf("app.workers must be positive, got %d", c.App.Workers)
	case len(c.Infra.Kafka.Brokers) == 0:
		return fmt.Errorf("infra.kafka.brokers must not be empty")
	case c.Infra.Kafka.Topics.OrderCreated == "":
		return fmt.Errorf("infra.kafka.topics.order_created must not be empty")
	case c.Reservation.LockTTL <= 0:
		return fmt.Errorf("reservation.lock_ttl must be positive")
	case c.Reservation.LockWait <= 0:
		return fmt.Errorf("reservation.lock_wait must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	var items []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	*dst = items
}
