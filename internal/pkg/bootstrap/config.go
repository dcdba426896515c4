// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 聚合了一个进程启动所需的全部配置。
// 各进程共享同一个配置文件，只读取自己关心的部分。
type Config struct {
	Infra struct {
		Mysql struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Redis struct {
			Addr string `yaml:"addr"`
			DB   int    `yaml:"db"`
		} `yaml:"redis"`
		Kafka struct {
			Brokers         []string `yaml:"brokers"`
			SettlementTopic string   `yaml:"settlementTopic"`
			SettlementDLT   string   `yaml:"settlementDlt"`
			ConsumerGroup   string   `yaml:"consumerGroup"`
		} `yaml:"kafka"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Zookeeper struct {
			Enabled bool     `yaml:"enabled"`
			Servers []string `yaml:"servers"`
		} `yaml:"zookeeper"`
	} `yaml:"infra"`

	Payment struct {
		AuthorizeURL string `yaml:"authorizeUrl"`
	} `yaml:"payment"`

	Reservation struct {
		HoldTTL       time.Duration `yaml:"holdTTL"`
		SweepInterval time.Duration `yaml:"sweepInterval"`
		SyncInterval  time.Duration `yaml:"syncInterval"`
		Queue         struct {
			MaxAttempts int           `yaml:"maxAttempts"`
			Backoff     time.Duration `yaml:"backoff"`
		} `yaml:"queue"`
		Janitor struct {
			Enabled   bool          `yaml:"enabled"`
			Interval  time.Duration `yaml:"interval"`
			Retention time.Duration `yaml:"retention"`
		} `yaml:"janitor"`
	} `yaml:"reservation"`
}

var (
	currentConfig Config
	configOnce    sync.Once
)

// Init 从 CONFIG_PATH 指向的 YAML 文件加载配置，并填充默认值。
// 必须在 StartService 之前调用。
func Init() {
	configOnce.Do(func() {
		path := getEnv("CONFIG_PATH", "configs/config.yaml")
		data, err := os.ReadFile(path)
		if err != nil {
			panic(fmt.Sprintf("FATAL: cannot read config file %s: %v", path, err))
		}
		if err := yaml.Unmarshal(data, &currentConfig); err != nil {
			panic(fmt.Sprintf("FATAL: cannot parse config file %s: %v", path, err))
		}
		applyDefaults(&currentConfig)
	})
}

// GetCurrentConfig 返回进程级配置。
func GetCurrentConfig() *Config {
	return &currentConfig
}

func applyDefaults(c *Config) {
	if c.Infra.Redis.Addr == "" {
		c.Infra.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	}
	if len(c.Infra.Kafka.Brokers) == 0 {
		c.Infra.Kafka.Brokers = []string{getEnv("KAFKA_BROKERS", "localhost:9092")}
	}
	if c.Infra.Kafka.SettlementTopic == "" {
		c.Infra.Kafka.SettlementTopic = "settlement-jobs"
	}
	if c.Infra.Kafka.SettlementDLT == "" {
		c.Infra.Kafka.SettlementDLT = "settlement-jobs-dlt"
	}
	if c.Infra.Kafka.ConsumerGroup == "" {
		c.Infra.Kafka.ConsumerGroup = "fulfillment-worker"
	}
	if c.Infra.Jaeger.Endpoint == "" {
		c.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces")
	}
	if c.Reservation.HoldTTL == 0 {
		c.Reservation.HoldTTL = 10 * time.Minute
	}
	if c.Reservation.SweepInterval == 0 {
		c.Reservation.SweepInterval = 30 * time.Second
	}
	if c.Reservation.SyncInterval == 0 {
		c.Reservation.SyncInterval = 5 * time.Minute
	}
	if c.Reservation.Queue.MaxAttempts == 0 {
		c.Reservation.Queue.MaxAttempts = 3
	}
	if c.Reservation.Queue.Backoff == 0 {
		c.Reservation.Queue.Backoff = time.Second
	}
	if c.Reservation.Janitor.Interval == 0 {
		c.Reservation.Janitor.Interval = 3 * time.Hour
	}
	if c.Reservation.Janitor.Retention == 0 {
		c.Reservation.Janitor.Retention = 24 * time.Hour
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
