// internal/pkg/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 聚合了所有服务共享的基础设施配置。
// 读取顺序：CONFIG_FILE 指向的 YAML 文件 -> 环境变量覆盖 -> 内置默认值。
type Config struct {
	Infra struct {
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
		Mysql struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Kafka struct {
			Brokers []string `yaml:"brokers"`
		} `yaml:"kafka"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Zookeeper struct {
			Servers []string `yaml:"servers"`
		} `yaml:"zookeeper"`
		Nacos struct {
			Enabled     bool   `yaml:"enabled"`
			ServerAddrs string `yaml:"server_addrs"`
			Namespace   string `yaml:"namespace"`
			Group       string `yaml:"group"`
		} `yaml:"nacos"`
	} `yaml:"infra"`

	Lock struct {
		// Backend 可选 "redis" 或 "zookeeper"，默认 redis。
		Backend      string        `yaml:"backend"`
		LeaseTTL     time.Duration `yaml:"lease_ttl"`
		RetryBackoff time.Duration `yaml:"retry_backoff"`
	} `yaml:"lock"`

	Coupon struct {
		DrainInterval  time.Duration `yaml:"drain_interval"`
		DrainBatchSize int64         `yaml:"drain_batch_size"`
	} `yaml:"coupon"`

	Cache struct {
		LockWaitInterval   time.Duration `yaml:"lock_wait_interval"`
		LockTTL            time.Duration `yaml:"lock_ttl"`
		RefreshThreshold   float64       `yaml:"refresh_threshold"`
		RefreshProbability float64       `yaml:"refresh_probability"`
	} `yaml:"cache"`
}

var (
	current Config
	once    sync.Once
)

// Init 加载全局配置，进程内只执行一次。
func Init() {
	once.Do(func() {
		current = defaults()

		path := getEnv("CONFIG_FILE", "config.yaml")
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &current); err != nil {
				panic(fmt.Sprintf("invalid config file %s: %v", path, err))
			}
		}
		// 找不到配置文件不是错误，环境变量和默认值足够跑起来

		applyEnvOverrides(&current)
	})
}

// GetCurrentConfig 返回已加载的配置，调用前必须先 Init。
func GetCurrentConfig() *Config {
	return &current
}

func defaults() Config {
	var c Config
	c.Infra.Redis.Addr = "localhost:6379"
	c.Infra.Mysql.DSN = "root:root@tcp(localhost:3306)/flashmart?parseTime=true"
	c.Infra.Kafka.Brokers = []string{"localhost:9092"}
	c.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	c.Infra.Zookeeper.Servers = []string{"localhost:2181"}
	c.Infra.Nacos.Group = "DEFAULT_GROUP"
	c.Lock.Backend = "redis"
	c.Lock.LeaseTTL = 10 * time.Second
	c.Lock.RetryBackoff = 50 * time.Millisecond
	c.Coupon.DrainInterval = 1 * time.Second
	c.Coupon.DrainBatchSize = 100
	c.Cache.LockWaitInterval = 100 * time.Millisecond
	c.Cache.LockTTL = 3 * time.Second
	c.Cache.RefreshThreshold = 0.1
	c.Cache.RefreshProbability = 0.1
	return c
}

func applyEnvOverrides(c *Config) {
	c.Infra.Redis.Addr = getEnv("REDIS_ADDR", c.Infra.Redis.Addr)
	c.Infra.Mysql.DSN = getEnv("MYSQL_DSN", c.Infra.Mysql.DSN)
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		c.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	c.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", c.Infra.Jaeger.Endpoint)
	if v, ok := os.LookupEnv("ZOOKEEPER_SERVERS"); ok {
		c.Infra.Zookeeper.Servers = strings.Split(v, ",")
	}
	c.Infra.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", c.Infra.Nacos.ServerAddrs)
	c.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", c.Infra.Nacos.Namespace)
	c.Infra.Nacos.Group = getEnv("NACOS_GROUP", c.Infra.Nacos.Group)
	if os.Getenv("NACOS_ENABLED") == "true" {
		c.Infra.Nacos.Enabled = true
	}
	c.Lock.Backend = getEnv("LOCK_BACKEND", c.Lock.Backend)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
