package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	MySQL   MySQLConfig   `mapstructure:"mysql"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Leader  LeaderConfig  `mapstructure:"leader"`
	ETCD    ETCDConfig    `mapstructure:"etcd"`
	Login   LoginConfig   `mapstructure:"login"`
	Gemini  GeminiConfig  `mapstructure:"gemini"`
	GraphQL GraphQLConfig `mapstructure:"graphql"`
}

type ServerConfig struct {
	Port        int `mapstructure:"port"`
	GraphQLPort int `mapstructure:"graphql_port"`
}

type MySQLConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Address    string        `mapstructure:"address"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	PoolSize   int           `mapstructure:"pool_size"`
	MaxRetries int           `mapstructure:"max_retries"`
	Timeout    time.Duration `mapstructure:"timeout"`

	// 广播总线使用的Pub/Sub频道
	Channel string `mapstructure:"channel"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// LeaderConfig 主节点选举配置
type LeaderConfig struct {
	// 锁后端: redis 或 etcd
	Backend  string        `mapstructure:"backend"`
	LockName string        `mapstructure:"lock_name"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type ETCDConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	SessionTTL  time.Duration `mapstructure:"session_ttl"`
}

type LoginConfig struct {
	// 登录RPC超时时间
	Timeout time.Duration `mapstructure:"timeout"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type GraphQLConfig struct {
	Path string `mapstructure:"path"`
}

var AppConfig Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if AppConfig.Login.Timeout <= 0 {
		AppConfig.Login.Timeout = 10 * time.Second
	}
	if AppConfig.Leader.LockName == "" {
		AppConfig.Leader.LockName = "hajz:leader:lock"
	}

	return &AppConfig, nil
}
