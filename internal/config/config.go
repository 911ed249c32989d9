package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

type MQTTConfig struct {
	BrokerURL string `yaml:"broker_url"`
	ClientID  string `yaml:"client_id"`
	Topic     string `yaml:"topic"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Enabled bool   `yaml:"enabled"`
}

type IngestConfig struct {
	QueueSize    int           `yaml:"queue_size"`
	Writers      int           `yaml:"writers"`
	WriteRetries int           `yaml:"write_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ResolverSize int           `yaml:"resolver_size"`
	ResolverTTL  time.Duration `yaml:"resolver_ttl"`
}

type AnalyticsConfig struct {
	Timezone          string        `yaml:"timezone"`
	OccupancyCacheTTL time.Duration `yaml:"occupancy_cache_ttl"`
	LiveInterval      time.Duration `yaml:"live_interval"`
}

type RetentionConfig struct {
	Days      int `yaml:"days"`
	BatchSize int `yaml:"batch_size"`
}

type BridgeConfig struct {
	Addr  string `yaml:"addr"`
	Topic string `yaml:"topic"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	NATS      NATSConfig      `yaml:"nats"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Retention RetentionConfig `yaml:"retention"`
	Bridge    BridgeConfig    `yaml:"bridge"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			Name:    "crosscount",
			SSLMode: "disable",
		},
		Redis: RedisConfig{Addr: "localhost:6379", Enabled: true},
		MQTT: MQTTConfig{
			BrokerURL: "tcp://localhost:1883",
			ClientID:  "crosscount-ingest",
			Topic:     "alert",
		},
		NATS: NATSConfig{URL: "nats://localhost:4222", Subject: "crosscount.events"},
		Ingest: IngestConfig{
			QueueSize:    1024,
			Writers:      4,
			WriteRetries: 2,
			RetryBackoff: time.Second,
			WriteTimeout: 5 * time.Second,
			ResolverSize: 512,
			ResolverTTL:  time.Minute,
		},
		Analytics: AnalyticsConfig{
			Timezone:          "Local",
			OccupancyCacheTTL: 10 * time.Second,
			LiveInterval:      5 * time.Second,
		},
		Retention: RetentionConfig{Days: 90, BatchSize: 10000},
		Bridge:    BridgeConfig{Addr: ":8081", Topic: "alert"},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error; env-only
// deployments are common.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Database.Host, "DB_HOST")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.Name, "DB_NAME")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.MQTT.BrokerURL, "MQTT_BROKER_URL")
	setString(&c.MQTT.Username, "MQTT_USERNAME")
	setString(&c.MQTT.Password, "MQTT_PASSWORD")
	setString(&c.MQTT.Topic, "MQTT_TOPIC")
	setString(&c.NATS.URL, "NATS_URL")
	setString(&c.Analytics.Timezone, "TZ_NAME")
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Location resolves the configured analytics timezone. Hour bucketing and
// day windows use this location everywhere.
func (c *Config) Location() (*time.Location, error) {
	if c.Analytics.Timezone == "" || c.Analytics.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Analytics.Timezone)
}
