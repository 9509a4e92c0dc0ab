// Package config loads runtime settings from .env, an optional config.yaml and
// the process environment.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends accepted by STORAGE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendLocal    = "local"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendREST     = "rest"
)

type ServerConfig struct {
	Port           string `mapstructure:"port"`
	AllowedOrigins string `mapstructure:"allowedOrigins"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"maxConns"`
}

type MongoConfig struct {
	URI    string `mapstructure:"uri"`
	DBName string `mapstructure:"dbName"`
}

type LocalConfig struct {
	DataDir   string `mapstructure:"dataDir"`
	Namespace string `mapstructure:"namespace"`
}

type RESTConfig struct {
	BaseURL string `mapstructure:"baseURL"`
}

type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// BrokerList splits the comma-separated broker setting.
func (k KafkaConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

type S3Config struct {
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	AccessKeyID      string `mapstructure:"accessKeyID"`
	SecretAccessKey  string `mapstructure:"secretAccessKey"`
	CloudFrontDomain string `mapstructure:"cloudFrontDomain"`
}

// Enabled reports whether report uploads are configured.
func (s S3Config) Enabled() bool { return s.Bucket != "" && s.Region != "" }

type ReportConfig struct {
	LowStockThreshold int `mapstructure:"lowStockThreshold"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Local    LocalConfig    `mapstructure:"local"`
	REST     RESTConfig     `mapstructure:"rest"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	S3       S3Config       `mapstructure:"s3"`
	Report   ReportConfig   `mapstructure:"report"`
}

var bindings = map[string]string{
	"server.port":              "SERVER_PORT",
	"server.allowedOrigins":    "ALLOWED_ORIGINS",
	"storage.backend":          "STORAGE_BACKEND",
	"postgres.url":             "DATABASE_URL",
	"postgres.maxConns":        "DATABASE_MAX_CONNS",
	"mongo.uri":                "MONGO_URI",
	"mongo.dbName":             "MONGO_DBNAME",
	"local.dataDir":            "LOCAL_DATA_DIR",
	"local.namespace":          "LOCAL_NAMESPACE",
	"rest.baseURL":             "REST_BASE_URL",
	"kafka.brokers":            "KAFKA_BROKERS",
	"kafka.topic":              "KAFKA_TOPIC",
	"s3.bucket":                "S3_BUCKET",
	"s3.region":                "S3_REGION",
	"s3.accessKeyID":           "S3_ACCESS_KEY_ID",
	"s3.secretAccessKey":       "S3_SECRET_ACCESS_KEY",
	"s3.cloudFrontDomain":      "S3_CLOUDFRONT_DOMAIN",
	"report.lowStockThreshold": "LOW_STOCK_THRESHOLD",
}

// Load reads .env (if present), then config.yaml under path (if present),
// then environment variables, later sources winning.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetDefault("server.port", "8080")
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("local.dataDir", "data")
	v.SetDefault("local.namespace", "inventory_admin")
	v.SetDefault("mongo.dbName", "inventory_admin")
	v.SetDefault("kafka.topic", "inventory-admin.changes")
	v.SetDefault("report.lowStockThreshold", 10)

	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that the chosen backend has what it needs.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendLocal:
	case BackendPostgres:
		if c.Postgres.URL == "" {
			return errors.New("STORAGE_BACKEND=postgres requires DATABASE_URL")
		}
	case BackendMongo:
		if c.Mongo.URI == "" {
			return errors.New("STORAGE_BACKEND=mongo requires MONGO_URI")
		}
	case BackendREST:
		if c.REST.BaseURL == "" {
			return errors.New("STORAGE_BACKEND=rest requires REST_BASE_URL")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}
	return nil
}
