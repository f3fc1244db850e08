package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Backup    BackupConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// StorageConfig is the surface the storage selector consumes: a storage-type
// setting, the environment name (on ServerConfig) and an optional
// development-only override.
type StorageConfig struct {
	Type          string
	DevType       string
	FilePath      string
	MongoURI      string
	MongoDatabase string
	MongoTimeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// BackupConfig configures the optional upload of backup snapshots to
// S3-compatible object storage. Disabled when Endpoint is empty.
type BackupConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("STORAGE_FILE_PATH", "data/db.json")
	viper.SetDefault("MONGODB_DATABASE", "recordbase")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("RATE_LIMIT_RPS", 50)
	viper.SetDefault("RATE_LIMIT_BURST", 100)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	viper.SetDefault("BACKUP_BUCKET", "recordbase-backups")

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Type:          viper.GetString("STORAGE_TYPE"),
			DevType:       viper.GetString("DEV_STORAGE_TYPE"),
			FilePath:      viper.GetString("STORAGE_FILE_PATH"),
			MongoURI:      viper.GetString("MONGODB_URI"),
			MongoDatabase: viper.GetString("MONGODB_DATABASE"),
			MongoTimeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Backup: BackupConfig{
			Endpoint:  viper.GetString("BACKUP_MINIO_ENDPOINT"),
			AccessKey: viper.GetString("BACKUP_MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("BACKUP_MINIO_SECRET_KEY"),
			UseSSL:    viper.GetBool("BACKUP_MINIO_USE_SSL"),
			Bucket:    viper.GetString("BACKUP_BUCKET"),
		},
	}

	return cfg, nil
}

// IsProduction reports whether the service runs under the production
// environment name. The destructive clear endpoint is disabled there.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
