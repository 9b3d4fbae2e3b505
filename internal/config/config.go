package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Tokens  TokensConfig  `mapstructure:"tokens"`
	Upload  UploadConfig  `mapstructure:"upload"`
	Drag    DragConfig    `mapstructure:"drag"`
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
}

// APIConfig describes the remote REST API the client talks to.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TokensConfig selects the durable client storage for the credential pair.
type TokensConfig struct {
	Type     string         `mapstructure:"type"`
	File     FileConfig     `mapstructure:"file"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type FileConfig struct {
	Path string `mapstructure:"path"`
}

// SQLiteConfig SQLite配置
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig PostgreSQL配置
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Address   string        `mapstructure:"address"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type UploadConfig struct {
	// PruneAfter is how long completed upload items stay listed.
	PruneAfter time.Duration `mapstructure:"prune_after"`
}

type DragConfig struct {
	// ActivationDistance is the pointer travel, in pixels, before a press
	// becomes a drag.
	ActivationDistance float64 `mapstructure:"activation_distance"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// ServerConfig configures the contract test server (cmd/server).
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	Mode         string        `mapstructure:"mode"`
	PublicURL    string        `mapstructure:"public_url"`
	EnableCORS   bool          `mapstructure:"enable_cors"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Auth         AuthConfig    `mapstructure:"auth"`
	Quota        QuotaConfig   `mapstructure:"quota"`
	Storage      StorageConfig `mapstructure:"storage"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	TokenExpiry   time.Duration `mapstructure:"token_expiry"`
	RefreshExpiry time.Duration `mapstructure:"refresh_expiry"`
}

// QuotaConfig holds the limits assigned to newly registered users.
type QuotaConfig struct {
	MaxProjects        int `mapstructure:"max_projects"`
	MaxBoxesPerProject int `mapstructure:"max_boxes_per_project"`
	MaxAssetsPerBox    int `mapstructure:"max_assets_per_box"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Type  string      `mapstructure:"type"`
	MinIO MinIOConfig `mapstructure:"minio"`
	Local LocalConfig `mapstructure:"local"`
}

// MinIOConfig MinIO配置
type MinIOConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	UseSSL     bool   `mapstructure:"use_ssl"`
	BucketName string `mapstructure:"bucket_name"`
}

// LocalConfig 本地存储配置
type LocalConfig struct {
	RootPath string `mapstructure:"root_path"`
}

// Load 加载配置
func Load() (*Config, error) {
	return LoadWith(viper.New())
}

// LoadWith loads the configuration into v. Tests pass a fresh instance.
func LoadWith(v *viper.Viper) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.sceneboard")

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	setEnvOverrides(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := filepath.Join(home, ".sceneboard")

	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.timeout", time.Duration(0))
	v.SetDefault("tokens.type", "file")
	v.SetDefault("tokens.file.path", filepath.Join(dataDir, "tokens.json"))
	v.SetDefault("tokens.sqlite.path", filepath.Join(dataDir, "tokens.db"))
	v.SetDefault("tokens.postgres.host", "localhost")
	v.SetDefault("tokens.postgres.port", 5432)
	v.SetDefault("tokens.postgres.ssl_mode", "disable")
	v.SetDefault("tokens.redis.address", "localhost:6379")
	v.SetDefault("tokens.redis.key_prefix", "sceneboard:")
	v.SetDefault("tokens.redis.timeout", 5*time.Second)
	v.SetDefault("upload.prune_after", 3*time.Second)
	v.SetDefault("drag.activation_distance", 8.0)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.public_url", "http://localhost:8000")
	v.SetDefault("server.enable_cors", true)
	v.SetDefault("server.read_timeout", 15*time.Minute)
	v.SetDefault("server.write_timeout", 15*time.Minute)
	v.SetDefault("server.auth.jwt_secret", "your-secret-key")
	v.SetDefault("server.auth.token_expiry", 5*time.Minute)
	v.SetDefault("server.auth.refresh_expiry", 7*24*time.Hour)
	v.SetDefault("server.quota.max_projects", 10)
	v.SetDefault("server.quota.max_boxes_per_project", 50)
	v.SetDefault("server.quota.max_assets_per_box", 100)
	v.SetDefault("server.storage.type", "local")
	v.SetDefault("server.storage.local.root_path", "./data/media")
	v.SetDefault("server.storage.minio.endpoint", "localhost:9000")
	v.SetDefault("server.storage.minio.use_ssl", false)
	v.SetDefault("server.storage.minio.bucket_name", "sceneboard-media")
}

// setEnvOverrides 设置环境变量覆盖
func setEnvOverrides(v *viper.Viper) {
	if url := os.Getenv("SCENEBOARD_API_URL"); url != "" {
		v.Set("api.base_url", url)
	}
	if store := os.Getenv("SCENEBOARD_TOKEN_STORE"); store != "" {
		v.Set("tokens.type", store)
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		v.Set("logging.level", level)
	}

	if addr := os.Getenv("SERVER_ADDRESS"); addr != "" {
		v.Set("server.address", addr)
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		v.Set("server.mode", mode)
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		v.Set("server.auth.jwt_secret", secret)
	}

	// MinIO配置
	if endpoint := os.Getenv("MINIO_ENDPOINT"); endpoint != "" {
		v.Set("server.storage.minio.endpoint", endpoint)
	}
	if accessKey := os.Getenv("MINIO_ACCESS_KEY"); accessKey != "" {
		v.Set("server.storage.minio.access_key", accessKey)
	}
	if secretKey := os.Getenv("MINIO_SECRET_KEY"); secretKey != "" {
		v.Set("server.storage.minio.secret_key", secretKey)
	}
	if bucket := os.Getenv("MINIO_BUCKET_NAME"); bucket != "" {
		v.Set("server.storage.minio.bucket_name", bucket)
	}

	// PostgreSQL配置
	if pgHost := os.Getenv("POSTGRES_HOST"); pgHost != "" {
		v.Set("tokens.postgres.host", pgHost)
	}
	if pgPort := os.Getenv("POSTGRES_PORT"); pgPort != "" {
		if port, err := strconv.Atoi(pgPort); err == nil {
			v.Set("tokens.postgres.port", port)
		}
	}
	if pgUser := os.Getenv("POSTGRES_USERNAME"); pgUser != "" {
		v.Set("tokens.postgres.username", pgUser)
	}
	if pgPassword := os.Getenv("POSTGRES_PASSWORD"); pgPassword != "" {
		v.Set("tokens.postgres.password", pgPassword)
	}
	if pgDatabase := os.Getenv("POSTGRES_DATABASE"); pgDatabase != "" {
		v.Set("tokens.postgres.database", pgDatabase)
	}

	// Redis配置
	if redisAddr := os.Getenv("REDIS_ADDRESS"); redisAddr != "" {
		v.Set("tokens.redis.address", redisAddr)
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		v.Set("tokens.redis.password", redisPassword)
	}
	if redisDB := os.Getenv("REDIS_DB"); redisDB != "" {
		if db, err := strconv.Atoi(redisDB); err == nil {
			v.Set("tokens.redis.db", db)
		}
	}
}

// DSN builds the lib/pq connection string for the postgres token store.
func (c PostgresConfig) DSN() string {
	dsn := "host=" + c.Host
	dsn += " port=" + strconv.Itoa(c.Port)
	dsn += " user=" + c.Username
	dsn += " password=" + c.Password
	dsn += " dbname=" + c.Database
	dsn += " sslmode=" + c.SSLMode
	return dsn
}

// IsProduction 检查是否为生产环境
func (c ServerConfig) IsProduction() bool {
	return c.Mode == "production" || c.Mode == "release"
}

// GetGINMode 获取Gin模式
func (c ServerConfig) GetGINMode() string {
	switch c.Mode {
	case "debug":
		return gin.DebugMode
	case "release", "production":
		return gin.ReleaseMode
	case "test":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}

// NewLogger builds the logrus logger described by the logging section.
func (c LoggingConfig) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if c.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	switch c.Output {
	case "stdout":
		logger.SetOutput(os.Stdout)
	default:
		logger.SetOutput(os.Stderr)
	}
	return logger
}
