package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	CORS     CORSConfig
	Log      LogConfig
	Cache    CacheConfig
	Storage  StorageConfig
	Transfer TransferConfig
	Search   SearchConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Timeout  time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig governs the file record cache.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// StorageConfig locates the local file areas.
type StorageConfig struct {
	BlobDir            string
	AttachmentsDir     string
	SpoolDir           string
	MaxAttachmentBytes int64
}

// TransferConfig describes the remote endpoint shared with the worker cluster.
type TransferConfig struct {
	Protocol       string
	Host           string
	Port           int
	Username       string
	Password       string
	Root           string
	Timeout        time.Duration
	KnownHostsFile string
	TLSInsecure    bool
}

// SearchConfig tunes search pagination.
type SearchConfig struct {
	DefaultLimit int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		Timeout:  parseDuration(v.GetString("REDIS_TIMEOUT"), 3*time.Second),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("CACHE_ENABLED"),
		TTL:     parseDuration(v.GetString("CACHE_TTL"), time.Hour),
	}

	maxAttachment := v.GetInt64("ATTACHMENTS_MAX_SIZE")
	if maxAttachment <= 0 {
		maxAttachment = 32 * 1024 * 1024
	}
	cfg.Storage = StorageConfig{
		BlobDir:            v.GetString("STORAGE_BLOB_DIR"),
		AttachmentsDir:     v.GetString("STORAGE_ATTACHMENTS_DIR"),
		SpoolDir:           v.GetString("STORAGE_SPOOL_DIR"),
		MaxAttachmentBytes: maxAttachment,
	}

	cfg.Transfer = TransferConfig{
		Protocol:       strings.ToLower(v.GetString("TRANSFER_PROTOCOL")),
		Host:           v.GetString("TRANSFER_HOST"),
		Port:           v.GetInt("TRANSFER_PORT"),
		Username:       v.GetString("TRANSFER_USERNAME"),
		Password:       v.GetString("TRANSFER_PASSWORD"),
		Root:           v.GetString("TRANSFER_ROOT"),
		Timeout:        parseDuration(v.GetString("TRANSFER_TIMEOUT"), 30*time.Second),
		KnownHostsFile: v.GetString("TRANSFER_KNOWN_HOSTS"),
		TLSInsecure:    v.GetBool("TRANSFER_TLS_INSECURE"),
	}

	cfg.Search = SearchConfig{
		DefaultLimit: v.GetInt("SEARCH_DEFAULT_LIMIT"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "file_registry")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_TIMEOUT", "3s")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("CACHE_TTL", "1h")

	v.SetDefault("STORAGE_BLOB_DIR", "./data/files")
	v.SetDefault("STORAGE_ATTACHMENTS_DIR", "./data/attachments")
	v.SetDefault("STORAGE_SPOOL_DIR", "")
	v.SetDefault("ATTACHMENTS_MAX_SIZE", 32*1024*1024)

	v.SetDefault("TRANSFER_PROTOCOL", "sftp")
	v.SetDefault("TRANSFER_HOST", "localhost")
	v.SetDefault("TRANSFER_PORT", 0)
	v.SetDefault("TRANSFER_USERNAME", "scanner")
	v.SetDefault("TRANSFER_PASSWORD", "")
	v.SetDefault("TRANSFER_ROOT", "")
	v.SetDefault("TRANSFER_TIMEOUT", "30s")
	v.SetDefault("TRANSFER_KNOWN_HOSTS", "")
	v.SetDefault("TRANSFER_TLS_INSECURE", false)

	v.SetDefault("SEARCH_DEFAULT_LIMIT", 25)
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
