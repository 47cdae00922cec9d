package config

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/anthanhphan/gosdk/conflux"
	"github.com/anthanhphan/gosdk/logger"
)

// Config holds pipeline service configuration
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	GRPC     GRPCConfig     `json:"grpc" yaml:"grpc"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
	Sessions SessionsConfig `json:"sessions" yaml:"sessions"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	Backend  BackendConfig  `json:"backend" yaml:"backend"`
	Upload   UploadConfig   `json:"upload" yaml:"upload"`
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline"`
	Logger   logger.Config  `json:"logger" yaml:"logger"`
}

type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
	// BodyLimit caps multipart request bodies in bytes.
	BodyLimit int `json:"body_limit" yaml:"body_limit"`
	// AdminToken guards /v1/admin routes; empty disables them.
	AdminToken string `json:"admin_token" yaml:"admin_token"`
}

type GRPCConfig struct {
	// Addr of the gRPC health service; empty disables it.
	Addr string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Driver         string `json:"driver" yaml:"driver"` // "s3", "memory"
	UploadsBucket  string `json:"uploads_bucket" yaml:"uploads_bucket"`
	ArchivesBucket string `json:"archives_bucket" yaml:"archives_bucket"`
	Region         string `json:"region" yaml:"region"`
	Endpoint       string `json:"endpoint" yaml:"endpoint"`
	UsePathStyle   bool   `json:"use_path_style" yaml:"use_path_style"`
	// PublicBaseURL and SigningKey are used by the memory driver to sign download links.
	PublicBaseURL string `json:"public_base_url" yaml:"public_base_url"`
	SigningKey    string `json:"signing_key" yaml:"signing_key"`
}

type SessionsConfig struct {
	Driver string `json:"driver" yaml:"driver"` // "postgres", "sqlite", "dynamodb"
	// DSN is the SQL connection string, or an endpoint override for dynamodb.
	DSN      string `json:"dsn" yaml:"dsn"`
	MaxConns int    `json:"max_conns" yaml:"max_conns"`
	Table    string `json:"table" yaml:"table"`
	// UserIndex is the DynamoDB global secondary index keyed by user_id.
	UserIndex string `json:"user_index" yaml:"user_index"`
}

type RedisConfig struct {
	// Enabled selects the Redis build lock; otherwise an in-process lock is used.
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Prefix   string `json:"prefix" yaml:"prefix"`
}

type BackendConfig struct {
	Endpoint         string `json:"endpoint" yaml:"endpoint"`
	TimeoutMS        int    `json:"timeout_ms" yaml:"timeout_ms"`
	MaxAttempts      int    `json:"max_attempts" yaml:"max_attempts"`
	RetryDelayMS     int    `json:"retry_delay_ms" yaml:"retry_delay_ms"`
	FailureThreshold int    `json:"failure_threshold" yaml:"failure_threshold"`
	OpenTimeoutMS    int    `json:"open_timeout_ms" yaml:"open_timeout_ms"`
}

type UploadConfig struct {
	MaxFileSize   int64  `json:"max_file_size" yaml:"max_file_size"`
	MaxFiles      int    `json:"max_files" yaml:"max_files"`
	ParallelFiles int    `json:"parallel_files" yaml:"parallel_files"`
	CacheControl  string `json:"cache_control" yaml:"cache_control"`
}

type PipelineConfig struct {
	Workers                  int      `json:"workers" yaml:"workers"`
	QueueSize                int      `json:"queue_size" yaml:"queue_size"`
	RunTimeoutSeconds        int      `json:"run_timeout_seconds" yaml:"run_timeout_seconds"`
	ArchiveURLTTLSeconds     int      `json:"archive_url_ttl_seconds" yaml:"archive_url_ttl_seconds"`
	BuildLockTTLSeconds      int      `json:"build_lock_ttl_seconds" yaml:"build_lock_ttl_seconds"`
	PollIntervalMS           int      `json:"poll_interval_ms" yaml:"poll_interval_ms"`
	RecoveryStalenessMinutes int      `json:"recovery_staleness_minutes" yaml:"recovery_staleness_minutes"`
	ExpirationStalenessHours int      `json:"expiration_staleness_hours" yaml:"expiration_staleness_hours"`
	SweepIntervalSeconds     int      `json:"sweep_interval_seconds" yaml:"sweep_interval_seconds"` // 0 disables the in-process sweeper
	MaxArchiveBytes          int64    `json:"max_archive_bytes" yaml:"max_archive_bytes"`
	DocumentExtensions       []string `json:"document_extensions" yaml:"document_extensions"`
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:      ":8090",
			BodyLimit: 110 * 1024 * 1024,
		},
		GRPC: GRPCConfig{
			Addr: ":9090",
		},
		Storage: StorageConfig{
			Driver:         "s3",
			UploadsBucket:  "user-uploads",
			ArchivesBucket: "user-zips",
			Region:         "us-east-1",
		},
		Sessions: SessionsConfig{
			Driver:    "postgres",
			DSN:       "host=localhost user=postgres password=postgres dbname=pipeline port=5432 sslmode=disable",
			MaxConns:  10,
			Table:     "analysis_sessions",
			UserIndex: "user_id-index",
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "pipeline:",
		},
		Backend: BackendConfig{
			TimeoutMS:        120000,
			MaxAttempts:      2,
			RetryDelayMS:     1000,
			FailureThreshold: 5,
			OpenTimeoutMS:    30000,
		},
		Upload: UploadConfig{
			MaxFileSize:   10 * 1024 * 1024, // 10MiB
			MaxFiles:      10,
			ParallelFiles: 1,
			CacheControl:  "3600",
		},
		Pipeline: PipelineConfig{
			Workers:                  4,
			QueueSize:                64,
			RunTimeoutSeconds:        900,
			ArchiveURLTTLSeconds:     24 * 60 * 60,
			BuildLockTTLSeconds:      600,
			PollIntervalMS:           5000,
			RecoveryStalenessMinutes: 30,
			ExpirationStalenessHours: 6,
			MaxArchiveBytes:          512 * 1024 * 1024,
		},
		Logger: logger.Config{
			LogLevel:    logger.LevelInfo,
			LogEncoding: logger.EncodingJSON,
		},
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	configPath := path
	if configPath == "" {
		env := os.Getenv("ENV")
		if env == "" {
			env = "local"
		}
		configPath = filepath.Join("internal", "pipeline", "config", env+".yaml")
	}

	cfg := DefaultConfig()

	parsedCfg, err := conflux.ParseConfig(configPath, cfg)
	if err != nil {
		// The logger is configured from this file, so fall back to the standard log.
		log.Printf("Config file not loaded, path=%s error=%v", configPath, err)
		if path != "" {
			return nil, err
		}
		return cfg, nil
	}

	return parsedCfg, nil
}

// MustLoad loads configuration or exits on error
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// BackendTimeout returns the per-attempt backend timeout.
func (c *Config) BackendTimeout() time.Duration {
	return durationOr(c.Backend.TimeoutMS, time.Millisecond, 2*time.Minute)
}

// BackendRetryDelay returns the base delay between backend attempts.
func (c *Config) BackendRetryDelay() time.Duration {
	return durationOr(c.Backend.RetryDelayMS, time.Millisecond, time.Second)
}

// BackendOpenTimeout returns how long the backend circuit stays open.
func (c *Config) BackendOpenTimeout() time.Duration {
	return durationOr(c.Backend.OpenTimeoutMS, time.Millisecond, 30*time.Second)
}

// RunTimeout bounds one background pipeline run.
func (c *Config) RunTimeout() time.Duration {
	return durationOr(c.Pipeline.RunTimeoutSeconds, time.Second, 15*time.Minute)
}

// ArchiveURLTTL returns the validity of signed archive links.
func (c *Config) ArchiveURLTTL() time.Duration {
	return durationOr(c.Pipeline.ArchiveURLTTLSeconds, time.Second, 24*time.Hour)
}

// BuildLockTTL returns how long a build lock is held at most.
func (c *Config) BuildLockTTL() time.Duration {
	return durationOr(c.Pipeline.BuildLockTTLSeconds, time.Second, 10*time.Minute)
}

// PollInterval returns the default session poll interval.
func (c *Config) PollInterval() time.Duration {
	return durationOr(c.Pipeline.PollIntervalMS, time.Millisecond, 5*time.Second)
}

// RecoveryStaleness returns the age after which in-flight sessions are reset.
func (c *Config) RecoveryStaleness() time.Duration {
	return durationOr(c.Pipeline.RecoveryStalenessMinutes, time.Minute, 30*time.Minute)
}

// ExpirationStaleness returns the age after which session data is reclaimed.
func (c *Config) ExpirationStaleness() time.Duration {
	return durationOr(c.Pipeline.ExpirationStalenessHours, time.Hour, 6*time.Hour)
}

// SweepInterval returns the in-process sweep period; zero means disabled.
func (c *Config) SweepInterval() time.Duration {
	return durationOr(c.Pipeline.SweepIntervalSeconds, time.Second, 0)
}

// MaxFileSize returns the per-file upload ceiling.
func (c *Config) MaxFileSize() int64 {
	if c.Upload.MaxFileSize > 0 {
		return c.Upload.MaxFileSize
	}
	return 10 * 1024 * 1024
}

// MaxArchiveBytes bounds downloaded result archives.
func (c *Config) MaxArchiveBytes() int64 {
	if c.Pipeline.MaxArchiveBytes > 0 {
		return c.Pipeline.MaxArchiveBytes
	}
	return 512 * 1024 * 1024
}

func durationOr(value int, unit, fallback time.Duration) time.Duration {
	if value > 0 {
		return time.Duration(value) * unit
	}
	return fallback
}
