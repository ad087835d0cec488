package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	MCP       MCPConfig
	Database  DatabaseConfig
	Valkey    ValkeyConfig
	MinIO     MinIOConfig
	S3        S3Config
	Export    ExportConfig
	Auth      AuthConfig
	Operators OperatorsConfig
	Worker    WorkerConfig
}

type MCPConfig struct {
	Name      string
	Version   string
	Transport string // "stdio" or "http"
	Addr      string
	BaseURL   string // public URL, used for RFC 9728 metadata
	Shutdown  time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type ValkeyConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type S3Config struct {
	Region   string // S3_REGION
	Bucket   string // S3_BUCKET
	Endpoint string // S3_ENDPOINT (for MinIO/LocalStack compatibility)
}

// ExportConfig selects where export_samples writes manifests.
type ExportConfig struct {
	Backend string // "minio", "s3" or "" (disabled)
	Prefix  string
}

type AuthConfig struct {
	Enabled      bool
	IssuerURL    string
	PublicIssuer string
	Audience     string
}

type OperatorsConfig struct {
	// InstallTemplate renders the install hint for a missing package; %s is the package name.
	InstallTemplate string
}

type WorkerConfig struct {
	ConsumerID  string
	MetricsAddr string // empty disables the worker's /metrics listener
}

func Load() (*Config, error) {
	cfg := &Config{
		MCP: MCPConfig{
			Name:      getEnv("MCP_SERVER_NAME", "datasetops"),
			Version:   getEnv("MCP_SERVER_VERSION", "1.0.0"),
			Transport: getEnv("MCP_TRANSPORT", "stdio"),
			Addr:      getEnv("MCP_ADDR", ":8090"),
			BaseURL:   getEnv("MCP_BASE_URL", ""),
			Shutdown:  time.Duration(getEnvInt("MCP_SHUTDOWN_TIMEOUT_SECS", 10)) * time.Second,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "datasetops"),
			Password: getEnv("DB_PASSWORD", "datasetops"),
			Name:     getEnv("DB_NAME", "datasetops"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 1)),
		},
		Valkey: ValkeyConfig{
			Enabled:  getEnvBool("VALKEY_ENABLED", false),
			Addr:     getEnv("VALKEY_ADDR", "localhost:6379"),
			Password: getEnv("VALKEY_PASSWORD", ""),
			DB:       getEnvInt("VALKEY_DB", 0),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "datasetops"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "datasetops123"),
			Bucket:    getEnv("MINIO_BUCKET", "datasetops"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		S3: S3Config{
			Region:   getEnv("S3_REGION", "us-east-1"),
			Bucket:   getEnv("S3_BUCKET", ""),
			Endpoint: getEnv("S3_ENDPOINT", ""),
		},
		Export: ExportConfig{
			Backend: getEnv("EXPORT_BACKEND", ""),
			Prefix:  getEnv("EXPORT_PREFIX", "exports"),
		},
		Auth: AuthConfig{
			Enabled:      getEnvBool("AUTH_ENABLED", false),
			IssuerURL:    getEnv("AUTH_ISSUER_URL", ""),
			PublicIssuer: getEnv("AUTH_PUBLIC_ISSUER", ""),
			Audience:     getEnv("AUTH_AUDIENCE", "datasetops"),
		},
		Operators: OperatorsConfig{
			InstallTemplate: getEnv("OPERATOR_INSTALL_TEMPLATE", "pip install %s"),
		},
		Worker: WorkerConfig{
			ConsumerID:  getEnv("WORKER_CONSUMER_ID", "worker-1"),
			MetricsAddr: getEnv("WORKER_METRICS_ADDR", ":9091"),
		},
	}

	switch cfg.MCP.Transport {
	case "stdio", "http":
	default:
		return nil, fmt.Errorf("MCP_TRANSPORT must be stdio or http, got %q", cfg.MCP.Transport)
	}
	switch cfg.Export.Backend {
	case "", "minio", "s3":
	default:
		return nil, fmt.Errorf("EXPORT_BACKEND must be minio, s3 or empty, got %q", cfg.Export.Backend)
	}
	if cfg.Export.Backend == "s3" && cfg.S3.Bucket == "" {
		return nil, fmt.Errorf("EXPORT_BACKEND=s3 requires S3_BUCKET")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
