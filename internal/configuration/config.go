package configuration

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Database    DatabaseConfig
	MinIO       MinIOConfig
	Server      ServerConfig
	Upload      UploadConfig
	Sweep       SweepConfig
	NATSURL     string
	KeycloakUrl string
	CLAMAVURL   string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type MinIOConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	BucketName string
	UseSSL     bool
}

type ServerConfig struct {
	Port string
}

type UploadConfig struct {
	ChunkSizeBytes int64
	Timeout        time.Duration
}

type SweepConfig struct {
	Interval      time.Duration
	UsedRetention time.Duration
	StuckCeiling  time.Duration
}

func Load() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "publishuser"),
			Password: getEnv("DB_PASSWORD", "publishpassword"),
			DBName:   getEnv("DB_NAME", "publishservice"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		MinIO: MinIOConfig{
			Endpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey:  getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey:  getEnv("MINIO_SECRET_KEY", "minioadmin"),
			BucketName: getEnv("MINIO_BUCKET", "staged-payloads"),
			UseSSL:     getEnv("MINIO_USE_SSL", "false") == "true",
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Upload: UploadConfig{
			ChunkSizeBytes: getEnvInt64("UPLOAD_CHUNK_SIZE", 8<<20),
			Timeout:        getEnvDuration("UPLOAD_TIMEOUT_MINUTES", 6*time.Hour),
		},
		Sweep: SweepConfig{
			Interval:      getEnvDuration("SWEEP_INTERVAL_MINUTES", 5*time.Minute),
			UsedRetention: getEnvDuration("SWEEP_USED_RETENTION_MINUTES", time.Hour),
			StuckCeiling:  getEnvDuration("SWEEP_STUCK_CEILING_MINUTES", 24*time.Hour),
		},
		NATSURL:     getEnv("NATS_URL", "nats://localhost:4222"),
		CLAMAVURL:   getEnv("CLAMAV_URL", "tcp://localhost:3310"),
		KeycloakUrl: getEnv("KEYCLOAK_URL", ""),
	}
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.ParseFloat(value, 64); err == nil {
			return time.Duration(minutes * float64(time.Minute))
		}
	}
	return defaultValue
}
