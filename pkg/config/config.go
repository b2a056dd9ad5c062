package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	DocIntel    DocIntelConfig
	Classifier  ClassifierConfig
	BlobStorage BlobStorageConfig
	OpenKM      OpenKMConfig
	Logger      LoggerConfig
}

type LoggerConfig struct {
	Level string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DocIntelConfig drives the document-analysis client. The poll delay starts
// at InitialPollDelay and grows by PollDelayStep per attempt up to
// MaxPollDelay, for at most MaxPollAttempts attempts.
type DocIntelConfig struct {
	Endpoint         string
	APIKey           string
	MaxPollAttempts  int
	InitialPollDelay time.Duration
	PollDelayStep    time.Duration
	MaxPollDelay     time.Duration
}

type ClassifierConfig struct {
	RouterURL   string
	Model       string
	Token       string
	MaxTokens   int
	Temperature float64
}

// BlobStorageConfig points at the primary S3-compatible object store.
type BlobStorageConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	KeyPrefix string
}

// OpenKMConfig points at the secondary document-management system reached
// over WebDAV. When RootFixedNode is set, the first segment of CollectionRoot
// is a pre-existing node (okm:root) that must never be created. FailOnError
// turns best-effort replication into a hard failure.
type OpenKMConfig struct {
	Enabled        bool
	FailOnError    bool
	WebDAVURL      string
	CollectionRoot string
	Username       string
	Password       string
	RootFixedNode  bool
}

func Load() (*Config, error) {
	// The .env file is optional; plain environment variables work for
	// Docker/K8s deployments.
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	readTimeout, _ := strconv.Atoi(getEnv("SERVER_READ_TIMEOUT", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("SERVER_WRITE_TIMEOUT", "30"))
	pollAttempts, _ := strconv.Atoi(getEnv("DOCINTEL_MAX_POLL_ATTEMPTS", "90"))
	pollInitialMs, _ := strconv.Atoi(getEnv("DOCINTEL_INITIAL_POLL_DELAY_MS", "1000"))
	pollStepMs, _ := strconv.Atoi(getEnv("DOCINTEL_POLL_DELAY_STEP_MS", "250"))
	pollMaxMs, _ := strconv.Atoi(getEnv("DOCINTEL_MAX_POLL_DELAY_MS", "4000"))
	maxTokens, _ := strconv.Atoi(getEnv("CLASSIFIER_MAX_TOKENS", "256"))
	temperature, _ := strconv.ParseFloat(getEnv("CLASSIFIER_TEMPERATURE", "0.7"), 64)

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  time.Duration(readTimeout) * time.Second,
			WriteTimeout: time.Duration(writeTimeout) * time.Second,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "gastoflow"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		DocIntel: DocIntelConfig{
			Endpoint:         getEnv("DOCINTEL_ENDPOINT", ""),
			APIKey:           getEnv("DOCINTEL_KEY", ""),
			MaxPollAttempts:  pollAttempts,
			InitialPollDelay: time.Duration(pollInitialMs) * time.Millisecond,
			PollDelayStep:    time.Duration(pollStepMs) * time.Millisecond,
			MaxPollDelay:     time.Duration(pollMaxMs) * time.Millisecond,
		},
		Classifier: ClassifierConfig{
			RouterURL:   getEnv("CLASSIFIER_ROUTER_URL", ""),
			Model:       getEnv("CLASSIFIER_MODEL", ""),
			Token:       getEnv("CLASSIFIER_TOKEN", ""),
			MaxTokens:   maxTokens,
			Temperature: temperature,
		},
		BlobStorage: BlobStorageConfig{
			Endpoint:  getEnv("BLOB_ENDPOINT", "http://localhost:9000"),
			Region:    getEnv("BLOB_REGION", "us-east-1"),
			AccessKey: getEnv("BLOB_ACCESS_KEY", ""),
			SecretKey: getEnv("BLOB_SECRET_KEY", ""),
			Bucket:    getEnv("BLOB_BUCKET", "receipts"),
			KeyPrefix: getEnv("BLOB_KEY_PREFIX", "gastos"),
		},
		OpenKM: OpenKMConfig{
			Enabled:        getEnv("OPENKM_ENABLED", "false") == "true",
			FailOnError:    getEnv("OPENKM_FAIL_ON_ERROR", "false") == "true",
			WebDAVURL:      getEnv("OPENKM_WEBDAV_URL", "http://localhost:8081/webdav/"),
			CollectionRoot: getEnv("OPENKM_COLLECTION_ROOT", "okm:root/gastos"),
			Username:       getEnv("OPENKM_USERNAME", "okmAdmin"),
			Password:       getEnv("OPENKM_PASSWORD", "admin"),
			RootFixedNode:  getEnv("OPENKM_ROOT_FIXED_NODE", "true") == "true",
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
