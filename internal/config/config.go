package config

import (
	"os"
	"strconv"
	"strings"
)

// Storage drivers for uploaded files.
const (
	StorageLocal = "local"
	StorageMinIO = "minio"
)

// Record store backends.
const (
	RecordStoreFile     = "file"
	RecordStorePostgres = "postgres"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	// URL, when set, is used verbatim instead of the individual components.
	URL                string
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// RequiredFields lists the form fields each entity type must carry.
// A nil slice disables validation for that entity.
type RequiredFields struct {
	Landlord     []string
	Organization []string
	Contact      []string
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppName          string
	Port             string
	LogLevel         string
	BodyLimitMB      int
	CORSAllowOrigins string
	StorageDriver    string
	UploadDir        string
	RecordStore      string
	DBFile           string
	Required         RequiredFields
	Database         DatabaseConfig
	MinIO            MinIOConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppName:          getEnv("APP_NAME", "polegrid"),
		Port:             getEnv("PORT", "3000"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		BodyLimitMB:      getEnvInt("BODY_LIMIT_MB", 50),
		CORSAllowOrigins: getEnv("CORS_ALLOW_ORIGINS", "*"),
		StorageDriver:    strings.ToLower(getEnv("STORAGE_DRIVER", StorageLocal)),
		UploadDir:        getEnv("UPLOAD_DIR", "uploads"),
		RecordStore:      strings.ToLower(getEnv("RECORD_STORE", RecordStoreFile)),
		DBFile:           getEnv("DB_FILE", "db.json"),
		Required: RequiredFields{
			Landlord:     getEnvList("LANDLORD_REQUIRED_FIELDS", []string{"fullName", "email", "phone"}),
			Organization: getEnvList("ORGANIZATION_REQUIRED_FIELDS", []string{"organizationName", "email", "phone"}),
			Contact:      getEnvList("CONTACT_REQUIRED_FIELDS", []string{"name", "email", "message"}),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

// getEnvList parses a comma-separated list. The literal value "none" yields nil.
func getEnvList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if strings.EqualFold(v, "none") {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
