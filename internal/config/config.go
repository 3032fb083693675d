package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Data     DataConfig
	Viewer   ViewerConfig
	Otel     OtelConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	WsLogFilePath      string
	CorsAllowedOrigins string
	JwtSecret          string
	NatsURL            string
	RedisURL           string
}

type DatabaseConfig struct {
	Connection string
}

// DataConfig points at the data server the datasets are downloaded from.
type DataConfig struct {
	APIURL    string
	TempDir   string
	CacheMode string // "no", "session" or "permanent"
	Timeout   time.Duration
}

type ViewerConfig struct {
	Debounce    time.Duration
	PresetsPath string
	SessionTTL  time.Duration
	LoadTopic   string
}

type OtelConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("PORT", "3000"),
			Environment:        getEnv("APP_ENV", "development"),
			LogFilePath:        getEnv("LOG_PATH", "logs/viewer.log"),
			WsLogFilePath:      getEnv("WS_LOG_PATH", "logs/websocket.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			JwtSecret:          getEnv("JWT_SECRET", ""),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Data: DataConfig{
			APIURL:    getEnv("DATA_API_URL", "http://localhost:8080/api/v1"),
			TempDir:   getEnv("DATA_TEMP_DIR", ""),
			CacheMode: getEnv("DATA_CACHE_MODE", "no"),
			Timeout:   time.Duration(getEnvAsInt("DATA_TIMEOUT_SECONDS", 120)) * time.Second,
		},
		Viewer: ViewerConfig{
			Debounce:    time.Duration(getEnvAsInt("VIEWER_DEBOUNCE_MS", 300)) * time.Millisecond,
			PresetsPath: getEnv("VIEWER_PRESETS_PATH", ""),
			SessionTTL:  time.Duration(getEnvAsInt("VIEWER_SESSION_TTL_MINUTES", 60)) * time.Minute,
			LoadTopic:   getEnv("VIEWER_LOAD_TOPIC", "viewer.load"),
		},
		Otel: OtelConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "medviewer-backend"),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}
