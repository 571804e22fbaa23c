package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the client and the companion server.
type Config struct {
	Env     string
	Port    string // chatd listen port
	DataDir string // identity persistence directory

	APIBaseURL string
	WSURL      string
	RedisURL   string
	RoomID     string

	// Retention and input bounds
	MaxMessages       int
	MaxMessageLength  int
	MaxUsernameLength int

	// Realtime-mode toggle: push subscription when true, poll-once otherwise.
	EnableRealtime bool

	// Websocket reconnect policy
	ReconnectBaseDelay   time.Duration
	MaxReconnectAttempts int
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	return &Config{
		Env:     getEnv("ENV", "development"),
		Port:    getEnv("PORT", "3001"),
		DataDir: getEnv("DATA_DIR", defaultDataDir()),

		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:3001"),
		WSURL:      getEnv("WS_URL", "ws://localhost:3001/ws"),
		RedisURL:   os.Getenv("REDIS_URL"),
		RoomID:     getEnv("ROOM_ID", "global"),

		MaxMessages:       getEnvInt("MAX_MESSAGES", 200),
		MaxMessageLength:  getEnvInt("MAX_MESSAGE_LENGTH", 1000),
		MaxUsernameLength: getEnvInt("MAX_USERNAME_LENGTH", 30),

		EnableRealtime: getEnv("ENABLE_REALTIME", "true") == "true",

		ReconnectBaseDelay:   time.Duration(getEnvInt("RECONNECT_BASE_DELAY_MS", 1000)) * time.Millisecond,
		MaxReconnectAttempts: getEnvInt("MAX_RECONNECT_ATTEMPTS", 5),
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chat-private"
	}
	return home + "/.chat-private"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
