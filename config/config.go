package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/room4-2/zellolink/session"
)

// Config holds all listener configuration
type Config struct {
	ServerURL       string
	Issuer          string
	PrivateKeyPath  string
	Username        string
	Password        string
	Channels        []string
	TokenExpiration time.Duration
	StreamPolicy    session.StreamPolicy
	OutputDir       string
	MaxBufferSize   int // Maximum decoded PCM bytes kept per stream
	RedisURL        string
	RedisPassword   string
	StreamTTL       time.Duration
	GeminiAPIKey    string // optional, enables transcription
	StatusPort      int    // 0 disables the status server
	LogLevel        logrus.Level
}

// LoadConfig loads configuration from environment variables with defaults
func LoadConfig() (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	config := &Config{
		ServerURL:       "wss://zello.io/ws",
		Channels:        []string{"aiozello"},
		TokenExpiration: time.Hour,
		StreamPolicy:    session.PolicyStrict,
		OutputDir:       "recordings",
		MaxBufferSize:   5 * 1024 * 1024, // 5MB default
		RedisURL:        "localhost:6379",
		StreamTTL:       30 * time.Minute,
		StatusPort:      9090,
		LogLevel:        logrus.InfoLevel,
	}

	// Required credentials
	required := []struct {
		name string
		dst  *string
	}{
		{"ZELLO_ISSUER", &config.Issuer},
		{"ZELLO_PRIVATE_KEY", &config.PrivateKeyPath},
		{"ZELLO_USERNAME", &config.Username},
		{"ZELLO_PASSWORD", &config.Password},
	}
	for _, r := range required {
		*r.dst = os.Getenv(r.name)
		if *r.dst == "" {
			return nil, fmt.Errorf("%s environment variable is required", r.name)
		}
	}

	// Optional: ZELLO_URL
	if url := os.Getenv("ZELLO_URL"); url != "" {
		config.ServerURL = url
	}

	// Optional: ZELLO_CHANNELS (comma-separated)
	if channels := os.Getenv("ZELLO_CHANNELS"); channels != "" {
		config.Channels = splitList(channels)
	}

	// Optional: TOKEN_EXPIRATION (in seconds)
	if expiration := os.Getenv("TOKEN_EXPIRATION"); expiration != "" {
		e, err := strconv.Atoi(expiration)
		if err != nil {
			return nil, fmt.Errorf("invalid TOKEN_EXPIRATION: %w", err)
		}
		if e <= 0 {
			return nil, fmt.Errorf("invalid TOKEN_EXPIRATION: must be positive")
		}
		config.TokenExpiration = time.Duration(e) * time.Second
	}

	// Optional: STREAM_POLICY ("strict" or "lenient")
	if policy := os.Getenv("STREAM_POLICY"); policy != "" {
		p, err := session.ParseStreamPolicy(policy)
		if err != nil {
			return nil, fmt.Errorf("invalid STREAM_POLICY: %w", err)
		}
		config.StreamPolicy = p
	}

	// Optional: OUTPUT_DIR
	if dir := os.Getenv("OUTPUT_DIR"); dir != "" {
		config.OutputDir = dir
	}

	// Optional: MAX_BUFFER_SIZE (in bytes)
	if bufferSize := os.Getenv("MAX_BUFFER_SIZE"); bufferSize != "" {
		b, err := strconv.Atoi(bufferSize)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_BUFFER_SIZE: %w", err)
		}
		config.MaxBufferSize = b
	}

	// Optional: REDIS_URL
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		config.RedisURL = redisURL
	}

	// Optional: REDIS_PASSWORD
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		config.RedisPassword = redisPassword
	}

	// Optional: STREAM_TTL (in minutes)
	if ttl := os.Getenv("STREAM_TTL"); ttl != "" {
		t, err := strconv.Atoi(ttl)
		if err != nil {
			return nil, fmt.Errorf("invalid STREAM_TTL: %w", err)
		}
		config.StreamTTL = time.Duration(t) * time.Minute
	}

	// Optional: GEMINI_API_KEY
	config.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")

	// Optional: STATUS_PORT
	if port := os.Getenv("STATUS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid STATUS_PORT: %w", err)
		}
		config.StatusPort = p
	}

	// Optional: LOG_LEVEL
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		l, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		config.LogLevel = l
	}

	return config, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
