package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	BackendMemory   = "memory"
	BackendDynamoDB = "dynamodb"
	BackendBolt     = "bolt"
)

type Config struct {
	Port string

	AIProvider   string
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string

	StoreBackend   string
	DynamoEndpoint string
	AWSRegion      string
	BoltPath       string

	PostgresURI   string
	BatchInterval time.Duration
	BatchWindow   time.Duration

	LogLevel  string
	ServerURL string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; variables already set win.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:           getEnv("PORT", "8080"),
		AIProvider:     strings.ToLower(getEnv("AI_PROVIDER", ProviderGemini)),
		GeminiAPIKey:   firstEnv("API_KEY", "GEMINI_API_KEY"),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-3-flash-preview"),
		OpenAIAPIKey:   GetOpenAIKey(),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		StoreBackend:   strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		DynamoEndpoint: getEnv("DYNAMODB_ENDPOINT", "http://localhost:8000"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		BoltPath:       getEnv("BOLT_PATH", "conv/goalchat.bolt"),
		PostgresURI:    os.Getenv("POSTGRES_URI"),
		BatchInterval:  getDuration("BATCH_INTERVAL", 10*time.Minute),
		BatchWindow:    getDuration("BATCH_WINDOW", 3*time.Hour),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		ServerURL:      getEnv("SERVER_URL", "http://localhost:8080"),
	}
}

func GetOpenAIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
