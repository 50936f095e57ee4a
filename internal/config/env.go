package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port     string
	LogLevel string

	DatabaseURL string // empty runs on the in-memory store
	SslCertPath string

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	LLMProvider    string // gemini | openai
	AIAPIKey       string
	GenModel       string
	GenTemperature float64
	OpenAIBaseURL  string
	OpenAIAPIKey   string

	Extractor      string // pdf | docconv
	ChunkSize      int
	ChunkOverlap   int
	ContextBudget  int
	Ranker         string // index | keyword
	MaxUploadBytes int64
	IngestWorkers  int

	JWTSecret   string
	CorsOrigins []string
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		SslCertPath: getEnv("SSL_CERT_PATH", ""),

		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "docchat-docs"),

		LLMProvider:    getEnv("LLM_PROVIDER", "gemini"),
		AIAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GenModel:       getEnv("GEN_MODEL", "gemini-2.0-flash"),
		GenTemperature: getEnvFloat("GEN_TEMPERATURE", 0.1),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", ""),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),

		Extractor:      getEnv("EXTRACTOR", "pdf"),
		ChunkSize:      getEnvInt("CHUNK_SIZE", 800),
		ChunkOverlap:   getEnvInt("CHUNK_OVERLAP", 120),
		ContextBudget:  getEnvInt("CONTEXT_BUDGET", 4000),
		Ranker:         getEnv("RANKER", "index"),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 8<<20)),
		IngestWorkers:  getEnvInt("INGEST_WORKERS", 2),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		CorsOrigins: getEnvList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
	}
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Int("default", def).Msg("not an int, using default")
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Float64("default", def).Msg("not a number, using default")
		return def
	}
	return f
}

func getEnvList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
