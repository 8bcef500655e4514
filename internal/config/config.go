package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	LLMAPIKey          string
	LLMBaseURL         string
	LLMModel           string
	LLMTemperature     float64
	LLMMaxTokens       int
	LLMTimeout         time.Duration
	LLMMaxAttempts     int
	RequestTimeout     time.Duration
	VariantConcurrency int

	UploadDir      string
	ExportDir      string
	MaxUploadBytes int64

	Port               string
	PublicPathPrefix   string
	CORSAllowedOrigins []string
	LogMode            string
}

// Load reads configuration from the environment, providing sensible defaults.
func Load() Config {
	// Load .env file if it exists (useful for development)
	_ = godotenv.Load()
	apiKey := os.Getenv("GROQ_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("LLM_API_KEY")
	}
	return Config{
		LLMAPIKey:          apiKey,
		LLMBaseURL:         getEnv("LLM_BASE_URL", "https://api.groq.com/openai/v1"),
		LLMModel:           getEnv("LLM_MODEL", "llama-3.3-70b-versatile"),
		LLMTemperature:     getFloat("LLM_TEMPERATURE", 0.7),
		LLMMaxTokens:       getInt("LLM_MAX_TOKENS", 4096),
		LLMTimeout:         getDuration("LLM_TIMEOUT", 2*time.Minute),
		LLMMaxAttempts:     getInt("LLM_MAX_ATTEMPTS", 3),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 5*time.Minute),
		VariantConcurrency: getInt("VARIANT_CONCURRENCY", 3),
		UploadDir:          getEnv("UPLOAD_DIR", "./data/uploads"),
		ExportDir:          getEnv("EXPORT_DIR", "./data/exports"),
		MaxUploadBytes:     int64(getInt("MAX_UPLOAD_BYTES", 32<<20)),
		Port:               getEnv("PORT", "8000"),
		PublicPathPrefix:   strings.TrimRight(getEnv("PUBLIC_PATH_PREFIX", "/api"), "/"),
		CORSAllowedOrigins: getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		LogMode:            getEnv("LOG_MODE", "dev"),
	}
}

// EnsureDirs creates the upload and export directories.
func (c Config) EnsureDirs() error {
	for _, dir := range []string{c.UploadDir, c.ExportDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure dir %s: %w", dir, err)
		}
	}
	return nil
}

// Validate checks the settings needed to talk to the LLM.
func (c Config) Validate() error {
	var errs []error
	if c.LLMAPIKey == "" {
		errs = append(errs, errors.New("GROQ_API_KEY (or LLM_API_KEY) is not set"))
	}
	if c.LLMModel == "" {
		errs = append(errs, errors.New("LLM_MODEL is empty"))
	}
	if c.LLMMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("LLM_MAX_ATTEMPTS must be >= 1, got %d", c.LLMMaxAttempts))
	}
	if c.VariantConcurrency < 1 {
		errs = append(errs, fmt.Errorf("VARIANT_CONCURRENCY must be >= 1, got %d", c.VariantConcurrency))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getList(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
