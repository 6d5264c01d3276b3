// Package config loads the service configuration from environment
// variables (optionally via a .env file), following the teacher's
// nested-struct configuration idiom.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the root configuration object.
type Config struct {
	Environment string `json:"environment"`

	Log   LogConfig   `json:"log"`
	OCR   OCRConfig   `json:"ocr"`
	LLM   LLMConfig   `json:"llm"`
	Store StoreConfig `json:"store"`
	Redis RedisConfig `json:"redis"`

	WorkerConcurrency int `json:"worker_concurrency"`
	PollInterval      int `json:"poll_interval_seconds"`

	MetricsEnabled bool `json:"metrics_enabled"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// OCRConfig configures the Mistral OCR provider abstraction (C2).
type OCRConfig struct {
	Provider          string   `json:"provider"`
	Endpoint          string   `json:"endpoint"`
	APIKey            string   `json:"-"`
	AllowedHosts      []string `json:"allowed_hosts"`
	TextMaxBytes      int64    `json:"text_max_bytes"`
	RetrievalMaxBytes int64    `json:"retrieval_max_bytes"`
	MaxPDFBytes       int64    `json:"max_pdf_bytes"`
}

// LLMConfig configures the structured-output LLM client (C3).
type LLMConfig struct {
	Endpoint    string  `json:"endpoint"`
	APIKey      string  `json:"-"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
}

// StoreConfig configures the durable Postgres job store (C1).
type StoreConfig struct {
	DatabaseURL string `json:"-"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

const (
	defaultOCRTextMaxBytes      = 1 << 20   // 1 MiB
	defaultOCRRetrievalMaxBytes = 256 << 10 // 256 KiB
	defaultMaxPDFBytes          = 15 << 20  // 15 MiB
	defaultLLMTemperature       = 0.2
	defaultWorkerConcurrency    = 25
	defaultPollIntervalSeconds  = 5
)

// Load reads configuration from the environment, applying defaults for
// every optional key in spec §6. Required keys return an error if
// unset so misconfiguration fails fast at startup rather than at the
// first job.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		// No .env file is not a fatal condition.
		_ = err
	}

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		OCR: OCRConfig{
			Provider:          getEnv("OCR_PROVIDER", "mistral"),
			Endpoint:          os.Getenv("OCR_ENDPOINT"),
			APIKey:            os.Getenv("OCR_API_KEY"),
			AllowedHosts:      splitCSV(os.Getenv("ALLOWED_PDF_HOSTS")),
			TextMaxBytes:      getEnvInt64("OCR_TEXT_MAX_BYTES", defaultOCRTextMaxBytes),
			RetrievalMaxBytes: getEnvInt64("OCR_RETRIEVAL_MAX_BYTES", defaultOCRRetrievalMaxBytes),
			MaxPDFBytes:       getEnvInt64("MAX_PDF_BYTES", defaultMaxPDFBytes),
		},
		LLM: LLMConfig{
			Endpoint:    os.Getenv("LLM_ENDPOINT"),
			APIKey:      os.Getenv("LLM_API_KEY"),
			Model:       os.Getenv("LLM_MODEL"),
			Temperature: getEnvFloat("LLM_TEMPERATURE", defaultLLMTemperature),
		},
		Store: StoreConfig{
			DatabaseURL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       int(getEnvInt64("REDIS_DB", 0)),
		},
		WorkerConcurrency: int(getEnvInt64("WORKER_CONCURRENCY", defaultWorkerConcurrency)),
		PollInterval:      int(getEnvInt64("POLL_INTERVAL", defaultPollIntervalSeconds)),
		MetricsEnabled:    getEnvBool("METRICS_ENABLED", true),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.OCR.Endpoint == "" {
		missing = append(missing, "OCR_ENDPOINT")
	}
	if c.OCR.APIKey == "" {
		missing = append(missing, "OCR_API_KEY")
	}
	if len(c.OCR.AllowedHosts) == 0 {
		missing = append(missing, "ALLOWED_PDF_HOSTS")
	}
	if c.LLM.Endpoint == "" {
		missing = append(missing, "LLM_ENDPOINT")
	}
	if c.LLM.APIKey == "" {
		missing = append(missing, "LLM_API_KEY")
	}
	if c.LLM.Model == "" {
		missing = append(missing, "LLM_MODEL")
	}
	if c.Store.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// IsAllowedHost reports whether host is present in the OCR allow-list.
func (c *OCRConfig) IsAllowedHost(host string) bool {
	for _, h := range c.AllowedHosts {
		if strings.EqualFold(h, host) {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
