package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config" yaml:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases" yaml:"databases"`
	Redis       RedisConfig               `json:"redis" yaml:"redis"`
	Providers   map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Upload      UploadConfig              `json:"upload" yaml:"upload"`
	ObjectStore ObjectStoreConfig         `json:"object_store" yaml:"object_store"`
	OCR         OCRConfig                 `json:"ocr" yaml:"ocr"`
	Pipeline    PipelineConfig            `json:"pipeline" yaml:"pipeline"`
	RateLimit   RateLimitConfig           `json:"rate_limit" yaml:"rate_limit"`
}

type BasicConfig struct {
	ServerAddress     string `json:"server_address" yaml:"server_address"`
	LogLevel          string `json:"log_level" yaml:"log_level"`
	Database          string `json:"database" yaml:"database"`
	MinWorkers        int    `json:"min_workers" yaml:"min_workers"`
	MaxWorkers        int    `json:"max_workers" yaml:"max_workers"`
	QueueSize         int    `json:"queue_size" yaml:"queue_size"`
	WorkerIdleTimeout int    `json:"worker_idle_timeout" yaml:"worker_idle_timeout"` // minutes
	TokenTTL          int    `json:"token_ttl" yaml:"token_ttl"`                     // hours
}

type DatabaseConfig struct {
	DSN      string `json:"dsn" yaml:"dsn"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	DBName   string `json:"dbname" yaml:"dbname"`
	Params   string `json:"params" yaml:"params"`
}

type RedisConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	Model   string `json:"model" yaml:"model"`
	APIKey  string `json:"api_key" yaml:"api_key"`
}

type UploadConfig struct {
	MaxBytes          int64    `json:"max_bytes" yaml:"max_bytes"`
	AllowedMimeTypes  []string `json:"allowed_mime_types" yaml:"allowed_mime_types"`
	BaseDir           string   `json:"base_dir" yaml:"base_dir"`
	RetentionMinutes  int      `json:"retention_minutes" yaml:"retention_minutes"`
	CleanInterval     int      `json:"clean_interval" yaml:"clean_interval"` // minutes
	EncryptOCRText    bool     `json:"encrypt_ocr_text" yaml:"encrypt_ocr_text"`
	ObjectStoreBacked bool     `json:"object_store_backed" yaml:"object_store_backed"`
}

type ObjectStoreConfig struct {
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	AccessKey string `json:"access_key" yaml:"access_key"`
	SecretKey string `json:"secret_key" yaml:"secret_key"`
	Bucket    string `json:"bucket" yaml:"bucket"`
	UseSSL    bool   `json:"use_ssl" yaml:"use_ssl"`
}

type OCRConfig struct {
	Binary      string `json:"binary" yaml:"binary"`
	Language    string `json:"language" yaml:"language"`
	TessdataDir string `json:"tessdata_dir" yaml:"tessdata_dir"`
}

type PipelineConfig struct {
	ExtractionModel string `json:"extraction_model" yaml:"extraction_model"`
	SuggestionModel string `json:"suggestion_model" yaml:"suggestion_model"`
	ChatProvider    string `json:"chat_provider" yaml:"chat_provider"`
	ChatModel       string `json:"chat_model" yaml:"chat_model"`
	DefaultUserAge  int    `json:"default_user_age" yaml:"default_user_age"`
	FinancialYear   string `json:"financial_year" yaml:"financial_year"`
	StageTimeout    int    `json:"stage_timeout" yaml:"stage_timeout"` // seconds
}

type RateLimitConfig struct {
	UploadsPerMinute int `json:"uploads_per_minute" yaml:"uploads_per_minute"`
	ChatPerMinute    int `json:"chat_per_minute" yaml:"chat_per_minute"`
}

const (
	DefaultMaxUploadBytes = 10 << 20
	DefaultUserAge        = 25
)

var DefaultAllowedMimeTypes = []string{"image/jpeg", "image/png", "image/jpg", "application/pdf"}

// Load reads configuration from the provided path (defaults to config.json).
// Files ending in .yaml or .yml are decoded as YAML. A .env file next to the
// working directory is loaded first so secrets can live outside the config file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	raw, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(absPath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	if dbCfg, ok := cfg.Databases["sqlite3"]; ok && dbCfg.DSN != "" && dbCfg.DSN != ":memory:" && !filepath.IsAbs(dbCfg.DSN) {
		dbCfg.DSN = filepath.Join(filepath.Dir(absPath), dbCfg.DSN)
		cfg.Databases["sqlite3"] = dbCfg
	}

	cfg.applyEnv()
	cfg.ApplyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("TAXFILER_DB")); v != "" {
		c.BasicConfig.Database = v
	}
	if v := strings.TrimSpace(os.Getenv("TAXFILER_LOG_LEVEL")); v != "" {
		c.BasicConfig.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); v != "" {
		if c.Providers == nil {
			c.Providers = make(map[string]ProviderConfig)
		}
		p := c.Providers["gemini"]
		p.APIKey = v
		c.Providers["gemini"] = p
	}
}

// ApplyDefaults fills zero values with the service defaults.
func (c *Config) ApplyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = ":5000"
	}
	if c.BasicConfig.Database == "" {
		c.BasicConfig.Database = "sqlite3"
	}
	if c.BasicConfig.LogLevel == "" {
		c.BasicConfig.LogLevel = "info"
	}
	if c.Upload.MaxBytes <= 0 {
		c.Upload.MaxBytes = DefaultMaxUploadBytes
	}
	if len(c.Upload.AllowedMimeTypes) == 0 {
		c.Upload.AllowedMimeTypes = append([]string(nil), DefaultAllowedMimeTypes...)
	}
	if c.Upload.BaseDir == "" {
		c.Upload.BaseDir = "./data/uploads"
	}
	if c.OCR.Binary == "" {
		c.OCR.Binary = "tesseract"
	}
	if c.OCR.Language == "" {
		c.OCR.Language = "eng"
	}
	if c.Pipeline.ExtractionModel == "" {
		c.Pipeline.ExtractionModel = "gemini-2.5-flash"
	}
	if c.Pipeline.SuggestionModel == "" {
		c.Pipeline.SuggestionModel = "gemini-2.5-pro"
	}
	if c.Pipeline.ChatProvider == "" {
		c.Pipeline.ChatProvider = "gemini"
	}
	if c.Pipeline.ChatModel == "" {
		c.Pipeline.ChatModel = c.Providers[c.Pipeline.ChatProvider].Model
	}
	if c.Pipeline.ChatModel == "" && c.Pipeline.ChatProvider == "gemini" {
		c.Pipeline.ChatModel = "gemini-2.5-flash"
	}
	if c.Pipeline.DefaultUserAge <= 0 {
		c.Pipeline.DefaultUserAge = DefaultUserAge
	}
}

// StageTimeout returns the per-model-call timeout, zero when disabled.
func (c *Config) StageTimeout() time.Duration {
	return time.Duration(c.Pipeline.StageTimeout) * time.Second
}
