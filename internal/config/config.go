package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read when CONFIG_FILE is unset and the file exists.
const DefaultConfigFile = "rpyconv.yaml"

type Config struct {
	WorkerCount         int    `yaml:"worker_count"`
	BatchSize           int    `yaml:"batch_size"`
	SkipComments        bool   `yaml:"skip_comments"`
	SkipBlankLines      bool   `yaml:"skip_blank_lines"`
	TraceFile           string `yaml:"trace_file"`
	TraceMaxSizeMB      int    `yaml:"trace_max_size_mb"`
	LogLevel            string `yaml:"log_level"`
	DatabaseURL         string `yaml:"database_url"`
	Neo4jURI            string `yaml:"neo4j_uri"`
	Neo4jUser           string `yaml:"neo4j_user"`
	Neo4jPassword       string `yaml:"neo4j_password"`
	EmbeddingAPIKey     string `yaml:"embedding_api_key"`
	EmbeddingBaseURL    string `yaml:"embedding_base_url"`
	EmbeddingModel      string `yaml:"embedding_model"`
	EmbeddingDimensions int    `yaml:"embedding_dimensions"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		WorkerCount:         8,
		BatchSize:           32,
		TraceMaxSizeMB:      10,
		LogLevel:            "info",
		DatabaseURL:         "postgres://localhost:5432/rpy_converter?sslmode=disable",
		Neo4jURI:            "bolt://localhost:7687",
		Neo4jUser:           "neo4j",
		Neo4jPassword:       "password",
		EmbeddingBaseURL:    "https://api.openai.com/v1",
		EmbeddingModel:      "text-embedding-3-small",
		EmbeddingDimensions: 1536,
	}
}

// Load resolves configuration from defaults, the YAML config file, a .env
// file and the environment, later sources winning.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg := Defaults()
	path, explicit := os.LookupEnv("CONFIG_FILE")
	if !explicit {
		path = DefaultConfigFile
	}
	if err := loadFile(path, &cfg); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", path).Msg("Ignoring config file")
		}
	}

	applyEnv(&cfg)
	return &cfg
}

// loadFile overlays the YAML document at path onto cfg.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.WorkerCount = getEnvInt("WORKER_COUNT", cfg.WorkerCount)
	cfg.BatchSize = getEnvInt("BATCH_SIZE", cfg.BatchSize)
	cfg.SkipComments = getEnvBool("SKIP_COMMENTS", cfg.SkipComments)
	cfg.SkipBlankLines = getEnvBool("SKIP_BLANK_LINES", cfg.SkipBlankLines)
	cfg.TraceFile = getEnv("TRACE_FILE", cfg.TraceFile)
	cfg.TraceMaxSizeMB = getEnvInt("TRACE_MAX_SIZE_MB", cfg.TraceMaxSizeMB)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.Neo4jURI = getEnv("NEO4J_URI", cfg.Neo4jURI)
	cfg.Neo4jUser = getEnv("NEO4J_USER", cfg.Neo4jUser)
	cfg.Neo4jPassword = getEnv("NEO4J_PASSWORD", cfg.Neo4jPassword)
	cfg.EmbeddingAPIKey = getEnv("EMBEDDING_API_KEY", cfg.EmbeddingAPIKey)
	cfg.EmbeddingBaseURL = getEnv("EMBEDDING_BASE_URL", cfg.EmbeddingBaseURL)
	cfg.EmbeddingModel = getEnv("EMBEDDING_MODEL", cfg.EmbeddingModel)
	cfg.EmbeddingDimensions = getEnvInt("EMBEDDING_DIMENSIONS", cfg.EmbeddingDimensions)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
