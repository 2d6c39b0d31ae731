package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aulaflow/aulaflow/internal/inference"
)

// Config is the process-level configuration assembled from the environment
// (a .env file is honored when present) plus the optional LLM profile file.
type Config struct {
	DBPath       string
	SchoolName   string
	StackDepth   int
	JournalPath  string
	RendererCmd  string
	ProfilePath  string
	LLM          *inference.Config
}

// Load reads the environment and the LLM profile. Missing values fall back
// to development defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBPath:      envOr("AULAFLOW_DB", "resources/alumnos.db"),
		SchoolName:  envOr("AULAFLOW_SCHOOL_NAME", "PROF. MAXIMO GAMIZ FERNANDEZ"),
		StackDepth:  envInt("AULAFLOW_STACK_DEPTH", 5),
		JournalPath: envOr("AULAFLOW_JOURNAL", ""),
		RendererCmd: envOr("AULAFLOW_RENDERER_CMD", ""),
		ProfilePath: envOr("AULAFLOW_LLM_PROFILE", ""),
	}

	llm, err := loadLLMConfig(cfg.ProfilePath)
	if err != nil {
		return nil, err
	}
	cfg.LLM = llm

	return cfg, nil
}

// Profile is the YAML shape of the LLM profile file: the key pool and the
// model chain, primary first.
type Profile struct {
	BaseURL           string   `yaml:"base_url"`
	APIKeys           []string `yaml:"api_keys"`
	Models            []string `yaml:"models"`
	Temperature       float64  `yaml:"temperature"`
	TimeoutSeconds    int      `yaml:"timeout_seconds"`
	RequestsPerMinute int      `yaml:"requests_per_minute"`
}

// loadLLMConfig builds the inference configuration from the profile file,
// falling back to single-key environment variables when no file is set.
func loadLLMConfig(path string) (*inference.Config, error) {
	cfg := inference.DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read llm profile: %w", err)
		}
		var p Profile
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("config: parse llm profile: %w", err)
		}
		if p.BaseURL != "" {
			cfg.BaseURL = p.BaseURL
		}
		if len(p.Models) > 0 {
			cfg.Models = p.Models
		}
		if len(p.APIKeys) > 0 {
			cfg.APIKeys = p.APIKeys
		}
		if p.Temperature > 0 {
			cfg.Temperature = p.Temperature
		}
		if p.TimeoutSeconds > 0 {
			cfg.Timeout = time.Duration(p.TimeoutSeconds) * time.Second
		}
		if p.RequestsPerMinute > 0 {
			cfg.RequestsPerMinute = p.RequestsPerMinute
		}
		return cfg, nil
	}

	if url := strings.TrimSpace(os.Getenv("AULAFLOW_LLM_URL")); url != "" {
		cfg.BaseURL = url
	}
	if model := strings.TrimSpace(os.Getenv("AULAFLOW_LLM_MODEL")); model != "" {
		cfg.Models = []string{model}
	}
	if key := strings.TrimSpace(os.Getenv("AULAFLOW_LLM_KEY")); key != "" {
		cfg.APIKeys = []string{key}
	}
	return cfg, nil
}

func envOr(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
