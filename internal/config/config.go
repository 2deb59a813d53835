package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	Environment string
	HTTPAddr    string
	DataDir     string
	DBPath      string
	LexiconPath string
	DocsPath    string

	LLMBaseURL    string
	LLMAPIKey     string
	LLMModel      string
	LLMTimeoutSec int

	LLMFallbackEnabled          bool
	AutoExecuteEnabled          bool
	ContextRetryEnabled         bool
	SemanticLaneEnabled         bool
	SelectionArbitrationEnabled bool

	AutoExecuteConfidence float64
	MinSelectConfidence   float64
	SafeReasonsCSV        string
	SnapshotMaxAgeTurns   int

	SessionTTLSeconds int
	SweepCronExpr     string

	AdminAPIURL string
}

func FromEnv() Config {
	dataDir := stringOrDefault("ROUTER_RUNTIME_DATA_DIR", "/data")
	dbPath := stringOrDefault("ROUTER_RUNTIME_DB_PATH", filepath.Join(dataDir, "router-runtime", "meta.sqlite"))

	return Config{
		Environment: stringOrDefault("ROUTER_RUNTIME_ENV", "development"),
		HTTPAddr:    stringOrDefault("ROUTER_RUNTIME_HTTP_ADDR", ":8080"),
		DataDir:     dataDir,
		DBPath:      dbPath,
		LexiconPath: strings.TrimSpace(os.Getenv("ROUTER_RUNTIME_LEXICON_PATH")),
		DocsPath:    strings.TrimSpace(os.Getenv("ROUTER_RUNTIME_DOCS_PATH")),

		LLMBaseURL:    stringOrDefault("ROUTER_RUNTIME_LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:     strings.TrimSpace(os.Getenv("ROUTER_RUNTIME_LLM_API_KEY")),
		LLMModel:      stringOrDefault("ROUTER_RUNTIME_LLM_MODEL", "gpt-4o-mini"),
		LLMTimeoutSec: intOrDefault("ROUTER_RUNTIME_LLM_TIMEOUT_SECONDS", 12),

		LLMFallbackEnabled:          boolOrDefault("ROUTER_RUNTIME_LLM_FALLBACK_ENABLED", true),
		AutoExecuteEnabled:          boolOrDefault("ROUTER_RUNTIME_AUTO_EXECUTE_ENABLED", false),
		ContextRetryEnabled:         boolOrDefault("ROUTER_RUNTIME_CONTEXT_RETRY_ENABLED", true),
		SemanticLaneEnabled:         boolOrDefault("ROUTER_RUNTIME_SEMANTIC_LANE_ENABLED", true),
		SelectionArbitrationEnabled: boolOrDefault("ROUTER_RUNTIME_SELECTION_ARBITRATION_ENABLED", true),

		AutoExecuteConfidence: floatOrDefault("ROUTER_RUNTIME_AUTO_EXECUTE_CONFIDENCE", 0.85),
		MinSelectConfidence:   floatOrDefault("ROUTER_RUNTIME_MIN_SELECT_CONFIDENCE", 0.6),
		SafeReasonsCSV:        strings.TrimSpace(os.Getenv("ROUTER_RUNTIME_SAFE_REASONS")),
		SnapshotMaxAgeTurns:   intOrDefault("ROUTER_RUNTIME_SNAPSHOT_MAX_AGE_TURNS", 6),

		SessionTTLSeconds: intOrDefault("ROUTER_RUNTIME_SESSION_TTL_SECONDS", 1800),
		SweepCronExpr:     stringOrDefault("ROUTER_RUNTIME_SWEEP_CRON", "*/5 * * * *"),

		AdminAPIURL: stringOrDefault("ROUTER_RUNTIME_ADMIN_API_URL", "http://localhost:8080"),
	}
}

// SafeReasons splits the configured allow-list, empty meaning built-ins.
func (c Config) SafeReasons() []string {
	if c.SafeReasonsCSV == "" {
		return nil
	}
	var reasons []string
	for _, reason := range strings.Split(c.SafeReasonsCSV, ",") {
		if reason = strings.TrimSpace(reason); reason != "" {
			reasons = append(reasons, reason)
		}
	}
	return reasons
}

func stringOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func intOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func boolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func floatOrDefault(name string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
