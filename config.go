package main

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Configuration constants
var (
	// Provider API keys, loaded from the environment.
	OpenRouterAPIKey string
	OpenAIAPIKey     string
	AnthropicAPIKey  string
	GoogleAPIKey     string
	GroqAPIKey       string
	MistralAPIKey    string
	DeepSeekAPIKey   string

	// Provider endpoints.
	OpenRouterAPIURL    = "https://openrouter.ai/api/v1/chat/completions"
	OpenRouterModelsURL = "https://openrouter.ai/api/v1/models"
	OpenAIAPIURL        = "https://api.openai.com/v1/chat/completions"
	GroqAPIURL          = "https://api.groq.com/openai/v1/chat/completions"
	MistralAPIURL       = "https://api.mistral.ai/v1/chat/completions"
	DeepSeekAPIURL      = "https://api.deepseek.com/chat/completions"
	AnthropicBaseURL    = "https://api.anthropic.com/v1"
	GoogleBaseURL       = "https://generativelanguage.googleapis.com/v1beta"
	OllamaBaseURL       = "http://localhost:11434"

	// DefaultCouncilModels is the default roster queried in Stage 1.
	DefaultCouncilModels = []string{
		"openai/gpt-5.1",
		"google/gemini-3-pro-preview",
		"anthropic/claude-sonnet-4.5",
		"x-ai/grok-4",
	}

	// DefaultChairmanModel is the default model for Stage 3 synthesis.
	DefaultChairmanModel = "google/gemini-3-pro-preview"

	// TitleModel generates conversation titles.
	TitleModel = "google/gemini-2.5-flash"

	// Per-stage default temperatures. Ranking runs cooler for consistent
	// FINAL RANKING output.
	DefaultCouncilTemperature  = 0.7
	DefaultRankingTemperature  = 0.3
	DefaultChairmanTemperature = 0.5

	// DataDir is the directory for conversation storage
	DataDir = "data/conversations"

	// Timeout constants
	ModelQueryTimeout   = 120 * time.Second
	TitleGenTimeout     = 30 * time.Second
	CatalogFetchTimeout = 10 * time.Second
	SearchFetchTimeout  = 30 * time.Second

	// Web search defaults.
	SearchResultLimit    = 5
	SearchContentResults = 3

	// CORS allowed origins (configurable via environment)
	// In development (empty/default), allows any localhost port
	// In production, set CORS_ALLOWED_ORIGINS environment variable
	CORSAllowedOrigins = []string{}

	// MaxRequestBodySize is the maximum allowed request body size (1MB)
	MaxRequestBodySize int64 = 1 << 20

	// ModelCatalogTTL is the time-to-live for the model catalog cache
	ModelCatalogTTL = 5 * time.Minute

	// AnthropicAPIVersion and AnthropicMaxTokens parametrize the messages
	// API adapter.
	AnthropicAPIVersion = "2023-06-01"
	AnthropicMaxTokens  = 4096
)

// LoadConfig loads configuration from environment variables
func LoadConfig() {
	// Load .env file - try multiple locations
	envLocations := []string{
		".env",    // Current directory
		"../.env", // Parent directory
	}

	envLoaded := false
	for _, envPath := range envLocations {
		absPath, err := filepath.Abs(envPath)
		if err != nil {
			continue
		}
		if _, err := os.Stat(absPath); err == nil {
			if err := godotenv.Load(absPath); err == nil {
				log.Printf("Loaded .env from: %s", absPath)
				envLoaded = true
				break
			}
		}
	}
	if !envLoaded {
		log.Printf("Warning: .env file not found in any expected location")
	}

	OpenRouterAPIKey = os.Getenv("OPENROUTER_API_KEY")
	OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")
	GroqAPIKey = os.Getenv("GROQ_API_KEY")
	MistralAPIKey = os.Getenv("MISTRAL_API_KEY")
	DeepSeekAPIKey = os.Getenv("DEEPSEEK_API_KEY")

	if url := os.Getenv("OLLAMA_BASE_URL"); url != "" {
		OllamaBaseURL = url
	}
	if url := os.Getenv("CUSTOM_OPENAI_BASE_URL"); url != "" {
		CustomOpenAIBaseURL = url
		CustomOpenAIAPIKey = os.Getenv("CUSTOM_OPENAI_API_KEY")
	}

	if OpenRouterAPIKey == "" && OpenAIAPIKey == "" && AnthropicAPIKey == "" &&
		GoogleAPIKey == "" && GroqAPIKey == "" && MistralAPIKey == "" &&
		DeepSeekAPIKey == "" && CustomOpenAIBaseURL == "" {
		log.Printf("Warning: no provider API key configured; only ollama-prefixed models will work")
	}

	// Comma-separated; origins carry ports, so no path-list splitting.
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		CORSAllowedOrigins = []string{}
		for _, origin := range strings.Split(corsOrigins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				CORSAllowedOrigins = append(CORSAllowedOrigins, origin)
			}
		}
	}

	if limit := os.Getenv("SEARCH_RESULT_LIMIT"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			SearchResultLimit = n
		}
	}

	log.Println("Configuration loaded successfully")
}

// Custom OpenAI-compatible endpoint (e.g. a local vLLM server).
var (
	CustomOpenAIBaseURL string
	CustomOpenAIAPIKey  string
)

// NewRegistryFromConfig builds the provider registry from the loaded
// configuration. Every provider is registered; adapters with no API key
// fail individual calls with an auth error rather than being absent, so an
// unknown-prefix failure always means a typo, not a missing key.
func NewRegistryFromConfig() *Registry {
	reg := NewRegistry("openrouter")

	reg.Register(NewOpenAICompatProvider("openrouter", OpenRouterAPIURL, OpenRouterAPIKey, ModelQueryTimeout))
	reg.Register(NewOpenAICompatProvider("openai", OpenAIAPIURL, OpenAIAPIKey, ModelQueryTimeout))
	reg.Register(NewOpenAICompatProvider("groq", GroqAPIURL, GroqAPIKey, ModelQueryTimeout))
	reg.Register(NewOpenAICompatProvider("mistral", MistralAPIURL, MistralAPIKey, ModelQueryTimeout))
	reg.Register(NewOpenAICompatProvider("deepseek", DeepSeekAPIURL, DeepSeekAPIKey, ModelQueryTimeout))
	reg.Register(NewAnthropicProvider(AnthropicBaseURL, AnthropicAPIKey, ModelQueryTimeout))
	reg.Register(NewGoogleProvider(GoogleBaseURL, GoogleAPIKey, ModelQueryTimeout))
	reg.Register(NewOllamaProvider(OllamaBaseURL, ModelQueryTimeout))
	if CustomOpenAIBaseURL != "" {
		reg.Register(NewOpenAICompatProvider("custom", CustomOpenAIBaseURL+"/chat/completions", CustomOpenAIAPIKey, ModelQueryTimeout))
	}

	return reg
}

// DefaultCouncilConfig assembles a CouncilConfig from configured defaults.
func DefaultCouncilConfig() CouncilConfig {
	members := make([]string, len(DefaultCouncilModels))
	copy(members, DefaultCouncilModels)
	return CouncilConfig{
		Members:             members,
		Chairman:            DefaultChairmanModel,
		Mode:                ModeFull,
		CouncilTemperature:  DefaultCouncilTemperature,
		RankingTemperature:  DefaultRankingTemperature,
		ChairmanTemperature: DefaultChairmanTemperature,
	}
}
