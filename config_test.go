package main

import (
	"reflect"
	"testing"
)

func TestDefaultCouncilConfig(t *testing.T) {
	config := DefaultCouncilConfig()

	if !reflect.DeepEqual(config.Members, DefaultCouncilModels) {
		t.Errorf("Members = %v, want defaults", config.Members)
	}
	if config.Chairman != DefaultChairmanModel {
		t.Errorf("Chairman = %q, want %q", config.Chairman, DefaultChairmanModel)
	}
	if config.Mode != ModeFull {
		t.Errorf("Mode = %q, want full", config.Mode)
	}
	if config.CouncilTemperature != DefaultCouncilTemperature ||
		config.RankingTemperature != DefaultRankingTemperature ||
		config.ChairmanTemperature != DefaultChairmanTemperature {
		t.Errorf("Temperatures = %v/%v/%v, want defaults",
			config.CouncilTemperature, config.RankingTemperature, config.ChairmanTemperature)
	}

	// Mutating a returned config must not touch the shared defaults.
	config.Members[0] = "tampered"
	if DefaultCouncilModels[0] == "tampered" {
		t.Error("DefaultCouncilConfig shares the defaults slice")
	}
}

func TestNewRegistryFromConfigProviders(t *testing.T) {
	reg := NewRegistryFromConfig()

	for _, name := range []string{"openrouter", "openai", "groq", "mistral", "deepseek", "anthropic", "google", "ollama"} {
		if !reg.Has(name) {
			t.Errorf("Registry missing provider %q", name)
		}
	}

	// Bare references route to OpenRouter.
	p, model, err := reg.Resolve("openai/gpt-5.1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if p.Name() != "openrouter" {
		t.Errorf("Default provider = %q, want openrouter", p.Name())
	}
	if model != "openai/gpt-5.1" {
		t.Errorf("Model = %q", model)
	}

	// Direct provider prefixes route past OpenRouter.
	p, model, err = reg.Resolve("anthropic:claude-sonnet-4.5")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if p.Name() != "anthropic" || model != "claude-sonnet-4.5" {
		t.Errorf("Resolve = %q/%q", p.Name(), model)
	}
}

func TestLoadConfigCORSOrigins(t *testing.T) {
	origOrigins := CORSAllowedOrigins
	origLimit := SearchResultLimit
	t.Cleanup(func() {
		CORSAllowedOrigins = origOrigins
		SearchResultLimit = origLimit
	})

	// Origins carry ports; the list is comma-separated.
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://council.example.com, http://localhost:3000")
	t.Setenv("SEARCH_RESULT_LIMIT", "7")

	LoadConfig()

	want := []string{"https://council.example.com", "http://localhost:3000"}
	if !reflect.DeepEqual(CORSAllowedOrigins, want) {
		t.Errorf("CORSAllowedOrigins = %v, want %v", CORSAllowedOrigins, want)
	}
	if SearchResultLimit != 7 {
		t.Errorf("SearchResultLimit = %d, want 7", SearchResultLimit)
	}
}
