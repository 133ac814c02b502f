// Package config loads and validates the sidecar's JSON configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// AuthMode selects JWT verification behavior.
type AuthMode string

const (
	AuthModeVerify AuthMode = "verify"
	AuthModeTrust  AuthMode = "trust"
)

// HitlLevel names the four confirmation strictness tiers.
type HitlLevel string

const (
	HitlAutonomous HitlLevel = "autonomous"
	HitlCautious   HitlLevel = "cautious"
	HitlStandard   HitlLevel = "standard"
	HitlParanoid   HitlLevel = "paranoid"
)

// ConversationBackend selects the conversation store implementation.
type ConversationBackend string

const (
	ConversationSQLite   ConversationBackend = "sqlite"
	ConversationRedis    ConversationBackend = "redis"
	ConversationPostgres ConversationBackend = "postgres"
)

// AuthConfig is the `auth` config section.
type AuthConfig struct {
	Mode       AuthMode `json:"mode"`
	SigningKey string   `json:"signingKey,omitempty"`
	ClaimsPath string   `json:"claimsPath"`
}

// ConversationConfig is the `conversation` config section.
type ConversationConfig struct {
	Store  ConversationBackend `json:"store"`
	Window int                 `json:"window"`
}

// SidecarConfig is the `sidecar` config section.
type SidecarConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

// DriftConfig is the `drift` config section.
type DriftConfig struct {
	Threshold  float64 `json:"threshold"`
	WindowSize int     `json:"windowSize"`
}

// APIConfig is the `api` config section.
type APIConfig struct {
	BaseURL string `json:"baseUrl"`
}

// Config is the full sidecar configuration, loaded from a single JSON file.
type Config struct {
	Auth                 AuthConfig         `json:"auth"`
	DefaultModel         string             `json:"defaultModel"`
	DefaultHitlLevel     HitlLevel          `json:"defaultHitlLevel"`
	AllowUserModelSelect bool               `json:"allowUserModelSelect"`
	AllowUserHitlConfig  bool               `json:"allowUserHitlConfig"`
	AdminKey             string             `json:"adminKey,omitempty"`
	Conversation         ConversationConfig `json:"conversation"`
	Sidecar              SidecarConfig      `json:"sidecar"`
	Drift                DriftConfig        `json:"drift"`
	API                  APIConfig          `json:"api"`
}

// Default returns a Config populated with every documented default.
func Default() Config {
	return Config{
		Auth: AuthConfig{
			Mode:       AuthModeTrust,
			ClaimsPath: "sub",
		},
		DefaultModel:         "claude-sonnet-4-6",
		DefaultHitlLevel:     HitlCautious,
		AllowUserModelSelect: false,
		AllowUserHitlConfig:  false,
		Conversation: ConversationConfig{
			Store:  ConversationSQLite,
			Window: 25,
		},
		Sidecar: SidecarConfig{
			Enabled: false,
			Port:    8001,
		},
		Drift: DriftConfig{
			Threshold:  0.1,
			WindowSize: 5,
		},
		API: APIConfig{
			BaseURL: "http://localhost:3000",
		},
	}
}

// Load reads path, merges it over Default(), and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := Validate(data, cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
