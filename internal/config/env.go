package config

import (
	"os"
	"strings"
)

// Env is the set of process environment variables the sidecar reads at
// startup. They are never part of the JSON config file and are never
// reloaded after process start.
type Env struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GoogleAPIKey    string
	DeepSeekAPIKey  string
	MCPKey          string
	AdminKey        string
	DatabaseURL     string
	RedisURL        string
	JWTSigningKey   string
}

// LoadEnv reads every recognized environment variable via os.LookupEnv.
func LoadEnv() Env {
	googleKey := lookupFirst("GOOGLE_API_KEY", "GEMINI_API_KEY")
	return Env{
		AnthropicAPIKey: lookup("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    lookup("OPENAI_API_KEY"),
		GoogleAPIKey:    googleKey,
		DeepSeekAPIKey:  lookup("DEEPSEEK_API_KEY"),
		MCPKey:          lookup("FORGE_MCP_KEY"),
		AdminKey:        lookup("FORGE_ADMIN_KEY"),
		DatabaseURL:     lookup("DATABASE_URL"),
		RedisURL:        lookup("REDIS_URL"),
		JWTSigningKey:   lookup("JWT_SIGNING_KEY"),
	}
}

func lookup(name string) string {
	v, _ := os.LookupEnv(name)
	return strings.TrimSpace(v)
}

func lookupFirst(names ...string) string {
	for _, name := range names {
		if v := lookup(name); v != "" {
			return v
		}
	}
	return ""
}
