package credentials

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// knownKeys are the credential variables the service knows how to use.
var knownKeys = []string{
	"OPENROUTER_API_KEY",
	"GEMINI_API_KEY",
	"GOOGLE_API_KEY",
	"ANTHROPIC_API_KEY",
}

// EnvProvider resolves credentials from environment variables, optionally
// honoring a prefixed variant of each key.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates an environment provider. The prefix is tried
// when the bare key is unset.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix}
}

// Name returns the provider name.
func (p *EnvProvider) Name() string {
	return "environment"
}

// GetCredential resolves a key, preferring the bare variable over the
// prefixed one.
func (p *EnvProvider) GetCredential(ctx context.Context, key string) (*Credential, error) {
	if value := os.Getenv(key); value != "" {
		return &Credential{Key: key, Value: value, Source: "environment"}, nil
	}
	if p.prefix != "" {
		if value := os.Getenv(p.prefix + key); value != "" {
			return &Credential{Key: key, Value: value, Source: "environment"}, nil
		}
	}
	return nil, fmt.Errorf("credential not found: %s", key)
}

// ListAvailable returns the known keys that are currently set.
func (p *EnvProvider) ListAvailable(ctx context.Context) ([]string, error) {
	var available []string
	for _, key := range knownKeys {
		if os.Getenv(key) != "" || (p.prefix != "" && os.Getenv(p.prefix+key) != "") {
			available = append(available, key)
		}
	}

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 || parts[1] == "" {
			continue
		}
		key := parts[0]
		if p.prefix != "" {
			key = strings.TrimPrefix(key, p.prefix)
		}
		lower := strings.ToLower(key)
		if !strings.Contains(lower, "api_key") && !strings.Contains(lower, "_token") {
			continue
		}
		duplicate := false
		for _, existing := range available {
			if existing == key {
				duplicate = true
				break
			}
		}
		if !duplicate {
			available = append(available, key)
		}
	}

	return available, nil
}
