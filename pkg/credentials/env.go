package credentials

import (
	"context"
	"fmt"
	"os"

	"mercator-hq/relay/pkg/config"
)

// EnvStore reads credentials from environment variables named
// Prefix + upper-cased provider id, with non-alphanumerics mapped to '_'.
// Provider "openai-gpt4" with prefix "RELAY_CREDENTIAL_" reads
// RELAY_CREDENTIAL_OPENAI_GPT4.
type EnvStore struct {
	Prefix string
}

// NewEnvStore creates an environment variable store.
func NewEnvStore(prefix string) *EnvStore {
	return &EnvStore{Prefix: prefix}
}

// Name returns "env".
func (s *EnvStore) Name() string {
	return "env"
}

// Get returns the credential for providerID.
func (s *EnvStore) Get(_ context.Context, providerID string) (string, error) {
	name := s.VarName(providerID)
	if v := os.Getenv(name); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// VarName returns the environment variable consulted for providerID.
func (s *EnvStore) VarName(providerID string) string {
	return s.Prefix + config.EnvKey(providerID)
}
