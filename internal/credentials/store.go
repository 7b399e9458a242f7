// Package credentials supplies named credential objects to nodes.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"github.com/kelseyhightower/envconfig"
	"github.com/zalando/go-keyring"
)

// LangfuseAPI is the credential name used by every Langfuse node.
const LangfuseAPI = "langfuseApi"

// GeminiAPI is the credential name used by the Gemini chat model node.
const GeminiAPI = "googleGeminiApi"

var ErrNotFound = errors.New("credential not found")

// Store looks up a credential object by name.
type Store interface {
	Get(ctx context.Context, name string) (map[string]any, error)
}

// MapStore serves fixed credentials.
type MapStore map[string]map[string]any

var _ Store = MapStore(nil)

func (m MapStore) Get(_ context.Context, name string) (map[string]any, error) {
	c, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return maps.Clone(c), nil
}

// Env holds credentials read from the environment.
type Env struct {
	LangfuseHost      string `envconfig:"LANGFUSE_HOST" default:"https://cloud.langfuse.com"`
	LangfusePublicKey string `envconfig:"LANGFUSE_PUBLIC_KEY"`
	LangfuseSecretKey string `envconfig:"LANGFUSE_SECRET_KEY"`
	GeminiAPIKey      string `envconfig:"GEMINI_API_KEY"`
	GeminiBaseURL     string `envconfig:"GEMINI_BASE_URL"`
}

// EnvStore serves credentials from Env. A credential whose key is unset is not found.
type EnvStore struct {
	env Env
}

var _ Store = (*EnvStore)(nil)

func NewEnvStore(env Env) *EnvStore {
	return &EnvStore{env: env}
}

// LoadEnvStore processes the environment into an EnvStore.
func LoadEnvStore() (*EnvStore, error) {
	var env Env
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("failed to process credential env: %w", err)
	}
	return NewEnvStore(env), nil
}

func (s *EnvStore) Get(_ context.Context, name string) (map[string]any, error) {
	switch name {
	case LangfuseAPI:
		if s.env.LangfusePublicKey == "" && s.env.LangfuseSecretKey == "" {
			break
		}
		return map[string]any{
			"host":      s.env.LangfuseHost,
			"publicKey": s.env.LangfusePublicKey,
			"secretKey": s.env.LangfuseSecretKey,
		}, nil
	case GeminiAPI:
		if s.env.GeminiAPIKey == "" {
			break
		}
		return map[string]any{"apiKey": s.env.GeminiAPIKey, "host": s.env.GeminiBaseURL}, nil
	}
	return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
}

// KeyringService is the OS keyring service credentials are stored under.
const KeyringService = "langfuse-nodes"

// KeyringStore keeps each credential as a JSON object in the OS keyring.
type KeyringStore struct {
	Service string
}

var _ Store = (*KeyringStore)(nil)

func NewKeyringStore() *KeyringStore {
	return &KeyringStore{Service: KeyringService}
}

func (s *KeyringStore) Get(_ context.Context, name string) (map[string]any, error) {
	raw, err := keyring.Get(s.Service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential %s from keyring: %w", name, err)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("credential %s in keyring is not a JSON object: %w", name, err)
	}
	return out, nil
}

// Set stores a credential object.
func (s *KeyringStore) Set(name string, value map[string]any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := keyring.Set(s.Service, name, string(raw)); err != nil {
		return fmt.Errorf("failed to write credential %s to keyring: %w", name, err)
	}
	return nil
}

// Delete removes a credential. Deleting a missing credential is not an error.
func (s *KeyringStore) Delete(name string) error {
	err := keyring.Delete(s.Service, name)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}

// StoreSource adapts a Store to the Source LangfuseKeys reads from.
type StoreSource struct{ Store }

func (s StoreSource) Credentials(ctx context.Context, name string) (map[string]any, error) {
	return s.Get(ctx, name)
}

// Chain asks each store in order and returns the first hit.
type Chain []Store

var _ Store = Chain(nil)

func (c Chain) Get(ctx context.Context, name string) (map[string]any, error) {
	for _, s := range c {
		v, err := s.Get(ctx, name)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
}
