package crypto

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

var (
	// ErrKeyUnavailable means no usable key could be resolved. Startup must abort.
	ErrKeyUnavailable = errors.New("encryption key unavailable")
	// ErrSecretUnavailable is returned by secret backends that cannot produce the secret.
	ErrSecretUnavailable = errors.New("secret unavailable")
)

// SecretBackend fetches raw key material from an external secret store.
type SecretBackend interface {
	FetchKey(ctx context.Context, name string) ([]byte, error)
}

// KeySource records where the active key came from.
type KeySource string

const (
	KeySourceLocal     KeySource = "local"
	KeySourceBackend   KeySource = "secret_backend"
	KeySourceEphemeral KeySource = "ephemeral"
)

// KeyProviderConfig configures key resolution.
type KeyProviderConfig struct {
	Environment string        // "production" disables ephemeral keys
	LocalKey    string        // ENCRYPTION_KEY
	Backend     SecretBackend // optional
	SecretName  string
	Logger      *slog.Logger
}

// KeyProvider resolves the master key once per process.
type KeyProvider struct {
	cfg    KeyProviderConfig
	logger *slog.Logger

	once   sync.Once
	key    Key
	source KeySource
	err    error
}

// NewKeyProvider creates a provider. Nothing is resolved until ResolveKey.
func NewKeyProvider(cfg KeyProviderConfig) *KeyProvider {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyProvider{cfg: cfg, logger: logger.With("component", "key_provider")}
}

// ResolveKey returns the process-wide key. The first call decides the outcome;
// later calls return the same key or the same error.
func (p *KeyProvider) ResolveKey(ctx context.Context) (Key, error) {
	p.once.Do(func() {
		p.key, p.source, p.err = p.resolve(ctx)
	})
	return p.key, p.err
}

// Source reports where the resolved key came from. Empty before resolution.
func (p *KeyProvider) Source() KeySource {
	return p.source
}

func (p *KeyProvider) production() bool {
	return strings.EqualFold(p.cfg.Environment, "production")
}

func (p *KeyProvider) resolve(ctx context.Context) (Key, KeySource, error) {
	if p.cfg.LocalKey != "" {
		key, err := ParseKey(p.cfg.LocalKey)
		if err != nil {
			return nil, "", fmt.Errorf("%w: ENCRYPTION_KEY is malformed: %v", ErrKeyUnavailable, err)
		}
		return key, KeySourceLocal, nil
	}

	var backendErr error
	if p.cfg.Backend != nil {
		raw, err := p.cfg.Backend.FetchKey(ctx, p.cfg.SecretName)
		if err == nil {
			key, err := ParseKey(string(raw))
			if err != nil {
				return nil, "", fmt.Errorf("%w: secret %q is malformed: %v", ErrKeyUnavailable, p.cfg.SecretName, err)
			}
			return key, KeySourceBackend, nil
		}
		backendErr = err
		p.logger.Warn("secret backend did not return a key", "secret", p.cfg.SecretName, "error", err)
	}

	if p.production() {
		if backendErr != nil {
			return nil, "", fmt.Errorf("%w: no ENCRYPTION_KEY and secret backend failed: %v", ErrKeyUnavailable, backendErr)
		}
		return nil, "", fmt.Errorf("%w: no ENCRYPTION_KEY and no secret backend configured", ErrKeyUnavailable)
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}
	p.logger.Warn("using an ephemeral encryption key; data written now will be unreadable after restart",
		"environment", p.cfg.Environment)
	return key, KeySourceEphemeral, nil
}
