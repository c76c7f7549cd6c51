// Package credential implements the narrow credential interface named by
// spec.md §6 ("getApiKey(provider) -> string?") plus concrete reference
// resolvers. Real OAuth device/browser flows are explicitly out of scope
// (§1 Out-of-scope collaborators); only the interface and simple
// env/keyring-backed implementations live here.
//
// Grounded on secret_manager/secret_manager.go's SecretManager interface
// and its Env/Keyring/Composite/Mock implementations, generalized from
// sidekick's "SIDE_{NAME}" secret-naming convention to the provider-keyed
// API this library exposes.
package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/zalando/go-keyring"
)

// ErrNotFound is returned when no resolver in the chain has a credential
// for the requested provider.
var ErrNotFound = errors.New("credential: not found")

// shellConfigCache caches resolveShellSpec's stdout per spec string for
// the lifetime of the process (§5: the shell-exec cache is the one piece
// of allowed process-wide mutable state). A command is only ever run
// once per distinct spec, however many times ResolveConfigValue is
// called for it.
var shellConfigCache sync.Map // string -> string

// resolveShellSpec strips spec's leading "!", runs the rest as a shell
// command via /bin/sh -c and returns its trimmed stdout, caching the
// result under the original (unstripped) spec string. Grounded on
// coding/unix/run_command_activity.go's exec.CommandContext pattern.
func resolveShellSpec(spec string) (string, error) {
	if cached, ok := shellConfigCache.Load(spec); ok {
		return cached.(string), nil
	}
	command := strings.TrimPrefix(spec, "!")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "/bin/sh", "-c", command).Output()
	if err != nil {
		return "", fmt.Errorf("credential: shell spec %q: %w", spec, err)
	}
	value := strings.TrimSpace(string(out))
	shellConfigCache.Store(spec, value)
	return value, nil
}

// Resolver is the interface providers/* adapters use to obtain API keys
// and other small config values (base URLs, org ids) without the core
// library ever touching a file format or a config hierarchy.
type Resolver interface {
	// GetAPIKey returns the API key for provider, e.g. "anthropic",
	// "openai", "google", "bedrock".
	GetAPIKey(provider string) (string, error)
	// ResolveConfigValue resolves an arbitrary named config value (e.g.
	// "openai.orgId"). Resolvers that don't carry such values return
	// ErrNotFound.
	ResolveConfigValue(name string) (string, error)
}

// keyName upper-snakes a provider name into an env-var-style key, e.g.
// "azure-openai" -> "AZURE_OPENAI_API_KEY".
func keyName(provider string) string {
	n := strings.ToUpper(provider)
	n = strings.NewReplacer("-", "_", " ", "_").Replace(n)
	return n + "_API_KEY"
}

// EnvResolver reads credentials from the process environment, optionally
// seeded from a .env file at construction time via godotenv (§10.3 calls
// for the ecosystem way over hand-rolled .env parsing).
type EnvResolver struct {
	// Prefix is prepended to the derived env var name, matching
	// sidekick's "SIDE_{name}" convention. Empty by default.
	Prefix string
}

// NewEnvResolver optionally loads a .env file (ignored if absent) and
// returns an EnvResolver.
func NewEnvResolver(dotEnvPath string, prefix string) EnvResolver {
	if dotEnvPath != "" {
		_ = godotenv.Load(dotEnvPath) // missing .env is not an error
	}
	return EnvResolver{Prefix: prefix}
}

func (e EnvResolver) GetAPIKey(provider string) (string, error) {
	name := e.Prefix + keyName(provider)
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("%w: %s not set in environment", ErrNotFound, name)
	}
	return v, nil
}

func (e EnvResolver) ResolveConfigValue(name string) (string, error) {
	if strings.HasPrefix(name, "!") {
		return resolveShellSpec(name)
	}
	envName := e.Prefix + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(name))
	v := os.Getenv(envName)
	if v == "" {
		return "", fmt.Errorf("%w: %s not set in environment", ErrNotFound, envName)
	}
	return v, nil
}

// KeyringResolver reads credentials from the OS keychain via go-keyring,
// under a caller-supplied service name.
type KeyringResolver struct {
	Service string
}

func NewKeyringResolver(service string) KeyringResolver {
	return KeyringResolver{Service: service}
}

func (k KeyringResolver) GetAPIKey(provider string) (string, error) {
	v, err := keyring.Get(k.Service, keyName(provider))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w: %s not found in keyring", ErrNotFound, provider)
		}
		return "", fmt.Errorf("credential: keyring lookup for %s: %w", provider, err)
	}
	return v, nil
}

func (k KeyringResolver) ResolveConfigValue(name string) (string, error) {
	if strings.HasPrefix(name, "!") {
		return resolveShellSpec(name)
	}
	v, err := keyring.Get(k.Service, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w: %s not found in keyring", ErrNotFound, name)
		}
		return "", fmt.Errorf("credential: keyring lookup for %s: %w", name, err)
	}
	return v, nil
}

// CompositeResolver tries each Resolver in order, returning the first
// successful result.
type CompositeResolver struct {
	Resolvers []Resolver
}

func NewCompositeResolver(resolvers ...Resolver) CompositeResolver {
	return CompositeResolver{Resolvers: resolvers}
}

func (c CompositeResolver) GetAPIKey(provider string) (string, error) {
	var lastErr error
	for _, r := range c.Resolvers {
		v, err := r.GetAPIKey(provider)
		if err == nil {
			return v, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		return "", fmt.Errorf("%w: no resolvers configured", ErrNotFound)
	}
	return "", fmt.Errorf("%w: %s: %v", ErrNotFound, provider, lastErr)
}

func (c CompositeResolver) ResolveConfigValue(name string) (string, error) {
	if strings.HasPrefix(name, "!") {
		return resolveShellSpec(name)
	}
	var lastErr error
	for _, r := range c.Resolvers {
		v, err := r.ResolveConfigValue(name)
		if err == nil {
			return v, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		return "", fmt.Errorf("%w: no resolvers configured", ErrNotFound)
	}
	return "", fmt.Errorf("%w: %s: %v", ErrNotFound, name, lastErr)
}

// MockResolver returns a fixed fake key for any provider, for tests.
type MockResolver struct{}

func (MockResolver) GetAPIKey(provider string) (string, error) { return "fake-api-key", nil }
func (MockResolver) ResolveConfigValue(name string) (string, error) {
	if strings.HasPrefix(name, "!") {
		return resolveShellSpec(name)
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}
