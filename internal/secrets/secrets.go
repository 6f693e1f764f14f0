// Package secrets resolves named secrets from an ordered chain of
// sources, so the database connection string can come from an injected
// file in production and an environment variable everywhere else.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound marks a secret missing from a source. Chain falls through
// to the next source on it.
var ErrNotFound = errors.New("secret not found")

// Source resolves one named secret.
type Source interface {
	Secret(ctx context.Context, name string) (string, error)
}

// Chain tries each source in order and returns the first hit.
type Chain []Source

func (c Chain) Secret(ctx context.Context, name string) (string, error) {
	for _, src := range c {
		value, err := src.Secret(ctx, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		return value, nil
	}
	return "", fmt.Errorf("secret %q: %w", name, ErrNotFound)
}

// Env resolves secrets from environment variables. The name is mapped to
// PREFIX_NAME with dashes folded to underscores, so "supabase-credentials"
// with prefix CATALOG reads CATALOG_SUPABASE_CREDENTIALS.
type Env struct {
	Prefix string
}

func (e Env) Secret(_ context.Context, name string) (string, error) {
	key := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	if e.Prefix != "" {
		key = e.Prefix + "_" + key
	}
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", fmt.Errorf("env %s: %w", key, ErrNotFound)
	}
	return value, nil
}

// Dir resolves secrets from files under a directory, one file per secret,
// the layout used by mounted secret volumes.
type Dir struct {
	Path string
}

func (d Dir) Secret(_ context.Context, name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(d.Path, name))
	if os.IsNotExist(err) {
		return "", fmt.Errorf("file %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read secret %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Static serves fixed values, for tests and local runs.
type Static map[string]string

func (s Static) Secret(_ context.Context, name string) (string, error) {
	value, ok := s[name]
	if !ok {
		return "", fmt.Errorf("static %s: %w", name, ErrNotFound)
	}
	return value, nil
}
