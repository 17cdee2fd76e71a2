// Package credentials keeps image provider API keys in Postgres so workers
// can pick them up without redeploying.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/infra"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/sqlinline"
)

const (
	ProviderGemini = "gemini"
	ProviderQwen   = "qwen"
)

// Supported reports whether provider has a stored key slot.
func Supported(provider string) bool {
	return provider == ProviderGemini || provider == ProviderQwen
}

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Token returns the stored key for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	var token string
	if err := s.sql.QueryRow(ctx, sqlinline.QSelectProviderCredential, provider).Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("credentials: load %s: %w", provider, err)
	}
	return strings.TrimSpace(token), nil
}

// Resolve prefers the configured key and falls back to the stored one.
func (s *Store) Resolve(ctx context.Context, provider, configured string) (string, error) {
	if key := strings.TrimSpace(configured); key != "" {
		return key, nil
	}
	return s.Token(ctx, provider)
}

// Set stores key for provider, replacing any previous value.
func (s *Store) Set(ctx context.Context, provider, key string) error {
	key = strings.TrimSpace(key)
	if !Supported(provider) {
		return fmt.Errorf("credentials: unsupported provider %q", provider)
	}
	if key == "" {
		return errors.New("credentials: api key is required")
	}
	if _, err := s.sql.Exec(ctx, sqlinline.QUpsertProviderCredential, provider, key); err != nil {
		return fmt.Errorf("credentials: store %s: %w", provider, err)
	}
	return nil
}
