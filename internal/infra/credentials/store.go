package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"server/internal/infra"
	"server/internal/sqlinline"
)

const (
	ProviderGeneration = "generation"
	ProviderBucket     = "bucket"
)

// Store reads and writes provider tokens persisted in the database. Tokens
// stored here take precedence over environment configuration so keys can be
// rotated without a redeploy.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

func (s *Store) GenerationAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderGeneration)
}

func (s *Store) BucketToken(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderBucket)
}

func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

func (s *Store) SetGenerationAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("generation api key is required")
	}
	return s.upsert(ctx, ProviderGeneration, key, nil)
}

func (s *Store) SetBucketToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("bucket token is required")
	}
	return s.upsert(ctx, ProviderBucket, token, nil)
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}
