package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"tradedesk/internal/model"
)

const apiKeyColumns = `id, user_id, name, key_hash, prefix, scopes, is_active, last_used_at, expires_at, created_at, revoked_at`

func scanAPIKey(row scanner) (*model.APIKey, error) {
	var (
		k                          model.APIKey
		scopes                     string
		active                     int
		lastUsed, expires, revoked sql.NullInt64
		created                    int64
	)
	err := row.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.Prefix, &scopes, &active,
		&lastUsed, &expires, &created, &revoked)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(scopes), &k.Scopes); err != nil {
		return nil, fmt.Errorf("decode scopes: %w", err)
	}
	k.IsActive = active == 1
	k.LastUsedAt, k.ExpiresAt, k.RevokedAt = timePtr(lastUsed), timePtr(expires), timePtr(revoked)
	k.CreatedAt = fromMs(created)
	return &k, nil
}

func encodeScopes(scopes []string) string {
	if scopes == nil {
		scopes = []string{}
	}
	b, _ := json.Marshal(scopes)
	return string(b)
}

// CreateAPIKey inserts k and sets its ID and creation time.
func (s *Store) CreateAPIKey(ctx context.Context, k *model.APIKey) error {
	now := fromMs(toMs(s.now()))
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (user_id, name, key_hash, prefix, scopes, is_active, last_used_at, expires_at, created_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		k.UserID, k.Name, k.KeyHash, k.Prefix, encodeScopes(k.Scopes), boolInt(k.IsActive),
		nullTime(k.LastUsedAt), nullTime(k.ExpiresAt), toMs(now), nullTime(k.RevokedAt))
	if err != nil {
		return mapErr("create api key", err)
	}
	k.ID, _ = res.LastInsertId()
	k.CreatedAt = now
	return nil
}

// APIKey loads one key by ID.
func (s *Store) APIKey(ctx context.Context, id int64) (*model.APIKey, error) {
	k, err := scanAPIKey(s.db.QueryRowContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE id = ?`, id))
	return k, mapErr("api key", err)
}

// APIKeyByHash loads one key by its digest.
func (s *Store) APIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	k, err := scanAPIKey(s.db.QueryRowContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = ?`, hash))
	return k, mapErr("api key by hash", err)
}

// ListAPIKeys returns the user's keys, newest first.
func (s *Store) ListAPIKeys(ctx context.Context, userID int64) ([]model.APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE user_id = ? ORDER BY id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query api keys: %w", err)
	}
	defer rows.Close()

	var out []model.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan api key: %w", err)
		}
		out = append(out, *k)
	}
	return out, rows.Err()
}

// UpdateAPIKey writes name, scopes, state and timestamps.
func (s *Store) UpdateAPIKey(ctx context.Context, k *model.APIKey) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE api_keys SET name = ?, scopes = ?, is_active = ?, last_used_at = ?, expires_at = ?, revoked_at = ?
		WHERE id = ?`,
		k.Name, encodeScopes(k.Scopes), boolInt(k.IsActive), nullTime(k.LastUsedAt), nullTime(k.ExpiresAt),
		nullTime(k.RevokedAt), k.ID)
	return affected("update api key", res, err)
}

// DeleteAPIKey removes one key.
func (s *Store) DeleteAPIKey(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?`, id)
	return affected("delete api key", res, err)
}
