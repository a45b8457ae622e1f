package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"tradedesk/internal/model"
)

const userColumns = `id, email, full_name, hashed_password, is_active, email_verified,
	totp_secret, totp_enabled, last_login, created_at, updated_at`

func scanUser(row scanner) (*model.User, error) {
	var (
		u                model.User
		lastLogin        sql.NullInt64
		created, updated int64
		active, verified int
		totpEnabled      int
	)
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.HashedPassword, &active, &verified,
		&u.TOTPSecret, &totpEnabled, &lastLogin, &created, &updated)
	if err != nil {
		return nil, err
	}
	u.IsActive = active == 1
	u.EmailVerified = verified == 1
	u.TOTPEnabled = totpEnabled == 1
	u.LastLogin = timePtr(lastLogin)
	u.CreatedAt = fromMs(created)
	u.UpdatedAt = fromMs(updated)
	return &u, nil
}

// CreateUser inserts u and sets its ID and timestamps.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	now := s.now()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, full_name, hashed_password, is_active, email_verified,
			totp_secret, totp_enabled, last_login, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Email, u.FullName, u.HashedPassword, boolInt(u.IsActive), boolInt(u.EmailVerified),
		u.TOTPSecret, boolInt(u.TOTPEnabled), nullTime(u.LastLogin), toMs(now), toMs(now))
	if err != nil {
		return mapErr("create user", err)
	}
	u.ID, _ = res.LastInsertId()
	u.CreatedAt, u.UpdatedAt = fromMs(toMs(now)), fromMs(toMs(now))
	return nil
}

// UserByID loads a user by primary key.
func (s *Store) UserByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	return u, mapErr("user by id", err)
}

// UserByEmail loads a user by email (case-insensitive).
func (s *Store) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(strings.TrimSpace(email))))
	return u, mapErr("user by email", err)
}

// UpdateUser writes all mutable user fields.
func (s *Store) UpdateUser(ctx context.Context, u *model.User) error {
	u.UpdatedAt = fromMs(toMs(s.now()))
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET full_name = ?, hashed_password = ?, is_active = ?, email_verified = ?,
			totp_secret = ?, totp_enabled = ?, last_login = ?, updated_at = ?
		WHERE id = ?`,
		u.FullName, u.HashedPassword, boolInt(u.IsActive), boolInt(u.EmailVerified),
		u.TOTPSecret, boolInt(u.TOTPEnabled), nullTime(u.LastLogin), toMs(u.UpdatedAt), u.ID)
	return affected("update user", res, err)
}
