package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"partymaker/internal/codec"
	"partymaker/internal/models"
)

// PutUsers replaces the cached user list with users.
func (c *Cache) PutUsers(ctx context.Context, users map[string]models.User) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM users"); err != nil {
		return fmt.Errorf("failed to clear users: %w", err)
	}
	ts := c.now().Unix()
	for key, u := range users {
		if u.Key == "" {
			u.Key = key
		}
		if err := putUser(ctx, tx, u, ts); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (c *Cache) PutUser(ctx context.Context, u models.User) error {
	if u.Key == "" {
		return errors.New("cache: user key is required")
	}
	return putUser(ctx, c.db, u, c.now().Unix())
}

func putUser(ctx context.Context, db execer, u models.User, ts int64) error {
	body, err := codec.EncodeUser(u)
	if err != nil {
		return fmt.Errorf("failed to encode user %s: %w", u.Key, err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO users (user_key, body, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(user_key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		u.Key, string(body), ts,
	)
	if err != nil {
		return fmt.Errorf("failed to store user %s: %w", u.Key, err)
	}
	return nil
}

// User returns the cached user and whether it was present.
func (c *Cache) User(ctx context.Context, key string) (models.User, bool, error) {
	var body string
	err := c.db.QueryRowContext(ctx, "SELECT body FROM users WHERE user_key = ?", key).Scan(&body)
	if err == sql.ErrNoRows {
		return models.User{}, false, nil
	}
	if err != nil {
		return models.User{}, false, fmt.Errorf("failed to read user %s: %w", key, err)
	}
	u, err := codec.DecodeUser([]byte(body), key)
	if err != nil {
		return models.User{}, false, err
	}
	return u, true, nil
}

func (c *Cache) Users(ctx context.Context) (map[string]models.User, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT user_key, body FROM users")
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	out := map[string]models.User{}
	for rows.Next() {
		var key, body string
		if err := rows.Scan(&key, &body); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u, err := codec.DecodeUser([]byte(body), key)
		if err != nil {
			continue
		}
		out[key] = u
	}
	return out, rows.Err()
}
