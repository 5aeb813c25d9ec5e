// Package cache keeps the client's last known groups, users and chat
// messages, plus its preferences, in a local SQLite file.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"partymaker/internal/codec"
	"partymaker/internal/config"
	"partymaker/internal/models"
)

var _ config.PreferenceStore = (*Cache)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS groups (
    group_key TEXT PRIMARY KEY,
    body TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
    user_key TEXT PRIMARY KEY,
    body TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    message_key TEXT PRIMARY KEY,
    group_key TEXT NOT NULL,
    body TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_group ON messages(group_key);

CREATE TABLE IF NOT EXISTS preferences (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

type Cache struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the cache database at path. ":memory:"
// gives a throwaway cache.
func Open(path string) (*Cache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	// one connection so ":memory:" is a single database
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}
	return &Cache{db: db, now: time.Now}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// PutGroups replaces the cached group list with groups.
func (c *Cache) PutGroups(ctx context.Context, groups map[string]models.Group) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM groups"); err != nil {
		return fmt.Errorf("failed to clear groups: %w", err)
	}
	ts := c.now().Unix()
	for id, g := range groups {
		if g.Key == "" {
			g.Key = id
		}
		if err := putGroup(ctx, tx, g, ts); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (c *Cache) PutGroup(ctx context.Context, g models.Group) error {
	if g.Key == "" {
		return errors.New("cache: group key is required")
	}
	return putGroup(ctx, c.db, g, c.now().Unix())
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putGroup(ctx context.Context, db execer, g models.Group, ts int64) error {
	g.EnsureSets()
	body, err := codec.EncodeGroup(g)
	if err != nil {
		return fmt.Errorf("failed to encode group %s: %w", g.Key, err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO groups (group_key, body, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(group_key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		g.Key, string(body), ts,
	)
	if err != nil {
		return fmt.Errorf("failed to store group %s: %w", g.Key, err)
	}
	return nil
}

// Group returns the cached group and whether it was present.
func (c *Cache) Group(ctx context.Context, key string) (models.Group, bool, error) {
	var body string
	err := c.db.QueryRowContext(ctx, "SELECT body FROM groups WHERE group_key = ?", key).Scan(&body)
	if err == sql.ErrNoRows {
		return models.Group{}, false, nil
	}
	if err != nil {
		return models.Group{}, false, fmt.Errorf("failed to read group %s: %w", key, err)
	}
	g, err := codec.DecodeGroup([]byte(body), key)
	if err != nil {
		return models.Group{}, false, err
	}
	g.EnsureSets()
	return g, true, nil
}

// Groups returns every cached group keyed by id.
func (c *Cache) Groups(ctx context.Context) (map[string]models.Group, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT group_key, body FROM groups")
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	out := map[string]models.Group{}
	for rows.Next() {
		var key, body string
		if err := rows.Scan(&key, &body); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		g, err := codec.DecodeGroup([]byte(body), key)
		if err != nil {
			continue
		}
		g.EnsureSets()
		out[key] = g
	}
	return out, rows.Err()
}

func (c *Cache) DeleteGroup(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM groups WHERE group_key = ?", key); err != nil {
		return fmt.Errorf("failed to delete group %s: %w", key, err)
	}
	return nil
}

func (c *Cache) Preference(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := c.db.QueryRowContext(ctx, "SELECT value FROM preferences WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read preference %s: %w", key, err)
	}
	return v, true, nil
}

func (c *Cache) SetPreference(ctx context.Context, key, value string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO preferences (key, value) VALUES (?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to store preference %s: %w", key, err)
	}
	return nil
}
