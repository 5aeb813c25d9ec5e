package cache

import (
	"context"
	"errors"
	"fmt"

	"partymaker/internal/codec"
	"partymaker/internal/models"
)

// PutMessages replaces the cached history of one group.
func (c *Cache) PutMessages(ctx context.Context, groupKey string, msgs []models.ChatMessage) error {
	if groupKey == "" {
		return errors.New("cache: group key is required")
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE group_key = ?", groupKey); err != nil {
		return fmt.Errorf("failed to clear messages of %s: %w", groupKey, err)
	}
	ts := c.now().Unix()
	for _, m := range msgs {
		if err := putMessage(ctx, tx, groupKey, m, ts); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// PutMessage adds one message to the history of its group.
func (c *Cache) PutMessage(ctx context.Context, m models.ChatMessage) error {
	if m.Key == "" || m.GroupID == "" {
		return errors.New("cache: message key and group are required")
	}
	return putMessage(ctx, c.db, m.GroupID, m, c.now().Unix())
}

func putMessage(ctx context.Context, db execer, groupKey string, m models.ChatMessage, ts int64) error {
	if m.Key == "" {
		return errors.New("cache: message key is required")
	}
	body, err := codec.EncodeMessage(m)
	if err != nil {
		return fmt.Errorf("failed to encode message %s: %w", m.Key, err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO messages (message_key, group_key, body, updated_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(message_key) DO UPDATE SET group_key = excluded.group_key, body = excluded.body, updated_at = excluded.updated_at`,
		m.Key, groupKey, string(body), ts,
	)
	if err != nil {
		return fmt.Errorf("failed to store message %s: %w", m.Key, err)
	}
	return nil
}

// Messages returns the cached history of a group ordered by key.
func (c *Cache) Messages(ctx context.Context, groupKey string) ([]models.ChatMessage, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT message_key, body FROM messages WHERE group_key = ? ORDER BY message_key", groupKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []models.ChatMessage
	for rows.Next() {
		var key, body string
		if err := rows.Scan(&key, &body); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m, err := codec.DecodeMessage([]byte(body), key)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
