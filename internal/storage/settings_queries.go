package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// GetSetting returns the current value of key, or sql.ErrNoRows if unset.
func (s *Store) GetSetting(ctx context.Context, key string) (SettingEntry, error) {
	var entry SettingEntry
	var updatedAt int64
	err := s.settings.get(ctx, "get_setting",
		`SELECT key, value, updated_at FROM settings WHERE key = ?`,
		func(row *sql.Row) error {
			return row.Scan(&entry.Key, &entry.Value, &updatedAt)
		}, key)
	if err != nil {
		return SettingEntry{}, err
	}
	entry.UpdatedAt = time.Unix(updatedAt, 0)
	return entry, nil
}

// SetSetting upserts key's value, bumping updated_at to now.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.settings.run(ctx, "set_setting",
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, strftime('%s','now'))
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value)
	return err
}

// ListSettings returns every stored key/value pair.
func (s *Store) ListSettings(ctx context.Context) ([]SettingEntry, error) {
	var out []SettingEntry
	err := s.settings.all(ctx, "list_settings",
		`SELECT key, value, updated_at FROM settings ORDER BY key`,
		func(rows *sql.Rows) error {
			var e SettingEntry
			var updatedAt int64
			if err := rows.Scan(&e.Key, &e.Value, &updatedAt); err != nil {
				return err
			}
			e.UpdatedAt = time.Unix(updatedAt, 0)
			out = append(out, e)
			return nil
		})
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return out, nil
}
