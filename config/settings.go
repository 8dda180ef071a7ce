package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/commentlink/dbopen"
	"github.com/hazyhaar/commentlink/watch"
)

// SettingsSchema creates the key/value settings table. The options
// document lives under OptionsKey as JSON.
const SettingsSchema = `
CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// OptionsKey is the settings row holding the user options.
const OptionsKey = "options"

// LoadOptions reads the stored options. ok is false when none are stored.
func LoadOptions(ctx context.Context, db *sql.DB) (o Options, ok bool, err error) {
	var raw string
	err = db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, OptionsKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Options{}, false, nil
	}
	if err != nil {
		return Options{}, false, fmt.Errorf("config: load options: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		return Options{}, false, fmt.Errorf("config: decode options: %w", err)
	}
	return o.Normalize(), true, nil
}

// SaveOptions stores normalized options.
func SaveOptions(ctx context.Context, db *sql.DB, o Options) error {
	data, err := json.Marshal(o.Normalize())
	if err != nil {
		return fmt.Errorf("config: encode options: %w", err)
	}
	_, err = dbopen.Exec(ctx, db, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, OptionsKey, string(data), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("config: save options: %w", err)
	}
	return nil
}

// SyncOptions keeps store in step with the settings table until ctx is
// done. Stored options, if any, are installed before polling starts.
func SyncOptions(ctx context.Context, db *sql.DB, store *Store, cfg SettingsConfig, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	reload := func(ctx context.Context) error {
		o, ok, err := LoadOptions(ctx, db)
		if err != nil {
			return err
		}
		if ok {
			store.Update(o)
		}
		return nil
	}
	if err := reload(ctx); err != nil {
		return err
	}

	w := watch.New(db, watch.Options{
		Interval: cfg.Interval,
		Debounce: cfg.Debounce,
		Detector: watch.MaxColumn("settings", "updated_at"),
		Logger:   logger,
	})
	w.Run(ctx, reload)
	return nil
}
