package store

import (
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("store: key not found")

// Put stores value under key, replacing any previous value.
func (db *DB) Put(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	return err
}

// Get returns the value stored under key, or ErrNotFound.
func (db *DB) Get(key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (db *DB) Delete(key string) error {
	_, err := db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return err
}
