package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// GetBlob returns the blob stored under key.
func (db *DB) GetBlob(ctx context.Context, key string) ([]byte, bool, error) {
	var blob []byte
	err := db.QueryRowContext(ctx, `SELECT blob FROM cache_blobs WHERE key = ?`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return blob, true, nil
}

// SetBlob overwrites the blob stored under key.
func (db *DB) SetBlob(ctx context.Context, key string, blob []byte) error {
	if blob == nil {
		blob = []byte{}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO cache_blobs (key, blob, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			blob = excluded.blob,
			updated_at = excluded.updated_at`,
		key, blob, time.Now().UnixMilli())
	return err
}
