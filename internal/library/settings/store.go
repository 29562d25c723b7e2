package settings

import (
	"context"
	"database/sql"

	platformdb "libris-backend/internal/platform/db"
)

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) List(ctx context.Context) (map[string]string, error) {
	const q = `SELECT setting_key, setting_value FROM settings`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Get は任意のTx（または素のDB）上で1キーを引く
func Get(ctx context.Context, tx platformdb.DBTX, key string) (string, bool, error) {
	const q = `SELECT setting_value FROM settings WHERE setting_key = ?`
	var v string
	if err := tx.QueryRowContext(ctx, q, key).Scan(&v); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

func upsert(ctx context.Context, tx platformdb.DBTX, key, value string) error {
	const q = `
	INSERT INTO settings (setting_key, setting_value) VALUES (?, ?)
	ON DUPLICATE KEY UPDATE setting_value = VALUES(setting_value)`
	_, err := tx.ExecContext(ctx, q, key, value)
	return err
}
