package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Credentials returns all stored provider credentials, keyed by provider id.
// The runner only reads these; they are authored through the admin API.
func (db *DB) Credentials(ctx context.Context) (map[string]map[string]string, error) {
	rows, err := db.sql.QueryContext(ctx,
		`SELECT provider_id, credentials_json FROM provider_credentials`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]map[string]string)
	for rows.Next() {
		var providerID, credsJSON string
		if err := rows.Scan(&providerID, &credsJSON); err != nil {
			return nil, err
		}
		creds := make(map[string]string)
		if err := json.Unmarshal([]byte(credsJSON), &creds); err != nil {
			return nil, fmt.Errorf("credentials for %s: %w", providerID, err)
		}
		out[providerID] = creds
	}
	return out, rows.Err()
}

func (db *DB) UpsertCredentials(ctx context.Context, providerID string, creds map[string]string, now time.Time) error {
	b, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	_, err = db.sql.ExecContext(ctx, `
		INSERT INTO provider_credentials (provider_id, credentials_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(provider_id) DO UPDATE SET credentials_json = excluded.credentials_json,
			updated_at = excluded.updated_at`,
		providerID, string(b), fmtTime(now))
	return err
}

func (db *DB) DeleteCredentials(ctx context.Context, providerID string) error {
	_, err := db.sql.ExecContext(ctx,
		`DELETE FROM provider_credentials WHERE provider_id = ?`, providerID)
	return err
}
