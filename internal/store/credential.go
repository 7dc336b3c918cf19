package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/pawprox/pawchat/internal/auth"
)

// SaveCredential stores (or replaces) the identity a profile logs in as.
func (db *DB) SaveCredential(profile string, id auth.Identity) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO credentials (profile, user_id, username, display_name, avatar, token, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(profile) DO UPDATE SET
			user_id = excluded.user_id,
			username = excluded.username,
			display_name = excluded.display_name,
			avatar = excluded.avatar,
			token = excluded.token,
			updated_at = excluded.updated_at`,
		profile, id.UserID, id.Username, id.Name, id.Avatar, id.Token, now)
	return err
}

// GetCredential returns the stored identity for profile, or auth.ErrNoIdentity.
func (db *DB) GetCredential(profile string) (auth.Identity, error) {
	var id auth.Identity
	err := db.QueryRow(`
		SELECT user_id, username, display_name, avatar, token
		FROM credentials WHERE profile = ?`, profile).
		Scan(&id.UserID, &id.Username, &id.Name, &id.Avatar, &id.Token)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Identity{}, auth.ErrNoIdentity
	}
	if err != nil {
		return auth.Identity{}, err
	}
	return id, nil
}

// DeleteCredential forgets the profile's identity. Deleting a missing row is not an error.
func (db *DB) DeleteCredential(profile string) error {
	_, err := db.Exec(`DELETE FROM credentials WHERE profile = ?`, profile)
	return err
}

// ListCredentialProfiles returns the profiles that have a stored identity.
func (db *DB) ListCredentialProfiles() ([]string, error) {
	rows, err := db.Query(`SELECT profile FROM credentials ORDER BY profile`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var profiles []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}
