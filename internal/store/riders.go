package store

import (
	"database/sql"
	"fmt"

	"github.com/kavwad/clippertv/internal/models"
)

// EnsureRider creates the rider row if it does not exist yet.
func (db *DB) EnsureRider(riderID string) error {
	var id string
	err := db.QueryRow(`SELECT id FROM riders WHERE id = ?`, riderID).Scan(&id)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("query rider: %w", err)
	}

	_, err = db.Exec(`INSERT INTO riders (id, name, email) VALUES (?, NULL, NULL)`, riderID)
	if err != nil {
		return fmt.Errorf("insert rider: %w", err)
	}
	return nil
}

// GetRider returns a rider by ID
func (db *DB) GetRider(riderID string) (*models.Rider, error) {
	var r models.Rider
	var name, email sql.NullString
	err := db.QueryRow(`
		SELECT id, name, email, created_at, updated_at
		FROM riders
		WHERE id = ?
	`, riderID).Scan(&r.ID, &name, &email, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rider not found")
	}
	if err != nil {
		return nil, fmt.Errorf("query rider: %w", err)
	}
	r.Name = name.String
	r.Email = email.String
	return &r, nil
}

// ListRiders returns all riders ordered by ID
func (db *DB) ListRiders() ([]models.Rider, error) {
	rows, err := db.Query(`
		SELECT id, name, email, created_at, updated_at
		FROM riders
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query riders: %w", err)
	}
	defer rows.Close()

	var riders []models.Rider
	for rows.Next() {
		var r models.Rider
		var name, email sql.NullString
		if err := rows.Scan(&r.ID, &name, &email, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan rider: %w", err)
		}
		r.Name = name.String
		r.Email = email.String
		riders = append(riders, r)
	}
	return riders, rows.Err()
}
