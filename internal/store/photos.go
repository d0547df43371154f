package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SavePhoto stores image data and returns its ID.
func SavePhoto(ctx context.Context, db *sql.DB, data []byte, mime string) (int64, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO photos (data, mime) VALUES (?, ?)`, data, mime,
	)
	if err != nil {
		return 0, fmt.Errorf("saving photo: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting photo id: %w", err)
	}
	return id, nil
}

// GetPhoto returns a photo's data and MIME type. Data is nil if the photo
// does not exist.
func GetPhoto(ctx context.Context, db *sql.DB, id int64) ([]byte, string, error) {
	var data []byte
	var mime string
	err := db.QueryRowContext(ctx,
		`SELECT data, mime FROM photos WHERE id = ?`, id,
	).Scan(&data, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting photo: %w", err)
	}
	return data, mime, nil
}
