package store

import (
	"context"
	"database/sql"
)

// SetImportedFileHash records the content hash of an imported file.
func (s *Store) SetImportedFileHash(ctx context.Context, path, sum string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO imported_files (path, sha256) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET sha256 = excluded.sha256`,
		path, sum,
	)
	return err
}

// ImportedFileHash returns the recorded hash for path.
// Returns empty string and nil error if the file was never imported.
func (s *Store) ImportedFileHash(ctx context.Context, path string) (string, error) {
	var sum string
	err := s.db.QueryRowContext(ctx, `SELECT sha256 FROM imported_files WHERE path = ?`, path).Scan(&sum)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return sum, err
}
