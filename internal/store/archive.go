package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/daybook/internal/model"
)

type ArchiveStore struct {
	db *sql.DB
}

func NewArchiveStore(db *sql.DB) *ArchiveStore {
	return &ArchiveStore{db: db}
}

const archiveCols = `id, month, object_key, salt, size_bytes, status, error_message, created_at, completed_at`

func (s *ArchiveStore) Create(month, objectKey string, salt []byte) (*model.Archive, error) {
	now := time.Now().UTC()
	result, err := s.db.Exec(
		`INSERT INTO archives (month, object_key, salt, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		month, objectKey, salt, model.ArchiveStatusPending, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	id, _ := result.LastInsertId()
	return &model.Archive{
		ID:        id,
		Month:     month,
		ObjectKey: objectKey,
		Salt:      salt,
		Status:    model.ArchiveStatusPending,
		CreatedAt: now,
	}, nil
}

func (s *ArchiveStore) GetByID(id int64) (*model.Archive, error) {
	a, err := scanArchive(s.db.QueryRow(`SELECT `+archiveCols+` FROM archives WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get archive %d: %w", id, err)
	}
	return a, nil
}

// List returns the newest archives first. An empty month lists every month.
func (s *ArchiveStore) List(month string, limit int) ([]model.Archive, error) {
	rows, err := s.db.Query(
		`SELECT `+archiveCols+` FROM archives WHERE (? = '' OR month = ?) ORDER BY created_at DESC, id DESC LIMIT ?`,
		month, month, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	defer rows.Close()

	var archives []model.Archive
	for rows.Next() {
		a, err := scanArchive(rows)
		if err != nil {
			return nil, fmt.Errorf("scan archive: %w", err)
		}
		archives = append(archives, *a)
	}
	return archives, rows.Err()
}

func (s *ArchiveStore) UpdateStatus(id int64, status model.ArchiveStatus, errorMsg string) error {
	_, err := s.db.Exec(
		`UPDATE archives SET status = ?, error_message = ? WHERE id = ?`,
		status, errorMsg, id,
	)
	if err != nil {
		return fmt.Errorf("update archive status: %w", err)
	}
	return nil
}

func (s *ArchiveStore) UpdateCompleted(id, sizeBytes int64) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE archives SET status = ?, size_bytes = ?, completed_at = ? WHERE id = ?`,
		model.ArchiveStatusCompleted, sizeBytes, now, id,
	)
	if err != nil {
		return fmt.Errorf("update archive completed: %w", err)
	}
	return nil
}

// DeleteOlderThan deletes archives created before the given time and
// returns their object keys.
func (s *ArchiveStore) DeleteOlderThan(before time.Time) ([]string, error) {
	rows, err := s.db.Query(`SELECT object_key FROM archives WHERE created_at < ?`, before.UTC())
	if err != nil {
		return nil, fmt.Errorf("select old archives: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan object key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := s.db.Exec(`DELETE FROM archives WHERE created_at < ?`, before.UTC()); err != nil {
		return nil, fmt.Errorf("delete old archives: %w", err)
	}
	return keys, nil
}

func scanArchive(row interface{ Scan(...any) error }) (*model.Archive, error) {
	a := &model.Archive{}
	var completedAt sql.NullTime
	err := row.Scan(&a.ID, &a.Month, &a.ObjectKey, &a.Salt, &a.SizeBytes, &a.Status, &a.ErrorMessage, &a.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		a.CompletedAt = &completedAt.Time
	}
	return a, nil
}
