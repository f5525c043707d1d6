package model

import "time"

type ArchiveStatus string

const (
	ArchiveStatusPending   ArchiveStatus = "pending"
	ArchiveStatusUploading ArchiveStatus = "uploading"
	ArchiveStatusCompleted ArchiveStatus = "completed"
	ArchiveStatusFailed    ArchiveStatus = "failed"
)

// Archive is an encrypted month snapshot held in object storage.
type Archive struct {
	ID           int64         `json:"id"`
	Month        string        `json:"month"`
	ObjectKey    string        `json:"object_key"`
	Salt         []byte        `json:"-"`
	SizeBytes    int64         `json:"size_bytes"`
	Status       ArchiveStatus `json:"status"`
	ErrorMessage string        `json:"error_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}
