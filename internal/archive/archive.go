// Package archive stores encrypted month snapshots in S3-compatible
// object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/daybook/internal/model"
	"github.com/dukerupert/daybook/internal/store"
)

var (
	ErrDisabled = errors.New("archives not configured")
	ErrNotFound = errors.New("archive not found")
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

func (c S3Config) complete() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type Config struct {
	S3            S3Config
	Passphrase    string
	RetentionDays int
}

// MonthStore reads and replaces whole months.
type MonthStore interface {
	GetMonth(ctx context.Context, mk model.MonthKey) (model.Month, error)
	WriteMonth(ctx context.Context, mk model.MonthKey, month model.Month) error
}

// snapshot is the plaintext of an archive object.
type snapshot struct {
	Month      string      `json:"month"`
	ArchivedAt time.Time   `json:"archivedAt"`
	Days       model.Month `json:"days"`
}

// Manager archives and restores months.
type Manager struct {
	cfg     Config
	client  s3Client
	months  MonthStore
	records *store.ArchiveStore
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(cfg Config, months MonthStore, records *store.ArchiveStore, logger *slog.Logger) *Manager {
	m := &Manager{
		cfg:     cfg,
		months:  months,
		records: records,
		logger:  logger,
		now:     time.Now,
	}
	if cfg.S3.complete() && cfg.Passphrase != "" {
		m.client = newS3Client(cfg.S3)
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether object storage and a passphrase are configured.
func (m *Manager) Enabled() bool {
	return m.client != nil
}

// ObjectKey is where an archive of mk taken at t is stored.
func ObjectKey(mk model.MonthKey, t time.Time) string {
	return fmt.Sprintf("%s/%s.json.enc", mk.Path(), t.UTC().Format("20060102T150405.000Z"))
}

// Archive snapshots a month, encrypts it and uploads it.
func (m *Manager) Archive(ctx context.Context, mk model.MonthKey) (*model.Archive, error) {
	if !m.Enabled() {
		return nil, ErrDisabled
	}

	month, err := m.months.GetMonth(ctx, mk)
	if err != nil {
		return nil, fmt.Errorf("read month: %w", err)
	}
	now := m.now().UTC()
	plaintext, err := json.Marshal(snapshot{Month: mk.String(), ArchivedAt: now, Days: month})
	if err != nil {
		return nil, fmt.Errorf("marshal month: %w", err)
	}

	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}
	key := ObjectKey(mk, now)
	record, err := m.records.Create(mk.String(), key, salt)
	if err != nil {
		return nil, fmt.Errorf("create archive record: %w", err)
	}

	fail := func(err error) (*model.Archive, error) {
		if uerr := m.records.UpdateStatus(record.ID, model.ArchiveStatusFailed, err.Error()); uerr != nil {
			m.logger.Error("mark archive failed", "id", record.ID, "error", uerr)
		}
		return nil, err
	}

	sealed, err := Seal(plaintext, m.cfg.Passphrase, salt)
	if err != nil {
		return fail(fmt.Errorf("encrypt: %w", err))
	}

	if err := m.records.UpdateStatus(record.ID, model.ArchiveStatusUploading, ""); err != nil {
		return fail(err)
	}
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.S3.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return fail(fmt.Errorf("upload to s3: %w", err))
	}

	if err := m.records.UpdateCompleted(record.ID, int64(len(sealed))); err != nil {
		return nil, err
	}
	m.logger.Info("month archived", "month", mk.String(), "key", key, "bytes", len(sealed))
	return m.records.GetByID(record.ID)
}

// Restore downloads an archive and writes it back over its month.
func (m *Manager) Restore(ctx context.Context, id int64) (model.MonthKey, error) {
	if !m.Enabled() {
		return model.MonthKey{}, ErrDisabled
	}

	record, err := m.records.GetByID(id)
	if err != nil {
		return model.MonthKey{}, fmt.Errorf("get archive: %w", err)
	}
	if record == nil || record.Status != model.ArchiveStatusCompleted {
		return model.MonthKey{}, ErrNotFound
	}

	result, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.S3.Bucket),
		Key:    aws.String(record.ObjectKey),
	})
	if err != nil {
		return model.MonthKey{}, fmt.Errorf("download from s3: %w", err)
	}
	defer result.Body.Close()

	sealed, err := io.ReadAll(result.Body)
	if err != nil {
		return model.MonthKey{}, fmt.Errorf("read archive: %w", err)
	}
	plaintext, err := Open(sealed, m.cfg.Passphrase)
	if err != nil {
		return model.MonthKey{}, err
	}

	var snap snapshot
	if err := json.Unmarshal(plaintext, &snap); err != nil {
		return model.MonthKey{}, fmt.Errorf("decode archive: %w", err)
	}
	mk, err := model.ParseMonthKey(snap.Month)
	if err != nil {
		return model.MonthKey{}, fmt.Errorf("decode archive: %w", err)
	}
	if mk.String() != record.Month {
		return model.MonthKey{}, fmt.Errorf("archive %d holds %s, expected %s", id, mk, record.Month)
	}
	if snap.Days == nil {
		snap.Days = model.Month{}
	}

	if err := m.months.WriteMonth(ctx, mk, snap.Days); err != nil {
		return model.MonthKey{}, fmt.Errorf("write month: %w", err)
	}
	m.logger.Info("month restored", "month", mk.String(), "archive_id", id)
	return mk, nil
}

// List returns archives newest first. An empty month lists all.
func (m *Manager) List(month string, limit int) ([]model.Archive, error) {
	return m.records.List(month, limit)
}

// Cleanup deletes archives older than the retention period.
func (m *Manager) Cleanup(ctx context.Context, retentionDays int) error {
	if !m.Enabled() || retentionDays <= 0 {
		return nil
	}

	before := m.now().UTC().AddDate(0, 0, -retentionDays)
	keys, err := m.records.DeleteOlderThan(before)
	if err != nil {
		return fmt.Errorf("delete old archives: %w", err)
	}

	for _, key := range keys {
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.S3.Bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Error("delete archive object", "key", key, "error", err)
		}
	}
	if len(keys) > 0 {
		m.logger.Info("archives pruned", "count", len(keys))
	}
	return nil
}

// Start runs Cleanup with the configured retention every interval. A
// non-positive interval disables the loop.
func (m *Manager) Start(ctx context.Context, interval time.Duration) {
	if !m.Enabled() {
		return
	}
	if interval <= 0 {
		m.logger.Warn("archive cleanup disabled", "interval", interval)
		return
	}
	m.mu.Lock()
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.Cleanup(ctx, m.cfg.RetentionDays); err != nil {
					m.logger.Error("archive cleanup", "error", err)
				}
			}
		}
	}()
}

// Stop stops the cleanup loop started by Start.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
