package records

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tyemirov/humanrecord/internal/apperr"
	"github.com/tyemirov/humanrecord/internal/metrics"
	"github.com/tyemirov/humanrecord/internal/objectstore"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const audioTimestampLayout = "20060102_150405"

var (
	// ErrNotFound reports a record that is absent or owned by another user.
	ErrNotFound = apperr.New(apperr.CodeNotFound, "Record not found")
	// ErrNoAudio reports a record without an uploaded audio file.
	ErrNoAudio = apperr.New(apperr.CodeNotFound, "No audio file found for this record")

	errTitleRequired  = apperr.New(apperr.CodeValidation, "title must not be empty")
	errScriptRequired = apperr.New(apperr.CodeValidation, "script must not be empty")
	errNotAudio       = apperr.New(apperr.CodeValidation, "File must be an audio file")
	errMissingDB      = errors.New("records.missing_db")
	errMissingObjects = errors.New("records.missing_object_store")
)

// Record is a script a user reads aloud, with an optional recording.
type Record struct {
	ID            string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	UserID        string    `gorm:"column:user_id;index;not null;size:36" json:"user_id"`
	Title         string    `gorm:"column:title;not null" json:"title"`
	Script        string    `gorm:"column:script;type:text;not null" json:"script"`
	Description   *string   `gorm:"column:description;type:text" json:"description"`
	AudioFilePath *string   `gorm:"column:audio_file_path" json:"audio_file_path"`
	Duration      *float64  `gorm:"column:duration" json:"duration"`
	CreatedAt     time.Time `gorm:"column:created_at;index" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName pins the table name used by the migrations.
func (Record) TableName() string {
	return "records"
}

// CreateInput carries the fields of a new record.
type CreateInput struct {
	Title       string  `json:"title"`
	Script      string  `json:"script"`
	Description *string `json:"description"`
}

// UpdateInput carries a partial update; nil fields are left untouched.
type UpdateInput struct {
	Title         *string `json:"title"`
	Script        *string `json:"script"`
	Description   *string `json:"description"`
	AudioFilePath *string `json:"audio_file_path"`
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Config wires a Service.
type Config struct {
	DB      *gorm.DB
	Objects objectstore.Store
	Clock   Clock
	Logger  *zap.Logger
	Metrics metrics.Recorder
}

// Service manages records scoped to their owning user.
type Service struct {
	db      *gorm.DB
	objects objectstore.Store
	clock   Clock
	logger  *zap.Logger
	metrics metrics.Recorder
}

// NewService validates dependencies and builds a Service.
func NewService(configuration Config) (*Service, error) {
	if configuration.DB == nil {
		return nil, fmt.Errorf("records.new: %w", errMissingDB)
	}
	if configuration.Objects == nil {
		return nil, fmt.Errorf("records.new: %w", errMissingObjects)
	}
	clock := configuration.Clock
	if clock == nil {
		clock = systemClock{}
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := configuration.Metrics
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Service{
		db:      configuration.DB,
		objects: configuration.Objects,
		clock:   clock,
		logger:  logger,
		metrics: recorder,
	}, nil
}

// Create stores a new record owned by userID.
func (service *Service) Create(ctx context.Context, userID string, input CreateInput) (*Record, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, errTitleRequired
	}
	script := strings.TrimSpace(input.Script)
	if script == "" {
		return nil, errScriptRequired
	}
	now := service.now()
	record := Record{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       title,
		Script:      script,
		Description: input.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := service.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("records.create: %w", err)
	}
	service.metrics.Increment(metrics.EventRecordCreated)
	return &record, nil
}

// List returns the user's records, newest first.
func (service *Service) List(ctx context.Context, userID string) ([]Record, error) {
	records := make([]Record, 0)
	err := service.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("records.list: %w", err)
	}
	return records, nil
}

// Get returns the record or ErrNotFound when userID does not own it.
func (service *Service) Get(ctx context.Context, userID string, recordID string) (*Record, error) {
	var record Record
	err := service.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", recordID, userID).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("records.get: %w", err)
	}
	return &record, nil
}

// Update applies the non-nil fields of input.
func (service *Service) Update(ctx context.Context, userID string, recordID string, input UpdateInput) (*Record, error) {
	record, err := service.Get(ctx, userID, recordID)
	if err != nil {
		return nil, err
	}
	changes := map[string]any{}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, errTitleRequired
		}
		changes["title"] = title
		record.Title = title
	}
	if input.Script != nil {
		script := strings.TrimSpace(*input.Script)
		if script == "" {
			return nil, errScriptRequired
		}
		changes["script"] = script
		record.Script = script
	}
	if input.Description != nil {
		changes["description"] = *input.Description
		record.Description = input.Description
	}
	if input.AudioFilePath != nil {
		changes["audio_file_path"] = *input.AudioFilePath
		record.AudioFilePath = input.AudioFilePath
	}
	record.UpdatedAt = service.now()
	changes["updated_at"] = record.UpdatedAt
	if err := service.applyChanges(ctx, userID, recordID, changes, "records.update"); err != nil {
		return nil, err
	}
	return record, nil
}

// Delete removes the record and, first, its stored audio object. A storage
// failure is logged and does not keep the row.
func (service *Service) Delete(ctx context.Context, userID string, recordID string) error {
	record, err := service.Get(ctx, userID, recordID)
	if err != nil {
		return err
	}
	if filename := audioFilename(record.AudioFilePath); filename != "" {
		key := ObjectKey(userID, recordID, filename)
		if deleteErr := service.objects.Delete(ctx, key); deleteErr != nil {
			service.metrics.Increment(metrics.EventAudioDeleteFailed)
			service.logger.Warn("audio object delete failed",
				zap.String("code", "records.delete.storage_failed"),
				zap.String("record_id", recordID),
				zap.String("key", key),
				zap.Error(deleteErr))
		}
	}
	result := service.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", recordID, userID).
		Delete(&Record{})
	if result.Error != nil {
		return fmt.Errorf("records.delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	service.metrics.Increment(metrics.EventRecordDeleted)
	return nil
}

// UploadAudio stores body as the record's recording and points
// audio_file_path at its public URL.
func (service *Service) UploadAudio(ctx context.Context, userID string, recordID string, filename string, contentType string, body io.Reader) (*Record, error) {
	record, err := service.Get(ctx, userID, recordID)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(contentType, "audio/") {
		return nil, errNotAudio
	}
	now := service.now()
	objectName := fmt.Sprintf("%s_%s%s", recordID, now.Format(audioTimestampLayout), path.Ext(filename))
	key := ObjectKey(userID, recordID, objectName)
	if uploadErr := service.objects.Upload(ctx, key, contentType, body); uploadErr != nil {
		service.metrics.Increment(metrics.EventAudioUploadFailed)
		service.logger.Error("audio upload failed",
			zap.String("code", "records.upload.storage_failed"),
			zap.String("record_id", recordID),
			zap.String("key", key),
			zap.Error(uploadErr))
		return nil, apperr.Wrap(apperr.CodeUpstream, "Failed to upload audio to storage", uploadErr)
	}
	publicURL := service.objects.PublicURL(key)
	changes := map[string]any{"audio_file_path": publicURL, "updated_at": now}
	if err := service.applyChanges(ctx, userID, recordID, changes, "records.upload_audio"); err != nil {
		service.discardObject(ctx, recordID, key)
		return nil, err
	}
	record.AudioFilePath = &publicURL
	record.UpdatedAt = now
	service.metrics.Increment(metrics.EventAudioUploaded)
	return record, nil
}

// AudioURL returns the public URL of the record's recording.
func (service *Service) AudioURL(ctx context.Context, userID string, recordID string) (string, error) {
	record, err := service.Get(ctx, userID, recordID)
	if err != nil {
		return "", err
	}
	if record.AudioFilePath == nil || *record.AudioFilePath == "" {
		return "", ErrNoAudio
	}
	return *record.AudioFilePath, nil
}

// ObjectKey is the storage key of a record's audio object.
func ObjectKey(userID string, recordID string, filename string) string {
	return fmt.Sprintf("users/%s/records/%s/%s", userID, recordID, filename)
}

func (service *Service) applyChanges(ctx context.Context, userID string, recordID string, changes map[string]any, operation string) error {
	result := service.db.WithContext(ctx).
		Model(&Record{}).
		Where("id = ? AND user_id = ?", recordID, userID).
		Updates(changes)
	if result.Error != nil {
		return fmt.Errorf("%s: %w", operation, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// discardObject removes an uploaded object that no record points at.
func (service *Service) discardObject(ctx context.Context, recordID string, key string) {
	if deleteErr := service.objects.Delete(context.WithoutCancel(ctx), key); deleteErr != nil {
		service.metrics.Increment(metrics.EventAudioDeleteFailed)
		service.logger.Warn("orphaned audio object left in storage",
			zap.String("code", "records.upload.orphaned_object"),
			zap.String("record_id", recordID),
			zap.String("key", key),
			zap.Error(deleteErr))
	}
}

func (service *Service) now() time.Time {
	return service.clock.Now().UTC()
}

// audioFilename returns the last path segment of a stored audio URL.
func audioFilename(audioURL *string) string {
	if audioURL == nil {
		return ""
	}
	trimmed := strings.TrimSpace(*audioURL)
	if parsed, err := url.Parse(trimmed); err == nil && parsed.Path != "" {
		trimmed = parsed.EscapedPath()
	}
	index := strings.LastIndex(trimmed, "/")
	if index < 0 {
		return ""
	}
	segment := trimmed[index+1:]
	if unescaped, err := url.PathUnescape(segment); err == nil {
		return unescaped
	}
	return segment
}
