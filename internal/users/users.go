package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tyemirov/humanrecord/internal/apperr"
	"github.com/tyemirov/humanrecord/internal/identity"
	"gorm.io/gorm"
)

var (
	// ErrConflict reports an insert for a google id that already has a user.
	ErrConflict = apperr.New(apperr.CodeConflict, "user already exists")

	errEmptyGoogleID = errors.New("users.empty_google_id")
)

// User is an application account linked to exactly one Google identity.
type User struct {
	ID        string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	Email     string    `gorm:"column:email;not null" json:"email"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	Picture   *string   `gorm:"column:picture" json:"picture"`
	GoogleID  string    `gorm:"column:google_id;uniqueIndex;not null" json:"google_id"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName pins the table name used by the migrations.
func (User) TableName() string {
	return "users"
}

// Directory persists and resolves users.
type Directory interface {
	FindByGoogleID(ctx context.Context, googleID string) (*User, error)
	FindByID(ctx context.Context, userID string) (*User, error)
	Create(ctx context.Context, profile identity.ProviderProfile) (*User, error)
	UpdateProfile(ctx context.Context, userID string, profile identity.ProviderProfile) (*User, error)
}

// GormDirectory implements Directory with GORM.
type GormDirectory struct {
	db *gorm.DB
}

// NewGormDirectory wraps a migrated GORM handle.
func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

// FindByGoogleID returns nil, nil when no user has the google id.
func (directory *GormDirectory) FindByGoogleID(ctx context.Context, googleID string) (*User, error) {
	return directory.findOne(ctx, "users.find_by_google_id", "google_id = ?", googleID)
}

// FindByID returns nil, nil when the user does not exist.
func (directory *GormDirectory) FindByID(ctx context.Context, userID string) (*User, error) {
	return directory.findOne(ctx, "users.find_by_id", "id = ?", userID)
}

func (directory *GormDirectory) findOne(ctx context.Context, operation string, query string, argument string) (*User, error) {
	var user User
	err := directory.db.WithContext(ctx).Where(query, argument).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return &user, nil
}

// Create inserts a new user for profile and returns ErrConflict if the google id is taken.
func (directory *GormDirectory) Create(ctx context.Context, profile identity.ProviderProfile) (*User, error) {
	if strings.TrimSpace(profile.ProviderID) == "" {
		return nil, fmt.Errorf("users.create: %w", errEmptyGoogleID)
	}
	user := User{
		ID:       uuid.NewString(),
		Email:    profile.Email,
		Name:     profile.Name,
		Picture:  optionalString(profile.Picture),
		GoogleID: profile.ProviderID,
	}
	createErr := directory.db.WithContext(ctx).Create(&user).Error
	if createErr == nil {
		return &user, nil
	}
	if errors.Is(createErr, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("users.create: %w", ErrConflict)
	}
	// Not every dialect translates unique violations; a row appearing under the same key is the same outcome.
	existing, findErr := directory.FindByGoogleID(ctx, profile.ProviderID)
	if findErr == nil && existing != nil {
		return nil, fmt.Errorf("users.create: %w", ErrConflict)
	}
	return nil, fmt.Errorf("users.create: %w", createErr)
}

// UpdateProfile refreshes the provider-sourced fields of an existing user.
func (directory *GormDirectory) UpdateProfile(ctx context.Context, userID string, profile identity.ProviderProfile) (*User, error) {
	result := directory.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"email":      profile.Email,
			"name":       profile.Name,
			"picture":    optionalString(profile.Picture),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("users.update_profile: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("users.update_profile: %w", apperr.New(apperr.CodeNotFound, "user not found"))
	}
	return directory.FindByID(ctx, userID)
}

// Resolve maps a provider profile to a local user, creating it on first sight.
// A concurrent first login that loses the insert race re-reads the winner's row.
func Resolve(ctx context.Context, directory Directory, profile identity.ProviderProfile) (*User, error) {
	existing, findErr := directory.FindByGoogleID(ctx, profile.ProviderID)
	if findErr != nil {
		return nil, fmt.Errorf("users.resolve: %w", findErr)
	}
	if existing == nil {
		created, createErr := directory.Create(ctx, profile)
		if createErr == nil {
			return created, nil
		}
		if !errors.Is(createErr, ErrConflict) {
			return nil, fmt.Errorf("users.resolve: %w", createErr)
		}
		existing, findErr = directory.FindByGoogleID(ctx, profile.ProviderID)
		if findErr != nil {
			return nil, fmt.Errorf("users.resolve: %w", findErr)
		}
		if existing == nil {
			return nil, fmt.Errorf("users.resolve: %w", createErr)
		}
	}
	if !profileChanged(existing, profile) {
		return existing, nil
	}
	updated, updateErr := directory.UpdateProfile(ctx, existing.ID, profile)
	if updateErr != nil {
		return nil, fmt.Errorf("users.resolve: %w", updateErr)
	}
	return updated, nil
}

func profileChanged(user *User, profile identity.ProviderProfile) bool {
	currentPicture := ""
	if user.Picture != nil {
		currentPicture = *user.Picture
	}
	return user.Email != profile.Email || user.Name != profile.Name || currentPicture != profile.Picture
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}
