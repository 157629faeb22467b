// Package catalog persists the media library: files, tags, locations and
// their owners.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/metaphotor/metaphotor/core"
)

var (
	ErrNotFound      = errors.New("catalog entry not found")
	ErrAlreadyExists = errors.New("catalog entry already exists")
)

// Repository exposes catalog persistence operations.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository constructs a catalog repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Migrate creates the catalog tables.
func (r *Repository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(Models()...)
}

func (r *Repository) stamp() string {
	return core.FormatCreated(r.now())
}

// ─── Media files ─────────────────────────────────────────────────────────────

// IsPathRegistered reports whether a media file with path exists.
func (r *Repository) IsPathRegistered(ctx context.Context, path string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&MediaFile{}).
		Where("path = ?", path).
		Count(&count).Error
	return count > 0, err
}

// RemovePublicUnder deletes the public entries whose path lies inside
// folder and returns how many were removed.
func (r *Repository) RemovePublicUnder(ctx context.Context, folder string) (int64, error) {
	prefix := filepath.Clean(folder)
	if !strings.HasSuffix(prefix, string(os.PathSeparator)) {
		prefix += string(os.PathSeparator)
	}
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND path LIKE ? ESCAPE '\\'", PublicOwner, escapeLike(prefix)+"%").
		Delete(&MediaFile{})
	return res.RowsAffected, res.Error
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// CreateMediaFile inserts m, stamping its import time. A second row for the
// same path yields ErrAlreadyExists.
func (r *Repository) CreateMediaFile(ctx context.Context, m *MediaFile) error {
	m.Path = strings.ReplaceAll(m.Path, "\x00", "")
	if m.Imported == "" {
		m.Imported = r.stamp()
	}
	res := r.db.WithContext(ctx).
		Omit("Location").
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "path"}}, DoNothing: true}).
		Create(m)
	if res.Error != nil {
		return fmt.Errorf("creating media file %s: %w", m.Path, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("media file %s: %w", m.Path, ErrAlreadyExists)
	}
	return nil
}

// GetMediaFile loads a media file with its location.
func (r *Repository) GetMediaFile(ctx context.Context, id uint) (*MediaFile, error) {
	var m MediaFile
	err := r.db.WithContext(ctx).Preload("Location").First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("media file #%d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// MediaFileUpdate holds every editable column of a media file.
type MediaFileUpdate struct {
	UserID      uint
	Path        string
	Size        int64
	Title       string
	Description string
	Comment     string
	Tags        string
	Coords      string
	LocationID  *uint
	Year        int
	Created     string
}

// UpdateMediaFile overwrites the editable columns of media file id.
func (r *Repository) UpdateMediaFile(ctx context.Context, id uint, u MediaFileUpdate) error {
	res := r.db.WithContext(ctx).
		Model(&MediaFile{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"user_id":     u.UserID,
			"path":        u.Path,
			"size":        u.Size,
			"title":       u.Title,
			"description": u.Description,
			"comment":     u.Comment,
			"tags":        u.Tags,
			"coords":      u.Coords,
			"location_id": u.LocationID,
			"year":        u.Year,
			"created":     u.Created,
			"updated":     r.stamp(),
		})
	if res.Error != nil {
		return fmt.Errorf("updating media file #%d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("media file #%d: %w", id, ErrNotFound)
	}
	return nil
}

// UpdatePath points media file id at a new path.
func (r *Repository) UpdatePath(ctx context.Context, id uint, path string) error {
	return r.db.WithContext(ctx).
		Model(&MediaFile{}).
		Where("id = ?", id).
		UpdateColumn("path", path).Error
}

// ─── Tags ────────────────────────────────────────────────────────────────────

// CreateTags registers the tags of names that are not known yet. Names are
// lowercased; those outside 3..15 characters are ignored.
func (r *Repository) CreateTags(ctx context.Context, names []string) error {
	seen := make(map[string]struct{}, len(names))
	tags := make([]Tag, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if n := len([]rune(name)); n < core.MinTagLength || n > core.MaxTagLength {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		tags = append(tags, Tag{Name: name})
	}
	if len(tags) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "tag"}}, DoNothing: true}).
		Create(&tags).Error
}

// ListTags returns every tag ordered by name.
func (r *Repository) ListTags(ctx context.Context) ([]Tag, error) {
	var tags []Tag
	err := r.db.WithContext(ctx).Order("tag ASC").Find(&tags).Error
	return tags, err
}

// ─── Locations ───────────────────────────────────────────────────────────────

// NormalizePlace title-cases city and country and upper-cases the code.
func NormalizePlace(city, country, code string) (string, string, string) {
	return titleCase(city), titleCase(country), strings.ToUpper(strings.TrimSpace(code))
}

func titleCase(s string) string {
	return cases.Title(language.English).String(strings.ToLower(strings.TrimSpace(s)))
}

// FindLocation looks a location up by city and country.
func (r *Repository) FindLocation(ctx context.Context, city, country string) (*Location, error) {
	city, country, _ = NormalizePlace(city, country, "")
	var loc Location
	err := r.db.WithContext(ctx).
		Where("city = ? AND country = ?", city, country).
		First(&loc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("location %s, %s: %w", city, country, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

// EnsureLocation returns the stored location matching loc's city and
// country, creating it from loc when missing. A location without a city is
// unknown and yields nil.
func (r *Repository) EnsureLocation(ctx context.Context, loc Location) (*Location, error) {
	loc.City, loc.Country, loc.Code = NormalizePlace(loc.City, loc.Country, loc.Code)
	if loc.City == "" {
		return nil, nil
	}
	loc.ID = 0
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "city"}, {Name: "country"}}, DoNothing: true}).
		Create(&loc).Error
	if err != nil {
		return nil, fmt.Errorf("creating location %s, %s: %w", loc.City, loc.Country, err)
	}
	return r.FindLocation(ctx, loc.City, loc.Country)
}

// GetLocation loads a location by id.
func (r *Repository) GetLocation(ctx context.Context, id uint) (*Location, error) {
	var loc Location
	err := r.db.WithContext(ctx).First(&loc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("location #%d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &loc, nil
}
