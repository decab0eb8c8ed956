package types

import (
	"time"

	"github.com/google/uuid"
)

type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

type StorageType string

const (
	StorageTypeDatabase   StorageType = "database"
	StorageTypeFilesystem StorageType = "filesystem"
)

// MediaRecord is one row per uploaded asset. StorageType is set exactly
// once at creation and never migrated: FileData is populated iff the
// record lives on the database tier, otherwise the bytes live at
// {root}/{images|videos}/{FileName}, derived at read time and never
// stored verbatim.
type MediaRecord struct {
	ID           uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	FileName     string      `gorm:"column:file_name;size:255;not null;index" json:"file_name"`
	OriginalName string      `gorm:"column:original_name;size:255;not null" json:"original_name"`
	MimeType     string      `gorm:"column:mime_type;size:128;not null" json:"mime_type"`
	MediaType    MediaType   `gorm:"column:media_type;size:16;not null;index" json:"media_type"`
	FileSize     int64       `gorm:"column:file_size;not null" json:"file_size"`
	StorageType  StorageType `gorm:"column:storage_type;size:16;not null" json:"storage_type"`
	// Base64 of the (possibly transcoded) asset; database tier only.
	FileData *string `gorm:"column:file_data;type:text" json:"-"`
	// Base64 thumbnail; images on the database tier only.
	ThumbnailData *string  `gorm:"column:thumbnail_data;type:text" json:"-"`
	Width         int      `gorm:"column:width" json:"width,omitempty"`
	Height        int      `gorm:"column:height" json:"height,omitempty"`
	Duration      *float64 `gorm:"column:duration" json:"duration,omitempty"`
	Resolution    *string  `gorm:"column:resolution;size:16" json:"resolution,omitempty"`

	UploadedAt time.Time `gorm:"column:uploaded_at;not null" json:"uploaded_at"`
}

func (MediaRecord) TableName() string { return "media_record" }

// ResolutionLabel buckets a pixel height into the usual display labels.
func ResolutionLabel(height int) string {
	switch {
	case height >= 2160:
		return "4K"
	case height >= 1440:
		return "1440p"
	case height >= 1080:
		return "1080p"
	case height >= 720:
		return "720p"
	case height >= 480:
		return "480p"
	default:
		return ""
	}
}
