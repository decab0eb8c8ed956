package services

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/media"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/observability"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/platform/apierr"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/platform/logger"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/repos"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/storage"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/types"
)

// InlineThreshold is the tiering cut: uploads below it are persisted
// inline in the database, everything at or above it goes to the
// filesystem tier. The decision is a pure function of size.
const InlineThreshold = 1 << 20

type StoreInput struct {
	Bytes    []byte
	FileName string
	MimeType string
	// DeclaredSize is the client-declared upload size; zero falls back
	// to len(Bytes).
	DeclaredSize int64

	// Declared video metadata; images are probed server-side instead.
	Width    int
	Height   int
	Duration *float64
}

type MediaService interface {
	Store(ctx context.Context, in StoreInput) (*types.MediaRecord, bool, error)
	Get(ctx context.Context, id uuid.UUID) (*types.MediaRecord, error)
	Fetch(ctx context.Context, id uuid.UUID) (*types.MediaRecord, []byte, error)
	FetchThumbnail(ctx context.Context, id uuid.UUID) (*types.MediaRecord, []byte, error)
	List(ctx context.Context, mediaType types.MediaType, limit, offset int) ([]*types.MediaRecord, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ETag(record *types.MediaRecord) string
}

type mediaService struct {
	db        *gorm.DB
	log       *logger.Logger
	mediaRepo repos.MediaRepo
	resolver  *storage.Resolver
	metrics   *observability.Metrics
}

func NewMediaService(db *gorm.DB, log *logger.Logger, mediaRepo repos.MediaRepo, resolver *storage.Resolver, metrics *observability.Metrics) MediaService {
	serviceLog := log.With("service", "MediaService")
	return &mediaService{
		db:        db,
		log:       serviceLog,
		mediaRepo: mediaRepo,
		resolver:  resolver,
		metrics:   metrics,
	}
}

// Store persists one upload on the tier chosen by its size and returns
// the created record plus whether storage is currently degraded. It
// fails only on genuinely unusable input; storage degradation is not an
// error.
func (s *mediaService) Store(ctx context.Context, in StoreInput) (*types.MediaRecord, bool, error) {
	if len(in.Bytes) == 0 {
		return nil, false, apierr.InvalidRequest(errors.New("empty upload"))
	}

	size := in.DeclaredSize
	if size <= 0 {
		size = int64(len(in.Bytes))
	}

	mediaType := mediaTypeOf(in.MimeType)

	record := &types.MediaRecord{
		ID:           uuid.New(),
		OriginalName: in.FileName,
		MimeType:     in.MimeType,
		MediaType:    mediaType,
		FileSize:     size,
		UploadedAt:   time.Now().UTC(),
	}

	data := in.Bytes
	ext := strings.ToLower(filepath.Ext(in.FileName))

	if mediaType == types.MediaTypeImage {
		if w, h, err := media.Dimensions(data); err == nil {
			record.Width, record.Height = w, h
		}
		if out, newExt, ok := media.Transcode(data); ok {
			data = out
			ext = newExt
			record.MimeType = "image/jpeg"
		}
	} else {
		record.Width, record.Height = in.Width, in.Height
		record.Duration = in.Duration
		if label := types.ResolutionLabel(in.Height); label != "" {
			record.Resolution = &label
		}
	}

	// Content-addressed stored name: concurrent identical uploads land
	// on the same file instead of racing, and distinct contents never
	// collide.
	record.FileName = storedName(data, ext)

	degraded := false
	if size < InlineThreshold {
		encoded := base64.StdEncoding.EncodeToString(data)
		record.StorageType = types.StorageTypeDatabase
		record.FileData = &encoded

		if mediaType == types.MediaTypeImage {
			thumb, err := media.Thumbnail(in.Bytes)
			if err != nil {
				s.log.Warn("Thumbnail generation failed", "fileName", in.FileName, "error", err)
			} else {
				encodedThumb := base64.StdEncoding.EncodeToString(thumb)
				record.ThumbnailData = &encodedThumb
			}
		}
	} else {
		loc := s.resolver.Resolve()
		degraded = loc.Degraded
		if s.metrics != nil {
			s.metrics.SetStorageDegraded(degraded)
		}

		target := filepath.Join(loc.DirFor(mediaType), record.FileName)
		if err := os.WriteFile(target, data, 0o644); err != nil {
			s.log.Error("Failed to write media file", "path", target, "error", err)
			return nil, degraded, fmt.Errorf("write media file: %w", err)
		}
		record.StorageType = types.StorageTypeFilesystem
	}

	created, err := s.mediaRepo.Create(ctx, nil, record)
	if err != nil {
		return nil, degraded, fmt.Errorf("create media record: %w", err)
	}

	if s.metrics != nil {
		s.metrics.ObserveUpload(string(record.StorageType), string(mediaType), int64(len(data)))
	}
	s.log.Info("Stored media",
		"id", created.ID,
		"tier", created.StorageType,
		"mediaType", created.MediaType,
		"size", size,
		"degraded", degraded,
	)
	return created, degraded, nil
}

func (s *mediaService) Get(ctx context.Context, id uuid.UUID) (*types.MediaRecord, error) {
	record, err := s.mediaRepo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.NotFound(fmt.Errorf("media %s not found", id))
		}
		return nil, err
	}
	return record, nil
}

// Fetch retrieves the asset bytes from whichever tier holds them.
func (s *mediaService) Fetch(ctx context.Context, id uuid.UUID) (*types.MediaRecord, []byte, error) {
	record, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if record.StorageType == types.StorageTypeDatabase {
		if record.FileData == nil {
			return nil, nil, apierr.CorruptData(fmt.Errorf("media %s: database tier with no inline data", id))
		}
		data, err := base64.StdEncoding.DecodeString(*record.FileData)
		if err != nil {
			// Stored bytes failing to decode is a data integrity issue,
			// never a user error.
			return nil, nil, apierr.CorruptData(fmt.Errorf("media %s: inline data undecodable: %w", id, err))
		}
		return record, data, nil
	}

	loc := s.resolver.Resolve()
	path := filepath.Join(loc.DirFor(record.MediaType), record.FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Record exists but the blob does not: surface the
			// consistency violation instead of recovering silently.
			s.log.Error("Media blob missing on filesystem tier", "id", id, "path", path)
			return nil, nil, apierr.NotFound(fmt.Errorf("media %s: file missing at %s", id, path))
		}
		return nil, nil, fmt.Errorf("read media file %s: %w", path, err)
	}
	return record, data, nil
}

// FetchThumbnail returns nil bytes (without error) when the record has
// no stored thumbnail; the handler redirects to the full asset.
func (s *mediaService) FetchThumbnail(ctx context.Context, id uuid.UUID) (*types.MediaRecord, []byte, error) {
	record, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if record.ThumbnailData == nil {
		return record, nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(*record.ThumbnailData)
	if err != nil {
		return nil, nil, apierr.CorruptData(fmt.Errorf("media %s: thumbnail undecodable: %w", id, err))
	}
	return record, data, nil
}

func (s *mediaService) List(ctx context.Context, mediaType types.MediaType, limit, offset int) ([]*types.MediaRecord, error) {
	return s.mediaRepo.List(ctx, nil, mediaType, limit, offset)
}

// Delete removes the record and, on the filesystem tier, best-effort
// unlinks the blob.
func (s *mediaService) Delete(ctx context.Context, id uuid.UUID) error {
	record, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.mediaRepo.DeleteByID(ctx, nil, id); err != nil {
		return fmt.Errorf("delete media record: %w", err)
	}

	if record.StorageType == types.StorageTypeFilesystem {
		loc := s.resolver.Resolve()
		path := filepath.Join(loc.DirFor(record.MediaType), record.FileName)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.log.Warn("Failed to remove media file (ignored)", "path", path, "error", err)
		}
	}
	return nil
}

func mediaTypeOf(mimeType string) types.MediaType {
	if strings.HasPrefix(mimeType, "video/") {
		return types.MediaTypeVideo
	}
	return types.MediaTypeImage
}

func storedName(data []byte, ext string) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16] + ext
}
