package storage

import (
	"os"
	"path/filepath"

	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/platform/envutil"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/platform/logger"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/types"
)

type Mode string

const (
	ModeDurable   Mode = "durable"
	ModeEphemeral Mode = "ephemeral"
)

// Location is the set of directories the write path targets. Degraded
// means the configured durable mount was unavailable and bytes are
// landing in process-local temp storage that will not survive a restart.
type Location struct {
	Root          string
	ImagesDir     string
	VideosDir     string
	ThumbnailsDir string
	Mode          Mode
	Degraded      bool
}

// DirFor picks the tier directory for a media type.
func (l Location) DirFor(mediaType types.MediaType) string {
	if mediaType == types.MediaTypeVideo {
		return l.VideosDir
	}
	return l.ImagesDir
}

// Resolver locates the upload root. Resolve is callable concurrently and
// re-ensures the subdirectories on every call rather than trusting a
// previous success: the underlying mount can vanish mid-process.
type Resolver struct {
	log *logger.Logger

	durableRoot   string
	ephemeralRoot string
}

func NewResolver(log *logger.Logger) *Resolver {
	return &Resolver{
		log:           log.With("service", "StorageResolver"),
		durableRoot:   envutil.Str("MEDIA_STORAGE_PATH", ""),
		ephemeralRoot: filepath.Join(os.TempDir(), "gallery-media"),
	}
}

var subdirs = []string{"images", "videos", "thumbnails"}

// Resolve always returns a usable location. Directory-creation failures
// are logged with full path context and degrade to the ephemeral root;
// they are never surfaced as errors. Callers that need durability must
// check Degraded.
func (r *Resolver) Resolve() Location {
	if r.durableRoot != "" {
		if loc, ok := r.ensure(r.durableRoot, ModeDurable); ok {
			return loc
		}
		r.log.Warn("Durable storage root unavailable, falling back to ephemeral",
			"durableRoot", r.durableRoot,
			"ephemeralRoot", r.ephemeralRoot,
		)
	}

	if loc, ok := r.ensure(r.ephemeralRoot, ModeEphemeral); ok {
		loc.Degraded = true
		return loc
	}

	// Even mkdir under os.TempDir failed; hand back the paths anyway so
	// the write path produces a meaningful write error instead of a nil
	// location.
	r.log.Error("Ephemeral storage root could not be created", "root", r.ephemeralRoot)
	return Location{
		Root:          r.ephemeralRoot,
		ImagesDir:     filepath.Join(r.ephemeralRoot, "images"),
		VideosDir:     filepath.Join(r.ephemeralRoot, "videos"),
		ThumbnailsDir: filepath.Join(r.ephemeralRoot, "thumbnails"),
		Mode:          ModeEphemeral,
		Degraded:      true,
	}
}

func (r *Resolver) ensure(root string, mode Mode) (Location, bool) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		r.log.Warn("Failed to create storage root", "root", root, "error", err)
		return Location{}, false
	}
	if _, err := os.Stat(root); err != nil {
		r.log.Warn("Storage root missing after create", "root", root, "error", err)
		return Location{}, false
	}

	loc := Location{Root: root, Mode: mode}
	for _, sub := range subdirs {
		dir := filepath.Join(root, sub)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			r.log.Warn("Failed to create storage subdirectory", "dir", dir, "error", err)
			return Location{}, false
		}
		switch sub {
		case "images":
			loc.ImagesDir = dir
		case "videos":
			loc.VideosDir = dir
		case "thumbnails":
			loc.ThumbnailsDir = dir
		}
	}
	return loc, true
}
