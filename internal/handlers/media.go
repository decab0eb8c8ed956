package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/http/response"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/observability"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/platform/apierr"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/platform/logger"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/services"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/types"
)

const cacheControl = "public, max-age=31536000, immutable, stale-while-revalidate=86400"

const uploadConcurrency = 4

type MediaHandler struct {
	log          *logger.Logger
	mediaService services.MediaService
	progress     *services.ProgressTracker
	metrics      *observability.Metrics
}

func NewMediaHandler(log *logger.Logger, msvc services.MediaService, progress *services.ProgressTracker, metrics *observability.Metrics) *MediaHandler {
	return &MediaHandler{
		log:          log.With("handler", "MediaHandler"),
		mediaService: msvc,
		progress:     progress,
		metrics:      metrics,
	}
}

// POST /api/media
// Multipart batch upload. Drives the progress session named by the
// optional sessionId field while files are stored concurrently.
func (h *MediaHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, fmt.Errorf("multipart form: %w", err))
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		response.RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, errors.New("no files in upload"))
		return
	}

	sessionID := strings.TrimSpace(c.PostForm("sessionId"))

	h.updateProgress(sessionID, services.StageUploading, 0, fmt.Sprintf("uploading %d file(s)", len(files)), &services.ProgressExtra{
		TotalFiles: len(files),
	})

	records := make([]*types.MediaRecord, len(files))
	degradedFlags := make([]bool, len(files))

	g, ctx := errgroup.WithContext(c.Request.Context())
	g.SetLimit(uploadConcurrency)
	for i, fh := range files {
		i, fh := i, fh
		g.Go(func() error {
			data, err := readPart(fh)
			if err != nil {
				return fmt.Errorf("%s: %w", fh.Filename, err)
			}

			meta := declaredMetaFor(form, i)
			record, wasDegraded, err := h.mediaService.Store(ctx, services.StoreInput{
				Bytes:        data,
				FileName:     fh.Filename,
				MimeType:     partMime(fh),
				DeclaredSize: fh.Size,
				Width:        meta.width,
				Height:       meta.height,
				Duration:     meta.duration,
			})
			if err != nil {
				return fmt.Errorf("%s: %w", fh.Filename, err)
			}
			degradedFlags[i] = wasDegraded
			records[i] = record

			h.updateProgress(sessionID, services.StageProcessing, ((i+1)*90)/len(files), fmt.Sprintf("processed %s", fh.Filename), &services.ProgressExtra{
				TotalFiles:       len(files),
				CurrentFileIndex: i + 1,
				CurrentFileName:  fh.Filename,
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		h.updateProgress(sessionID, services.StageError, 0, err.Error(), nil)
		h.log.Error("Upload failed", "error", err)
		response.RespondError(c, apierr.StatusOf(err), apierr.CodeOf(err), err)
		return
	}

	h.updateProgress(sessionID, services.StageCompleted, 100, "upload complete", &services.ProgressExtra{
		TotalFiles:       len(files),
		CurrentFileIndex: len(files),
	})

	for _, wasDegraded := range degradedFlags {
		if wasDegraded {
			c.Header("X-Storage-Degraded", "true")
			break
		}
	}
	c.JSON(http.StatusCreated, gin.H{"media": records})
}

// GET /api/media
func (h *MediaHandler) List(c *gin.Context) {
	mediaType := types.MediaType(c.Query("type"))
	if mediaType != "" && mediaType != types.MediaTypeImage && mediaType != types.MediaTypeVideo {
		response.RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, fmt.Errorf("unknown media type %q", mediaType))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, err := h.mediaService.List(c.Request.Context(), mediaType, limit, offset)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"media": records})
}

// GET /api/media/:id
// HEAD /api/media/:id
func (h *MediaHandler) Serve(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	record, data, err := h.mediaService.Fetch(c.Request.Context(), id)
	if err != nil {
		h.observeServe(apierr.CodeOf(err))
		response.RespondAPIError(c, err)
		return
	}

	etag := h.mediaService.ETag(record)
	h.writeAssetHeaders(c, record, etag, int64(len(data)))

	if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
		h.observeServe("not_modified")
		c.Status(http.StatusNotModified)
		return
	}

	if c.Request.Method == http.MethodHead {
		h.observeServe("ok")
		c.Status(http.StatusOK)
		return
	}

	if record.MediaType == types.MediaTypeVideo {
		if start, end, ok := parseRange(c.GetHeader("Range"), int64(len(data))); ok {
			c.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(data)))
			c.Header("Content-Length", strconv.FormatInt(end-start+1, 10))
			h.observeServe("partial")
			c.Data(http.StatusPartialContent, record.MimeType, data[start:end+1])
			return
		}
	}

	h.observeServe("ok")
	c.Data(http.StatusOK, record.MimeType, data)
}

// GET /api/media/:id/thumbnail
// Thumbnails are an optimization, not a guarantee: when none is stored
// the client is redirected to the full asset.
func (h *MediaHandler) ServeThumbnail(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	record, data, err := h.mediaService.FetchThumbnail(c.Request.Context(), id)
	if err != nil {
		h.observeServe(apierr.CodeOf(err))
		response.RespondAPIError(c, err)
		return
	}
	if data == nil {
		h.observeServe("redirect")
		c.Redirect(http.StatusFound, fmt.Sprintf("/api/media/%s", record.ID))
		return
	}

	etag := h.mediaService.ETag(record)
	c.Header("Cache-Control", cacheControl)
	c.Header("ETag", etag)
	c.Header("Last-Modified", record.UploadedAt.UTC().Format(http.TimeFormat))

	if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
		h.observeServe("not_modified")
		c.Status(http.StatusNotModified)
		return
	}

	h.observeServe("ok")
	c.Data(http.StatusOK, "image/jpeg", data)
}

// DELETE /api/media/:id
func (h *MediaHandler) Delete(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	if err := h.mediaService.Delete(c.Request.Context(), id); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": true})
}

func (h *MediaHandler) parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, fmt.Errorf("invalid media id: %w", err))
		return uuid.Nil, false
	}
	return id, true
}

func (h *MediaHandler) writeAssetHeaders(c *gin.Context, record *types.MediaRecord, etag string, length int64) {
	c.Header("Content-Type", record.MimeType)
	c.Header("Content-Length", strconv.FormatInt(length, 10))
	c.Header("Cache-Control", cacheControl)
	c.Header("ETag", etag)
	c.Header("Last-Modified", record.UploadedAt.UTC().Format(http.TimeFormat))
	c.Header("Accept-Ranges", "bytes")
}

func (h *MediaHandler) updateProgress(sessionID string, stage services.ProgressStage, percent int, message string, extra *services.ProgressExtra) {
	if sessionID == "" || h.progress == nil {
		return
	}
	h.progress.Update(sessionID, stage, percent, message, extra)
}

func (h *MediaHandler) observeServe(outcome string) {
	if h.metrics != nil {
		h.metrics.ObserveServe(outcome)
	}
}

// parseRange handles the single-range "bytes=start-end" form, with an
// absent end clamped to the final byte. Anything malformed or
// unsatisfiable reports !ok and the caller serves the full body; the
// permissive policy is deliberate.
func parseRange(header string, size int64) (int64, int64, bool) {
	if header == "" || size == 0 {
		return 0, 0, false
	}
	spec, found := strings.CutPrefix(header, "bytes=")
	if !found {
		return 0, 0, false
	}
	startStr, endStr, found := strings.Cut(spec, "-")
	if !found {
		return 0, 0, false
	}

	start, err := strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, false
	}

	end := size - 1
	if s := strings.TrimSpace(endStr); s != "" {
		end, err = strconv.ParseInt(s, 10, 64)
		if err != nil || end < start {
			return 0, 0, false
		}
		if end > size-1 {
			end = size - 1
		}
	}
	return start, end, true
}

type declaredMeta struct {
	width    int
	height   int
	duration *float64
}

// declaredMetaFor reads the client-declared video metadata for the
// file at index i. Indexed fields (width_0, height_0, duration_0) win;
// the unindexed form applies to every file in the batch. The form's
// value map is only read here, so concurrent calls are safe.
func declaredMetaFor(form *multipart.Form, i int) declaredMeta {
	value := func(name string) string {
		if vs := form.Value[fmt.Sprintf("%s_%d", name, i)]; len(vs) > 0 {
			return strings.TrimSpace(vs[0])
		}
		if vs := form.Value[name]; len(vs) > 0 {
			return strings.TrimSpace(vs[0])
		}
		return ""
	}

	var m declaredMeta
	m.width, _ = strconv.Atoi(value("width"))
	m.height, _ = strconv.Atoi(value("height"))
	if d, err := strconv.ParseFloat(value("duration"), 64); err == nil && d > 0 {
		m.duration = &d
	}
	return m
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open part: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read part: %w", err)
	}
	return data, nil
}

func partMime(fh *multipart.FileHeader) string {
	if ct := fh.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
