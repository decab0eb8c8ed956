package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/handlers"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/observability"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/platform/logger"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/repos"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/server"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/services"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/storage"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/types"
)

type testEnv struct {
	router  *gin.Engine
	tracker *services.ProgressTracker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("MEDIA_STORAGE_PATH", t.TempDir())

	log, err := logger.New("development")
	require.NoError(t, err)

	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&types.MediaRecord{}))

	metrics := observability.NewMetrics()
	tracker := services.NewProgressTracker(log)
	t.Cleanup(tracker.Stop)

	svc := services.NewMediaService(gdb, log, repos.NewMediaRepo(gdb, log), storage.NewResolver(log), metrics)

	router := server.NewRouter(server.RouterConfig{
		Log:             log,
		MediaHandler:    handlers.NewMediaHandler(log, svc, tracker, metrics),
		ProgressHandler: handlers.NewProgressHandler(log, tracker, metrics),
		Metrics:         metrics,
	})
	return &testEnv{router: router, tracker: tracker}
}

func multipartBody(t *testing.T, files map[string]filePart, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, fp := range files {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, name))
		h.Set("Content-Type", fp.contentType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(fp.data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

type filePart struct {
	contentType string
	data        []byte
}

type mediaPayload struct {
	ID          string `json:"id"`
	FileName    string `json:"file_name"`
	MediaType   string `json:"media_type"`
	StorageType string `json:"storage_type"`
}

func uploadOne(t *testing.T, env *testEnv, name, contentType string, data []byte) mediaPayload {
	t.Helper()
	body, ct := multipartBody(t, map[string]filePart{name: {contentType, data}}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/media", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Media []mediaPayload `json:"media"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Media, 1)
	return resp.Media[0]
}

func smallPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.NRGBA{R: 10, G: 180, B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func videoBytes(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestUploadAndServeImage(t *testing.T) {
	env := newTestEnv(t)

	uploaded := uploadOne(t, env, "pic.png", "image/png", smallPNG(t))
	assert.Equal(t, "image", uploaded.MediaType)
	assert.Equal(t, "database", uploaded.StorageType)

	req := httptest.NewRequest(http.MethodGet, "/api/media/"+uploaded.ID, nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=31536000, immutable, stale-while-revalidate=86400", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.NotEmpty(t, rec.Header().Get("ETag"))
	assert.NotEmpty(t, rec.Header().Get("Last-Modified"))
	assert.NotEmpty(t, rec.Body.Bytes())
}

func TestServeIfNoneMatch304(t *testing.T) {
	env := newTestEnv(t)
	uploaded := uploadOne(t, env, "pic.png", "image/png", smallPNG(t))

	first := httptest.NewRecorder()
	env.router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/media/"+uploaded.ID, nil))
	etag := first.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/api/media/"+uploaded.ID, nil)
	req.Header.Set("If-None-Match", etag)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestServeVideoRange(t *testing.T) {
	env := newTestEnv(t)
	payload := videoBytes(1000)
	uploaded := uploadOne(t, env, "clip.mp4", "video/mp4", payload)

	req := httptest.NewRequest(http.MethodGet, "/api/media/"+uploaded.ID, nil)
	req.Header.Set("Range", "bytes=100-199")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 100-199/1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, payload[100:200], rec.Body.Bytes())
	assert.Len(t, rec.Body.Bytes(), 100)
}

func TestUploadPerFileDeclaredMetadata(t *testing.T) {
	env := newTestEnv(t)

	// Ordered parts so the indexed fields line up with the file order.
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for i, name := range []string{"a.mp4", "b.mp4"} {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, name))
		h.Set("Content-Type", "video/mp4")
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(videoBytes(300 + i))
		require.NoError(t, err)
	}
	require.NoError(t, w.WriteField("width_0", "1920"))
	require.NoError(t, w.WriteField("height_0", "1080"))
	require.NoError(t, w.WriteField("duration_0", "12.5"))
	require.NoError(t, w.WriteField("width_1", "640"))
	require.NoError(t, w.WriteField("height_1", "480"))
	require.NoError(t, w.WriteField("duration_1", "3"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/media", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Media []struct {
			OriginalName string   `json:"original_name"`
			Width        int      `json:"width"`
			Height       int      `json:"height"`
			Duration     *float64 `json:"duration"`
			Resolution   *string  `json:"resolution"`
		} `json:"media"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Media, 2)

	assert.Equal(t, "a.mp4", resp.Media[0].OriginalName)
	assert.Equal(t, 1920, resp.Media[0].Width)
	assert.Equal(t, 1080, resp.Media[0].Height)
	require.NotNil(t, resp.Media[0].Duration)
	assert.InDelta(t, 12.5, *resp.Media[0].Duration, 0.001)
	require.NotNil(t, resp.Media[0].Resolution)
	assert.Equal(t, "1080p", *resp.Media[0].Resolution)

	assert.Equal(t, "b.mp4", resp.Media[1].OriginalName)
	assert.Equal(t, 640, resp.Media[1].Width)
	assert.Equal(t, 480, resp.Media[1].Height)
	require.NotNil(t, resp.Media[1].Resolution)
	assert.Equal(t, "480p", *resp.Media[1].Resolution)
}

func TestServeVideoMalformedRangeFallsBackToFullBody(t *testing.T) {
	env := newTestEnv(t)
	payload := videoBytes(500)
	uploaded := uploadOne(t, env, "clip.mp4", "video/mp4", payload)

	req := httptest.NewRequest(http.MethodGet, "/api/media/"+uploaded.ID, nil)
	req.Header.Set("Range", "bytes=oops")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, payload, rec.Body.Bytes())
}

func TestRangeIgnoredForImages(t *testing.T) {
	env := newTestEnv(t)
	uploaded := uploadOne(t, env, "pic.png", "image/png", smallPNG(t))

	req := httptest.NewRequest(http.MethodGet, "/api/media/"+uploaded.ID, nil)
	req.Header.Set("Range", "bytes=0-10")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHeadHasHeadersNoBody(t *testing.T) {
	env := newTestEnv(t)
	uploaded := uploadOne(t, env, "pic.png", "image/png", smallPNG(t))

	req := httptest.NewRequest(http.MethodHead, "/api/media/"+uploaded.ID, nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("ETag"))
	assert.NotEmpty(t, rec.Header().Get("Content-Length"))
	assert.Empty(t, rec.Body.Bytes())
}

func TestThumbnailServedForImage(t *testing.T) {
	env := newTestEnv(t)
	uploaded := uploadOne(t, env, "pic.png", "image/png", smallPNG(t))

	req := httptest.NewRequest(http.MethodGet, "/api/media/"+uploaded.ID+"/thumbnail", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 150, cfg.Width)
	assert.Equal(t, 150, cfg.Height)
}

func TestThumbnailRedirectsWhenAbsent(t *testing.T) {
	env := newTestEnv(t)
	uploaded := uploadOne(t, env, "clip.mp4", "video/mp4", videoBytes(100))

	req := httptest.NewRequest(http.MethodGet, "/api/media/"+uploaded.ID+"/thumbnail", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/api/media/"+uploaded.ID, rec.Header().Get("Location"))
}

func TestServeUnknownIDIs404(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/media/1b671a64-40d5-491e-99b0-da01ff1f3341", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var envlp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envlp))
	assert.Equal(t, "not_found", envlp.Error.Code)
}

func TestServeMalformedIDIs400(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/media/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadWithoutFilesIs400(t *testing.T) {
	env := newTestEnv(t)

	body, ct := multipartBody(t, nil, map[string]string{"sessionId": "s1"})
	req := httptest.NewRequest(http.MethodPost, "/api/media", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadDrivesProgressSession(t *testing.T) {
	env := newTestEnv(t)

	body, ct := multipartBody(t, map[string]filePart{
		"clip.mp4": {"video/mp4", videoBytes(256)},
	}, map[string]string{"sessionId": "batch-1"})

	req := httptest.NewRequest(http.MethodPost, "/api/media", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	snapshot, ok := env.tracker.Snapshot("batch-1")
	require.True(t, ok)
	assert.Equal(t, services.StageCompleted, snapshot.Stage)
	assert.Equal(t, 100, snapshot.Percent)
	assert.Equal(t, 1, snapshot.TotalFiles)
}

func TestListEndpoint(t *testing.T) {
	env := newTestEnv(t)
	uploadOne(t, env, "pic.png", "image/png", smallPNG(t))
	uploadOne(t, env, "clip.mp4", "video/mp4", videoBytes(64))

	req := httptest.NewRequest(http.MethodGet, "/api/media?type=video", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Media []mediaPayload `json:"media"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Media, 1)
	assert.Equal(t, "video", resp.Media[0].MediaType)
}

func TestDeleteEndpoint(t *testing.T) {
	env := newTestEnv(t)
	uploaded := uploadOne(t, env, "pic.png", "image/png", smallPNG(t))

	req := httptest.NewRequest(http.MethodDelete, "/api/media/"+uploaded.ID, nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/media/"+uploaded.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
