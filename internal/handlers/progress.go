package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/http/response"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/observability"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/platform/apierr"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/platform/logger"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/services"
)

const streamPollInterval = time.Second

type ProgressHandler struct {
	log      *logger.Logger
	progress *services.ProgressTracker
	metrics  *observability.Metrics
}

func NewProgressHandler(log *logger.Logger, progress *services.ProgressTracker, metrics *observability.Metrics) *ProgressHandler {
	return &ProgressHandler{
		log:      log.With("handler", "ProgressHandler"),
		progress: progress,
		metrics:  metrics,
	}
}

// GET /api/progress?sessionId=...
// Long-lived SSE stream: one snapshot immediately, then one per poll
// tick until the session completes, disappears, or the client goes
// away. The ticker lives inside the request's context so a disconnect
// never leaks the goroutine.
func (h *ProgressHandler) Stream(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, canFlush := c.Writer.(http.Flusher)
	if !canFlush {
		response.RespondError(c, http.StatusInternalServerError, "internal", errors.New("streaming unsupported"))
		return
	}

	// First push: the current snapshot, or a synthetic waiting state if
	// the session has not been created yet.
	snapshot, exists := h.progress.Snapshot(sessionID)
	if !exists {
		snapshot = services.ProgressSession{
			SessionID:     sessionID,
			Stage:         services.StageWaiting,
			Percent:       0,
			StartedAt:     time.Now(),
			LastUpdatedAt: time.Now(),
		}
	}
	h.push(c, flusher, snapshot)
	if snapshot.Terminal() {
		return
	}
	sessionSeen := exists

	if h.metrics != nil {
		h.metrics.SSESubscriberInc()
		defer h.metrics.SSESubscriberDec()
	}

	ctx := c.Request.Context()
	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Debug("Progress stream client gone", "sessionID", sessionID)
			return
		case <-ticker.C:
			snapshot, exists := h.progress.Snapshot(sessionID)
			if !exists {
				if sessionSeen {
					// Session was cleaned up under us; nothing more
					// will ever arrive.
					return
				}
				snapshot = services.ProgressSession{
					SessionID:     sessionID,
					Stage:         services.StageWaiting,
					Percent:       0,
					StartedAt:     time.Now(),
					LastUpdatedAt: time.Now(),
				}
			} else {
				sessionSeen = true
			}

			h.push(c, flusher, snapshot)
			if snapshot.Terminal() {
				return
			}
		}
	}
}

// POST /api/progress
func (h *ProgressHandler) Update(c *gin.Context) {
	var req struct {
		SessionID   string `json:"sessionId"`
		Stage       string `json:"stage"`
		Percent     int    `json:"percent"`
		Message     string `json:"message"`
		TotalFiles  int    `json:"totalFiles"`
		CurrentFile int    `json:"currentFile"`
		FileName    string `json:"fileName"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, err)
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		response.RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, errors.New("sessionId is required"))
		return
	}
	stage, err := parseStage(req.Stage)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, err)
		return
	}

	session := h.progress.Update(req.SessionID, stage, req.Percent, req.Message, &services.ProgressExtra{
		TotalFiles:       req.TotalFiles,
		CurrentFileIndex: req.CurrentFile,
		CurrentFileName:  req.FileName,
	})
	response.RespondOK(c, gin.H{"ok": true, "timestamp": session.LastUpdatedAt})
}

// DELETE /api/progress?sessionId=...
func (h *ProgressHandler) Remove(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	deleted := h.progress.Remove(sessionID)
	response.RespondOK(c, gin.H{"deleted": deleted})
}

func (h *ProgressHandler) sessionID(c *gin.Context) (string, bool) {
	sessionID := strings.TrimSpace(c.Query("sessionId"))
	if sessionID == "" {
		response.RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, errors.New("sessionId is required"))
		return "", false
	}
	return sessionID, true
}

func (h *ProgressHandler) push(c *gin.Context, flusher http.Flusher, snapshot services.ProgressSession) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		h.log.Warn("Failed to marshal progress snapshot", "error", err)
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
	flusher.Flush()
}

func parseStage(raw string) (services.ProgressStage, error) {
	stage := services.ProgressStage(strings.TrimSpace(strings.ToLower(raw)))
	switch stage {
	case services.StageWaiting, services.StageUploading, services.StageProcessing, services.StageCompleted, services.StageError:
		return stage, nil
	}
	return "", fmt.Errorf("unknown stage %q", raw)
}
