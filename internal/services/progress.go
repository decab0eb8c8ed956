package services

import (
	"context"
	"sync"
	"time"

	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/platform/envutil"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/platform/logger"
)

type ProgressStage string

const (
	StageWaiting    ProgressStage = "waiting"
	StageUploading  ProgressStage = "uploading"
	StageProcessing ProgressStage = "processing"
	StageCompleted  ProgressStage = "completed"
	StageError      ProgressStage = "error"
)

// ProgressSession is the per-session snapshot pushed to subscribers.
type ProgressSession struct {
	SessionID        string        `json:"session_id"`
	Stage            ProgressStage `json:"stage"`
	Percent          int           `json:"percent"`
	Message          string        `json:"message,omitempty"`
	TotalFiles       int           `json:"total_files,omitempty"`
	CurrentFileIndex int           `json:"current_file_index,omitempty"`
	CurrentFileName  string        `json:"current_file_name,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
	LastUpdatedAt    time.Time     `json:"last_updated_at"`
}

func (s ProgressSession) Terminal() bool {
	return s.Stage == StageCompleted && s.Percent >= 100
}

type ProgressExtra struct {
	TotalFiles       int
	CurrentFileIndex int
	CurrentFileName  string
}

const (
	defaultSweepInterval  = 5 * time.Minute
	defaultIdleTimeout    = 30 * time.Minute
	defaultCompletedGrace = 60 * time.Second
)

// ProgressTracker is the shared upload-progress table. It is owned by
// the app (constructed and injected, the sweep goroutine started and
// stopped with the service) rather than living as a package singleton,
// so tests get isolation and shutdown is clean.
type ProgressTracker struct {
	log *logger.Logger

	sweepInterval  time.Duration
	idleTimeout    time.Duration
	completedGrace time.Duration

	mu       sync.RWMutex
	sessions map[string]*ProgressSession
	timers   map[string]*time.Timer

	cancel context.CancelFunc
}

func NewProgressTracker(log *logger.Logger) *ProgressTracker {
	return &ProgressTracker{
		log:            log.With("service", "ProgressTracker"),
		sweepInterval:  envutil.Duration("PROGRESS_SWEEP_INTERVAL", defaultSweepInterval),
		idleTimeout:    envutil.Duration("PROGRESS_IDLE_TIMEOUT", defaultIdleTimeout),
		completedGrace: envutil.Duration("PROGRESS_COMPLETED_GRACE", defaultCompletedGrace),
		sessions:       make(map[string]*ProgressSession),
		timers:         make(map[string]*time.Timer),
	}
}

// Update upserts session state. StartedAt survives updates; percent is
// clamped to [0,100]. Reaching the completed stage schedules deletion
// after a short grace period so a client that misses the final push
// still sees a stable terminal state briefly. Once a session is in a
// terminal stage (completed or error) further updates are ignored and
// the terminal snapshot is returned; reusing a session id requires
// removing the old session first.
func (t *ProgressTracker) Update(sessionID string, stage ProgressStage, percent int, message string, extra *ProgressExtra) ProgressSession {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.sessions[sessionID]
	if ok && (session.Stage == StageCompleted || session.Stage == StageError) {
		t.log.Debug("Ignoring update to terminal session", "sessionID", sessionID, "stage", session.Stage)
		return *session
	}
	if !ok {
		session = &ProgressSession{SessionID: sessionID, StartedAt: now}
		t.sessions[sessionID] = session
	}
	session.Stage = stage
	session.Percent = percent
	session.Message = message
	session.LastUpdatedAt = now
	if extra != nil {
		session.TotalFiles = extra.TotalFiles
		session.CurrentFileIndex = extra.CurrentFileIndex
		session.CurrentFileName = extra.CurrentFileName
	}

	if stage == StageCompleted {
		t.scheduleRemovalLocked(sessionID, t.completedGrace)
	}

	return *session
}

// Snapshot returns a copy of the session state, if any.
func (t *ProgressTracker) Snapshot(sessionID string) (ProgressSession, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	session, ok := t.sessions[sessionID]
	if !ok {
		return ProgressSession{}, false
	}
	return *session, true
}

// Remove deletes a session; idempotent. Reports whether a session was
// actually deleted.
func (t *ProgressTracker) Remove(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeLocked(sessionID)
}

func (t *ProgressTracker) removeLocked(sessionID string) bool {
	if timer, ok := t.timers[sessionID]; ok {
		timer.Stop()
		delete(t.timers, sessionID)
	}
	if _, ok := t.sessions[sessionID]; !ok {
		return false
	}
	delete(t.sessions, sessionID)
	return true
}

func (t *ProgressTracker) scheduleRemovalLocked(sessionID string, after time.Duration) {
	if timer, ok := t.timers[sessionID]; ok {
		timer.Stop()
	}
	t.timers[sessionID] = time.AfterFunc(after, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.removeLocked(sessionID) {
			t.log.Debug("Progress session removed after grace period", "sessionID", sessionID)
		}
	})
}

// Start launches the background orphan sweep. Stop (or ctx
// cancellation) shuts it down.
func (t *ProgressTracker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	if t.cancel != nil {
		t.mu.Unlock()
		cancel()
		return
	}
	t.cancel = cancel
	t.mu.Unlock()

	go t.run(ctx)
	t.log.Info("Progress sweep started", "interval", t.sweepInterval, "idleTimeout", t.idleTimeout)
}

func (t *ProgressTracker) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (t *ProgressTracker) run(ctx context.Context) {
	ticker := time.NewTicker(t.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

// sweep purges sessions untouched for longer than the idle timeout,
// terminal or not.
func (t *ProgressTracker) sweep() {
	cutoff := time.Now().Add(-t.idleTimeout)

	t.mu.Lock()
	defer t.mu.Unlock()

	for id, session := range t.sessions {
		if session.LastUpdatedAt.Before(cutoff) {
			t.removeLocked(id)
			t.log.Debug("Progress session swept", "sessionID", id, "stage", session.Stage)
		}
	}
}
