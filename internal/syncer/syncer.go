package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"modelcore/internal/models"
	"modelcore/internal/provider"
	"modelcore/internal/registry"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultStaleAfter = 30 * time.Minute
	defaultQueueSize  = 64
	syncTimeout       = 2 * time.Minute
)

// credentialSource releases verified credentials for live provider calls.
type credentialSource interface {
	GetUsable(ctx context.Context, workspaceID, providerName string) (provider.Credential, bool)
}

// JobState reports where a submitted sync currently is.
type JobState string

const (
	JobQueued  JobState = "queued"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
)

// Job is one workspace-wide catalog refresh moving through the queue.
type Job struct {
	WorkspaceID string
	Submitted   time.Time

	mu    sync.Mutex
	state JobState
	done  chan struct{}
}

// State returns the job's current queue state.
func (j *Job) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Done is closed when the job finishes, for callers that want to wait.
func (j *Job) Done() <-chan struct{} { return j.done }

func (j *Job) setState(s JobState) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
}

// Syncer refreshes the model capability registry from provider APIs in a
// background worker. Submission never blocks the caller beyond a full
// queue; overlapping syncs for the same workspace are tolerated because the
// registry upsert is idempotent.
type Syncer struct {
	db          *gorm.DB
	registry    *registry.Registry
	adapters    *provider.Set
	credentials credentialSource
	staleAfter  time.Duration

	queue chan *Job
	stop  chan struct{}
	wg    sync.WaitGroup
}

// New constructs a Syncer. Start must be called before Submit.
func New(db *gorm.DB, reg *registry.Registry, adapters *provider.Set, credentials credentialSource, staleAfter time.Duration) *Syncer {
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &Syncer{
		db:          db,
		registry:    reg,
		adapters:    adapters,
		credentials: credentials,
		staleAfter:  staleAfter,
		queue:       make(chan *Job, defaultQueueSize),
		stop:        make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (s *Syncer) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop drains the worker. Queued jobs that have not started are dropped.
func (s *Syncer) Stop() {
	close(s.stop)
	s.wg.Wait()
}

// Submit enqueues a catalog refresh for the workspace and returns without
// waiting for it. The returned Job exposes queued/running state and a
// completion channel. ErrQueueFull is returned when the worker is saturated.
func (s *Syncer) Submit(workspaceID string) (*Job, error) {
	job := &Job{
		WorkspaceID: workspaceID,
		Submitted:   time.Now().UTC(),
		state:       JobQueued,
		done:        make(chan struct{}),
	}
	select {
	case s.queue <- job:
		return job, nil
	default:
		return nil, ErrQueueFull
	}
}

// ErrQueueFull indicates the sync queue is saturated.
var ErrQueueFull = errors.New("syncer: queue full")

func (s *Syncer) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		case job := <-s.queue:
			job.setState(JobRunning)
			ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
			s.syncWorkspace(ctx, job.WorkspaceID)
			cancel()
			job.setState(JobDone)
			close(job.done)
		}
	}
}

// syncWorkspace refreshes every provider the workspace has a verified
// credential for. One provider failing does not abort the others, and the
// outcome is recorded per provider either way.
func (s *Syncer) syncWorkspace(ctx context.Context, workspaceID string) {
	for _, name := range s.adapters.Names() {
		cred, ok := s.credentials.GetUsable(ctx, workspaceID, name)
		if !ok {
			continue
		}
		s.syncProvider(ctx, workspaceID, name, cred)
	}
}

func (s *Syncer) syncProvider(ctx context.Context, workspaceID, name string, cred provider.Credential) {
	s.recordStatus(ctx, workspaceID, name, models.SyncStatusInProgress, "")

	status := models.SyncStatusFailed
	message := ""
	defer func() {
		// Recorded unconditionally so a failed sync is visible instead of
		// being retried forever in silence.
		s.recordStatus(context.Background(), workspaceID, name, status, message)
	}()

	adapter, ok := s.adapters.Adapter(name)
	if !ok {
		message = "no adapter registered"
		return
	}

	catalog := adapter.FetchModels(ctx, cred)
	if len(catalog) == 0 {
		message = "provider returned no models"
		log.WithFields(log.Fields{"workspace": workspaceID, "provider": name}).Warn("model sync returned nothing")
		return
	}

	if err := s.registry.UpsertCapabilities(ctx, catalog, models.SyncSourceAPI); err != nil {
		message = fmt.Sprintf("persist failed: %v", err)
		log.WithError(err).WithFields(log.Fields{"workspace": workspaceID, "provider": name}).Error("model sync persist failed")
		return
	}

	status = models.SyncStatusSuccess
	log.WithFields(log.Fields{"workspace": workspaceID, "provider": name, "models": len(catalog)}).Info("model sync completed")
}

func (s *Syncer) recordStatus(ctx context.Context, workspaceID, name, status, message string) {
	now := time.Now().UTC()
	row := models.ProviderSyncStatus{
		WorkspaceID:  workspaceID,
		Provider:     name,
		Status:       status,
		ErrorMessage: message,
	}
	// The in_progress transition must not wipe the previous completion
	// timestamp; only a finished attempt writes last_sync.
	columns := []string{"status", "error_message", "updated_at"}
	if status != models.SyncStatusInProgress {
		row.LastSync = &now
		columns = append(columns, "last_sync")
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "workspace_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&row).Error
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"workspace": workspaceID, "provider": name}).Warn("sync status persist failed")
	}
}

// NeedsSync reports whether the workspace's catalog is stale for at least
// one provider the workspace can actually sync. Only providers with a
// usable credential count: syncWorkspace skips the rest, so a missing
// status row for an unconfigured provider is not staleness. A configured
// provider that never synced counts as stale.
func (s *Syncer) NeedsSync(ctx context.Context, workspaceID string) bool {
	var rows []models.ProviderSyncStatus
	if err := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Find(&rows).Error; err != nil {
		log.WithError(err).WithField("workspace", workspaceID).Warn("sync status lookup failed")
		return false
	}

	lastByProvider := make(map[string]*models.ProviderSyncStatus, len(rows))
	for i := range rows {
		lastByProvider[rows[i].Provider] = &rows[i]
	}

	cutoff := time.Now().Add(-s.staleAfter)
	for _, name := range s.adapters.Names() {
		if _, ok := s.credentials.GetUsable(ctx, workspaceID, name); !ok {
			continue
		}
		row, ok := lastByProvider[name]
		if !ok {
			return true
		}
		if row.Status == models.SyncStatusInProgress {
			// An in-flight sync suppresses retriggering only while it is
			// plausibly still running; a sync that died before its final
			// status write must not pin the provider fresh forever.
			if time.Since(row.UpdatedAt) < s.staleAfter {
				continue
			}
		}
		if row.LastSync == nil || row.LastSync.Before(cutoff) {
			return true
		}
	}
	return false
}

// Statuses returns the recorded sync rows for a workspace.
func (s *Syncer) Statuses(ctx context.Context, workspaceID string) ([]models.ProviderSyncStatus, error) {
	var rows []models.ProviderSyncStatus
	if err := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("provider ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("syncer: statuses: %w", err)
	}
	return rows, nil
}
