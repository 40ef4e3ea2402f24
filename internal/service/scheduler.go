package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tobk/ytvault/internal/domain"
	"github.com/tobk/ytvault/internal/logger"
	"github.com/tobk/ytvault/internal/ytdl"
)

// MetadataProber fetches video metadata before any artifact is produced.
// *ytdl.Client implements it.
type MetadataProber interface {
	Probe(ctx context.Context, url string) (*ytdl.VideoInfo, error)
}

// errJobCancelled aborts a pipeline whose job was cancelled between stages.
var errJobCancelled = errors.New("job cancelled")

// SchedulerOptions bound the worker pool and set the retry policy.
type SchedulerOptions struct {
	// Workers is the number of jobs processed concurrently. Defaults to 2.
	Workers int
	// MaxRetries is how many times a failed job is re-run before it goes
	// to ERROR. Defaults to 3.
	MaxRetries int
	// RetryDelay is the fixed pause before a failed job re-enters the
	// backlog. Defaults to 60s.
	RetryDelay time.Duration
	// ScratchRoot is the local directory jobs stage their downloads in.
	ScratchRoot string
}

// Scheduler owns the download worker pool. Jobs enter through Enqueue as
// IDs only; workers load the current record at pickup, so a job cancelled
// while waiting in the backlog is never started. Failed jobs re-enter the
// backlog through a timer, which frees the worker slot during the backoff.
type Scheduler struct {
	jobs     JobStore
	stats    *StatsService
	prober   MetadataProber
	registry *ProducerRegistry

	workers     int
	maxRetries  int
	retryDelay  time.Duration
	scratchRoot string

	mu      sync.Mutex
	backlog []string
	timers  map[string]*time.Timer
	started bool
	stopped bool

	// wake is a capacity-1 nudge. A worker that pops a job re-arms it while
	// the backlog is non-empty, so a burst of submissions reaches every
	// idle worker.
	wake chan struct{}
	// quit is closed by Stop; workers blocked on wake exit through it.
	quit chan struct{}

	cancelRoot context.CancelFunc
	wg         sync.WaitGroup
}

// NewScheduler creates a stopped scheduler. Call Start to spin up the
// workers and Stop to drain them.
// Parameters:
//   - opts: pool size and retry policy; zero values take the defaults.
//   - jobs: job persistence.
//   - stats: outcome aggregator.
//   - prober: metadata extractor.
//   - registry: producers by output kind.
// Returns:
//   - *Scheduler: initialized scheduler.
func NewScheduler(opts SchedulerOptions, jobs JobStore, stats *StatsService, prober MetadataProber, registry *ProducerRegistry) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 60 * time.Second
	}
	return &Scheduler{
		jobs:        jobs,
		stats:       stats,
		prober:      prober,
		registry:    registry,
		workers:     opts.Workers,
		maxRetries:  opts.MaxRetries,
		retryDelay:  opts.RetryDelay,
		scratchRoot: opts.ScratchRoot,
		timers:      make(map[string]*time.Timer),
		wake:        make(chan struct{}, 1),
		quit:        make(chan struct{}),
	}
}

// Start spins up the worker pool. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelRoot = cancel
	s.mu.Unlock()

	logger.Info("Scheduler starting: workers=%d, max_retries=%d, retry_delay=%s",
		s.workers, s.maxRetries, s.retryDelay)

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go func(workerID int) {
			defer s.wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
}

// Stop shuts the scheduler down: no new jobs are picked up, pending retry
// timers are cancelled, and in-flight jobs get until the context deadline
// to finish. On deadline expiry the in-flight work is aborted; those jobs
// stay RUNNING in the store and Recover resets them on the next start.
// Parameters:
//   - ctx: bounds the drain; an expired context forces the abort.
// Returns:
//   - error: non-nil when the drain deadline was hit.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.stopped = true
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	close(s.quit)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancelRoot()
		<-done
		return fmt.Errorf("scheduler drain exceeded deadline, in-flight jobs aborted: %w", ctx.Err())
	}
}

// Enqueue appends a job ID to the backlog and wakes a worker. Returns
// immediately; the backlog is unbounded. Jobs enqueued after Stop are
// dropped with a warning.
func (s *Scheduler) Enqueue(jobID string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		logger.Warn("Scheduler stopped, dropping job: job_id=%s", jobID)
		return
	}
	s.backlog = append(s.backlog, jobID)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// QueueDepth reports how many jobs are waiting in the backlog.
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.backlog)
}

// Workers reports the pool size.
func (s *Scheduler) Workers() int {
	return s.workers
}

// Recover re-enqueues every unfinished job after a restart. Jobs a crash
// left RUNNING are reset to PENDING first; RETRYING jobs lost their timer
// with the old process and re-enter the backlog immediately.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int: number of jobs re-enqueued.
//   - error: non-nil if the unfinished jobs cannot be listed.
func (s *Scheduler) Recover(ctx context.Context) (int, error) {
	jobs, err := s.jobs.ListUnfinished(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list unfinished jobs: %w", err)
	}

	requeued := 0
	for i := range jobs {
		job := &jobs[i]
		if job.Status == domain.StatusRunning {
			if _, err := s.jobs.AtomicUpdate(ctx, job.ID, func(j *domain.DownloadJob) (*domain.JobUpdate, error) {
				if j.Status != domain.StatusRunning {
					return nil, nil
				}
				status := domain.StatusPending
				pct := 0
				msg := "Re-queued after restart"
				return &domain.JobUpdate{Status: &status, ProgressPct: &pct, Message: &msg, ClearFinishedAt: true}, nil
			}); err != nil {
				logger.CtxWarn(ctx, "Failed to reset orphaned job: job_id=%s, error=%v", job.ID, err)
				continue
			}
		}
		s.Enqueue(job.ID)
		requeued++
	}

	if requeued > 0 {
		logger.CtxInfo(ctx, "Recovered unfinished jobs: count=%d", requeued)
	}
	return requeued, nil
}

func (s *Scheduler) worker(ctx context.Context, workerID int) {
	logger.Debug("Worker started: worker=%d", workerID)
	for {
		jobID, ok := s.next(ctx)
		if !ok {
			logger.Debug("Worker exiting: worker=%d", workerID)
			return
		}
		s.runJob(ctx, jobID)
	}
}

// next blocks until a job is available or the scheduler shuts down.
func (s *Scheduler) next(ctx context.Context) (string, bool) {
	for {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return "", false
		}
		if len(s.backlog) > 0 {
			id := s.backlog[0]
			s.backlog = s.backlog[1:]
			if len(s.backlog) > 0 {
				select {
				case s.wake <- struct{}{}:
				default:
				}
			}
			s.mu.Unlock()
			return id, true
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", false
		case <-s.quit:
			return "", false
		case <-s.wake:
		}
	}
}

// scheduleRetry re-enqueues a job after the retry delay. The timer slot
// is per job; Stop cancels every pending timer.
func (s *Scheduler) scheduleRetry(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if _, exists := s.timers[jobID]; exists {
		return
	}
	s.timers[jobID] = time.AfterFunc(s.retryDelay, func() {
		s.mu.Lock()
		delete(s.timers, jobID)
		s.mu.Unlock()
		s.Enqueue(jobID)
	})
}

func (s *Scheduler) runJob(ctx context.Context, jobID string) {
	ctx = logger.SetJobID(ctx, jobID)
	started := time.Now()

	job, err := s.claim(ctx, jobID)
	if err != nil {
		logger.CtxError(ctx, "Failed to claim job: error=%v", err)
		return
	}
	if job == nil {
		logger.CtxDebug(ctx, "Skipping job not in a runnable state")
		return
	}
	ctx = logger.SetUserID(ctx, job.UserID)

	doneMsg, err := s.execute(ctx, job)
	switch {
	case err == nil:
		s.finishSuccess(ctx, jobID, doneMsg, started)
	case errors.Is(err, errJobCancelled):
		logger.CtxInfo(ctx, "Job cancelled during processing")
	case ctx.Err() != nil:
		logger.CtxWarn(ctx, "Job interrupted by shutdown, will resume on restart")
	default:
		s.finishFailure(ctx, jobID, err)
	}
}

// claim transitions a runnable job to RUNNING and stamps its output
// directory. Returns nil when the job is not in a runnable state, which
// makes cancel-before-start final.
func (s *Scheduler) claim(ctx context.Context, jobID string) (*domain.DownloadJob, error) {
	claimed := false
	job, err := s.jobs.AtomicUpdate(ctx, jobID, func(j *domain.DownloadJob) (*domain.JobUpdate, error) {
		if !j.Status.IsRunnable() {
			return nil, nil
		}
		claimed = true
		status := domain.StatusRunning
		pct := progressStarting
		msg := "Starting..."
		outputDir := artifactPrefix(j)
		return &domain.JobUpdate{
			Status:          &status,
			ProgressPct:     &pct,
			Message:         &msg,
			OutputDir:       &outputDir,
			ClearFinishedAt: true,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, nil
	}
	return job, nil
}

// execute runs the job pipeline: metadata probe, optional thumbnail, then
// the requested media producers in canonical order, with a cancellation
// check between stages. In-flight stages always finish; cancellation takes
// effect at the next stage boundary. The returned string is the completion
// message for the terminal write.
func (s *Scheduler) execute(ctx context.Context, job *domain.DownloadJob) (string, error) {
	cur, err := s.update(ctx, job.ID, &domain.JobUpdate{
		ProgressPct: intPtr(progressMetadata),
		Message:     strPtr("Fetching video information..."),
	})
	if err != nil {
		return "", err
	}

	info, err := s.prober.Probe(ctx, cur.URL)
	if err != nil {
		return "", err
	}
	meta := info.ToMetadata()
	ctx = logger.SetVideoID(ctx, meta.VideoID)

	cur, err = s.update(ctx, job.ID, &domain.JobUpdate{Metadata: meta})
	if err != nil {
		return "", err
	}

	scratch := filepath.Join(s.scratchRoot, cur.ID)
	if err := os.MkdirAll(scratch, 0755); err != nil {
		return "", fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	if cur.Kinds.Has(domain.KindThumbnail) {
		if err := s.checkCancelled(ctx, cur.ID); err != nil {
			return "", err
		}
		cur, err = s.update(ctx, cur.ID, &domain.JobUpdate{
			ProgressPct: intPtr(progressThumbnail),
			Message:     strPtr("Downloading thumbnail..."),
		})
		if err != nil {
			return "", err
		}
		cur = s.runThumbnail(ctx, cur, scratch)
	}

	media := cur.Kinds.MediaKinds()
	if len(media) == 0 {
		return "Completed (no media files requested)", nil
	}

	plan := newProgressPlan(len(media))
	for i, kind := range media {
		if err := s.checkCancelled(ctx, cur.ID); err != nil {
			return "", err
		}
		cur, err = s.runStage(ctx, cur, scratch, plan, i, kind)
		if err != nil {
			return "", err
		}
	}
	return "Download completed successfully", nil
}

// runThumbnail produces the thumbnail artifact. Failures are logged and
// swallowed; a missing thumbnail never fails the job.
func (s *Scheduler) runThumbnail(ctx context.Context, job *domain.DownloadJob, scratch string) *domain.DownloadJob {
	producer, ok := s.registry.Get(domain.KindThumbnail)
	if !ok {
		return job
	}

	update, err := producer.Produce(ctx, &ProduceContext{Job: job, ScratchDir: scratch})
	if err != nil {
		logger.CtxWarn(ctx, "Failed to download thumbnail: error=%v", err)
		return job
	}

	fresh, err := s.update(ctx, job.ID, update)
	if err != nil {
		logger.CtxWarn(ctx, "Failed to record thumbnail: error=%v", err)
		return job
	}
	return fresh
}

// runStage produces one media artifact and advances the progress slice it
// owns. A transcript stage with no caption track is a soft skip.
func (s *Scheduler) runStage(ctx context.Context, job *domain.DownloadJob, scratch string, plan progressPlan, i int, kind domain.OutputKind) (*domain.DownloadJob, error) {
	producer, ok := s.registry.Get(kind)
	if !ok {
		return nil, fmt.Errorf("no producer registered for %s", kind)
	}

	cur, err := s.update(ctx, job.ID, &domain.JobUpdate{
		ProgressPct: intPtr(plan.StageStart(i) + 1),
		Message:     strPtr(stageStartMessage(kind)),
	})
	if err != nil {
		return nil, err
	}

	progress := func(local int) {
		upd := &domain.JobUpdate{ProgressPct: intPtr(plan.StageAt(i, local))}
		if kind == domain.KindAudio || kind == domain.KindVideo {
			upd.Message = strPtr(fmt.Sprintf("Downloading %d%%", clampPct(local)))
		}
		if _, err := s.update(ctx, cur.ID, upd); err != nil {
			logger.CtxDebug(ctx, "Failed to record progress: error=%v", err)
		}
	}

	update, err := producer.Produce(ctx, &ProduceContext{Job: cur, ScratchDir: scratch, Progress: progress})
	if errors.Is(err, domain.ErrNoTranscript) {
		logger.CtxInfo(ctx, "No transcript available, continuing without one")
		return s.update(ctx, cur.ID, &domain.JobUpdate{
			ProgressPct: intPtr(plan.StageDone(i)),
			Message:     strPtr("No transcripts available for this video."),
		})
	}
	if err != nil {
		return nil, err
	}

	update.ProgressPct = intPtr(plan.StageDone(i))
	cur, err = s.update(ctx, cur.ID, update)
	if err != nil {
		return nil, err
	}
	logger.With(logger.Fields{logger.FieldKind: string(kind)}).
		Debug(ctx, "Artifact stage finished")
	return cur, nil
}

func stageStartMessage(kind domain.OutputKind) string {
	switch kind {
	case domain.KindAudio:
		return "Preparing audio download..."
	case domain.KindVideo:
		return "Preparing video download..."
	case domain.KindTranscript:
		return "Fetching transcript..."
	default:
		return "Preparing download..."
	}
}

// checkCancelled returns errJobCancelled once a user cancel has landed.
func (s *Scheduler) checkCancelled(ctx context.Context, jobID string) error {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == domain.StatusCancelled {
		return errJobCancelled
	}
	return nil
}

func (s *Scheduler) finishSuccess(ctx context.Context, jobID, message string, started time.Time) {
	job, err := s.jobs.AtomicUpdate(ctx, jobID, func(j *domain.DownloadJob) (*domain.JobUpdate, error) {
		if j.Status != domain.StatusRunning {
			return nil, nil
		}
		status := domain.StatusDone
		pct := 100
		now := time.Now()
		return &domain.JobUpdate{Status: &status, ProgressPct: &pct, Message: &message, FinishedAt: &now}, nil
	})
	if err != nil {
		logger.CtxError(ctx, "Failed to finalize job: error=%v", err)
		return
	}
	if job.Status != domain.StatusDone {
		// A cancel landed between the last stage and the terminal write.
		return
	}

	if err := s.stats.RecordOutcome(ctx, job.UserID, domain.OutcomeSuccess); err != nil {
		logger.CtxWarn(ctx, "Failed to record job outcome: error=%v", err)
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(started).Milliseconds(),
		logger.FieldStatus:     string(domain.StatusDone),
		logger.FieldSize:       job.TotalArtifactBytes(),
	}).Info(ctx, "Job completed: title=%q", job.Title)
}

func (s *Scheduler) finishFailure(ctx context.Context, jobID string, cause error) {
	errMsg := cause.Error()
	scheduledRetry := false

	job, err := s.jobs.AtomicUpdate(ctx, jobID, func(j *domain.DownloadJob) (*domain.JobUpdate, error) {
		if j.Status != domain.StatusRunning {
			return nil, nil
		}
		if j.RetryCount < s.maxRetries {
			scheduledRetry = true
			status := domain.StatusRetrying
			pct := 0
			retries := j.RetryCount + 1
			msg := fmt.Sprintf("Retrying in %ds... (attempt %d/%d)",
				int(s.retryDelay.Seconds()), retries, s.maxRetries)
			return &domain.JobUpdate{
				Status:       &status,
				ProgressPct:  &pct,
				Message:      &msg,
				ErrorDetails: &errMsg,
				RetryCount:   &retries,
			}, nil
		}
		status := domain.StatusError
		pct := 100
		now := time.Now()
		msg := fmt.Sprintf("Failed after %d attempts: %s...",
			s.maxRetries, domain.TruncateMessage(errMsg, 200))
		return &domain.JobUpdate{
			Status:       &status,
			ProgressPct:  &pct,
			Message:      &msg,
			ErrorDetails: &errMsg,
			FinishedAt:   &now,
		}, nil
	})
	if err != nil {
		logger.CtxError(ctx, "Failed to record job failure: error=%v", err)
		return
	}

	switch {
	case scheduledRetry:
		logger.With(logger.Fields{logger.FieldAttempt: job.RetryCount}).
			Warn(ctx, "Job failed, retry scheduled: error=%v", cause)
		s.scheduleRetry(jobID)
	case job.Status == domain.StatusError:
		logger.CtxError(ctx, "Job failed permanently: error=%v", cause)
		if err := s.stats.RecordOutcome(ctx, job.UserID, domain.OutcomeFailure); err != nil {
			logger.CtxWarn(ctx, "Failed to record job outcome: error=%v", err)
		}
	}
}

// update applies an unconditional partial update to a job.
func (s *Scheduler) update(ctx context.Context, jobID string, update *domain.JobUpdate) (*domain.DownloadJob, error) {
	return s.jobs.AtomicUpdate(ctx, jobID, func(*domain.DownloadJob) (*domain.JobUpdate, error) {
		return update, nil
	})
}

func clampPct(pct int) int {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
