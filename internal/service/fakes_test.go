package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tobk/ytvault/internal/domain"
	"github.com/tobk/ytvault/internal/repository"
	"github.com/tobk/ytvault/internal/storage"
	"github.com/tobk/ytvault/internal/ytdl"
)

// fakeJobStore keeps jobs in memory with the same update semantics as the
// real repository: every mutation goes through JobUpdate.Apply under a
// lock. Applied updates are recorded as snapshots so tests can assert on
// the progress and message sequence a job moved through.
type fakeJobStore struct {
	mu      sync.Mutex
	jobs    map[string]*domain.DownloadJob
	order   []string
	history map[string][]domain.DownloadJob
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{
		jobs:    make(map[string]*domain.DownloadJob),
		history: make(map[string][]domain.DownloadJob),
	}
}

func (f *fakeJobStore) put(job *domain.DownloadJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *job
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	f.jobs[clone.ID] = &clone
	f.order = append(f.order, clone.ID)
}

func (f *fakeJobStore) get(id string) domain.DownloadJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.jobs[id]
}

func (f *fakeJobStore) snapshots(id string) []domain.DownloadJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.DownloadJob(nil), f.history[id]...)
}

func (f *fakeJobStore) messages(id string) []string {
	var msgs []string
	for _, snap := range f.snapshots(id) {
		if len(msgs) == 0 || msgs[len(msgs)-1] != snap.Message {
			msgs = append(msgs, snap.Message)
		}
	}
	return msgs
}

func (f *fakeJobStore) CreateBatch(ctx context.Context, jobs []*domain.DownloadJob) error {
	for _, job := range jobs {
		f.put(job)
	}
	return nil
}

func (f *fakeJobStore) GetByID(ctx context.Context, id string) (*domain.DownloadJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	clone := *job
	return &clone, nil
}

func (f *fakeJobStore) GetOwned(ctx context.Context, id, userID string) (*domain.DownloadJob, error) {
	job, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

func (f *fakeJobStore) AtomicUpdate(ctx context.Context, id string, fn func(*domain.DownloadJob) (*domain.JobUpdate, error)) (*domain.DownloadJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	snapshot := *job
	update, err := fn(&snapshot)
	if err != nil {
		return nil, err
	}
	if update != nil {
		update.Apply(job)
		job.UpdatedAt = time.Now()
		f.history[id] = append(f.history[id], *job)
	}
	clone := *job
	return &clone, nil
}

func (f *fakeJobStore) ListByUser(ctx context.Context, userID string, filter repository.JobFilter) ([]domain.DownloadJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DownloadJob
	for _, id := range f.order {
		job := f.jobs[id]
		if job.UserID != userID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.Kind != "" && !job.Kinds.Has(filter.Kind) {
			continue
		}
		out = append(out, *job)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeJobStore) ListActiveByUser(ctx context.Context, userID string) ([]domain.DownloadJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DownloadJob
	for _, id := range f.order {
		job := f.jobs[id]
		if job.UserID == userID && !job.Status.IsTerminal() {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (f *fakeJobStore) ListRecentFinished(ctx context.Context, userID string, limit int) ([]domain.DownloadJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DownloadJob
	for _, id := range f.order {
		job := f.jobs[id]
		if job.UserID == userID && job.Status.IsTerminal() {
			out = append(out, *job)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		var ti, tj time.Time
		if out[i].FinishedAt != nil {
			ti = *out[i].FinishedAt
		}
		if out[j].FinishedAt != nil {
			tj = *out[j].FinishedAt
		}
		return ti.After(tj)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeJobStore) ListUnfinished(ctx context.Context) ([]domain.DownloadJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DownloadJob
	for _, id := range f.order {
		if job := f.jobs[id]; !job.Status.IsTerminal() {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (f *fakeJobStore) ListFinishedBefore(ctx context.Context, cutoff time.Time) ([]domain.DownloadJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DownloadJob
	for _, id := range f.order {
		job := f.jobs[id]
		if job.Status.IsTerminal() && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (f *fakeJobStore) SumArtifactBytes(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, job := range f.jobs {
		if job.UserID == userID && job.Status == domain.StatusDone {
			total += job.TotalArtifactBytes()
		}
	}
	return total, nil
}

func (f *fakeJobStore) SumDurationSecs(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, job := range f.jobs {
		if job.UserID == userID && job.DurationSecs != nil {
			total += int64(*job.DurationSecs)
		}
	}
	return total, nil
}

func (f *fakeJobStore) KindBreakdown(ctx context.Context, userID string) (map[domain.OutputKind]repository.KindStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	breakdown := make(map[domain.OutputKind]repository.KindStat, len(domain.AllKinds()))
	add := func(kind domain.OutputKind, path string, size *int64) {
		if path == "" {
			return
		}
		stat := breakdown[kind]
		stat.Count++
		if size != nil {
			stat.TotalBytes += *size
		}
		breakdown[kind] = stat
	}
	for _, job := range f.jobs {
		if job.UserID != userID {
			continue
		}
		add(domain.KindAudio, job.PathAudio, job.SizeAudio)
		add(domain.KindVideo, job.PathVideo, job.SizeVideo)
		add(domain.KindTranscript, job.PathTranscript, job.SizeTranscript)
		add(domain.KindThumbnail, job.ThumbnailPath, job.ThumbnailSize)
	}
	return breakdown, nil
}

func (f *fakeJobStore) DoneCreatedSince(ctx context.Context, userID string, since time.Time) ([]time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var stamps []time.Time
	for _, job := range f.jobs {
		if job.UserID == userID && job.Status == domain.StatusDone && !job.CreatedAt.Before(since) {
			stamps = append(stamps, job.CreatedAt)
		}
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
	return stamps, nil
}

func (f *fakeJobStore) TopChannels(ctx context.Context, userID string, limit int) ([]repository.ChannelCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int64)
	for _, job := range f.jobs {
		if job.UserID == userID && job.Status == domain.StatusDone && job.ChannelName != "" {
			counts[job.ChannelName]++
		}
	}
	var rows []repository.ChannelCount
	for name, count := range counts {
		rows = append(rows, repository.ChannelCount{ChannelName: name, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Count > rows[j].Count })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (f *fakeJobStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[id]; !ok {
		return domain.ErrJobNotFound
	}
	delete(f.jobs, id)
	for i, oid := range f.order {
		if oid == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return nil
}

// fakeStatsStore keeps the per-user rollups in memory with the lazy-create
// behavior of the real repository.
type fakeStatsStore struct {
	mu    sync.Mutex
	stats map[string]*domain.UserStats
}

func newFakeStatsStore() *fakeStatsStore {
	return &fakeStatsStore{stats: make(map[string]*domain.UserStats)}
}

func (f *fakeStatsStore) AtomicUpdate(ctx context.Context, userID string, fn func(*domain.UserStats) error) (*domain.UserStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.stats[userID]
	if !ok {
		st = &domain.UserStats{UserID: userID, CreatedAt: time.Now()}
		f.stats[userID] = st
	}
	if err := fn(st); err != nil {
		return nil, err
	}
	st.UpdatedAt = time.Now()
	clone := *st
	return &clone, nil
}

func (f *fakeStatsStore) GetByUser(ctx context.Context, userID string) (*domain.UserStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.stats[userID]; ok {
		clone := *st
		return &clone, nil
	}
	return &domain.UserStats{UserID: userID}, nil
}

func (f *fakeStatsStore) get(userID string) domain.UserStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.stats[userID]; ok {
		return *st
	}
	return domain.UserStats{UserID: userID}
}

// fakeArtifactStore is an in-memory ArtifactStore. Promote consumes the
// local file the way the real backends do.
type fakeArtifactStore struct {
	mu              sync.Mutex
	objects         map[string][]byte
	promoteErr      map[string]error
	deletePrefixErr map[string]error
	deletedPrefixes []string
}

func newFakeArtifactStore() *fakeArtifactStore {
	return &fakeArtifactStore{
		objects:         make(map[string][]byte),
		promoteErr:      make(map[string]error),
		deletePrefixErr: make(map[string]error),
	}
}

func (f *fakeArtifactStore) Promote(ctx context.Context, key, localPath string) (*storage.ArtifactStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.promoteErr[key]; err != nil {
		return nil, err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(localPath); err != nil {
		return nil, err
	}
	f.objects[key] = data
	sum := sha256.Sum256(data)
	return &storage.ArtifactStat{Size: int64(len(data)), SHA256: hex.EncodeToString(sum[:])}, nil
}

func (f *fakeArtifactStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("artifact %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), data...))), nil
}

func (f *fakeArtifactStore) Stat(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return 0, fmt.Errorf("artifact %s not found", key)
	}
	return int64(len(data)), nil
}

func (f *fakeArtifactStore) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeArtifactStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeArtifactStore) DeletePrefix(ctx context.Context, prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedPrefixes = append(f.deletedPrefixes, prefix)
	if err := f.deletePrefixErr[prefix]; err != nil {
		return err
	}
	for key := range f.objects {
		if key == prefix || strings.HasPrefix(key, prefix+"/") {
			delete(f.objects, key)
		}
	}
	return nil
}

func (f *fakeArtifactStore) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for key := range f.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (f *fakeArtifactStore) putObject(key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
}

// fakeProber returns a canned metadata probe.
type fakeProber struct {
	mu    sync.Mutex
	info  *ytdl.VideoInfo
	err   error
	calls int
}

func (f *fakeProber) Probe(ctx context.Context, url string) (*ytdl.VideoInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	info := *f.info
	return &info, nil
}

func (f *fakeProber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeExpander returns a canned playlist expansion.
type fakeExpander struct {
	playlist *ytdl.Playlist
	err      error
	calls    int
}

func (f *fakeExpander) ExpandPlaylist(ctx context.Context, url string) (*ytdl.Playlist, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.playlist, nil
}

// fakeDownloader writes a canned media file into the scratch directory and
// reports a fixed progress ramp.
type fakeDownloader struct {
	mu       sync.Mutex
	audioErr error
	videoErr error
	data     []byte
	delay    time.Duration
	block    bool
	calls    []string
}

func (f *fakeDownloader) DownloadAudio(ctx context.Context, url string, quality domain.Quality, dir string, progress ytdl.ProgressFunc) (string, error) {
	return f.download(ctx, "audio", dir, "audio.mp3", f.audioErr, progress)
}

func (f *fakeDownloader) DownloadVideo(ctx context.Context, url string, quality domain.Quality, dir string, progress ytdl.ProgressFunc) (string, error) {
	return f.download(ctx, "video", dir, "video.mp4", f.videoErr, progress)
}

func (f *fakeDownloader) download(ctx context.Context, kind, dir, name string, failWith error, progress ytdl.ProgressFunc) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, kind)
	delay, block, data := f.delay, f.block, f.data
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	if failWith != nil {
		return "", failWith
	}
	if progress != nil {
		progress(50)
		progress(100)
	}
	if data == nil {
		data = []byte("media-bytes")
	}
	local := filepath.Join(dir, name)
	if err := os.WriteFile(local, data, 0644); err != nil {
		return "", err
	}
	return local, nil
}

func (f *fakeDownloader) callNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeCaptions returns a canned caption track.
type fakeCaptions struct {
	transcript *ytdl.Transcript
	err        error
}

func (f *fakeCaptions) Fetch(ctx context.Context, videoID string) (*ytdl.Transcript, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.transcript, nil
}

// fakeImages returns canned thumbnail bytes.
type fakeImages struct {
	data []byte
	ext  string
	err  error
}

func (f *fakeImages) Fetch(ctx context.Context, url, videoID string) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	ext := f.ext
	if ext == "" {
		ext = ".jpg"
	}
	return f.data, ext, nil
}

// fakeProducer scripts one pipeline stage.
type fakeProducer struct {
	kind      domain.OutputKind
	update    *domain.JobUpdate
	err       error
	onProduce func(ctx context.Context, pc *ProduceContext)

	mu    sync.Mutex
	calls int
}

func (f *fakeProducer) Kind() domain.OutputKind { return f.kind }

func (f *fakeProducer) Produce(ctx context.Context, pc *ProduceContext) (*domain.JobUpdate, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.onProduce != nil {
		f.onProduce(ctx, pc)
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.update != nil {
		update := *f.update
		return &update, nil
	}
	return &domain.JobUpdate{}, nil
}

func (f *fakeProducer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestJob(id, userID string, kinds ...domain.OutputKind) *domain.DownloadJob {
	if len(kinds) == 0 {
		kinds = []domain.OutputKind{domain.KindAudio}
	}
	return &domain.DownloadJob{
		ID:      id,
		UserID:  userID,
		URL:     "https://www.youtube.com/watch?v=vid123",
		Kinds:   domain.KindSet(kinds),
		Quality: domain.QualityBest,
		Status:  domain.StatusPending,
		Message: "Queued",
	}
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
