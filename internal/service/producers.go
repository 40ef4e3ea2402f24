package service

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/tobk/ytvault/internal/domain"
	"github.com/tobk/ytvault/internal/storage"
	"github.com/tobk/ytvault/internal/ytdl"
)

// MediaDownloader runs yt-dlp downloads into a scratch directory.
// *ytdl.Client implements it.
type MediaDownloader interface {
	DownloadAudio(ctx context.Context, url string, quality domain.Quality, dir string, progress ytdl.ProgressFunc) (string, error)
	DownloadVideo(ctx context.Context, url string, quality domain.Quality, dir string, progress ytdl.ProgressFunc) (string, error)
}

// CaptionSource fetches a video's caption track.
// *ytdl.TranscriptFetcher implements it.
type CaptionSource interface {
	Fetch(ctx context.Context, videoID string) (*ytdl.Transcript, error)
}

// ImageSource fetches a video's thumbnail image.
// *ytdl.ThumbnailFetcher implements it.
type ImageSource interface {
	Fetch(ctx context.Context, url, videoID string) ([]byte, string, error)
}

// ProduceContext carries the per-job inputs a producer works from. The job
// snapshot already holds the probed metadata.
type ProduceContext struct {
	Job        *domain.DownloadJob
	ScratchDir string
	// Progress receives stage-local percentages in [0,100]. May be nil.
	Progress func(pct int)
}

func (pc *ProduceContext) report(pct int) {
	if pc.Progress != nil {
		pc.Progress(pct)
	}
}

// Producer materializes one output kind for a job: it downloads or builds
// the artifact, promotes it into the store, and returns the job fields to
// merge (paths, sizes, checksums).
type Producer interface {
	Kind() domain.OutputKind
	Produce(ctx context.Context, pc *ProduceContext) (*domain.JobUpdate, error)
}

// ProducerRegistry resolves output kinds to their producers.
type ProducerRegistry struct {
	byKind map[domain.OutputKind]Producer
}

// NewProducerRegistry indexes the given producers by their output kind.
// Parameters:
//   - producers: producers to register; a later producer for the same kind
//     replaces an earlier one.
// Returns:
//   - *ProducerRegistry: initialized registry.
func NewProducerRegistry(producers ...Producer) *ProducerRegistry {
	r := &ProducerRegistry{byKind: make(map[domain.OutputKind]Producer, len(producers))}
	for _, p := range producers {
		r.byKind[p.Kind()] = p
	}
	return r
}

// Get returns the producer registered for a kind.
func (r *ProducerRegistry) Get(kind domain.OutputKind) (Producer, bool) {
	p, ok := r.byKind[kind]
	return p, ok
}

// Kinds lists the registered kinds in canonical order.
func (r *ProducerRegistry) Kinds() []domain.OutputKind {
	var kinds []domain.OutputKind
	for _, kind := range domain.AllKinds() {
		if _, ok := r.byKind[kind]; ok {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// artifactPrefix is the store directory holding every file of one job:
// <user>/<jobID>. Cleanup removes this prefix wholesale.
func artifactPrefix(job *domain.DownloadJob) string {
	return path.Join(storage.SanitizeSegment(job.UserID), job.ID)
}

// artifactKey places one file inside the job's store directory, under the
// job's optional subfolder.
func artifactKey(job *domain.DownloadJob, name string) string {
	if job.Subfolder != "" {
		return path.Join(artifactPrefix(job), storage.SanitizeSegment(job.Subfolder), name)
	}
	return path.Join(artifactPrefix(job), name)
}

// artifactBaseName names a job's files the way downloads are browsed:
// "<title> [<video id>]", with the title sanitized and capped.
func artifactBaseName(job *domain.DownloadJob) string {
	title := job.Title
	if title == "" {
		title = "Unknown_Video"
	}
	if r := []rune(title); len(r) > 80 {
		title = string(r[:80])
	}
	base := storage.SanitizeSegment(title)
	if job.VideoID != "" {
		base += " [" + job.VideoID + "]"
	}
	return base
}

// AudioProducer downloads the audio track and stores it as an mp3.
type AudioProducer struct {
	dl    MediaDownloader
	store storage.ArtifactStore
}

func NewAudioProducer(dl MediaDownloader, store storage.ArtifactStore) *AudioProducer {
	return &AudioProducer{dl: dl, store: store}
}

func (p *AudioProducer) Kind() domain.OutputKind { return domain.KindAudio }

func (p *AudioProducer) Produce(ctx context.Context, pc *ProduceContext) (*domain.JobUpdate, error) {
	local, err := p.dl.DownloadAudio(ctx, pc.Job.URL, pc.Job.Quality, pc.ScratchDir, pc.Progress)
	if err != nil {
		return nil, err
	}

	key := artifactKey(pc.Job, artifactBaseName(pc.Job)+".mp3")
	stat, err := p.store.Promote(ctx, key, local)
	if err != nil {
		return nil, fmt.Errorf("%w: storing audio: %v", domain.ErrStorage, err)
	}

	return &domain.JobUpdate{
		Audio: &domain.ArtifactInfo{Path: key, Size: stat.Size, Checksum: stat.SHA256},
	}, nil
}

// VideoProducer downloads and merges the video and stores it as an mp4.
type VideoProducer struct {
	dl    MediaDownloader
	store storage.ArtifactStore
}

func NewVideoProducer(dl MediaDownloader, store storage.ArtifactStore) *VideoProducer {
	return &VideoProducer{dl: dl, store: store}
}

func (p *VideoProducer) Kind() domain.OutputKind { return domain.KindVideo }

func (p *VideoProducer) Produce(ctx context.Context, pc *ProduceContext) (*domain.JobUpdate, error) {
	local, err := p.dl.DownloadVideo(ctx, pc.Job.URL, pc.Job.Quality, pc.ScratchDir, pc.Progress)
	if err != nil {
		return nil, err
	}

	key := artifactKey(pc.Job, artifactBaseName(pc.Job)+".mp4")
	stat, err := p.store.Promote(ctx, key, local)
	if err != nil {
		return nil, fmt.Errorf("%w: storing video: %v", domain.ErrStorage, err)
	}

	return &domain.JobUpdate{
		Video: &domain.ArtifactInfo{Path: key, Size: stat.Size, Checksum: stat.SHA256},
	}, nil
}

// TranscriptProducer fetches the caption track and stores a timestamped
// transcript alongside a plain-text one. A video without captions yields
// domain.ErrNoTranscript, which the scheduler treats as a soft skip.
type TranscriptProducer struct {
	captions CaptionSource
	store    storage.ArtifactStore
	now      func() time.Time
}

func NewTranscriptProducer(captions CaptionSource, store storage.ArtifactStore) *TranscriptProducer {
	return &TranscriptProducer{captions: captions, store: store, now: time.Now}
}

func (p *TranscriptProducer) Kind() domain.OutputKind { return domain.KindTranscript }

func (p *TranscriptProducer) Produce(ctx context.Context, pc *ProduceContext) (*domain.JobUpdate, error) {
	videoID := pc.Job.VideoID
	if videoID == "" {
		videoID = ytdl.ExtractVideoID(pc.Job.URL)
	}
	if videoID == "" {
		return nil, domain.ErrNoTranscript
	}

	pc.report(10)
	transcript, err := p.captions.Fetch(ctx, videoID)
	if err != nil {
		return nil, err
	}
	pc.report(60)

	// The filename carries a language marker for non-English tracks.
	base := artifactBaseName(pc.Job)
	langSuffix := ""
	if transcript.Language != "en" {
		langSuffix = "." + transcript.Language
	}
	stampedName := base + langSuffix + ".timestamped.txt"
	plainName := base + langSuffix + ".txt"

	generated := p.now().Format("2006-01-02 15:04:05")
	stamped := fmt.Sprintf("# Transcript for: %s\n# Video ID: %s\n# Language: %s\n# Generated: %s\n\n%s\n",
		pc.Job.Title, videoID, transcript.Language, generated, ytdl.FormatTimestamped(transcript.Lines))
	plain := fmt.Sprintf("Transcript for: %s\nVideo ID: %s\nLanguage: %s\nGenerated: %s\n%s\n\n%s\n",
		pc.Job.Title, videoID, transcript.Language, generated, dashRule, ytdl.FormatPlain(transcript.Lines))

	stampedLocal := filepath.Join(pc.ScratchDir, stampedName)
	if err := os.WriteFile(stampedLocal, []byte(stamped), 0644); err != nil {
		return nil, fmt.Errorf("failed to write transcript file: %w", err)
	}
	plainLocal := filepath.Join(pc.ScratchDir, plainName)
	if err := os.WriteFile(plainLocal, []byte(plain), 0644); err != nil {
		return nil, fmt.Errorf("failed to write transcript file: %w", err)
	}
	pc.report(80)

	stampedKey := artifactKey(pc.Job, stampedName)
	stampedStat, err := p.store.Promote(ctx, stampedKey, stampedLocal)
	if err != nil {
		return nil, fmt.Errorf("%w: storing transcript: %v", domain.ErrStorage, err)
	}
	plainKey := artifactKey(pc.Job, plainName)
	plainStat, err := p.store.Promote(ctx, plainKey, plainLocal)
	if err != nil {
		// The job record points at both files or neither.
		_ = p.store.Delete(ctx, stampedKey)
		return nil, fmt.Errorf("%w: storing transcript: %v", domain.ErrStorage, err)
	}

	return &domain.JobUpdate{
		Transcript: &domain.TranscriptInfo{
			Path:      stampedKey,
			Size:      stampedStat.Size,
			PlainPath: plainKey,
			PlainSize: plainStat.Size,
		},
	}, nil
}

var dashRule = strings.Repeat("-", 50)

// ThumbnailProducer fetches the video thumbnail and stores it.
type ThumbnailProducer struct {
	images ImageSource
	store  storage.ArtifactStore
}

func NewThumbnailProducer(images ImageSource, store storage.ArtifactStore) *ThumbnailProducer {
	return &ThumbnailProducer{images: images, store: store}
}

func (p *ThumbnailProducer) Kind() domain.OutputKind { return domain.KindThumbnail }

func (p *ThumbnailProducer) Produce(ctx context.Context, pc *ProduceContext) (*domain.JobUpdate, error) {
	data, ext, err := p.images.Fetch(ctx, pc.Job.ThumbnailURL, pc.Job.VideoID)
	if err != nil {
		return nil, err
	}

	name := artifactBaseName(pc.Job) + ext
	local := filepath.Join(pc.ScratchDir, name)
	if err := os.WriteFile(local, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write thumbnail file: %w", err)
	}

	key := artifactKey(pc.Job, name)
	stat, err := p.store.Promote(ctx, key, local)
	if err != nil {
		return nil, fmt.Errorf("%w: storing thumbnail: %v", domain.ErrStorage, err)
	}

	return &domain.JobUpdate{
		Thumbnail: &domain.ThumbnailInfo{Path: key, Size: stat.Size},
	}, nil
}
