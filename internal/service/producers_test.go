package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/tobk/ytvault/internal/domain"
	"github.com/tobk/ytvault/internal/ytdl"
)

func TestArtifactBaseName(t *testing.T) {
	longTitle := strings.Repeat("x", 100)

	testCases := []struct {
		name    string
		title   string
		videoID string
		want    string
	}{
		{name: "title and id", title: "Test Video", videoID: "vid123", want: "Test Video [vid123]"},
		{name: "missing title", title: "", videoID: "vid123", want: "Unknown_Video [vid123]"},
		{name: "missing id", title: "Test Video", videoID: "", want: "Test Video"},
		{name: "unsafe characters", title: "AC/DC: Live", videoID: "vid123", want: "AC_DC_ Live [vid123]"},
		{name: "long title capped", title: longTitle, videoID: "vid123", want: strings.Repeat("x", 80) + " [vid123]"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			job := &domain.DownloadJob{Title: tc.title, VideoID: tc.videoID}
			if got := artifactBaseName(job); got != tc.want {
				t.Errorf("artifactBaseName() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestArtifactKey(t *testing.T) {
	testCases := []struct {
		name      string
		userID    string
		subfolder string
		file      string
		want      string
	}{
		{name: "plain", userID: "alice", file: "song.mp3", want: "alice/job-1/song.mp3"},
		{name: "with subfolder", userID: "alice", subfolder: "music", file: "song.mp3", want: "alice/job-1/music/song.mp3"},
		{name: "subfolder sanitized", userID: "alice", subfolder: "my:mix", file: "song.mp3", want: "alice/job-1/my_mix/song.mp3"},
		{name: "user sanitized", userID: "a/b", file: "song.mp3", want: "a_b/job-1/song.mp3"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			job := &domain.DownloadJob{ID: "job-1", UserID: tc.userID, Subfolder: tc.subfolder}
			if got := artifactKey(job, tc.file); got != tc.want {
				t.Errorf("artifactKey() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestAudioProducerStoresArtifact(t *testing.T) {
	store := newFakeArtifactStore()
	data := []byte("mp3-bytes")
	dl := &fakeDownloader{data: data}
	producer := NewAudioProducer(dl, store)

	job := newTestJob("job-1", "alice")
	job.Title = "Test Video"
	job.VideoID = "vid123"
	scratch := t.TempDir()

	var reported []int
	update, err := producer.Produce(context.Background(), &ProduceContext{
		Job:        job,
		ScratchDir: scratch,
		Progress:   func(pct int) { reported = append(reported, pct) },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if update.Audio == nil {
		t.Fatal("expected an audio artifact on the update")
	}

	wantKey := "alice/job-1/Test Video [vid123].mp3"
	if update.Audio.Path != wantKey {
		t.Errorf("expected path %q, got %q", wantKey, update.Audio.Path)
	}
	if update.Audio.Size != int64(len(data)) {
		t.Errorf("expected size %d, got %d", len(data), update.Audio.Size)
	}
	sum := sha256.Sum256(data)
	if want := hex.EncodeToString(sum[:]); update.Audio.Checksum != want {
		t.Errorf("expected checksum %s, got %s", want, update.Audio.Checksum)
	}
	if len(reported) == 0 {
		t.Error("expected download progress to be reported")
	}

	// Promotion consumes the scratch file.
	entries, err := os.ReadDir(scratch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected an empty scratch dir after promotion, found %d entries", len(entries))
	}
	if keys := store.keys(); len(keys) != 1 || keys[0] != wantKey {
		t.Errorf("expected stored object %q, got %v", wantKey, keys)
	}
}

func TestVideoProducerStoresArtifact(t *testing.T) {
	store := newFakeArtifactStore()
	dl := &fakeDownloader{data: []byte("mp4-bytes")}
	producer := NewVideoProducer(dl, store)

	job := newTestJob("job-1", "alice", domain.KindVideo)
	job.Title = "Test Video"
	job.VideoID = "vid123"

	update, err := producer.Produce(context.Background(), &ProduceContext{Job: job, ScratchDir: t.TempDir()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if update.Video == nil {
		t.Fatal("expected a video artifact on the update")
	}
	if want := "alice/job-1/Test Video [vid123].mp4"; update.Video.Path != want {
		t.Errorf("expected path %q, got %q", want, update.Video.Path)
	}
}

func TestTranscriptProducerWritesTimestampedAndPlainFiles(t *testing.T) {
	store := newFakeArtifactStore()
	captions := &fakeCaptions{transcript: &ytdl.Transcript{
		Language: "en",
		Lines: []ytdl.CaptionLine{
			{Start: 5, Text: "hello world"},
			{Start: 75, Text: "second line"},
		},
	}}
	producer := NewTranscriptProducer(captions, store)
	producer.now = func() time.Time { return time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC) }

	job := newTestJob("job-1", "alice", domain.KindTranscript)
	job.Title = "Test Video"
	job.VideoID = "vid123"

	update, err := producer.Produce(context.Background(), &ProduceContext{Job: job, ScratchDir: t.TempDir()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if update.Transcript == nil {
		t.Fatal("expected a transcript artifact on the update")
	}

	wantStamped := "alice/job-1/Test Video [vid123].timestamped.txt"
	wantPlain := "alice/job-1/Test Video [vid123].txt"
	if update.Transcript.Path != wantStamped {
		t.Errorf("expected timestamped path %q, got %q", wantStamped, update.Transcript.Path)
	}
	if update.Transcript.PlainPath != wantPlain {
		t.Errorf("expected plain path %q, got %q", wantPlain, update.Transcript.PlainPath)
	}

	stamped := readStoredObject(t, store, wantStamped)
	wantStampedContent := "# Transcript for: Test Video\n" +
		"# Video ID: vid123\n" +
		"# Language: en\n" +
		"# Generated: 2024-05-01 10:30:00\n" +
		"\n" +
		"[00:05] hello world\n[01:15] second line\n"
	if stamped != wantStampedContent {
		t.Errorf("unexpected timestamped content:\n%q\nwant:\n%q", stamped, wantStampedContent)
	}

	plain := readStoredObject(t, store, wantPlain)
	wantPlainContent := "Transcript for: Test Video\n" +
		"Video ID: vid123\n" +
		"Language: en\n" +
		"Generated: 2024-05-01 10:30:00\n" +
		strings.Repeat("-", 50) + "\n" +
		"\n" +
		"hello world second line\n"
	if plain != wantPlainContent {
		t.Errorf("unexpected plain content:\n%q\nwant:\n%q", plain, wantPlainContent)
	}
}

func TestTranscriptProducerMarksNonEnglishFiles(t *testing.T) {
	store := newFakeArtifactStore()
	captions := &fakeCaptions{transcript: &ytdl.Transcript{
		Language: "es",
		Lines:    []ytdl.CaptionLine{{Start: 0, Text: "hola"}},
	}}
	producer := NewTranscriptProducer(captions, store)

	job := newTestJob("job-1", "alice", domain.KindTranscript)
	job.Title = "Test Video"
	job.VideoID = "vid123"

	update, err := producer.Produce(context.Background(), &ProduceContext{Job: job, ScratchDir: t.TempDir()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "alice/job-1/Test Video [vid123].es.timestamped.txt"; update.Transcript.Path != want {
		t.Errorf("expected language-marked path %q, got %q", want, update.Transcript.Path)
	}
	if want := "alice/job-1/Test Video [vid123].es.txt"; update.Transcript.PlainPath != want {
		t.Errorf("expected language-marked plain path %q, got %q", want, update.Transcript.PlainPath)
	}
}

func TestTranscriptProducerRemovesPairOnPartialFailure(t *testing.T) {
	store := newFakeArtifactStore()
	store.promoteErr["alice/job-1/Test Video [vid123].txt"] = errors.New("disk full")
	captions := &fakeCaptions{transcript: &ytdl.Transcript{
		Language: "en",
		Lines:    []ytdl.CaptionLine{{Start: 0, Text: "hello"}},
	}}
	producer := NewTranscriptProducer(captions, store)

	job := newTestJob("job-1", "alice", domain.KindTranscript)
	job.Title = "Test Video"
	job.VideoID = "vid123"

	_, err := producer.Produce(context.Background(), &ProduceContext{Job: job, ScratchDir: t.TempDir()})
	if !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected a storage error, got %v", err)
	}
	if keys := store.keys(); len(keys) != 0 {
		t.Errorf("expected the timestamped file to be removed with the failed plain file, found %v", keys)
	}
}

func TestTranscriptProducerWithoutVideoID(t *testing.T) {
	producer := NewTranscriptProducer(&fakeCaptions{}, newFakeArtifactStore())

	job := newTestJob("job-1", "alice", domain.KindTranscript)
	job.URL = "https://example.com/not-youtube"
	job.VideoID = ""

	_, err := producer.Produce(context.Background(), &ProduceContext{Job: job, ScratchDir: t.TempDir()})
	if !errors.Is(err, domain.ErrNoTranscript) {
		t.Errorf("expected ErrNoTranscript, got %v", err)
	}
}

func TestThumbnailProducerUsesDetectedExtension(t *testing.T) {
	store := newFakeArtifactStore()
	producer := NewThumbnailProducer(&fakeImages{data: []byte{0x89, 0x50, 0x4E, 0x47}, ext: ".png"}, store)

	job := newTestJob("job-1", "alice", domain.KindThumbnail)
	job.Title = "Test Video"
	job.VideoID = "vid123"
	job.ThumbnailURL = "https://example.com/thumb.png"

	update, err := producer.Produce(context.Background(), &ProduceContext{Job: job, ScratchDir: t.TempDir()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if update.Thumbnail == nil {
		t.Fatal("expected a thumbnail artifact on the update")
	}
	if want := "alice/job-1/Test Video [vid123].png"; update.Thumbnail.Path != want {
		t.Errorf("expected path %q, got %q", want, update.Thumbnail.Path)
	}
	if update.Thumbnail.Size != 4 {
		t.Errorf("expected size 4, got %d", update.Thumbnail.Size)
	}
}

func TestProducerRegistryCanonicalOrder(t *testing.T) {
	registry := NewProducerRegistry(
		&fakeProducer{kind: domain.KindThumbnail},
		&fakeProducer{kind: domain.KindVideo},
		&fakeProducer{kind: domain.KindAudio},
	)

	kinds := registry.Kinds()
	want := []domain.OutputKind{domain.KindAudio, domain.KindVideo, domain.KindThumbnail}
	if len(kinds) != len(want) {
		t.Fatalf("expected %d kinds, got %d", len(want), len(kinds))
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("expected kind %s at position %d, got %s", want[i], i, kinds[i])
		}
	}

	if _, ok := registry.Get(domain.KindTranscript); ok {
		t.Error("expected no transcript producer to be registered")
	}
}

func readStoredObject(t *testing.T, store *fakeArtifactStore, key string) string {
	t.Helper()
	rc, err := store.Download(context.Background(), key)
	if err != nil {
		t.Fatalf("expected object %q in the store: %v", key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	return string(data)
}
