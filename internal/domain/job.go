package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a download job.
// Values include StatusPending, StatusRunning, StatusRetrying, StatusDone,
// StatusError, and StatusCancelled.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusRetrying  Status = "RETRYING"
	StatusDone      Status = "DONE"
	StatusError     Status = "ERROR"
	StatusCancelled Status = "CANCELLED"
)

// IsTerminal reports whether the status is a final state that the scheduler
// will never leave on its own.
// Parameters: none.
// Returns:
//   - bool: true for StatusDone, StatusError, and StatusCancelled.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusError || s == StatusCancelled
}

// IsRunnable reports whether a worker may pick the job up for execution.
// Only pending and retrying jobs qualify; everything else (including jobs
// cancelled while waiting in the backlog) is skipped at pickup.
// Parameters: none.
// Returns:
//   - bool: true for StatusPending and StatusRetrying.
func (s Status) IsRunnable() bool {
	return s == StatusPending || s == StatusRetrying
}

// IsRetryable reports whether a user-issued retry may reset the job.
// Parameters: none.
// Returns:
//   - bool: true for StatusError and StatusCancelled.
func (s Status) IsRetryable() bool {
	return s == StatusError || s == StatusCancelled
}

// ParseStatus normalizes a status name to its canonical constant.
// Parameters:
//   - s: status name, case-insensitive.
// Returns:
//   - Status: matching constant.
//   - error: non-nil when the name is not a known status.
func ParseStatus(s string) (Status, error) {
	switch status := Status(strings.ToUpper(strings.TrimSpace(s))); status {
	case StatusPending, StatusRunning, StatusRetrying, StatusDone, StatusError, StatusCancelled:
		return status, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// DownloadJob represents a single video download request and everything the
// system learns about it: requested outputs, lifecycle state, probed video
// metadata, and the artifacts produced.
type DownloadJob struct {
	ID     string `gorm:"type:text;primaryKey" json:"id"`
	UserID string `gorm:"type:text;not null;index:idx_jobs_user" json:"user_id"`
	URL    string `gorm:"type:text;not null" json:"url"`

	// Requested work.
	Kinds     KindSet `gorm:"type:text" json:"kinds"`
	Quality   Quality `gorm:"type:text;default:BEST" json:"quality"`
	Subfolder string  `gorm:"type:text" json:"subfolder,omitempty"`

	// Lifecycle.
	Status       Status `gorm:"type:text;index:idx_jobs_status;default:PENDING" json:"status"`
	ProgressPct  int    `gorm:"default:0" json:"progress_pct"`
	Message      string `gorm:"type:text" json:"message,omitempty"`
	ErrorDetails string `gorm:"type:text" json:"error_details,omitempty"`
	RetryCount   int    `gorm:"default:0" json:"retry_count"`
	OutputDir    string `gorm:"type:text" json:"output_dir,omitempty"`

	// Probed metadata.
	VideoID      string      `gorm:"type:text;index:idx_jobs_video" json:"video_id,omitempty"`
	Title        string      `gorm:"type:text" json:"title,omitempty"`
	Description  string      `gorm:"type:text" json:"description,omitempty"`
	DurationSecs *int        `json:"duration_secs,omitempty"`
	UploadDate   *time.Time  `json:"upload_date,omitempty"`
	ChannelID    string      `gorm:"type:text" json:"channel_id,omitempty"`
	ChannelName  string      `gorm:"type:text;index:idx_jobs_channel" json:"channel_name,omitempty"`
	Uploader     string      `gorm:"type:text" json:"uploader,omitempty"`
	UploaderID   string      `gorm:"type:text" json:"uploader_id,omitempty"`
	ViewCount    *int64      `json:"view_count,omitempty"`
	LikeCount    *int64      `json:"like_count,omitempty"`
	CommentCount *int64      `json:"comment_count,omitempty"`
	Width        *int        `json:"width,omitempty"`
	Height       *int        `json:"height,omitempty"`
	FPS          *float64    `json:"fps,omitempty"`
	VideoCodec   string      `gorm:"type:text" json:"video_codec,omitempty"`
	AudioCodec   string      `gorm:"type:text" json:"audio_codec,omitempty"`
	Tags         StringArray `gorm:"type:text" json:"tags,omitempty"`
	Categories   string      `gorm:"type:text" json:"categories,omitempty"`
	ThumbnailURL string      `gorm:"type:text" json:"thumbnail_url,omitempty"`

	// Playlist context, set when the job came from an expanded playlist URL.
	PlaylistID       string `gorm:"type:text" json:"playlist_id,omitempty"`
	PlaylistTitle    string `gorm:"type:text" json:"playlist_title,omitempty"`
	PlaylistUploader string `gorm:"type:text" json:"playlist_uploader,omitempty"`
	PlaylistIndex    *int   `json:"playlist_index,omitempty"`
	PlaylistCount    *int   `json:"playlist_count,omitempty"`

	// Produced artifacts, one column group per output kind.
	PathAudio           string `gorm:"type:text" json:"path_audio,omitempty"`
	SizeAudio           *int64 `json:"size_audio,omitempty"`
	ChecksumAudio       string `gorm:"type:text" json:"checksum_audio,omitempty"`
	PathVideo           string `gorm:"type:text" json:"path_video,omitempty"`
	SizeVideo           *int64 `json:"size_video,omitempty"`
	ChecksumVideo       string `gorm:"type:text" json:"checksum_video,omitempty"`
	PathTranscript      string `gorm:"type:text" json:"path_transcript,omitempty"`
	SizeTranscript      *int64 `json:"size_transcript,omitempty"`
	PathTranscriptPlain string `gorm:"type:text" json:"path_transcript_plain,omitempty"`
	SizeTranscriptPlain *int64 `json:"size_transcript_plain,omitempty"`
	ThumbnailPath       string `gorm:"type:text" json:"thumbnail_path,omitempty"`
	ThumbnailSize       *int64 `json:"thumbnail_size,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// TableName returns the database table name for DownloadJob.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (DownloadJob) TableName() string {
	return "download_jobs"
}

// TotalArtifactBytes sums the sizes of every stored artifact of the job.
// Parameters: none.
// Returns:
//   - int64: combined size in bytes; zero when nothing was produced.
func (j *DownloadJob) TotalArtifactBytes() int64 {
	var total int64
	for _, size := range []*int64{j.SizeAudio, j.SizeVideo, j.SizeTranscript, j.SizeTranscriptPlain, j.ThumbnailSize} {
		if size != nil {
			total += *size
		}
	}
	return total
}

// ArtifactPath returns the stored relative path for one output kind.
// Parameters:
//   - kind: which artifact to look up. KindTranscript resolves to the
//     timestamped transcript file.
//
// Returns:
//   - string: relative path inside the artifact store.
//   - bool: false when the artifact was not produced.
func (j *DownloadJob) ArtifactPath(kind OutputKind) (string, bool) {
	var path string
	switch kind {
	case KindAudio:
		path = j.PathAudio
	case KindVideo:
		path = j.PathVideo
	case KindTranscript:
		path = j.PathTranscript
	case KindThumbnail:
		path = j.ThumbnailPath
	}
	return path, path != ""
}

// AvailableArtifacts lists the output kinds that produced a stored file,
// in canonical kind order.
// Parameters: none.
// Returns:
//   - []OutputKind: kinds with a non-empty stored path.
func (j *DownloadJob) AvailableArtifacts() []OutputKind {
	var kinds []OutputKind
	for _, kind := range AllKinds() {
		if _, ok := j.ArtifactPath(kind); ok {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// DurationFormatted renders the probed duration as MM:SS, or H:MM:SS for
// videos of an hour or longer.
// Parameters: none.
// Returns:
//   - string: formatted duration; empty when the duration is unknown.
func (j *DownloadJob) DurationFormatted() string {
	if j.DurationSecs == nil {
		return ""
	}
	secs := *j.DurationSecs
	if secs < 0 {
		secs = 0
	}
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
