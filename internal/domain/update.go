package domain

import "time"

// VideoMetadata carries everything the metadata probe learns about a video
// before any artifact is produced.
type VideoMetadata struct {
	VideoID      string
	Title        string
	Description  string
	DurationSecs *int
	UploadDate   *time.Time
	ChannelID    string
	ChannelName  string
	Uploader     string
	UploaderID   string
	ViewCount    *int64
	LikeCount    *int64
	CommentCount *int64
	Width        *int
	Height       *int
	FPS          *float64
	VideoCodec   string
	AudioCodec   string
	Tags         StringArray
	Categories   string
	ThumbnailURL string
}

// ArtifactInfo describes a stored audio or video artifact.
type ArtifactInfo struct {
	Path     string
	Size     int64
	Checksum string
}

// TranscriptInfo describes the stored transcript pair: the timestamped file
// and its plain-text companion.
type TranscriptInfo struct {
	Path      string
	Size      int64
	PlainPath string
	PlainSize int64
}

// ThumbnailInfo describes a stored thumbnail artifact.
type ThumbnailInfo struct {
	Path string
	Size int64
}

// JobUpdate is a typed partial update of a DownloadJob. Only non-nil fields
// are applied, always through the repository's atomic read-modify-write, so
// concurrent writers can never clobber fields they did not touch.
type JobUpdate struct {
	Status          *Status
	ProgressPct     *int
	Message         *string
	ErrorDetails    *string
	RetryCount      *int
	OutputDir       *string
	FinishedAt      *time.Time
	ClearFinishedAt bool

	Metadata   *VideoMetadata
	Audio      *ArtifactInfo
	Video      *ArtifactInfo
	Transcript *TranscriptInfo
	Thumbnail  *ThumbnailInfo
}

// Apply copies every set field onto the job. Progress never moves backwards
// while the job stays RUNNING, and progress and message freeze once the job
// is in a terminal status, so a worker racing a user cancel cannot rewrite
// the outcome. Updates that also change the status (claims, retry resets,
// terminal writes) may set any value. Artifact and metadata fields always
// apply; a stage that finished while the cancel landed did store its file.
// Parameters:
//   - job: job to mutate in place.
//
// Returns: none.
func (u *JobUpdate) Apply(job *DownloadJob) {
	statusChanging := u.Status != nil && *u.Status != job.Status
	if u.ProgressPct != nil {
		pct := *u.ProgressPct
		switch {
		case statusChanging:
		case job.Status.IsTerminal():
			pct = job.ProgressPct
		case job.Status == StatusRunning && pct < job.ProgressPct:
			pct = job.ProgressPct
		}
		job.ProgressPct = pct
	}
	if u.Status != nil {
		job.Status = *u.Status
	}
	if u.Message != nil && (statusChanging || !job.Status.IsTerminal()) {
		job.Message = *u.Message
	}
	if u.ErrorDetails != nil {
		job.ErrorDetails = *u.ErrorDetails
	}
	if u.RetryCount != nil {
		job.RetryCount = *u.RetryCount
	}
	if u.OutputDir != nil {
		job.OutputDir = *u.OutputDir
	}
	if u.ClearFinishedAt {
		job.FinishedAt = nil
	} else if u.FinishedAt != nil {
		t := *u.FinishedAt
		job.FinishedAt = &t
	}
	if u.Metadata != nil {
		applyMetadata(job, u.Metadata)
	}
	if u.Audio != nil {
		job.PathAudio = u.Audio.Path
		size := u.Audio.Size
		job.SizeAudio = &size
		job.ChecksumAudio = u.Audio.Checksum
	}
	if u.Video != nil {
		job.PathVideo = u.Video.Path
		size := u.Video.Size
		job.SizeVideo = &size
		job.ChecksumVideo = u.Video.Checksum
	}
	if u.Transcript != nil {
		job.PathTranscript = u.Transcript.Path
		size := u.Transcript.Size
		job.SizeTranscript = &size
		job.PathTranscriptPlain = u.Transcript.PlainPath
		plainSize := u.Transcript.PlainSize
		job.SizeTranscriptPlain = &plainSize
	}
	if u.Thumbnail != nil {
		job.ThumbnailPath = u.Thumbnail.Path
		size := u.Thumbnail.Size
		job.ThumbnailSize = &size
	}
}

func applyMetadata(job *DownloadJob, meta *VideoMetadata) {
	job.VideoID = meta.VideoID
	job.Title = meta.Title
	job.Description = meta.Description
	job.DurationSecs = meta.DurationSecs
	job.UploadDate = meta.UploadDate
	job.ChannelID = meta.ChannelID
	job.ChannelName = meta.ChannelName
	job.Uploader = meta.Uploader
	job.UploaderID = meta.UploaderID
	job.ViewCount = meta.ViewCount
	job.LikeCount = meta.LikeCount
	job.CommentCount = meta.CommentCount
	job.Width = meta.Width
	job.Height = meta.Height
	job.FPS = meta.FPS
	job.VideoCodec = meta.VideoCodec
	job.AudioCodec = meta.AudioCodec
	job.Tags = meta.Tags
	job.Categories = meta.Categories
	job.ThumbnailURL = meta.ThumbnailURL
}
