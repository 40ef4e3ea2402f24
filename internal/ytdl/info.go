package ytdl

import (
	"strings"
	"time"

	"github.com/tobk/ytvault/internal/domain"
)

// VideoInfo is the subset of yt-dlp's info dump the processor cares about.
// Field names follow the keys of yt-dlp's JSON output.
type VideoInfo struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Duration     *float64 `json:"duration"`
	UploadDate   string   `json:"upload_date"` // YYYYMMDD
	ChannelID    string   `json:"channel_id"`
	Channel      string   `json:"channel"`
	Uploader     string   `json:"uploader"`
	UploaderID   string   `json:"uploader_id"`
	ViewCount    *int64   `json:"view_count"`
	LikeCount    *int64   `json:"like_count"`
	CommentCount *int64   `json:"comment_count"`
	Width        *int     `json:"width"`
	Height       *int     `json:"height"`
	FPS          *float64 `json:"fps"`
	VideoCodec   string   `json:"vcodec"`
	AudioCodec   string   `json:"acodec"`
	Tags         []string `json:"tags"`
	Categories   []string `json:"categories"`
	Thumbnail    string   `json:"thumbnail"`
	WebpageURL   string   `json:"webpage_url"`
}

// ToMetadata converts the probe result into the persisted metadata block.
// Parameters: none.
// Returns:
//   - *domain.VideoMetadata: converted metadata.
func (v *VideoInfo) ToMetadata() *domain.VideoMetadata {
	meta := &domain.VideoMetadata{
		VideoID:      v.ID,
		Title:        v.Title,
		Description:  v.Description,
		ChannelID:    v.ChannelID,
		ChannelName:  v.Channel,
		Uploader:     v.Uploader,
		UploaderID:   v.UploaderID,
		ViewCount:    v.ViewCount,
		LikeCount:    v.LikeCount,
		CommentCount: v.CommentCount,
		Width:        v.Width,
		Height:       v.Height,
		FPS:          v.FPS,
		VideoCodec:   normalizeCodec(v.VideoCodec),
		AudioCodec:   normalizeCodec(v.AudioCodec),
		Tags:         domain.StringArray(v.Tags),
		Categories:   strings.Join(v.Categories, ", "),
		ThumbnailURL: v.Thumbnail,
	}
	if v.Duration != nil {
		secs := int(*v.Duration)
		meta.DurationSecs = &secs
	}
	if parsed, err := time.Parse("20060102", v.UploadDate); err == nil {
		meta.UploadDate = &parsed
	}
	return meta
}

// normalizeCodec drops yt-dlp's "none" placeholder for absent streams.
func normalizeCodec(codec string) string {
	if codec == "none" {
		return ""
	}
	return codec
}

// Playlist is the flat listing yt-dlp returns for a playlist URL.
type Playlist struct {
	Type          string          `json:"_type"`
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Uploader      string          `json:"uploader"`
	PlaylistCount int             `json:"playlist_count"`
	WebpageURL    string          `json:"webpage_url"`
	Entries       []PlaylistEntry `json:"entries"`
}

// PlaylistEntry is one video of a flat playlist listing.
type PlaylistEntry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// IsPlaylist reports whether the probed URL actually resolved to a playlist.
func (p *Playlist) IsPlaylist() bool {
	return p.Type == "playlist" || len(p.Entries) > 0
}

// VideoURL resolves the entry to a watchable URL. Flat listings sometimes
// carry bare IDs or relative watch paths instead of full URLs.
// Parameters: none.
// Returns:
//   - string: absolute video URL.
func (e PlaylistEntry) VideoURL() string {
	u := strings.TrimSpace(e.URL)
	if u != "" {
		if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
			return u
		}
		if strings.HasPrefix(u, "watch?") || strings.HasPrefix(u, "/watch?") {
			return "https://www.youtube.com/" + strings.TrimPrefix(u, "/")
		}
	}
	return "https://www.youtube.com/watch?v=" + e.ID
}
