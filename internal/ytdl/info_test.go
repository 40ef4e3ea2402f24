package ytdl

import (
	"encoding/json"
	"testing"
	"time"
)

func TestToMetadata(t *testing.T) {
	duration := 213.8
	views := int64(1234567)
	width, height := 1920, 1080
	fps := 29.97

	info := &VideoInfo{
		ID:          "dQw4w9WgXcQ",
		Title:       "Test Video",
		Description: "A description",
		Duration:    &duration,
		UploadDate:  "20230415",
		ChannelID:   "UCabc123",
		Channel:     "Test Channel",
		Uploader:    "Test Uploader",
		UploaderID:  "@testuploader",
		ViewCount:   &views,
		Width:       &width,
		Height:      &height,
		FPS:         &fps,
		VideoCodec:  "avc1.640028",
		AudioCodec:  "none",
		Tags:        []string{"music", "test"},
		Categories:  []string{"Music", "Entertainment"},
		Thumbnail:   "https://i.ytimg.com/vi/dQw4w9WgXcQ/maxresdefault.jpg",
		WebpageURL:  "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
	}

	meta := info.ToMetadata()

	if meta.VideoID != "dQw4w9WgXcQ" {
		t.Errorf("VideoID = %q, want %q", meta.VideoID, "dQw4w9WgXcQ")
	}
	if meta.DurationSecs == nil || *meta.DurationSecs != 213 {
		t.Errorf("DurationSecs = %v, want 213", meta.DurationSecs)
	}
	wantDate := time.Date(2023, 4, 15, 0, 0, 0, 0, time.UTC)
	if meta.UploadDate == nil || !meta.UploadDate.Equal(wantDate) {
		t.Errorf("UploadDate = %v, want %v", meta.UploadDate, wantDate)
	}
	if meta.ChannelName != "Test Channel" {
		t.Errorf("ChannelName = %q, want %q", meta.ChannelName, "Test Channel")
	}
	if meta.VideoCodec != "avc1.640028" {
		t.Errorf("VideoCodec = %q, want %q", meta.VideoCodec, "avc1.640028")
	}
	if meta.AudioCodec != "" {
		t.Errorf("AudioCodec = %q, want empty for the none placeholder", meta.AudioCodec)
	}
	if meta.Categories != "Music, Entertainment" {
		t.Errorf("Categories = %q, want %q", meta.Categories, "Music, Entertainment")
	}
	if len(meta.Tags) != 2 || meta.Tags[0] != "music" {
		t.Errorf("Tags = %v, want [music test]", meta.Tags)
	}
	if meta.ViewCount == nil || *meta.ViewCount != 1234567 {
		t.Errorf("ViewCount = %v, want 1234567", meta.ViewCount)
	}
}

func TestToMetadataMissingOptionals(t *testing.T) {
	info := &VideoInfo{
		ID:         "dQw4w9WgXcQ",
		Title:      "Sparse Video",
		UploadDate: "not-a-date",
	}

	meta := info.ToMetadata()

	if meta.DurationSecs != nil {
		t.Errorf("DurationSecs = %v, want nil", meta.DurationSecs)
	}
	if meta.UploadDate != nil {
		t.Errorf("UploadDate = %v, want nil for unparseable input", meta.UploadDate)
	}
	if meta.ViewCount != nil {
		t.Errorf("ViewCount = %v, want nil", meta.ViewCount)
	}
}

func TestPlaylistDecoding(t *testing.T) {
	raw := `{
		"_type": "playlist",
		"id": "PLabc123",
		"title": "My Mix",
		"playlist_count": 2,
		"entries": [
			{"id": "aaaaaaaaaaa", "title": "First", "url": "https://www.youtube.com/watch?v=aaaaaaaaaaa"},
			{"id": "bbbbbbbbbbb", "title": "Second", "url": ""}
		]
	}`

	var playlist Playlist
	if err := json.Unmarshal([]byte(raw), &playlist); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if !playlist.IsPlaylist() {
		t.Error("IsPlaylist() = false, want true")
	}
	if playlist.PlaylistCount != 2 {
		t.Errorf("PlaylistCount = %d, want 2", playlist.PlaylistCount)
	}
	if len(playlist.Entries) != 2 {
		t.Fatalf("len(Entries) = %d, want 2", len(playlist.Entries))
	}
	if playlist.Entries[0].Title != "First" {
		t.Errorf("Entries[0].Title = %q, want %q", playlist.Entries[0].Title, "First")
	}
}

func TestIsPlaylistSingleVideo(t *testing.T) {
	var single Playlist
	if err := json.Unmarshal([]byte(`{"_type": "video", "id": "dQw4w9WgXcQ"}`), &single); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if single.IsPlaylist() {
		t.Error("IsPlaylist() = true for a single video, want false")
	}
}

func TestPlaylistEntryVideoURL(t *testing.T) {
	testCases := []struct {
		name  string
		entry PlaylistEntry
		want  string
	}{
		{
			name:  "absolute URL passes through",
			entry: PlaylistEntry{ID: "aaaaaaaaaaa", URL: "https://www.youtube.com/watch?v=aaaaaaaaaaa"},
			want:  "https://www.youtube.com/watch?v=aaaaaaaaaaa",
		},
		{
			name:  "relative watch path",
			entry: PlaylistEntry{ID: "aaaaaaaaaaa", URL: "watch?v=aaaaaaaaaaa"},
			want:  "https://www.youtube.com/watch?v=aaaaaaaaaaa",
		},
		{
			name:  "rooted watch path",
			entry: PlaylistEntry{ID: "aaaaaaaaaaa", URL: "/watch?v=aaaaaaaaaaa"},
			want:  "https://www.youtube.com/watch?v=aaaaaaaaaaa",
		},
		{
			name:  "empty URL built from id",
			entry: PlaylistEntry{ID: "bbbbbbbbbbb"},
			want:  "https://www.youtube.com/watch?v=bbbbbbbbbbb",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.entry.VideoURL(); got != tc.want {
				t.Errorf("VideoURL() = %q, want %q", got, tc.want)
			}
		})
	}
}
