package ytdl

import (
	"testing"

	"github.com/tobk/ytvault/internal/domain"
)

func TestAudioFormatSelector(t *testing.T) {
	testCases := []struct {
		name    string
		quality domain.Quality
		want    string
	}{
		{
			name:    "best",
			quality: domain.QualityBest,
			want:    "bestaudio/best",
		},
		{
			name:    "worst",
			quality: domain.QualityWorst,
			want:    "worstaudio/worst",
		},
		{
			name:    "fixed tier",
			quality: domain.Quality720p,
			want:    "bestaudio[height<=720]/bestaudio/best",
		},
		{
			name:    "lowest fixed tier",
			quality: domain.Quality240p,
			want:    "bestaudio[height<=240]/bestaudio/best",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := AudioFormatSelector(tc.quality); got != tc.want {
				t.Errorf("AudioFormatSelector(%v) = %q, want %q", tc.quality, got, tc.want)
			}
		})
	}
}

func TestVideoFormatSelector(t *testing.T) {
	testCases := []struct {
		name    string
		quality domain.Quality
		want    string
	}{
		{
			name:    "best",
			quality: domain.QualityBest,
			want:    "mp4/bestvideo[ext=mp4]+bestaudio[ext=m4a]/best",
		},
		{
			name:    "worst",
			quality: domain.QualityWorst,
			want:    "worst[ext=mp4]/worst",
		},
		{
			name:    "fixed tier",
			quality: domain.Quality1080p,
			want:    "best[height<=1080][ext=mp4]/best[height<=1080]/best",
		},
		{
			name:    "small fixed tier",
			quality: domain.Quality480p,
			want:    "best[height<=480][ext=mp4]/best[height<=480]/best",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := VideoFormatSelector(tc.quality); got != tc.want {
				t.Errorf("VideoFormatSelector(%v) = %q, want %q", tc.quality, got, tc.want)
			}
		})
	}
}
