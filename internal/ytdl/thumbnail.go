package ytdl

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/go-resty/resty/v2"
	_ "golang.org/x/image/webp"
)

// ThumbnailFetcher downloads video thumbnail images.
type ThumbnailFetcher struct {
	client *resty.Client
}

// NewThumbnailFetcher creates a fetcher with the given HTTP timeout.
func NewThumbnailFetcher(timeout time.Duration) *ThumbnailFetcher {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("User-Agent", browserUserAgent)

	return &ThumbnailFetcher{client: client}
}

// Fetch downloads a thumbnail, verifying the payload decodes as an image.
// When url is empty the standard thumbnail locations for the video are
// tried instead, highest resolution first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - url: thumbnail URL from the video metadata, may be empty.
//   - videoID: video identifier for the fallback locations.
// Returns:
//   - []byte: image bytes.
//   - string: file extension matching the decoded format, like ".jpg".
//   - error: non-nil if no candidate yields a decodable image.
func (f *ThumbnailFetcher) Fetch(ctx context.Context, url, videoID string) ([]byte, string, error) {
	var candidates []string
	if url != "" {
		candidates = append(candidates, url)
	}
	if videoID != "" {
		candidates = append(candidates,
			"https://img.youtube.com/vi/"+videoID+"/maxresdefault.jpg",
			"https://img.youtube.com/vi/"+videoID+"/hqdefault.jpg",
		)
	}
	if len(candidates) == 0 {
		return nil, "", fmt.Errorf("no thumbnail source available")
	}

	var lastErr error
	for _, candidate := range candidates {
		data, ext, err := f.download(ctx, candidate)
		if err == nil {
			return data, ext, nil
		}
		lastErr = err
	}
	return nil, "", lastErr
}

func (f *ThumbnailFetcher) download(ctx context.Context, url string) ([]byte, string, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch thumbnail: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, "", fmt.Errorf("thumbnail returned status %d", resp.StatusCode())
	}

	data := resp.Body()
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("thumbnail is not a decodable image: %w", err)
	}
	return data, extForFormat(format), nil
}

func extForFormat(format string) string {
	switch format {
	case "png":
		return ".png"
	case "webp":
		return ".webp"
	case "gif":
		return ".gif"
	default:
		return ".jpg"
	}
}
