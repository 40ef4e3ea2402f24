package ytdl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/tobk/ytvault/internal/domain"
	"github.com/tobk/ytvault/internal/logger"
)

// progressSampleInterval is how often yt-dlp progress callbacks fire.
const progressSampleInterval = 500 * time.Millisecond

// ProgressFunc receives download progress as a 0-100 percentage.
type ProgressFunc func(pct int)

// Client wraps the yt-dlp binary for probing and downloading videos. Every
// download is staged in a per-job scratch directory and promoted into the
// artifact store afterwards.
type Client struct {
	scratchDir string
}

// New creates a Client that stages downloads under scratchDir.
// Parameters:
//   - scratchDir: local working directory; created if missing.
// Returns:
//   - *Client: initialized client.
//   - error: non-nil if the directory cannot be prepared.
func New(scratchDir string) (*Client, error) {
	abs, err := filepath.Abs(scratchDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scratch dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	return &Client{scratchDir: abs}, nil
}

// EnsureInstalled provisions the yt-dlp binary when the host has none.
// Safe to call at every startup.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - error: non-nil if the binary cannot be provisioned.
func EnsureInstalled(ctx context.Context) error {
	if _, err := ytdlp.Install(ctx, nil); err != nil {
		return fmt.Errorf("failed to provision yt-dlp binary: %w", err)
	}
	return nil
}

// Scratch prepares the working directory for one job's downloads. The
// caller removes it when the job finishes.
// Parameters:
//   - jobID: job identifier, used as the directory name.
// Returns:
//   - string: absolute directory path.
//   - error: non-nil if the directory cannot be created.
func (c *Client) Scratch(jobID string) (string, error) {
	dir := filepath.Join(c.scratchDir, jobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create job scratch dir: %w", err)
	}
	return dir, nil
}

// Probe fetches full metadata for a single video without downloading it.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - url: video URL.
// Returns:
//   - *VideoInfo: decoded metadata.
//   - error: wraps domain.ErrMetadataFetch on any failure.
func (c *Client) Probe(ctx context.Context, url string) (*VideoInfo, error) {
	logger.CtxDebug(ctx, "Probing video metadata: %s", url)

	dl := ytdlp.New().
		SkipDownload().
		NoPlaylist().
		DumpSingleJSON()

	result, err := dl.Run(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMetadataFetch, err)
	}

	var info VideoInfo
	if err := json.Unmarshal([]byte(result.Stdout), &info); err != nil {
		return nil, fmt.Errorf("%w: decoding info dump: %v", domain.ErrMetadataFetch, err)
	}
	if info.ID == "" {
		return nil, fmt.Errorf("%w: info dump carries no video id", domain.ErrMetadataFetch)
	}
	return &info, nil
}

// ExpandPlaylist resolves a playlist URL into its flat entry listing
// without downloading anything.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - url: playlist, channel, or video URL.
// Returns:
//   - *Playlist: listing; IsPlaylist() is false for plain video URLs.
//   - error: non-nil if the listing cannot be fetched or decoded.
func (c *Client) ExpandPlaylist(ctx context.Context, url string) (*Playlist, error) {
	logger.CtxDebug(ctx, "Expanding playlist: %s", url)

	dl := ytdlp.New().
		SkipDownload().
		FlatPlaylist().
		DumpSingleJSON()

	result, err := dl.Run(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to expand playlist: %w", err)
	}

	var playlist Playlist
	if err := json.Unmarshal([]byte(result.Stdout), &playlist); err != nil {
		return nil, fmt.Errorf("failed to decode playlist listing: %w", err)
	}
	return &playlist, nil
}

// DownloadAudio downloads the audio track as a 192k mp3 into dir.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - url: video URL.
//   - quality: requested quality tier.
//   - dir: scratch directory the file lands in.
//   - progress: optional callback receiving 0-100 percentages.
// Returns:
//   - string: path of the produced mp3.
//   - error: non-nil if the download or extraction fails.
func (c *Client) DownloadAudio(ctx context.Context, url string, quality domain.Quality, dir string, progress ProgressFunc) (string, error) {
	dl := ytdlp.New().
		ForceOverwrites().
		RestrictFilenames().
		NoPlaylist().
		Format(AudioFormatSelector(quality)).
		ExtractAudio().
		AudioFormat("mp3").
		AudioQuality("192K").
		Output(filepath.Join(dir, "%(id)s.%(ext)s"))

	attachProgress(dl, progress)

	result, err := dl.Run(ctx, url)
	if err != nil {
		return "", fmt.Errorf("audio download failed: %w", err)
	}
	return locateOutput(result, dir, ".mp3")
}

// DownloadVideo downloads the video as an mp4 into dir.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - url: video URL.
//   - quality: requested quality tier.
//   - dir: scratch directory the file lands in.
//   - progress: optional callback receiving 0-100 percentages.
// Returns:
//   - string: path of the produced mp4.
//   - error: non-nil if the download or merge fails.
func (c *Client) DownloadVideo(ctx context.Context, url string, quality domain.Quality, dir string, progress ProgressFunc) (string, error) {
	dl := ytdlp.New().
		ForceOverwrites().
		RestrictFilenames().
		NoPlaylist().
		Format(VideoFormatSelector(quality)).
		MergeOutputFormat("mp4").
		Output(filepath.Join(dir, "%(id)s.%(ext)s"))

	attachProgress(dl, progress)

	result, err := dl.Run(ctx, url)
	if err != nil {
		return "", fmt.Errorf("video download failed: %w", err)
	}
	return locateOutput(result, dir, ".mp4")
}

// attachProgress maps yt-dlp byte counts onto the percentage callback.
func attachProgress(dl *ytdlp.Command, progress ProgressFunc) {
	if progress == nil {
		return
	}
	dl.ProgressFunc(progressSampleInterval, func(update ytdlp.ProgressUpdate) {
		if update.TotalBytes > 0 {
			pct := float64(update.DownloadedBytes) / float64(update.TotalBytes) * 100
			progress(int(pct))
		}
	})
}

// locateOutput finds the file a download produced. The extracted info names
// the file when available; post-processing may have swapped its extension,
// and older yt-dlp builds omit the field entirely, so fall back to scanning
// the scratch directory.
func locateOutput(result *ytdlp.Result, dir, wantExt string) (string, error) {
	if result != nil {
		if infos, err := result.GetExtractedInfo(); err == nil && len(infos) > 0 && infos[0].Filename != nil {
			name := *infos[0].Filename
			if strings.EqualFold(filepath.Ext(name), wantExt) {
				if _, err := os.Stat(name); err == nil {
					return name, nil
				}
			}
			converted := strings.TrimSuffix(name, filepath.Ext(name)) + wantExt
			if _, err := os.Stat(converted); err == nil {
				return converted, nil
			}
		}
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*"+wantExt))
	if err == nil && len(matches) > 0 {
		return matches[0], nil
	}
	return "", fmt.Errorf("no %s file produced in %s", wantExt, dir)
}
