package storage

import (
	"context"
	"io"
)

// Config selects and parameterizes the artifact store backend.
type Config struct {
	Backend   string // "local" or "s3"
	LocalRoot string
	S3        S3Config
}

// ArtifactStat describes an artifact after promotion into the store.
type ArtifactStat struct {
	Size   int64
	SHA256 string
}

// ArtifactStore defines the interface for artifact persistence. Keys are
// relative, forward-slash paths under a per-user namespace, for example
// "alice/550e8400-e29b/video.mp3".
type ArtifactStore interface {
	// Promote moves a finished local file into the store under key and
	// reports its size and SHA-256 checksum. The local file is consumed.
	Promote(ctx context.Context, key, localPath string) (*ArtifactStat, error)

	// Download streams a stored artifact
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Stat returns the stored size of an artifact
	Stat(ctx context.Context, key string) (int64, error)

	// Exists checks if an artifact exists
	Exists(ctx context.Context, key string) (bool, error)

	// Delete deletes a single artifact
	Delete(ctx context.Context, key string) error

	// DeletePrefix deletes every artifact under a key prefix, such as a
	// finished job's directory
	DeletePrefix(ctx context.Context, prefix string) error
}
