package storage

import "fmt"

// NewStore creates an ArtifactStore instance based on the configuration.
// Parameters:
//   - cfg: storage configuration selecting the backend and its settings.
// Returns:
//   - ArtifactStore: initialized store implementation.
//   - error: non-nil if the store cannot be created.
func NewStore(cfg *Config) (ArtifactStore, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStorage(cfg.LocalRoot)
	case "s3":
		return NewS3Storage(&cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
