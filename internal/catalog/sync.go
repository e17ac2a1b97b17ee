package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/malgorzata-bondini/offerings-app/internal"
	"github.com/malgorzata-bondini/offerings-app/internal/config"
	"github.com/malgorzata-bondini/offerings-app/internal/storage"
)

const (
	MetaLastSyncAt  = "catalog.lastSyncAt"
	MetaLastSyncN   = "catalog.lastSyncCount"
	MetaLastImport  = "catalog.lastImport"
	SourceFileLocal = "file"
)

type SyncService struct {
	db     *storage.DB
	client *Client
	log    *slog.Logger
}

func NewSyncService(db *storage.DB, cfg config.Config) *SyncService {
	return &SyncService{db: db, client: NewClient(cfg), log: slog.Default().With("component", "catalog")}
}

// Sync pulls every offering name from the platform table into the local
// cache and returns how many were stored.
func (s *SyncService) Sync(ctx context.Context) (int, error) {
	offerings, err := s.client.ListOfferings(ctx)
	if err != nil {
		return 0, err
	}
	n, err := s.db.UpsertExistingOfferings(offerings)
	if err != nil {
		return 0, err
	}
	if err := s.db.SetMetadata(MetaLastSyncAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return 0, err
	}
	if err := s.db.SetMetadata(MetaLastSyncN, strconv.Itoa(n)); err != nil {
		return 0, err
	}
	s.log.Info("catalog synced", "fetched", len(offerings), "stored", n)
	return n, nil
}

// Import caches names read from a local catalog export. The reading is
// left to the caller so any supported file format can be used.
func Import(db *storage.DB, path string, names []string) (int, error) {
	snap := BuildSnapshot(names)
	offerings := make([]internal.ExistingOffering, 0, snap.Len())
	for _, name := range snap.Names {
		offerings = append(offerings, internal.ExistingOffering{Name: name, Source: SourceFileLocal})
	}
	n, err := db.UpsertExistingOfferings(offerings)
	if err != nil {
		return 0, fmt.Errorf("import %s: %w", path, err)
	}
	stamp := fmt.Sprintf("%s %s", time.Now().UTC().Format(time.RFC3339), filepath.Base(path))
	if err := db.SetMetadata(MetaLastImport, stamp); err != nil {
		return 0, err
	}
	return n, nil
}
