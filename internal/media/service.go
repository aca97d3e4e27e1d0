package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/emporia/console/internal/shared"
)

const linkExpiry = 15 * time.Minute

// RepositoryPort defines metadata persistence.
type RepositoryPort interface {
	List(ctx context.Context, f ListFilter) ([]Asset, int, error)
	Get(ctx context.Context, id int64) (Asset, error)
	Create(ctx context.Context, a Asset) (Asset, error)
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

var _ RepositoryPort = (*Repository)(nil)

// Upload is one incoming file.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Service coordinates object storage and metadata.
type Service struct {
	repo   RepositoryPort
	store  ObjectStore
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewService constructs a media service.
func NewService(repo RepositoryPort, store ObjectStore, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, store: store, audit: audit, logger: logger}
}

// List returns a page of assets with short-lived download links.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Asset, int, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	assets, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	for i := range assets {
		s.attachURL(ctx, &assets[i])
	}
	return assets, total, nil
}

// Get returns one asset with a download link.
func (s *Service) Get(ctx context.Context, id int64) (Asset, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return Asset{}, err
	}
	s.attachURL(ctx, &a)
	return a, nil
}

// Count returns the library size.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Upload stores the object under a random key and records it. The object is
// removed again when the metadata insert fails.
func (s *Service) Upload(ctx context.Context, actorID int64, up Upload) (Asset, error) {
	if up.Size <= 0 {
		return Asset{}, ErrEmpty
	}
	ext, ok := Extension(up.ContentType)
	if !ok {
		return Asset{}, fmt.Errorf("%w: %q", ErrUnsupportedType, up.ContentType)
	}
	key := "assets/" + uuid.NewString() + ext
	if err := s.store.Put(ctx, key, up.Body, up.Size, up.ContentType); err != nil {
		return Asset{}, err
	}

	asset, err := s.repo.Create(ctx, Asset{
		ObjectKey:   key,
		FileName:    cleanName(up.FileName, ext),
		ContentType: up.ContentType,
		SizeBytes:   up.Size,
		UploadedBy:  actorID,
	})
	if err != nil {
		if rmErr := s.store.Remove(ctx, key); rmErr != nil {
			s.logger.Warn("remove orphaned object", slog.String("key", key), slog.Any("error", rmErr))
		}
		return Asset{}, err
	}
	s.record(ctx, actorID, "media.upload", asset.ID, map[string]any{"file_name": asset.FileName, "size_bytes": asset.SizeBytes})
	s.attachURL(ctx, &asset)
	return asset, nil
}

// Delete removes the object and then its metadata.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	asset, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Remove(ctx, asset.ObjectKey); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "media.delete", id, map[string]any{"file_name": asset.FileName})
	return nil
}

func (s *Service) attachURL(ctx context.Context, a *Asset) {
	u, err := s.store.URL(ctx, a.ObjectKey, linkExpiry)
	if err != nil {
		s.logger.Warn("presign media link", slog.Int64("asset_id", a.ID), slog.Any("error", err))
		return
	}
	a.URL = u
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "media", EntityID: strconv.FormatInt(id, 10), Meta: meta})
	if err != nil {
		s.logger.Warn("audit media change", slog.String("action", action), slog.Any("error", err))
	}
}

// cleanName strips directories from a client supplied name.
func cleanName(name, ext string) string {
	name = strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		return "upload" + ext
	}
	if len(name) > 255 {
		name = name[len(name)-255:]
	}
	return name
}
