package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/koios/snapshot-processor/internal/imaging"
	"github.com/koios/snapshot-processor/internal/source"
	"github.com/koios/snapshot-processor/pkg/models"
	"go.uber.org/zap"
)

// FrameStatus tells the caller what kind of frame it received
type FrameStatus string

const (
	// FrameProcessed is a freshly processed frame
	FrameProcessed FrameStatus = "processed"
	// FrameRaw is the unmodified source frame, served after a pipeline failure
	FrameRaw FrameStatus = "raw"
	// FrameLastGood is the previous processed frame, served while the source
	// is unavailable
	FrameLastGood FrameStatus = "last_good"
)

// Fetcher loads raw frames by source identifier
type Fetcher interface {
	Fetch(ctx context.Context, src string) ([]byte, error)
}

// Frame is what the outermost boundary serves
type Frame struct {
	Data        []byte
	ContentType string
	Status      FrameStatus
	RenderedAt  time.Time
}

// Service is the outer boundary around the coordinator. It applies the
// fallback policy: a failed pipeline yields the raw source bytes, a missing
// source yields the last good frame when one is stored.
type Service struct {
	registry    *models.CameraRegistry
	coordinator *Coordinator
	fetcher     Fetcher
	frames      FrameStore
	logger      *zap.Logger
}

// NewService creates a service. frames may be nil. Successful renders of
// coordinator are stored in frames.
func NewService(registry *models.CameraRegistry, coordinator *Coordinator, fetcher Fetcher, frames FrameStore, logger *zap.Logger) *Service {
	s := &Service{
		registry:    registry,
		coordinator: coordinator,
		fetcher:     fetcher,
		frames:      frames,
		logger:      logger,
	}
	if frames != nil {
		coordinator.OnRendered(s.remember)
	}
	return s
}

// Registry returns the camera registry the service reads from
func (s *Service) Registry() *models.CameraRegistry {
	return s.registry
}

// Coordinator returns the render coordinator
func (s *Service) Coordinator() *Coordinator {
	return s.coordinator
}

// Reload re-reads the camera file and drops the stored frames of cameras
// that no longer exist
func (s *Service) Reload(ctx context.Context) ([]models.LoadIssue, error) {
	before := s.registry.List()

	issues, err := s.registry.Reload()
	if err != nil {
		return nil, err
	}

	if s.frames == nil {
		return issues, nil
	}
	for _, cfg := range before {
		if _, ok := s.registry.Get(cfg.ID); ok {
			continue
		}
		if err := s.frames.Flush(ctx, cfg.ID); err != nil {
			s.logger.Warn("Failed to drop stored frames of removed camera",
				zap.String("camera_id", cfg.ID),
				zap.Error(err))
		}
	}
	return issues, nil
}

// Snapshot returns the current processed frame for cameraID
func (s *Service) Snapshot(ctx context.Context, cameraID string) (*Frame, error) {
	cfg, ok := s.registry.Get(cameraID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCameraNotFound, cameraID)
	}

	logger := s.logger.With(
		zap.String("render_id", uuid.NewString()),
		zap.String("camera_id", cameraID),
		zap.String("source", source.SanitizeURL(cfg.Source)))

	fetch := func(ctx context.Context) ([]byte, error) {
		return s.fetcher.Fetch(ctx, cfg.Source)
	}

	data, err := s.coordinator.Render(ctx, cameraID, fetch, cfg)
	if err == nil {
		frame := &Frame{
			Data:        data,
			ContentType: imaging.ContentType,
			Status:      FrameProcessed,
			RenderedAt:  time.Now().UTC(),
		}
		return frame, nil
	}

	var renderErr *RenderError
	if errors.As(err, &renderErr) && len(renderErr.Raw) > 0 {
		logger.Warn("Processing failed, serving unmodified source frame",
			zap.String("stage", renderErr.Stage),
			zap.Error(renderErr.Err))
		return &Frame{
			Data:        renderErr.Raw,
			ContentType: mimetype.Detect(renderErr.Raw).String(),
			Status:      FrameRaw,
			RenderedAt:  time.Now().UTC(),
		}, nil
	}

	if ctx.Err() != nil {
		return nil, err
	}

	if frame, ok := s.lastGood(ctx, logger, cfg); ok {
		logger.Warn("Source unavailable, serving last good frame",
			zap.Time("rendered_at", frame.RenderedAt),
			zap.Error(err))
		return frame, nil
	}

	logger.Error("No frame available", zap.Error(err))
	return nil, err
}

func (s *Service) remember(ctx context.Context, cfg *models.CameraConfig, data []byte) {
	if err := s.frames.Save(ctx, cfg, data); err != nil {
		s.logger.Warn("Failed to store last good frame",
			zap.String("camera_id", cfg.ID),
			zap.Error(err))
	}
}

func (s *Service) lastGood(ctx context.Context, logger *zap.Logger, cfg *models.CameraConfig) (*Frame, bool) {
	if s.frames == nil {
		return nil, false
	}

	stored, ok, err := s.frames.Load(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to load last good frame", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	return &Frame{
		Data:        stored.Data,
		ContentType: imaging.ContentType,
		Status:      FrameLastGood,
		RenderedAt:  stored.RenderedAt,
	}, true
}
