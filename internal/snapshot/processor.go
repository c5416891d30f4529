package snapshot

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/koios/snapshot-processor/internal/imaging"
	"github.com/koios/snapshot-processor/internal/overlay"
	"github.com/koios/snapshot-processor/pkg/models"
	"go.uber.org/zap"
)

// Processor runs the transform, overlay and encode stages for one frame
type Processor struct {
	pool       *WorkerPool
	compositor *overlay.Compositor
	logger     *zap.Logger
}

// NewProcessor creates a processor that offloads pixel work to pool
func NewProcessor(pool *WorkerPool, compositor *overlay.Compositor, logger *zap.Logger) *Processor {
	return &Processor{
		pool:       pool,
		compositor: compositor,
		logger:     logger,
	}
}

// Process turns raw source bytes into an encoded frame. Failures, panics
// included, are returned as *RenderError carrying raw.
func (p *Processor) Process(ctx context.Context, raw []byte, cfg *models.CameraConfig) (out []byte, err error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &RenderError{CameraID: cfg.ID, Stage: StagePanic, Raw: raw, Err: fmt.Errorf("%v", r)}
		}
	}()

	var canvas *image.RGBA
	err = p.pool.Submit(ctx, StageTransform, func() error {
		var err error
		canvas, err = imaging.Transform(raw, transformOptions(cfg))
		return err
	})
	if err != nil {
		return nil, &RenderError{CameraID: cfg.ID, Stage: StageTransform, Raw: raw, Err: err}
	}

	// State lookups and templates may block on I/O, so they stay off the pool.
	blocks := p.compositor.Plan(ctx, cfg)

	err = p.pool.Submit(ctx, StageCompose, func() error {
		p.compositor.Draw(canvas, blocks)

		var err error
		out, err = imaging.EncodeJPEG(canvas, cfg.Quality)
		return err
	})
	if err != nil {
		stage := StageCompose
		if errors.Is(err, imaging.ErrEncode) {
			stage = StageEncode
		}
		return nil, &RenderError{CameraID: cfg.ID, Stage: stage, Raw: raw, Err: err}
	}

	p.logger.Debug("Processed frame",
		zap.String("camera_id", cfg.ID),
		zap.String("input_size", humanize.Bytes(uint64(len(raw)))),
		zap.String("output_size", humanize.Bytes(uint64(len(out)))),
		zap.Int("overlays", len(blocks)),
		zap.Duration("duration", time.Since(start)))

	return out, nil
}

// transformOptions maps the geometric part of cfg onto the transform stage
func transformOptions(cfg *models.CameraConfig) imaging.TransformOptions {
	opts := imaging.TransformOptions{
		Width:     cfg.Width,
		Height:    cfg.Height,
		KeepRatio: cfg.KeepRatio,
		Fast:      cfg.Filter == models.FilterBilinear,
	}
	if cfg.Crop != nil {
		opts.Crop = &imaging.Crop{X: cfg.Crop.X, Y: cfg.Crop.Y, Width: cfg.Crop.Width, Height: cfg.Crop.Height}
	}
	return opts
}
