package snapshot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koios/snapshot-processor/internal/source"
	"github.com/koios/snapshot-processor/pkg/models"
	"go.uber.org/zap"
)

// DefaultGraceWindow is how long a finished render stays shared
const DefaultGraceWindow = 20 * time.Millisecond

// FetchFunc returns the raw encoded source frame
type FetchFunc func(ctx context.Context) ([]byte, error)

// RenderedFunc receives the output of every successful render together with
// the configuration that produced it
type RenderedFunc func(ctx context.Context, cfg *models.CameraConfig, data []byte)

// Pipeline processes one raw frame into encoded output
type Pipeline interface {
	Process(ctx context.Context, raw []byte, cfg *models.CameraConfig) ([]byte, error)
}

// call is the shared result of one in-flight render
type call struct {
	done    chan struct{}
	data    []byte
	err     error
	waiters atomic.Int64
}

// Stats counts the work done for one camera
type Stats struct {
	Renders      int64 `json:"renders"`
	Deduplicated int64 `json:"deduplicated"`
}

type counters struct {
	renders      atomic.Int64
	deduplicated atomic.Int64
}

// Coordinator collapses concurrent renders of the same camera into one
// pipeline run. Callers arriving while a render is running, or within the
// grace window after it finished, receive that render's result.
type Coordinator struct {
	pipeline   Pipeline
	grace      time.Duration
	timeout    time.Duration
	logger     *zap.Logger
	onRendered RenderedFunc

	mu       sync.RWMutex
	inflight map[string]*call
	stats    map[string]*counters
}

// NewCoordinator creates a coordinator. A zero timeout disables the
// per-render deadline.
func NewCoordinator(pipeline Pipeline, grace, timeout time.Duration, logger *zap.Logger) *Coordinator {
	if grace < 0 {
		grace = 0
	}

	return &Coordinator{
		pipeline: pipeline,
		grace:    grace,
		timeout:  timeout,
		logger:   logger,
		inflight: make(map[string]*call),
		stats:    make(map[string]*counters),
	}
}

// OnRendered registers fn to run once per successful render, after its
// waiters have been released. It must be called before the first Render.
func (c *Coordinator) OnRendered(fn RenderedFunc) {
	c.onRendered = fn
}

// Render returns the processed frame for cameraID, starting a render only
// when none is in flight or in its grace window. cfg is the configuration
// used if this call starts the render. Cancelling ctx abandons the wait
// but never the shared render.
func (c *Coordinator) Render(ctx context.Context, cameraID string, fetch FetchFunc, cfg *models.CameraConfig) ([]byte, error) {
	c.mu.RLock()
	cl, joined := c.inflight[cameraID]
	c.mu.RUnlock()

	if !joined {
		c.mu.Lock()
		// Another caller may have started a render between the two locks.
		cl, joined = c.inflight[cameraID]
		if !joined {
			cl = &call{done: make(chan struct{})}
			c.inflight[cameraID] = cl
			c.countersLocked(cameraID).renders.Add(1)
		}
		c.mu.Unlock()

		if !joined {
			go c.run(context.WithoutCancel(ctx), cameraID, cl, fetch, cfg)
		}
	}

	if joined {
		cl.waiters.Add(1)
		c.mu.RLock()
		c.stats[cameraID].deduplicated.Add(1)
		c.mu.RUnlock()
	}

	select {
	case <-cl.done:
		return cl.data, cl.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stats returns the render counters for cameraID
func (c *Coordinator) Stats(cameraID string) Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.stats[cameraID]
	if !ok {
		return Stats{}
	}
	return Stats{Renders: s.renders.Load(), Deduplicated: s.deduplicated.Load()}
}

// InFlight reports whether cameraID has a render running or in its grace window
func (c *Coordinator) InFlight(cameraID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.inflight[cameraID]
	return ok
}

func (c *Coordinator) countersLocked(cameraID string) *counters {
	s, ok := c.stats[cameraID]
	if !ok {
		s = &counters{}
		c.stats[cameraID] = s
	}
	return s
}

func (c *Coordinator) run(ctx context.Context, cameraID string, cl *call, fetch FetchFunc, cfg *models.CameraConfig) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.render(ctx, cameraID, cl, fetch, cfg)

	close(cl.done)
	time.AfterFunc(c.grace, func() { c.release(cameraID, cl) })

	if cl.err == nil && c.onRendered != nil {
		c.onRendered(ctx, cfg, cl.data)
	}
}

func (c *Coordinator) render(ctx context.Context, cameraID string, cl *call, fetch FetchFunc, cfg *models.CameraConfig) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			cl.data = nil
			cl.err = &RenderError{CameraID: cameraID, Stage: StagePanic, Err: fmt.Errorf("%v", r)}
			c.logger.Error("Render panicked",
				zap.String("camera_id", cameraID),
				zap.Any("panic", r))
		}
	}()

	cl.data, cl.err = c.execute(ctx, cameraID, fetch, cfg)

	if cl.err != nil {
		c.logger.Error("Render failed",
			zap.String("camera_id", cameraID),
			zap.Duration("duration", time.Since(start)),
			zap.Error(cl.err))
		return
	}

	c.logger.Debug("Render completed",
		zap.String("camera_id", cameraID),
		zap.Duration("duration", time.Since(start)))
}

func (c *Coordinator) execute(ctx context.Context, cameraID string, fetch FetchFunc, cfg *models.CameraConfig) ([]byte, error) {
	raw, err := fetch(ctx)
	if err != nil {
		return nil, &RenderError{CameraID: cameraID, Stage: StageFetch, Err: err}
	}
	if len(raw) == 0 {
		return nil, &RenderError{CameraID: cameraID, Stage: StageFetch, Err: source.ErrUnavailable}
	}

	return c.pipeline.Process(ctx, raw, cfg)
}

// release returns cameraID to idle once the grace window has passed
func (c *Coordinator) release(cameraID string, cl *call) {
	c.mu.Lock()
	if c.inflight[cameraID] == cl {
		delete(c.inflight, cameraID)
	}
	c.mu.Unlock()

	if n := cl.waiters.Load(); n > 0 {
		c.logger.Debug("Render served concurrent requests",
			zap.String("camera_id", cameraID),
			zap.Int64("requests", n+1))
	}
}
