package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/koios/snapshot-processor/pkg/models"
	"github.com/mitchellh/hashstructure/v2"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultFrameTTL bounds how long a last good frame may be served
const DefaultFrameTTL = 10 * time.Minute

// FrameStore keeps the last successfully processed frame per camera
// configuration. A changed configuration never sees frames rendered for the
// previous one.
type FrameStore interface {
	Save(ctx context.Context, cfg *models.CameraConfig, data []byte) error
	Load(ctx context.Context, cfg *models.CameraConfig) (*StoredFrame, bool, error)
	Flush(ctx context.Context, cameraID string) error
}

// StoredFrame is a processed frame with its render metadata
type StoredFrame struct {
	CameraID    string    `msgpack:"camera_id"`
	Fingerprint uint64    `msgpack:"fingerprint"`
	Data        []byte    `msgpack:"data"`
	RenderedAt  time.Time `msgpack:"rendered_at"`
}

// Fingerprint hashes the rendering-relevant configuration of a camera
func Fingerprint(cfg *models.CameraConfig) (uint64, error) {
	h, err := hashstructure.Hash(cfg, hashstructure.FormatV2, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to fingerprint camera %s: %w", cfg.ID, err)
	}
	return h, nil
}

// RedisFrameStore implements FrameStore using Redis
type RedisFrameStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisFrameStore creates a frame store on an existing client
func NewRedisFrameStore(client *redis.Client, ttl time.Duration) *RedisFrameStore {
	if ttl <= 0 {
		ttl = DefaultFrameTTL
	}
	return &RedisFrameStore{client: client, ttl: ttl}
}

// buildKey creates the frame key for a camera and configuration fingerprint
func buildKey(cameraID string, fingerprint uint64) string {
	return fmt.Sprintf("snapshot:frame/%s/%016x", cameraID, fingerprint)
}

// Save stores data as the last good frame for cfg
func (s *RedisFrameStore) Save(ctx context.Context, cfg *models.CameraConfig, data []byte) error {
	fp, err := Fingerprint(cfg)
	if err != nil {
		return err
	}

	body, err := msgpack.Marshal(&StoredFrame{
		CameraID:    cfg.ID,
		Fingerprint: fp,
		Data:        data,
		RenderedAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode frame for camera %s: %w", cfg.ID, err)
	}

	key := buildKey(cfg.ID, fp)
	if err := s.client.Set(ctx, key, body, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s in Redis: %w", key, err)
	}
	return nil
}

// Load returns the last good frame for cfg, if any
func (s *RedisFrameStore) Load(ctx context.Context, cfg *models.CameraConfig) (*StoredFrame, bool, error) {
	fp, err := Fingerprint(cfg)
	if err != nil {
		return nil, false, err
	}

	key := buildKey(cfg.ID, fp)
	body, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get key %s from Redis: %w", key, err)
	}

	var frame StoredFrame
	if err := msgpack.Unmarshal(body, &frame); err != nil {
		return nil, false, fmt.Errorf("failed to decode frame %s: %w", key, err)
	}
	return &frame, true, nil
}

// Flush removes every stored frame of cameraID
func (s *RedisFrameStore) Flush(ctx context.Context, cameraID string) error {
	pattern := fmt.Sprintf("snapshot:frame/%s/*", cameraID)

	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan for keys with pattern %s: %w", pattern, err)
	}

	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to delete keys: %w", err)
		}
	}
	return nil
}

// MemoryFrameStore is an in-process FrameStore used when Redis is not
// configured
type MemoryFrameStore struct {
	mu     sync.RWMutex
	frames map[string]*StoredFrame
}

// NewMemoryFrameStore creates an empty in-process frame store
func NewMemoryFrameStore() *MemoryFrameStore {
	return &MemoryFrameStore{frames: make(map[string]*StoredFrame)}
}

// Save stores data as the last good frame for cfg
func (m *MemoryFrameStore) Save(_ context.Context, cfg *models.CameraConfig, data []byte) error {
	fp, err := Fingerprint(cfg)
	if err != nil {
		return err
	}

	frame := &StoredFrame{
		CameraID:    cfg.ID,
		Fingerprint: fp,
		Data:        append([]byte(nil), data...),
		RenderedAt:  time.Now().UTC(),
	}

	m.mu.Lock()
	m.frames[cfg.ID] = frame
	m.mu.Unlock()
	return nil
}

// Load returns the last good frame for cfg, if any
func (m *MemoryFrameStore) Load(_ context.Context, cfg *models.CameraConfig) (*StoredFrame, bool, error) {
	fp, err := Fingerprint(cfg)
	if err != nil {
		return nil, false, err
	}

	m.mu.RLock()
	frame, ok := m.frames[cfg.ID]
	m.mu.RUnlock()

	if !ok || frame.Fingerprint != fp {
		return nil, false, nil
	}
	return frame, true, nil
}

// Flush removes the stored frame of cameraID
func (m *MemoryFrameStore) Flush(_ context.Context, cameraID string) error {
	m.mu.Lock()
	delete(m.frames, cameraID)
	m.mu.Unlock()
	return nil
}
