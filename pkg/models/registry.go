package models

import (
	"fmt"
	"sort"
	"sync"

	"github.com/koios/snapshot-processor/pkg/mdi"
)

// LoadIssue describes a camera definition that was skipped or accepted with
// a warning while loading
type LoadIssue struct {
	CameraID string `json:"camera_id"`
	Message  string `json:"message"`
	Skipped  bool   `json:"skipped"`
}

// CameraRegistry holds the normalized configuration of every camera. Each
// lookup returns an immutable snapshot; Reload swaps the whole set.
type CameraRegistry struct {
	mu      sync.RWMutex
	path    string
	cameras map[string]*CameraConfig
}

// NewCameraRegistry creates an empty registry bound to a camera file
func NewCameraRegistry(path string) *CameraRegistry {
	return &CameraRegistry{
		path:    path,
		cameras: make(map[string]*CameraConfig),
	}
}

// Path returns the camera file the registry loads from
func (r *CameraRegistry) Path() string {
	return r.path
}

// Reload re-reads the camera file. Invalid cameras are skipped and reported;
// an unreadable file leaves the current set untouched.
func (r *CameraRegistry) Reload() ([]LoadIssue, error) {
	file, err := LoadCameraFile(r.path)
	if err != nil {
		return nil, err
	}

	cameras, issues := NormalizeAll(file)

	r.mu.Lock()
	r.cameras = cameras
	r.mu.Unlock()

	return issues, nil
}

// NormalizeAll converts every raw camera of file, skipping invalid and
// duplicate definitions
func NormalizeAll(file *CameraFile) (map[string]*CameraConfig, []LoadIssue) {
	cameras := make(map[string]*CameraConfig, len(file.Cameras))
	var issues []LoadIssue

	for i := range file.Cameras {
		raw := &file.Cameras[i]

		cfg, err := raw.Normalize()
		if err != nil {
			issues = append(issues, LoadIssue{CameraID: raw.ID, Message: err.Error(), Skipped: true})
			continue
		}
		if _, dup := cameras[cfg.ID]; dup {
			issues = append(issues, LoadIssue{
				CameraID: cfg.ID,
				Message:  fmt.Sprintf("duplicate camera id %q", cfg.ID),
				Skipped:  true,
			})
			continue
		}

		for _, name := range cfg.MissingIcons() {
			issues = append(issues, LoadIssue{
				CameraID: cfg.ID,
				Message:  fmt.Sprintf("icon %q has no glyph mapping, a fallback glyph will be drawn", name),
			})
		}

		cameras[cfg.ID] = cfg
	}

	return cameras, issues
}

// Get returns a camera by ID
func (r *CameraRegistry) Get(id string) (*CameraConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, exists := r.cameras[id]
	return cfg, exists
}

// List returns every camera sorted by ID
func (r *CameraRegistry) List() []*CameraConfig {
	r.mu.RLock()
	cameras := make([]*CameraConfig, 0, len(r.cameras))
	for _, cfg := range r.cameras {
		cameras = append(cameras, cfg)
	}
	r.mu.RUnlock()

	sort.Slice(cameras, func(i, j int) bool { return cameras[i].ID < cameras[j].ID })
	return cameras
}

// Len returns the number of loaded cameras
func (r *CameraRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cameras)
}

// Set replaces a single camera
func (r *CameraRegistry) Set(cfg *CameraConfig) {
	r.mu.Lock()
	r.cameras[cfg.ID] = cfg
	r.mu.Unlock()
}

// MissingIcons lists mdi: icon names used by state rules that have neither a
// pre-resolved codepoint nor a built-in mapping
func (c *CameraConfig) MissingIcons() []string {
	var missing []string
	for _, o := range c.Overlays {
		icon, ok := o.(*StateIconOverlay)
		if !ok {
			continue
		}
		for _, rule := range icon.Rules {
			look := rule.Appearance
			if look.IconCodepoint != "" || !mdi.IsIcon(look.Icon) {
				continue
			}
			if _, found := mdi.Glyph(look.Icon); !found {
				missing = append(missing, look.Icon)
			}
		}
	}
	return missing
}
