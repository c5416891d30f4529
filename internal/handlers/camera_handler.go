package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/koios/snapshot-processor/internal/snapshot"
	"github.com/koios/snapshot-processor/internal/source"
	"github.com/koios/snapshot-processor/pkg/models"
	"go.uber.org/zap"
)

const maxValidateBody = 1 << 20

// CameraSummary is the public view of one configured camera
type CameraSummary struct {
	ID           string `json:"id"`
	EntityName   string `json:"entity_name"`
	Source       string `json:"source"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	KeepRatio    bool   `json:"keep_ratio"`
	Cropped      bool   `json:"cropped"`
	Quality      int    `json:"quality"`
	Filter       string `json:"resize_algorithm"`
	Overlays     int    `json:"overlays"`
	Renders      int64  `json:"renders"`
	Deduplicated int64  `json:"deduplicated"`
}

// CameraHandler handles HTTP requests for processed cameras
type CameraHandler struct {
	service *snapshot.Service
	limiter *ClientLimiter
	logger  *zap.Logger
}

// NewCameraHandler creates a new camera handler. limiter may be nil.
func NewCameraHandler(service *snapshot.Service, limiter *ClientLimiter, logger *zap.Logger) *CameraHandler {
	return &CameraHandler{
		service: service,
		limiter: limiter,
		logger:  logger,
	}
}

// RegisterRoutes registers the camera routes
func (h *CameraHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/cameras", h.handleCameras)
	mux.HandleFunc("/cameras/refresh", h.handleCamerasRefresh)
	mux.HandleFunc("/cameras/validate", h.handleCamerasValidate)
	mux.HandleFunc("/cameras/", h.handleCameraDetails)
}

// handleHealth handles GET /health - returns service health status
func (h *CameraHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "snapshot-processor",
		"cameras": h.service.Registry().Len(),
	})
}

// handleCameras handles GET /cameras - returns list of all cameras
func (h *CameraHandler) handleCameras(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cameras := h.service.Registry().List()
	summaries := make([]CameraSummary, 0, len(cameras))
	for _, cfg := range cameras {
		summaries = append(summaries, h.summarize(cfg))
	}

	if err := writeJSON(w, http.StatusOK, summaries); err != nil {
		h.logger.Error("Failed to encode cameras response", zap.Error(err))
		return
	}

	h.logger.Debug("Served cameras list", zap.Int("count", len(summaries)))
}

// handleCamerasRefresh handles POST /cameras/refresh - reloads the camera file
func (h *CameraHandler) handleCamerasRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	registry := h.service.Registry()
	h.logger.Info("Refreshing camera registry...", zap.String("path", registry.Path()))

	issues, err := h.service.Reload(r.Context())
	if err != nil {
		h.logger.Error("Failed to refresh camera registry", zap.Error(err))
		http.Error(w, "Failed to refresh cameras", http.StatusInternalServerError)
		return
	}
	LogIssues(h.logger, issues)

	response := map[string]interface{}{
		"status":       "success",
		"message":      "Camera registry refreshed successfully",
		"camera_count": registry.Len(),
		"issues":       issues,
	}
	if err := writeJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode refresh response", zap.Error(err))
		return
	}

	h.logger.Info("Camera registry refreshed successfully", zap.Int("camera_count", registry.Len()))
}

// handleCamerasValidate handles POST /cameras/validate - checks a camera
// document without loading it
func (h *CameraHandler) handleCamerasValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxValidateBody))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	response := ValidateCameraDocument(body)
	if err := writeJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode validate response", zap.Error(err))
		return
	}

	h.logger.Debug("Validated camera document",
		zap.Bool("valid", response.Valid),
		zap.Int("error_count", len(response.Errors)))
}

// handleCameraDetails handles:
// - GET /cameras/{id} - returns camera summary or 404
// - GET /cameras/{id}/snapshot - returns the processed frame
// - GET /cameras/{id}/stats - returns render counters
func (h *CameraHandler) handleCameraDetails(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/cameras/")
	pathParts := strings.Split(path, "/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		http.Error(w, "Camera ID required", http.StatusBadRequest)
		return
	}

	cameraID := pathParts[0]
	cfg, exists := h.service.Registry().Get(cameraID)
	if !exists {
		http.Error(w, "Camera not found", http.StatusNotFound)
		return
	}

	if len(pathParts) == 1 {
		if err := writeJSON(w, http.StatusOK, h.summarize(cfg)); err != nil {
			h.logger.Error("Failed to encode camera response", zap.Error(err))
		}
		return
	}

	if len(pathParts) > 2 {
		http.Error(w, "Endpoint not found", http.StatusNotFound)
		return
	}

	switch pathParts[1] {
	case "snapshot":
		h.handleSnapshot(w, r, cameraID)
	case "stats":
		if err := writeJSON(w, http.StatusOK, h.service.Coordinator().Stats(cameraID)); err != nil {
			h.logger.Error("Failed to encode stats response", zap.Error(err))
		}
	default:
		http.Error(w, "Endpoint not found", http.StatusNotFound)
	}
}

// handleSnapshot serves the processed frame, or the documented fallback
func (h *CameraHandler) handleSnapshot(w http.ResponseWriter, r *http.Request, cameraID string) {
	if !h.limiter.Allow(r) {
		w.Header().Set("Retry-After", "1")
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	frame, err := h.service.Snapshot(r.Context(), cameraID)
	if err != nil {
		switch {
		case errors.Is(err, snapshot.ErrCameraNotFound):
			http.Error(w, "Camera not found", http.StatusNotFound)
		case errors.Is(err, source.ErrUnavailable):
			http.Error(w, "Camera source unavailable", http.StatusBadGateway)
		case r.Context().Err() != nil:
			// client went away; nothing useful can be written
		default:
			http.Error(w, "Failed to render snapshot", http.StatusBadGateway)
		}
		return
	}

	w.Header().Set("Content-Type", frame.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(frame.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Snapshot-Status", string(frame.Status))
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(frame.Data); err != nil {
		h.logger.Debug("Failed to write snapshot", zap.String("camera_id", cameraID), zap.Error(err))
		return
	}

	h.logger.Debug("Served snapshot",
		zap.String("camera_id", cameraID),
		zap.String("status", string(frame.Status)),
		zap.String("size", humanize.Bytes(uint64(len(frame.Data)))))
}

func (h *CameraHandler) summarize(cfg *models.CameraConfig) CameraSummary {
	stats := h.service.Coordinator().Stats(cfg.ID)
	return CameraSummary{
		ID:           cfg.ID,
		EntityName:   cfg.EntityName,
		Source:       source.SanitizeURL(cfg.Source),
		Width:        cfg.Width,
		Height:       cfg.Height,
		KeepRatio:    cfg.KeepRatio,
		Cropped:      cfg.Crop != nil,
		Quality:      cfg.Quality,
		Filter:       string(cfg.Filter),
		Overlays:     len(cfg.Overlays),
		Renders:      stats.Renders,
		Deduplicated: stats.Deduplicated,
	}
}

// LogIssues reports camera definitions skipped or flagged while loading
func LogIssues(logger *zap.Logger, issues []models.LoadIssue) {
	for _, issue := range issues {
		if issue.Skipped {
			logger.Error("Skipped invalid camera",
				zap.String("camera_id", issue.CameraID),
				zap.String("reason", issue.Message))
			continue
		}
		logger.Warn("Camera configuration warning",
			zap.String("camera_id", issue.CameraID),
			zap.String("reason", issue.Message))
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
