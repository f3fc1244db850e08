package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/recordbase/recordbase/internal/backup"
	"github.com/recordbase/recordbase/internal/storage"
	"github.com/recordbase/recordbase/pkg/logger"
	"github.com/recordbase/recordbase/pkg/metrics"
)

// SystemHandler serves the operational endpoints: stats, backup, clear and
// health. Clear is refused outright in production regardless of backend
// capability.
type SystemHandler struct {
	store      storage.Store
	uploader   *backup.Uploader
	resolved   storage.ResolvedConfig
	production bool
}

func NewSystemHandler(store storage.Store, uploader *backup.Uploader, resolved storage.ResolvedConfig, production bool) *SystemHandler {
	return &SystemHandler{store: store, uploader: uploader, resolved: resolved, production: production}
}

func (h *SystemHandler) Register(r gin.IRouter) {
	r.GET("/stats", h.Stats)
	r.GET("/backup", h.Backup)
	r.DELETE("/clear", h.Clear)
	r.GET("/health", h.Health)
}

func (h *SystemHandler) Stats(c *gin.Context) {
	stats, err := h.store.Stats()
	metrics.ObserveStorage("stats", h.store.Type(), err)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "storage operation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": stats, "config": h.resolved})
}

func (h *SystemHandler) Backup(c *gin.Context) {
	b, err := h.store.Backup()
	metrics.ObserveStorage("backup", h.store.Type(), err)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "storage operation failed"})
		return
	}
	resp := gin.H{"success": true, "data": b}
	if key, err := h.uploader.Upload(c.Request.Context(), b); err != nil {
		// the snapshot itself is still good; report the upload failure
		logger.Warnf("backup upload failed: %v", err)
		resp["message"] = "snapshot created, remote upload failed"
	} else if key != "" {
		resp["objectKey"] = key
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SystemHandler) Clear(c *gin.Context) {
	if h.production {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "clear is disabled in production"})
		return
	}
	err := h.store.Clear()
	metrics.ObserveStorage("clear", h.store.Type(), err)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "storage operation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "storage reset to defaults"})
}

func (h *SystemHandler) Health(c *gin.Context) {
	healthy := h.store.HealthCheck()
	stats, err := h.store.Stats()
	if err != nil {
		healthy = false
	}
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "status": "unhealthy", "storage": h.store.Type()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "status": "healthy", "storage": h.store.Type(), "data": stats})
}
