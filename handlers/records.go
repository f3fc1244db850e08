// Package handlers translates HTTP verbs and paths into storage contract
// calls and maps results onto the response envelope.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/recordbase/recordbase/internal/record"
	"github.com/recordbase/recordbase/internal/storage"
	"github.com/recordbase/recordbase/pkg/metrics"
)

// RecordsHandler serves the collection CRUD surface over one storage
// backend. Every response uses the {success, data?, error?, message?}
// envelope; storage errors never escape unformatted.
type RecordsHandler struct {
	store storage.Store
}

func NewRecordsHandler(store storage.Store) *RecordsHandler {
	return &RecordsHandler{store: store}
}

// Register mounts the CRUD routes under the given group.
func (h *RecordsHandler) Register(r gin.IRouter) {
	r.GET("/:collection", h.ListRecords)
	r.POST("/:collection", h.CreateRecord)
	r.GET("/:collection/:id", h.GetRecord)
	r.PUT("/:collection/:id", h.UpdateRecord)
	r.DELETE("/:collection/:id", h.DeleteRecord)
}

// collectionParam validates the :collection path segment. Blank names are a
// caller error, not a storage concern.
func collectionParam(c *gin.Context) (string, bool) {
	name := strings.TrimSpace(c.Param("collection"))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "collection name is required"})
		return "", false
	}
	return name, true
}

func idParam(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "record id is required"})
		return "", false
	}
	return id, true
}

// storageError maps a contract-layer failure to 404 or 500.
func storageError(c *gin.Context, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "record not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "storage operation failed"})
}

func (h *RecordsHandler) ListRecords(c *gin.Context) {
	name, ok := collectionParam(c)
	if !ok {
		return
	}
	recs, err := h.store.GetCollection(name)
	metrics.ObserveStorage("getCollection", h.store.Type(), err)
	if err != nil {
		storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       recs,
		"count":      len(recs),
		"collection": name,
	})
}

func (h *RecordsHandler) GetRecord(c *gin.Context) {
	name, ok := collectionParam(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	rec, err := h.store.GetRecord(name, id)
	metrics.ObserveStorage("getRecord", h.store.Type(), err)
	if err != nil {
		storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": rec, "collection": name})
}

func (h *RecordsHandler) CreateRecord(c *gin.Context) {
	name, ok := collectionParam(c)
	if !ok {
		return
	}
	var body record.Record
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid JSON body"})
		return
	}
	if len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "request body is empty"})
		return
	}
	rec, err := h.store.CreateRecord(name, body)
	metrics.ObserveStorage("createRecord", h.store.Type(), err)
	if err != nil {
		storageError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"data":       rec,
		"collection": name,
		"message":    "record created",
	})
}

func (h *RecordsHandler) UpdateRecord(c *gin.Context) {
	name, ok := collectionParam(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	var patch record.Record
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid JSON body"})
		return
	}
	if len(patch) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "request body is empty"})
		return
	}
	rec, err := h.store.UpdateRecord(name, id, patch)
	metrics.ObserveStorage("updateRecord", h.store.Type(), err)
	if err != nil {
		storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       rec,
		"collection": name,
		"message":    "record updated",
	})
}

func (h *RecordsHandler) DeleteRecord(c *gin.Context) {
	name, ok := collectionParam(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	removed, err := h.store.DeleteRecord(name, id)
	metrics.ObserveStorage("deleteRecord", h.store.Type(), err)
	if err != nil {
		storageError(c, err)
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "record not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"collection": name,
		"id":         id,
		"message":    "record deleted",
	})
}
