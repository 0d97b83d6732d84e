package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fsindex/internal/fscache"
	"fsindex/internal/search"
)

type handlers struct {
	deps   Deps
	logger *zap.Logger
}

type searchResponse struct {
	Results []search.Result `json:"results"`
	More    bool            `json:"more"`
}

type pathRequest struct {
	Path string `json:"path" binding:"required"`
}

type mountRequest struct {
	Mount string `json:"mount" binding:"required"`
}

type tagRequest struct {
	Tag string `json:"tag" binding:"required"`
}

func (h *handlers) health(c *gin.Context) {
	if !h.deps.Volumes.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "indexing"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (h *handlers) listVolumes(c *gin.Context) {
	volumes, err := h.deps.Volumes.List()
	if err != nil {
		h.logger.Error("listing volumes failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, volumes)
}

func (h *handlers) rescan(c *gin.Context) {
	var req mountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// Rescans run to completion even if the client goes away.
	if err := h.deps.Volumes.Rescan(context.WithoutCancel(c.Request.Context()), req.Mount); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mount": req.Mount})
}

func (h *handlers) search(c *gin.Context) {
	files, err := boolQuery(c, "files")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dirs, err := boolQuery(c, "dirs")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results, more := h.deps.Searcher.Search(search.Request{
		Query:             c.Query("q"),
		MountPoint:        c.Query("mount"),
		AcceptFiles:       files,
		AcceptDirectories: dirs,
	})
	if results == nil {
		results = []search.Result{}
	}
	c.JSON(http.StatusOK, searchResponse{Results: results, More: more})
}

func (h *handlers) invalidate(c *gin.Context) {
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.deps.Invalidator.Invalidate(req.Path); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) listTags(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Tags.Tags())
}

func (h *handlers) addTag(c *gin.Context) {
	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.deps.Tags.AddTag(req.Tag)
	c.Status(http.StatusCreated)
}

func (h *handlers) getTag(c *gin.Context) {
	docs, ok := h.deps.Tags.Get(c.Param("tag"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown tag"})
		return
	}
	c.JSON(http.StatusOK, docs)
}

// boolQuery reads an optional boolean parameter that defaults to true.
func boolQuery(c *gin.Context, key string) (bool, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return true, nil
	}
	return strconv.ParseBool(raw)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, fscache.ErrUnknownMount):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
