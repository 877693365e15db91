package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/harrisonrobin/taskflow/pkg/gateway"
	"github.com/harrisonrobin/taskflow/pkg/model"
	"github.com/harrisonrobin/taskflow/pkg/tasks"
	"github.com/harrisonrobin/taskflow/pkg/view"
)

type shareRequest struct {
	Email      string           `json:"email" binding:"required"`
	Permission model.Permission `json:"permission"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, tasks.ErrAuthRequired):
		return http.StatusUnauthorized
	case errors.Is(err, tasks.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, tasks.ErrQueuedOffline):
		return http.StatusAccepted
	case errors.Is(err, gateway.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, gateway.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, gateway.ErrNotConfigured):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusAccepted {
		c.JSON(code, gin.H{"queued": true, "message": err.Error()})
		return
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

// handleList returns the visible tasks for the filter, search and sort in
// the query string.
func (s *Server) handleList(c *gin.Context) {
	filter, err := view.ParseFilter(c.Query("filter"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	by, err := view.ParseSort(c.Query("sort"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	all, err := s.tasks.Snapshot(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	now := s.now()
	visible := view.Derive(all, view.Options{
		Filter: filter,
		Sort:   by,
		Search: c.Query("q"),
		Now:    now,
		Locale: s.locale,
	})

	c.JSON(http.StatusOK, gin.H{
		"title":  filter.Title(),
		"tasks":  visible,
		"count":  len(visible),
		"counts": view.Count(all, now),
	})
}

func (s *Server) handleCounts(c *gin.Context) {
	all, err := s.tasks.Snapshot(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view.Count(all, s.now()))
}

func (s *Server) handleCreate(c *gin.Context) {
	var in model.TaskInsert
	if err := c.BindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	t, err := s.tasks.Create(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (s *Server) handleUpdate(c *gin.Context) {
	var u model.TaskUpdate
	if err := c.BindJSON(&u); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	// The timestamp is always set by the syncer.
	u.UpdatedAt = nil
	t, err := s.tasks.Update(c.Request.Context(), c.Param("id"), u)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleDelete(c *gin.Context) {
	id := c.Param("id")
	if err := s.tasks.Delete(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (s *Server) handleShare(c *gin.Context) {
	var req shareRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	share, err := s.tasks.Share(c.Request.Context(), c.Param("id"), req.Email, req.Permission)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, share)
}
