// Package web serves the task collection over a JSON API.
package web

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/harrisonrobin/taskflow/pkg/model"
	"golang.org/x/text/language"
)

// TaskService is the part of the task syncer the API drives.
type TaskService interface {
	Snapshot(ctx context.Context) ([]model.Task, error)
	Create(ctx context.Context, in model.TaskInsert) (model.Task, error)
	Update(ctx context.Context, taskID string, u model.TaskUpdate) (model.Task, error)
	Delete(ctx context.Context, taskID string) error
	Share(ctx context.Context, taskID, email string, perm model.Permission) (model.TaskShare, error)
}

// Server is the taskflow web server
type Server struct {
	tasks  TaskService
	locale language.Tag
	now    func() time.Time
	router *gin.Engine
}

// NewServer creates a new web server
func NewServer(tasks TaskService, locale language.Tag) *Server {
	router := gin.Default()

	s := &Server{
		tasks:  tasks,
		locale: locale,
		now:    time.Now,
		router: router,
	}

	api := router.Group("/api")
	{
		api.GET("/tasks", s.handleList)
		api.GET("/counts", s.handleCounts)
		api.POST("/tasks", s.handleCreate)
		api.PATCH("/tasks/:id", s.handleUpdate)
		api.DELETE("/tasks/:id", s.handleDelete)
		api.POST("/tasks/:id/share", s.handleShare)
	}

	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() *gin.Engine {
	return s.router
}

// Run starts the web server
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}
