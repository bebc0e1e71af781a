package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/harrisonrobin/tasklink/pkg/google"
	"github.com/harrisonrobin/tasklink/pkg/model"
)

const (
	ctxUser  = "user"
	ctxToken = "token"
)

func (s *Server) authenticate(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		s.fail(c, fmt.Errorf("%w: bearer token required", model.ErrUnauthenticated))
		c.Abort()
		return
	}
	token = strings.TrimSpace(token)

	user, err := s.auth.Authenticate(c.Request.Context(), token)
	if err != nil {
		s.fail(c, err)
		c.Abort()
		return
	}
	c.Set(ctxUser, user)
	c.Set(ctxToken, token)
	c.Next()
}

func caller(c *gin.Context) (string, string) {
	user, _ := c.MustGet(ctxUser).(model.User)
	return user.ID, c.GetString(ctxToken)
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.db.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "database unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleSync(c *gin.Context) {
	userID, token := caller(c)
	res, err := s.svc.Sync(c.Request.Context(), userID, c.Param("id"), token)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error(), "data": res})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": res})
}

func (s *Server) handleListTaskLists(c *gin.Context) {
	userID, token := caller(c)
	lists, err := s.svc.ListTaskLists(c.Request.Context(), userID, token)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": lists, "count": len(lists)})
}

type linkRequest struct {
	ListID string `json:"list_id"`
}

func (s *Server) handleLink(c *gin.Context) {
	var req linkRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, fmt.Errorf("%w: %v", model.ErrInvalidArgument, err))
			return
		}
	}

	userID, token := caller(c)
	project, err := s.svc.LinkProject(c.Request.Context(), userID, c.Param("id"), token, req.ListID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": project})
}

func (s *Server) handleUnlink(c *gin.Context) {
	deleteList, err := strconv.ParseBool(c.DefaultQuery("delete_list", "false"))
	if err != nil {
		s.fail(c, fmt.Errorf("%w: delete_list must be a boolean", model.ErrInvalidArgument))
		return
	}

	userID, token := caller(c)
	if err := s.svc.UnlinkProject(c.Request.Context(), userID, c.Param("id"), token, deleteList); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleCreateTask(c *gin.Context) {
	patch, ok := s.bindPatch(c)
	if !ok {
		return
	}
	userID, token := caller(c)
	task, err := s.svc.CreateTask(c.Request.Context(), userID, c.Param("id"), token, patch)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": task})
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	patch, ok := s.bindPatch(c)
	if !ok {
		return
	}
	userID, token := caller(c)
	task, err := s.svc.UpdateTask(c.Request.Context(), userID, c.Param("id"), token, patch)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": task})
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	userID, token := caller(c)
	if err := s.svc.DeleteTask(c.Request.Context(), userID, c.Param("id"), token); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) bindPatch(c *gin.Context) (model.TaskPatch, bool) {
	var patch model.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		s.fail(c, fmt.Errorf("%w: %v", model.ErrInvalidArgument, err))
		return model.TaskPatch{}, false
	}
	return patch, true
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var apiErr *google.APIError
	switch {
	case errors.Is(err, model.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, model.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotLinked), errors.Is(err, model.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &apiErr) && apiErr.IsAuth():
		return http.StatusBadGateway
	case errors.As(err, &apiErr) && apiErr.IsTransient():
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
