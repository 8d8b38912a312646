package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zen-systems/finroute/pkg/config"
	"github.com/zen-systems/finroute/pkg/responder"
	"github.com/zen-systems/finroute/pkg/store"
)

// ResponderStore is the persistent side of the responder registry.
type ResponderStore interface {
	UpsertResponder(ctx context.Context, d responder.Descriptor) error
	SetActive(ctx context.Context, id string, active bool) error
	DeleteResponder(ctx context.Context, id string) error
}

var errNoStore = errors.New("responder changes need a database (set db_path)")

// ActiveRequest is the body of /v1/responders/:id/active.
type ActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// upsertResponder serves POST /v1/responders and PUT /v1/responders/:id.
func (s *Server) upsertResponder(c *gin.Context) {
	var rc config.ResponderConfig
	if err := c.ShouldBindJSON(&rc); err != nil {
		fail(c, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	if id := c.Param("id"); id != "" {
		if rc.ID != "" && rc.ID != id {
			fail(c, http.StatusBadRequest, fmt.Errorf("body id %q does not match path id %q", rc.ID, id))
			return
		}
		rc.ID = id
	}
	if err := rc.Validate(); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	d := rc.Descriptor()
	s.mutate(c, d, func(ctx context.Context) error {
		return s.store.UpsertResponder(ctx, d)
	})
}

func (s *Server) setActive(c *gin.Context) {
	var req ActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	id := c.Param("id")
	s.mutate(c, gin.H{"responder_id": id, "active": *req.Active}, func(ctx context.Context) error {
		return s.store.SetActive(ctx, id, *req.Active)
	})
}

func (s *Server) deleteResponder(c *gin.Context) {
	id := c.Param("id")
	s.mutate(c, gin.H{"responder_id": id, "deleted": true}, func(ctx context.Context) error {
		return s.store.DeleteResponder(ctx, id)
	})
}

// mutate applies a store change and reloads the registry from it.
func (s *Server) mutate(c *gin.Context, data any, change func(ctx context.Context) error) {
	if s.store == nil {
		fail(c, http.StatusNotImplemented, errNoStore)
		return
	}
	ctx := c.Request.Context()
	if err := change(ctx); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		fail(c, status, err)
		return
	}
	if err := s.orch.Reload(ctx); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, data)
}

func (s *Server) resetAllGates(c *gin.Context) {
	s.orch.ResetAllGates()
	ok(c, s.orch.Gates())
}

// resetHealth clears recorded health for ?id=, or for every responder.
func (s *Server) resetHealth(c *gin.Context) {
	id := c.Query("id")
	if !s.orch.ResetHealth(id) {
		fail(c, http.StatusNotFound, fmt.Errorf("no health recorded for %q", id))
		return
	}
	ok(c, gin.H{"responder_id": id, "reset": true})
}
