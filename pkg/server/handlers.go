package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zen-systems/finroute/pkg/orchestrator"
)

// APIResponse is the envelope for every JSON response.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// QueryRequest is the body of /v1/query and /v1/classify.
type QueryRequest struct {
	Query        string `json:"query" binding:"required"`
	Jurisdiction string `json:"jurisdiction"`
	Language     string `json:"language"`
	Model        string `json:"model"`
}

// CollaborateRequest is the body of /v1/collaborate.
type CollaborateRequest struct {
	QueryRequest
	Responders  []string `json:"responders" binding:"required,min=1"`
	Synthesizer string   `json:"synthesizer"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

func fail(c *gin.Context, status int, err error) {
	c.JSON(status, APIResponse{Success: false, Error: err.Error()})
}

func (s *Server) healthz(c *gin.Context) {
	ok(c, gin.H{"status": "ok", "uptime": time.Since(s.started).String()})
}

// query answers with the routed responder. Degraded results are still 200:
// the answer is always present and failure_reason explains the degradation.
func (s *Server) query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	res := s.orch.Process(c.Request.Context(), req.Query, orchestrator.ProcessOptions{
		Jurisdiction: req.Jurisdiction,
		Language:     req.Language,
		Model:        req.Model,
	})
	ok(c, res)
}

func (s *Server) collaborate(c *gin.Context) {
	var req CollaborateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	res := s.orch.Collaborate(c.Request.Context(), req.Query, req.Responders, req.Synthesizer, orchestrator.ProcessOptions{
		Jurisdiction: req.Jurisdiction,
		Language:     req.Language,
		Model:        req.Model,
	})
	ok(c, res)
}

func (s *Server) classify(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	ok(c, s.orch.Router().Route(req.Query, req.Jurisdiction))
}

func (s *Server) responders(c *gin.Context) {
	ok(c, s.orch.Router().Registry().List())
}

func (s *Server) reload(c *gin.Context) {
	if err := s.orch.Reload(c.Request.Context()); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, gin.H{"responders": s.orch.Router().Registry().Len()})
}

func (s *Server) gates(c *gin.Context) {
	ok(c, s.orch.Gates())
}

func (s *Server) resetGate(c *gin.Context) {
	id := c.Param("id")
	if !s.orch.ResetGate(id) {
		fail(c, http.StatusNotFound, fmt.Errorf("no gate for responder %q", id))
		return
	}
	ok(c, gin.H{"responder_id": id, "state": "closed"})
}

func (s *Server) status(c *gin.Context) {
	ok(c, s.orch.Status())
}
