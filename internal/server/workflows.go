package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gnan1985/You-Only-Do-Once/internal/analysis"
	"github.com/gnan1985/You-Only-Do-Once/internal/lock"
	"github.com/gnan1985/You-Only-Do-Once/internal/orchestrator"
	"github.com/gnan1985/You-Only-Do-Once/internal/store"
	"github.com/gnan1985/You-Only-Do-Once/internal/workflow"
)

type (
	// LearnRequest asks for a workflow to be learned from a recording
	LearnRequest struct {
		Name      string              `json:"name"`
		Recording *workflow.Recording `json:"recording"`
	}

	// ScheduleRequest sets up a recurring run, e.g. {"interval": "1h"}
	ScheduleRequest struct {
		Interval string `json:"interval"`
	}
)

const defaultHistoryLimit = 20

var (
	ErrInvalidJSON     = errors.New("invalid JSON request")
	ErrInvalidLimit    = errors.New("invalid limit")
	ErrInvalidInterval = errors.New("invalid interval")
)

// statusOf maps domain errors onto HTTP statuses
func statusOf(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lock.ErrLocked):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrNoAnalyzer):
		return http.StatusServiceUnavailable
	case errors.Is(err, analysis.ErrEmptyRecording),
		errors.Is(err, orchestrator.ErrUnknownMode),
		errors.Is(err, store.ErrIntervalTooLow),
		errors.Is(err, workflow.ErrNoSteps),
		errors.Is(err, workflow.ErrInvalidStepNumber),
		errors.Is(err, workflow.ErrMissingTool),
		errors.Is(err, workflow.ErrMissingToolAction),
		errors.Is(err, workflow.ErrDuplicateStepIndex):
		return http.StatusBadRequest
	case errors.Is(err, analysis.ErrNoProposal),
		errors.Is(err, analysis.ErrInvalidSteps):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) listWorkflows(c *gin.Context) {
	wfs, err := s.orch.Workflows(c.Request.Context())
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflows": wfs, "count": len(wfs)})
}

func (s *Server) createWorkflow(c *gin.Context) {
	var wf workflow.Workflow
	if err := c.ShouldBindJSON(&wf); err != nil {
		fail(c, http.StatusBadRequest, fmt.Errorf("%w: %v", ErrInvalidJSON, err))
		return
	}
	if err := s.orch.Save(c.Request.Context(), &wf); err != nil {
		fail(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusCreated, &wf)
}

func (s *Server) getWorkflow(c *gin.Context) {
	wf, err := s.orch.Store().GetWorkflow(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, wf)
}

func (s *Server) deleteWorkflow(c *gin.Context) {
	if err := s.orch.Store().DeleteWorkflow(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, statusOf(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}

// executeWorkflow runs the workflow synchronously. Step failures still
// answer 200; the outcome is in the body.
func (s *Server) executeWorkflow(c *gin.Context) {
	mode := orchestrator.ModeNormal
	if ok, _ := strconv.ParseBool(c.Query("confirm")); ok {
		mode = orchestrator.ModeConfirm
	}
	run, err := s.orch.Execute(c.Request.Context(), c.Param("id"), mode)
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) dryRunWorkflow(c *gin.Context) {
	res, err := s.orch.DryRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) listExecutions(c *gin.Context) {
	limit := defaultHistoryLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			fail(c, http.StatusBadRequest, fmt.Errorf("%w: %q", ErrInvalidLimit, v))
			return
		}
		limit = n
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := s.orch.Store().GetWorkflow(ctx, id); err != nil {
		fail(c, statusOf(err), err)
		return
	}
	execs, err := s.orch.Store().ListExecutions(ctx, id, limit)
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": execs, "count": len(execs)})
}

func (s *Server) createSchedule(c *gin.Context) {
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, fmt.Errorf("%w: %v", ErrInvalidJSON, err))
		return
	}
	interval, err := time.ParseDuration(req.Interval)
	if err != nil {
		fail(c, http.StatusBadRequest, fmt.Errorf("%w: %v", ErrInvalidInterval, err))
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := s.orch.Store().GetWorkflow(ctx, id); err != nil {
		fail(c, statusOf(err), err)
		return
	}
	scheduleID, err := s.orch.Store().AddSchedule(ctx, id, interval)
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         scheduleID,
		"workflowId": id,
		"interval":   interval.String(),
	})
}

func (s *Server) listSchedules(c *gin.Context) {
	list, err := s.orch.Store().ListSchedules(c.Request.Context())
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": list, "count": len(list)})
}

func (s *Server) learnRecording(c *gin.Context) {
	var req LearnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, fmt.Errorf("%w: %v", ErrInvalidJSON, err))
		return
	}
	wf, err := s.orch.Learn(c.Request.Context(), req.Name, req.Recording)
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusCreated, wf)
}
