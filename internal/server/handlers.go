package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/walletscore/internal/events"
	"github.com/mbd888/walletscore/internal/health"
	"github.com/mbd888/walletscore/internal/logging"
	"github.com/mbd888/walletscore/internal/pipeline"
	"github.com/mbd888/walletscore/internal/report"
	"github.com/mbd888/walletscore/internal/store"
	"github.com/mbd888/walletscore/internal/validation"
)

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, checks := s.health.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   Version,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Runs
// -----------------------------------------------------------------------------

// CreateRunResponse is returned after a dump has been scored and stored.
type CreateRunResponse struct {
	Run     *store.Run         `json:"run"`
	Decode  events.DecodeStats `json:"decode"`
	Summary string             `json:"summary"`
}

// createRun scores an uploaded Aave transaction dump and stores the result.
func (s *Server) createRun(c *gin.Context) {
	evs, stats, err := events.DecodeAave(c.Request.Body)
	if err != nil {
		if validation.IsBodyTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":   "payload_too_large",
				"message": "transaction dump exceeds " + strconv.FormatInt(s.cfg.MaxUploadBytes, 10) + " bytes",
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_dump",
			"message": err.Error(),
		})
		return
	}

	runID := store.NewRunID()
	ctx := logging.WithRunID(c.Request.Context(), runID)

	rs, err := s.pipeline.Run(ctx, evs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "scoring_failed",
			"message": err.Error(),
		})
		return
	}

	run := store.NewRun(rs)
	run.ID = runID
	if err := s.store.SaveRun(ctx, run); err != nil {
		logging.L(ctx).Error("failed to save run", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "store_failed",
			"message": "Failed to save scoring run",
		})
		return
	}

	c.JSON(http.StatusCreated, CreateRunResponse{
		Run:     run,
		Decode:  stats,
		Summary: pipeline.Describe(rs),
	})
}

func (s *Server) getLatestRun(c *gin.Context) {
	run, err := s.store.LatestRun(c.Request.Context())
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) getRun(c *gin.Context) {
	run, err := s.store.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// ScoresPage is one page of a run's ranked wallet scores.
type ScoresPage struct {
	RunID  string               `json:"runId"`
	Total  int                  `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
	Scores []*store.WalletScore `json:"scores"`
}

func (s *Server) listScores(c *gin.Context) {
	if errs := validation.Validate(
		validation.NonNegativeInt("limit", c.Query("limit")),
		validation.NonNegativeInt("offset", c.Query("offset")),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_query",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	limit, offset = store.ClampPage(limit, offset)

	ctx := c.Request.Context()
	run, err := s.store.GetRun(ctx, c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	scores, err := s.store.ListScores(ctx, run.ID, limit, offset)
	if err != nil {
		s.storeError(c, err)
		return
	}
	if scores == nil {
		scores = []*store.WalletScore{}
	}

	c.JSON(http.StatusOK, ScoresPage{
		RunID:  run.ID,
		Total:  run.Wallets,
		Limit:  limit,
		Offset: offset,
		Scores: scores,
	})
}

// getAnalysis returns the run's score analysis as JSON, or as markdown
// when format=markdown.
func (s *Server) getAnalysis(c *gin.Context) {
	id := c.Param("id")
	rs, err := s.store.LoadResult(c.Request.Context(), id)
	if err != nil {
		s.storeError(c, err)
		return
	}

	a := report.Analyze(rs)
	a.RunID = id
	if c.Query("format") == "markdown" {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(report.RenderMarkdown(a)))
		return
	}
	c.JSON(http.StatusOK, a)
}

// -----------------------------------------------------------------------------
// Wallets
// -----------------------------------------------------------------------------

// getWalletScore looks the wallet up in the most recent run.
func (s *Server) getWalletScore(c *gin.Context) {
	ctx := c.Request.Context()
	run, err := s.store.LatestRun(ctx)
	if err != nil {
		s.storeError(c, err)
		return
	}

	wallet := events.NormalizeWallet(c.Param("address"))
	score, err := s.store.GetWalletScore(ctx, run.ID, wallet)
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, score)
}

// storeError maps store errors to API responses.
func (s *Server) storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrRunNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "run_not_found",
			"message": "Scoring run not found",
		})
	case errors.Is(err, store.ErrWalletNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "wallet_not_found",
			"message": "Wallet was not scored in the latest run",
		})
	default:
		logging.L(c.Request.Context()).Error("store error", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to read scoring runs",
		})
	}
}
