package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/sync"
)

// retryAfter is the Retry-After hint sent with failed runs.
const retryAfter = 30 * time.Second

// TransformRunner is the orchestrator surface the API exposes.
type TransformRunner interface {
	Sources() []model.Source
	RunTransformer(ctx context.Context, src model.Source) sync.RunResult
	RunFull(ctx context.Context, src model.Source) sync.RunResult
	RunAll(ctx context.Context) []sync.RunResult
	RunAllFull(ctx context.Context) []sync.RunResult
	Status(ctx context.Context) ([]model.TransformState, error)
}

type TransformHandler struct {
	runner TransformRunner
	log    zerolog.Logger
}

func NewTransformHandler(runner TransformRunner, log zerolog.Logger) *TransformHandler {
	return &TransformHandler{runner: runner, log: log}
}

// RunAll runs every registered transformer. Pass ?full=true to ignore
// the watermarks.
func (h *TransformHandler) RunAll(c *gin.Context) {
	ctx := c.Request.Context()

	var results []sync.RunResult
	if isFull(c) {
		results = h.runner.RunAllFull(ctx)
	} else {
		results = h.runner.RunAll(ctx)
	}

	status := http.StatusOK
	for _, r := range results {
		if !r.Success {
			status = http.StatusServiceUnavailable
			break
		}
	}
	if status != http.StatusOK {
		setRetryAfter(c)
	}
	c.JSON(status, gin.H{"results": results})
}

// Run runs the transformer named by the :source path parameter.
func (h *TransformHandler) Run(c *gin.Context) {
	src := model.Source(c.Param("source"))
	if !h.known(src) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown source " + string(src)})
		return
	}

	ctx := c.Request.Context()
	var res sync.RunResult
	if isFull(c) {
		res = h.runner.RunFull(ctx, src)
	} else {
		res = h.runner.RunTransformer(ctx, src)
	}

	if !res.Success {
		h.log.Warn().Str("source", string(src)).Str("message", res.Message).Msg("transform run did not succeed")
		setRetryAfter(c)
		c.JSON(http.StatusServiceUnavailable, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Status returns the transform state of every source.
func (h *TransformHandler) Status(c *gin.Context) {
	states, err := h.runner.Status(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("loading transform status failed")
		setRetryAfter(c)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "transform status unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": states})
}

func (h *TransformHandler) known(src model.Source) bool {
	for _, s := range h.runner.Sources() {
		if s == src {
			return true
		}
	}
	return false
}

func isFull(c *gin.Context) bool {
	full, _ := strconv.ParseBool(c.Query("full"))
	return full
}

func setRetryAfter(c *gin.Context) {
	c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
}
