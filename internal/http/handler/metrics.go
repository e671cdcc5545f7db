package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nhle/orgpulse/internal/metrics"
)

// MetricsService computes the three metric families.
type MetricsService interface {
	Space(ctx context.Context, orgID, email string, w metrics.Window) (metrics.SpaceMetrics, error)
	Flow(ctx context.Context, orgID, project string, w metrics.Window) (metrics.FlowMetrics, error)
	Dora(ctx context.Context, orgID, project string, w metrics.Window) (metrics.DoraMetrics, error)
}

type MetricsHandler struct {
	svc   MetricsService
	orgID string
	now   func() time.Time
	log   zerolog.Logger
}

// NewMetricsHandler serves metrics for orgID unless a request names
// another organization with ?orgId=.
func NewMetricsHandler(svc MetricsService, orgID string, log zerolog.Logger) *MetricsHandler {
	return &MetricsHandler{svc: svc, orgID: orgID, now: time.Now, log: log}
}

func (h *MetricsHandler) Space(c *gin.Context) {
	email := c.Query("email")
	if strings.TrimSpace(email) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	w, ok := h.window(c)
	if !ok {
		return
	}
	m, err := h.svc.Space(c.Request.Context(), h.org(c), email, w)
	h.respond(c, m, err)
}

func (h *MetricsHandler) Flow(c *gin.Context) {
	project, w, ok := h.projectWindow(c)
	if !ok {
		return
	}
	m, err := h.svc.Flow(c.Request.Context(), h.org(c), project, w)
	h.respond(c, m, err)
}

func (h *MetricsHandler) Dora(c *gin.Context) {
	project, w, ok := h.projectWindow(c)
	if !ok {
		return
	}
	m, err := h.svc.Dora(c.Request.Context(), h.org(c), project, w)
	h.respond(c, m, err)
}

func (h *MetricsHandler) projectWindow(c *gin.Context) (string, metrics.Window, bool) {
	project := c.Query("project")
	if strings.TrimSpace(project) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "project is required"})
		return "", metrics.Window{}, false
	}
	w, ok := h.window(c)
	return project, w, ok
}

func (h *MetricsHandler) respond(c *gin.Context, body any, err error) {
	if err != nil {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("computing metrics failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute metrics"})
		return
	}
	c.JSON(http.StatusOK, body)
}

func (h *MetricsHandler) org(c *gin.Context) string {
	if org := c.Query("orgId"); org != "" {
		return org
	}
	return h.orgID
}

// window reads ?start= and ?end= (RFC 3339 or YYYY-MM-DD). The default is
// the seven days before now.
func (h *MetricsHandler) window(c *gin.Context) (metrics.Window, bool) {
	w, err := metrics.ParseWindow(c.Query("start"), c.Query("end"), h.now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return metrics.Window{}, false
	}
	return w, true
}
