package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nhle/orgpulse/internal/ingest"
	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/source"
	"github.com/nhle/orgpulse/internal/source/github"
	"github.com/nhle/orgpulse/internal/source/slack"
)

// maxBodyBytes bounds webhook bodies.
const maxBodyBytes = 5 << 20

// RawWriter stores raw payloads.
type RawWriter interface {
	Put(ctx context.Context, src model.Source, payload []byte) (string, error)
	PutValue(ctx context.Context, src model.Source, v any) (string, error)
}

type IngestHandler struct {
	raw RawWriter
	now func() time.Time
	log zerolog.Logger
}

func NewIngestHandler(raw RawWriter, log zerolog.Logger) *IngestHandler {
	return &IngestHandler{raw: raw, now: time.Now, log: log}
}

// Raw stores one JSON payload for the :source path parameter.
func (h *IngestHandler) Raw(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	src := model.Source(c.Param("source"))
	ref, err := h.raw.Put(c.Request.Context(), src, body)
	h.stored(c, src, ref, err)
}

// GitHub accepts GitHub webhook deliveries.
func (h *IngestHandler) GitHub(c *gin.Context) {
	event := c.GetHeader("X-GitHub-Event")
	delivery := c.GetHeader("X-GitHub-Delivery")
	if event == "" || delivery == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing X-GitHub-Event or X-GitHub-Delivery header"})
		return
	}
	if event == "ping" {
		c.JSON(http.StatusOK, gin.H{"status": "pong"})
		return
	}

	body, ok := readBody(c)
	if !ok {
		return
	}
	ev, err := github.NewRawEvent(event, delivery, body, h.now().UTC())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook payload"})
		return
	}
	ref, err := h.raw.PutValue(c.Request.Context(), model.SourceGitHub, ev)
	h.stored(c, model.SourceGitHub, ref, err)
}

// Slack accepts Events API callbacks, answering the URL verification
// handshake and ignoring everything but user messages.
func (h *IngestHandler) Slack(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}

	var envelope struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid callback payload"})
		return
	}
	if envelope.Type == "url_verification" {
		c.JSON(http.StatusOK, gin.H{"challenge": envelope.Challenge})
		return
	}

	ev, err := slack.RawEventFromCallback(body)
	if errors.Is(err, slack.ErrNotMessage) {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid callback payload"})
		return
	}
	ref, err := h.raw.PutValue(c.Request.Context(), model.SourceSlack, ev)
	h.stored(c, model.SourceSlack, ref, err)
}

func (h *IngestHandler) stored(c *gin.Context, src model.Source, ref string, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"source": src, "ref": ref})
	case errors.Is(err, source.ErrUnknownSource):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ingest.ErrMissingRef), isJSONError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Str("source", string(src)).Msg("storing raw record failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store record"})
	}
}

func readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return nil, false
	}
	return body, true
}

func isJSONError(err error) bool {
	var syn *json.SyntaxError
	var typ *json.UnmarshalTypeError
	return errors.As(err, &syn) || errors.As(err, &typ)
}
