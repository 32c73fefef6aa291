package relay

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	nats "github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/picklechips/salary-estimate/internal/bus"
	"github.com/picklechips/salary-estimate/internal/completion"
	"github.com/picklechips/salary-estimate/internal/estimate"
	"github.com/picklechips/salary-estimate/internal/extract"
	"github.com/picklechips/salary-estimate/internal/metrics"
	"github.com/picklechips/salary-estimate/internal/stream"
)

// Handler wires the two collaborators to the HTTP surface.
type Handler struct {
	completions *completion.Client
	extractor   *extract.Client
	nc          *nats.Conn // nil disables usage publishing
	collector   *metrics.Collector
}

func NewHandler(completions *completion.Client, extractor *extract.Client, nc *nats.Conn, collector *metrics.Collector) *Handler {
	return &Handler{
		completions: completions,
		extractor:   extractor,
		nc:          nc,
		collector:   collector,
	}
}

type estimateRequest struct {
	JobData json.RawMessage `json:"jobData"`
}

func (r estimateRequest) empty() bool {
	return len(r.JobData) == 0 || string(r.JobData) == "null"
}

// Extract proxies one page URL through the extraction collaborator.
func (h *Handler) Extract(c *gin.Context) {
	var req struct {
		URL string `json:"url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}
	if !h.extractor.Configured() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "EXTRACTOR_API_KEY is not configured"})
		return
	}

	data, err := h.extractor.Extract(c.Request.Context(), req.URL)
	if err != nil {
		log.Error().Err(err).Str("url", req.URL).Msg("extraction failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

// Estimate is the blocking variant: one completion call, one parsed result.
func (h *Handler) Estimate(c *gin.Context) {
	var req estimateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "jobData is required"})
		return
	}
	if !h.completions.Configured() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "OPENAI_API_KEY is not configured"})
		return
	}

	content, err := h.completions.Complete(c.Request.Context(), completion.SystemPrompt, completion.EstimatePrompt(req.JobData))
	if err != nil {
		h.collector.RecordUpstreamFailure()
		log.Error().Err(err).Msg("completion failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "estimate": estimate.Parse(content)})
}

// EstimateStream relays a streaming completion as a normalized event stream.
// Failures before the first byte become HTTP errors; once streaming has
// begun, failures downgrade to a terminal in-band error frame because the
// status is already committed.
func (h *Handler) EstimateStream(c *gin.Context) {
	var req estimateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "jobData is required"})
		return
	}
	if !h.completions.Configured() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "OPENAI_API_KEY is not configured"})
		return
	}

	requestID := uuid.New()
	start := time.Now()
	h.collector.RecordEstimateStarted()

	// The inbound request context aborts the upstream call on client
	// disconnect.
	resp, err := h.completions.Stream(c.Request.Context(), completion.SystemPrompt, completion.EstimatePrompt(req.JobData))
	if err != nil {
		h.collector.RecordUpstreamFailure()
		log.Error().Err(err).Str("request_id", requestID.String()).Msg("completion request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "completion request failed: " + err.Error()})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		h.collector.RecordUpstreamFailure()
		log.Error().
			Int("status", resp.StatusCode).
			Str("request_id", requestID.String()).
			Msg("completion service rejected request")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("completion service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		})
		return
	}

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	adapter := stream.NewAdapter()
	buf := make([]byte, 32*1024)
	fragments := 0
	subject := bus.FragmentSubject(requestID.String())

	var streamErr error
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			for _, fragment := range adapter.Fragments(buf[:n]) {
				w.Write(stream.Event(fragment))
				fragments++
				h.collector.RecordFragment()
				if h.nc != nil {
					h.nc.Publish(subject, []byte(fragment))
				}
			}
			w.Flush()
		}
		if err != nil {
			if err != io.EOF {
				streamErr = err
			}
			break
		}
	}

	if streamErr != nil && c.Request.Context().Err() == nil {
		h.collector.RecordUpstreamFailure()
		msg, _ := json.Marshal(gin.H{"error": streamErr.Error()})
		w.Write([]byte("data: "))
		w.Write(msg)
		w.Write([]byte("\n\n"))
		w.Flush()
	}

	h.collector.RecordMalformedFrames(adapter.Malformed)

	if h.nc != nil {
		done, _ := json.Marshal(bus.Done{
			StartedAt: start.UnixNano(),
			Fragments: fragments,
			Failed:    streamErr != nil,
		})
		h.nc.Publish(bus.DoneSubject(requestID.String()), done)
	}

	log.Info().
		Str("request_id", requestID.String()).
		Int("fragments", fragments).
		Int("malformed", adapter.Malformed).
		Dur("duration", time.Since(start)).
		Err(streamErr).
		Msg("estimate stream finished")
}
