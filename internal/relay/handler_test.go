package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picklechips/salary-estimate/internal/completion"
	"github.com/picklechips/salary-estimate/internal/extract"
	"github.com/picklechips/salary-estimate/internal/metrics"
	"github.com/picklechips/salary-estimate/internal/stream"
)

const jobJSON = `{"title":"Backend Engineer","company":"Acme","location":"Remote","description":"Go services"}`

func newRouter(completions *completion.Client, extractor *extract.Client) *gin.Engine {
	collector := metrics.NewCollector()
	return NewRouter(NewHandler(completions, extractor, nil, collector), collector)
}

func postBody(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func errorField(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var parsed struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
	return parsed.Error
}

// countingUpstream is a fake completion service tracking how often it is hit.
type countingUpstream struct {
	hits    atomic.Int64
	handler http.HandlerFunc
}

func (u *countingUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.hits.Add(1)
	u.handler(w, r)
}

func streamingUpstream(t *testing.T, frames []string) *countingUpstream {
	t.Helper()
	return &countingUpstream{handler: func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Stream   bool `json:"stream"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, "system", req.Messages[0].Role)
			assert.Contains(t, req.Messages[1].Content, "Backend Engineer")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, frame := range frames {
			fmt.Fprint(w, frame)
			flusher.Flush()
		}
	}}
}

func contentFrame(text string) string {
	return fmt.Sprintf("data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", text)
}

func TestEstimateStreamMissingJobData(t *testing.T) {
	upstream := &countingUpstream{handler: func(w http.ResponseWriter, r *http.Request) {}}
	srv := httptest.NewServer(upstream)
	defer srv.Close()

	router := newRouter(completion.NewClient(srv.URL, "test-key", "test-model", 0), extract.NewClient(srv.URL, "x", time.Minute))

	for _, body := range []string{`{}`, `{"jobData":null}`, ``} {
		rec := postBody(router, "/api/estimate/stream", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, errorField(t, rec), "jobData")
	}
	assert.Zero(t, upstream.hits.Load(), "no upstream call may be made for invalid input")
}

func TestEstimateStreamMissingCredential(t *testing.T) {
	upstream := &countingUpstream{handler: func(w http.ResponseWriter, r *http.Request) {}}
	srv := httptest.NewServer(upstream)
	defer srv.Close()

	router := newRouter(completion.NewClient(srv.URL, "", "test-model", 0), extract.NewClient(srv.URL, "x", time.Minute))

	rec := postBody(router, "/api/estimate/stream", `{"jobData":`+jobJSON+`}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, errorField(t, rec), "OPENAI_API_KEY")
	assert.Zero(t, upstream.hits.Load(), "no network call may be made without a credential")
}

func TestEstimateStreamRelaysFragments(t *testing.T) {
	upstream := streamingUpstream(t, []string{
		contentFrame("100"),
		contentFrame("k-120k"),
		contentFrame(" ;; high ;; strong demand"),
		"data: [DONE]\n\n",
	})
	srv := httptest.NewServer(upstream)
	defer srv.Close()

	router := newRouter(completion.NewClient(srv.URL, "test-key", "test-model", 0), extract.NewClient(srv.URL, "x", time.Minute))

	rec := postBody(router, "/api/estimate/stream", `{"jobData":`+jobJSON+`}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t,
		"data: 100\n\ndata: k-120k\n\ndata:  ;; high ;; strong demand\n\n",
		rec.Body.String())

	// The relayed stream must reconstitute through the consumer.
	final, err := stream.Consume(bytes.NewReader(rec.Body.Bytes()), nil)
	require.NoError(t, err)
	assert.Equal(t, "100k-120k", final.SalaryRange)
	assert.Equal(t, "high", final.ConfidenceLevel)
	assert.Equal(t, "strong demand", final.Reasoning)
}

func TestEstimateStreamSkipsMalformedFrames(t *testing.T) {
	upstream := streamingUpstream(t, []string{
		contentFrame("90k ;; "),
		"data: {definitely not json\n\n",
		contentFrame("low ;; sparse posting"),
		"data: [DONE]\n\n",
	})
	srv := httptest.NewServer(upstream)
	defer srv.Close()

	router := newRouter(completion.NewClient(srv.URL, "test-key", "test-model", 0), extract.NewClient(srv.URL, "x", time.Minute))

	rec := postBody(router, "/api/estimate/stream", `{"jobData":`+jobJSON+`}`)

	require.Equal(t, http.StatusOK, rec.Code)
	final, err := stream.Consume(bytes.NewReader(rec.Body.Bytes()), nil)
	require.NoError(t, err)
	assert.Equal(t, "90k", final.SalaryRange)
	assert.Equal(t, "low", final.ConfidenceLevel)
	assert.Equal(t, "sparse posting", final.Reasoning)
}

func TestEstimateStreamUpstreamRejection(t *testing.T) {
	upstream := &countingUpstream{handler: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited"}}`)
	}}
	srv := httptest.NewServer(upstream)
	defer srv.Close()

	router := newRouter(completion.NewClient(srv.URL, "test-key", "test-model", 0), extract.NewClient(srv.URL, "x", time.Minute))

	rec := postBody(router, "/api/estimate/stream", `{"jobData":`+jobJSON+`}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	msg := errorField(t, rec)
	assert.Contains(t, msg, "429")
	assert.Contains(t, msg, "rate limited")
}

func TestEstimateStreamMidStreamFailure(t *testing.T) {
	upstream := &countingUpstream{handler: func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, contentFrame("100k ;; "))
		w.(http.Flusher).Flush()
		// Drop the connection mid-stream.
		panic(http.ErrAbortHandler)
	}}
	srv := httptest.NewServer(upstream)
	defer srv.Close()

	router := newRouter(completion.NewClient(srv.URL, "test-key", "test-model", 0), extract.NewClient(srv.URL, "x", time.Minute))

	rec := postBody(router, "/api/estimate/stream", `{"jobData":`+jobJSON+`}`)

	// Status was already committed; the error must arrive in-band, last.
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "data: 100k ;; \n\n"), "fragments before the failure are delivered: %q", body)
	assert.Contains(t, body, `data: {"error":`)
	assert.True(t, strings.HasSuffix(body, "\n\n"))
}

func TestEstimateBlocking(t *testing.T) {
	upstream := &countingUpstream{handler: func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Stream bool `json:"stream"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"100k-120k ;; high ;; strong demand"}}]}`)
	}}
	srv := httptest.NewServer(upstream)
	defer srv.Close()

	router := newRouter(completion.NewClient(srv.URL, "test-key", "test-model", 0), extract.NewClient(srv.URL, "x", time.Minute))

	rec := postBody(router, "/api/estimate", `{"jobData":`+jobJSON+`}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var parsed struct {
		Success  bool `json:"success"`
		Estimate struct {
			SalaryRange     string `json:"salaryRange"`
			ConfidenceLevel string `json:"confidenceLevel"`
			Reasoning       string `json:"reasoning"`
		} `json:"estimate"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
	assert.True(t, parsed.Success)
	assert.Equal(t, "100k-120k", parsed.Estimate.SalaryRange)
	assert.Equal(t, "high", parsed.Estimate.ConfidenceLevel)
	assert.Equal(t, "strong demand", parsed.Estimate.Reasoning)
}

func TestExtractMissingURL(t *testing.T) {
	router := newRouter(completion.NewClient("http://invalid", "k", "m", 0), extract.NewClient("http://invalid", "x", time.Minute))

	rec := postBody(router, "/api/extract", `{}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorField(t, rec), "url")
}

func TestExtractMissingCredential(t *testing.T) {
	router := newRouter(completion.NewClient("http://invalid", "k", "m", 0), extract.NewClient("http://invalid", "", time.Minute))

	rec := postBody(router, "/api/extract", `{"url":"https://example.com/job"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, errorField(t, rec), "EXTRACTOR_API_KEY")
}

func TestExtractProxiesCollaborator(t *testing.T) {
	collaborator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/extract", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"success":true,"data":%s}`, jobJSON)
	}))
	defer collaborator.Close()

	router := newRouter(completion.NewClient("http://invalid", "k", "m", 0), extract.NewClient(collaborator.URL, "extract-key", time.Minute))

	rec := postBody(router, "/api/extract", `{"url":"https://example.com/job"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var parsed struct {
		Success bool `json:"success"`
		Data    struct {
			Title string `json:"title"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
	assert.True(t, parsed.Success)
	assert.Equal(t, "Backend Engineer", parsed.Data.Title)
}

func TestPreflightCORS(t *testing.T) {
	router := newRouter(completion.NewClient("http://invalid", "k", "m", 0), extract.NewClient("http://invalid", "x", time.Minute))

	req := httptest.NewRequest(http.MethodOptions, "/api/estimate/stream", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "authorization,apikey,content-type")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	allowed := strings.ToLower(rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Contains(t, allowed, "authorization")
	assert.Contains(t, allowed, "apikey")
	assert.Contains(t, allowed, "content-type")
}

func TestHealthz(t *testing.T) {
	router := newRouter(completion.NewClient("http://invalid", "k", "m", 0), extract.NewClient("http://invalid", "x", time.Minute))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
