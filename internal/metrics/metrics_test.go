package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/joseph-ayodele/clauseguard/internal/llm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixedAnalyzer struct{ err error }

func (f fixedAnalyzer) Analyze(context.Context, llm.Request) (llm.Result, error) {
	return llm.Result{}, f.err
}

func TestObservers(t *testing.T) {
	m := New(Config{Environment: "test"})

	m.ObserveAttempt("pdf-plaintext", false, 5*time.Millisecond)
	m.ObserveAttempt("pdf-glyph-runs", true, 5*time.Millisecond)
	m.ObserveWebhook("checkout.session.completed", "applied")
	m.ObserveWebhook("checkout.session.completed", "duplicate")
	m.ObserveWebhook("", "rejected")

	if got := testutil.ToFloat64(m.extractAttempts.WithLabelValues("pdf-plaintext", "failed")); got != 1 {
		t.Errorf("failed attempts = %v", got)
	}
	if got := testutil.ToFloat64(m.webhookEvents.WithLabelValues("unknown", "rejected")); got != 1 {
		t.Errorf("rejected webhooks = %v", got)
	}

	a := m.InstrumentAnalyzer(fixedAnalyzer{err: llm.NewModelError(llm.ModelRejected, 400, nil)})
	_, _ = a.Analyze(context.Background(), llm.Request{})
	if got := testutil.ToFloat64(m.modelCalls.WithLabelValues("model_rejected")); got != 1 {
		t.Errorf("rejected model calls = %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAttempt("x", true, time.Second)
	m.ObserveWebhook("x", "y")
	if a := m.InstrumentAnalyzer(fixedAnalyzer{}); a == nil {
		t.Error("nil metrics must return the analyzer unchanged")
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New(Config{})
	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	for _, want := range []string{
		`clauseguard_http_request_duration_seconds_count{env="unknown",route="/healthz",service="clauseguard",status="200"} 1`,
		`route="unmatched"`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
