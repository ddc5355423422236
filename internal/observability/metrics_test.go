package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danmuck/heritagectl/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("heritage-a", "GET", "/health", 200, 12*time.Millisecond)
	RecordContribution("artifact", true)
	RecordContribution("story", false)
	RecordUpload(2048)
	RecordUpload(-1)

	testlog.Logf("observability/metrics: registration idempotent and recording paths executed")
}

func TestRequestIDMintsAndPropagates(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), RequestLogger(zerolog.Nop()), RequestMetricsMiddleware("test"))
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextRequestID))
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ping", nil))
	minted := rr.Header().Get(HeaderRequestID)
	if minted == "" || rr.Body.String() != minted {
		t.Fatalf("expected minted request id echoed, header=%q body=%q", minted, rr.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if got := rr.Header().Get(HeaderRequestID); got != "req-123" {
		t.Fatalf("expected inbound request id kept, got %q", got)
	}
}
