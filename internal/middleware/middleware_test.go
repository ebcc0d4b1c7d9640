package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/taskbridge-backend/internal/platform/ctxutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestAttachTraceContextGeneratesIDs(t *testing.T) {
	r := gin.New()
	r.Use(AttachTraceContext())
	var seen *ctxutil.TraceData
	r.GET("/", func(c *gin.Context) {
		seen = ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	r.ServeHTTP(w, req)

	if seen == nil {
		t.Fatalf("trace data: want=set got=nil")
	}
	if seen.TraceID == "" || seen.RequestID == "" {
		t.Fatalf("trace data ids: want=non-empty got=%+v", seen)
	}
	if got := w.Header().Get("X-Trace-Id"); got != seen.TraceID {
		t.Fatalf("trace header: want=%s got=%s", seen.TraceID, got)
	}
	if got := w.Header().Get("X-Request-Id"); got != seen.RequestID {
		t.Fatalf("request header: want=%s got=%s", seen.RequestID, got)
	}
}

func TestAttachTraceContextHonorsInboundHeaders(t *testing.T) {
	r := gin.New()
	r.Use(AttachTraceContext())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Trace-Id", "trace-abc")
	req.Header.Set("X-Request-Id", "req-123")
	r.ServeHTTP(w, req)

	if got := w.Header().Get("X-Trace-Id"); got != "trace-abc" {
		t.Fatalf("trace header: want=trace-abc got=%s", got)
	}
	if got := w.Header().Get("X-Request-Id"); got != "req-123" {
		t.Fatalf("request header: want=req-123 got=%s", got)
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://app.example.com")

	r := gin.New()
	r.Use(CORS())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://app.example.com")
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://app.example.com" {
		t.Fatalf("allow origin: want=http://app.example.com got=%s", got)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example.com")
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("allow origin for unknown origin: want=empty got=%s", got)
	}
}
