// Package middleware 中间件单元测试
package middleware

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(prev) })
	return &buf
}

// ========== Logging ==========

func TestLoggingMiddlewareIncludesUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLog(t)

	r := gin.New()
	r.Use(LoggingMiddleware())
	r.GET("/conversations", func(c *gin.Context) {
		c.Set("user_id", "user-42")
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/conversations?limit=5", nil))

	line := buf.String()
	if !strings.Contains(line, "user=user-42") {
		t.Errorf("log line missing user id: %q", line)
	}
	if !strings.Contains(line, "/conversations?limit=5") {
		t.Errorf("log line missing path with query: %q", line)
	}
	if !strings.Contains(line, "status=200") {
		t.Errorf("log line missing status: %q", line)
	}
}

func TestLoggingMiddlewareAnonymousRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLog(t)

	r := gin.New()
	r.Use(LoggingMiddleware())
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if !strings.Contains(buf.String(), "user=-") {
		t.Errorf("anonymous request should log user=-, got %q", buf.String())
	}
}

// ========== Recovery ==========

func TestRecoveryMiddlewareReturnsErrorBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	captureLog(t)

	r := gin.New()
	r.Use(RecoveryMiddleware())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var body struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid error body: %v", err)
	}
	if body.Code != http.StatusInternalServerError || body.Msg == "" {
		t.Errorf("error body = %+v", body)
	}
}

func TestRecoveryMiddlewareLeavesStartedResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	captureLog(t)

	r := gin.New()
	r.Use(RecoveryMiddleware())
	r.GET("/stream", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("mid-stream")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stream", nil))

	// 已写出的响应不能被覆盖成 JSON 错误体
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "partial" {
		t.Errorf("body = %q, want %q", w.Body.String(), "partial")
	}
}
