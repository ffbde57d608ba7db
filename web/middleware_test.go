package web

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func TestRateLimitMiddlewareEnforcesBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)

	g := gin.New()
	g.Use(RateLimitMiddleware(NewIPRateLimiter(rate.Limit(1), 2)))
	g.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		g.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
		codes = append(codes, w.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("Requests within the burst were limited: %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("Expected 429 over the burst, got %d", codes[2])
	}
}

func TestRateLimitMiddlewareTracksIPsSeparately(t *testing.T) {
	gin.SetMode(gin.TestMode)

	g := gin.New()
	g.Use(RateLimitMiddleware(NewIPRateLimiter(rate.Limit(1), 1)))
	g.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	first := httptest.NewRequest("GET", "/", nil)
	first.RemoteAddr = "10.0.0.1:1000"
	w := httptest.NewRecorder()
	g.ServeHTTP(w, first)
	g.ServeHTTP(httptest.NewRecorder(), first)

	other := httptest.NewRequest("GET", "/", nil)
	other.RemoteAddr = "10.0.0.2:1000"
	w = httptest.NewRecorder()
	g.ServeHTTP(w, other)

	if w.Code != http.StatusOK {
		t.Errorf("A fresh IP inherited another client's bucket: %d", w.Code)
	}
}

func TestMaxBytesMiddlewareCapsBody(t *testing.T) {
	gin.SetMode(gin.TestMode)

	g := gin.New()
	g.Use(MaxBytesMiddleware(16))
	g.POST("/", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest("POST", "/", strings.NewReader("tiny")))
	if w.Code != http.StatusOK {
		t.Errorf("Small body rejected: %d", w.Code)
	}

	w = httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest("POST", "/", strings.NewReader(strings.Repeat("x", 64))))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Oversized body accepted: %d", w.Code)
	}
}
