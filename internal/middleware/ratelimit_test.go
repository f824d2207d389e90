package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func limitedRouter(rps float64, burst int) http.Handler {
	r := gin.New()
	r.Use(RateLimit(rps, burst))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRateLimitBurst(t *testing.T) {
	r := limitedRouter(1, 3)

	statuses := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		statuses = append(statuses, w.Code)
	}

	for i := 0; i < 3; i++ {
		if statuses[i] != http.StatusOK {
			t.Errorf("request %d status = %d, expected 200 within burst", i, statuses[i])
		}
	}
	for i := 3; i < 5; i++ {
		if statuses[i] != http.StatusTooManyRequests {
			t.Errorf("request %d status = %d, expected 429 past burst", i, statuses[i])
		}
	}
}

func TestRateLimitPerIP(t *testing.T) {
	r := limitedRouter(1, 1)

	hit := func(addr string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/ping", nil)
		req.RemoteAddr = addr
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := hit("10.0.0.1:1"); code != http.StatusOK {
		t.Fatalf("first client status = %d", code)
	}
	if code := hit("10.0.0.1:1"); code != http.StatusTooManyRequests {
		t.Errorf("exhausted client status = %d, expected 429", code)
	}
	// A different client has its own bucket.
	if code := hit("10.0.0.2:1"); code != http.StatusOK {
		t.Errorf("fresh client status = %d, expected 200", code)
	}
}

func TestRateLimitRefill(t *testing.T) {
	r := limitedRouter(50, 1)

	hit := func() int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/ping", nil)
		req.RemoteAddr = "10.0.0.3:1"
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := hit(); code != http.StatusOK {
		t.Fatalf("first request status = %d", code)
	}
	if code := hit(); code != http.StatusTooManyRequests {
		t.Fatalf("immediate second request status = %d, expected 429", code)
	}

	// At 50 rps a token returns within 20ms.
	time.Sleep(50 * time.Millisecond)
	if code := hit(); code != http.StatusOK {
		t.Errorf("post-refill status = %d, expected 200", code)
	}
}
