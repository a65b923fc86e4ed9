package httpmiddleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"qrattend/internal/httpmiddleware"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestTokenBucket_RefillsOverTime(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)}
	l := httpmiddleware.NewTokenBucket(2, 60, nil, clk.now)

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("expected the first two requests through")
	}
	if l.Allow("a") {
		t.Fatal("expected third request to be limited")
	}
	if !l.Allow("b") {
		t.Fatal("expected other keys to have their own bucket")
	}

	clk.t = clk.t.Add(1500 * time.Millisecond)
	if !l.Allow("a") {
		t.Fatal("expected a token back after 1.5s at 60/min")
	}
	if l.Allow("a") {
		t.Fatal("expected bucket empty again")
	}
}

func TestTokenBucket_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	clk := &clock{t: time.Now()}
	l := httpmiddleware.NewTokenBucket(1, 1, func(c *gin.Context) string {
		return c.GetHeader("X-Student")
	}, clk.now)

	r := gin.New()
	r.POST("/checkins", l.GinMiddleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	do := func(student string) int {
		req := httptest.NewRequest(http.MethodPost, "/checkins", nil)
		req.Header.Set("X-Student", student)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	if got := do("s1"); got != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", got)
	}
	if got := do("s1"); got != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", got)
	}
	if got := do("s2"); got != http.StatusNoContent {
		t.Fatalf("expected 204 for a different key, got %d", got)
	}
}
