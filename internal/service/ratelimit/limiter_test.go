package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestLimiterRefills(t *testing.T) {
	now := time.Unix(0, 0)
	l := New(2, 1)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))

	now = now.Add(500 * time.Millisecond)
	assert.False(t, l.Allow("a"))
	now = now.Add(500 * time.Millisecond)
	assert.True(t, l.Allow("a"))

	now = now.Add(time.Hour)
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestLimiterSweep(t *testing.T) {
	now := time.Unix(0, 0)
	l := New(1, 1)
	l.now = func() time.Time { return now }
	l.Allow("old")
	now = now.Add(11 * time.Minute)
	l.Allow("fresh")
	assert.Equal(t, 1, l.Sweep())
}

func TestMiddlewareReturns429(t *testing.T) {
	e := echo.New()
	l := New(1, 0)
	e.POST("/sessions/:id/ticks", func(c echo.Context) error { return c.NoContent(http.StatusAccepted) }, l.Middleware())

	do := func(id string) int {
		req := httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/ticks", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusAccepted, do("s1"))
	assert.Equal(t, http.StatusTooManyRequests, do("s1"))
	assert.Equal(t, http.StatusAccepted, do("s2"))
}
