package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDeduper(t *testing.T) {
	d := newMemoryDispatchDeduper(50 * time.Millisecond)
	ctx := context.Background()

	seen, err := d.Seen(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = d.Seen(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, seen)

	// A different id is independent.
	seen, err = d.Seen(ctx, "job-2")
	require.NoError(t, err)
	assert.False(t, seen)

	// After the TTL the id is fresh again.
	time.Sleep(60 * time.Millisecond)
	seen, err = d.Seen(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestNewDispatchDeduperFallsBackWithoutAddr(t *testing.T) {
	d, err := NewDispatchDeduper("", "", 0, time.Minute)
	require.NoError(t, err)
	_, ok := d.(*memoryDispatchDeduper)
	assert.True(t, ok)
}

func dispatchRequest(t *testing.T, mw echo.MiddlewareFunc, body string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/jobs/dispatch", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	reached := false
	handler := mw(func(c echo.Context) error {
		reached = true
		return c.NoContent(http.StatusAccepted)
	})
	require.NoError(t, handler(c))
	return rec, reached
}

func TestDispatchDedupMiddleware(t *testing.T) {
	d := newMemoryDispatchDeduper(time.Minute)
	mw := DispatchDedup(d)

	// First delivery passes through.
	rec, reached := dispatchRequest(t, mw, `{"job_id":"abc"}`)
	assert.True(t, reached)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	// Duplicate delivery is acknowledged without reaching the handler.
	rec, reached = dispatchRequest(t, mw, `{"job_id":"abc"}`)
	assert.False(t, reached)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"jobId":"abc"`)
	assert.Contains(t, rec.Body.String(), `"accepted":true`)
}

func TestDispatchDedupPassesThroughMalformedBody(t *testing.T) {
	d := newMemoryDispatchDeduper(time.Minute)
	mw := DispatchDedup(d)

	// Not JSON: the handler decides what to do with it.
	_, reached := dispatchRequest(t, mw, `garbage`)
	assert.True(t, reached)

	// Missing job_id: same.
	_, reached = dispatchRequest(t, mw, `{}`)
	assert.True(t, reached)
}

func TestDispatchDedupNilDeduper(t *testing.T) {
	mw := DispatchDedup(nil)
	_, reached := dispatchRequest(t, mw, `{"job_id":"abc"}`)
	assert.True(t, reached)
}
