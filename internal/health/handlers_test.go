package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-shop/internal/health"
)

type stubChecker struct {
	dbErr    error
	redisErr error
}

func (s stubChecker) PingDB(context.Context, time.Duration) error    { return s.dbErr }
func (s stubChecker) PingRedis(context.Context, time.Duration) error { return s.redisErr }

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func ready(t *testing.T, h health.Handler) (int, map[string]string) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return rr.Code, body
}

func TestLive(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

func TestReady(t *testing.T) {
	cases := []struct {
		name    string
		checker stubChecker
		code    int
		redis   string
	}{
		{name: "all ok", code: http.StatusOK, redis: "ok"},
		{name: "redis disabled", checker: stubChecker{redisErr: health.ErrDisabled}, code: http.StatusOK, redis: "disabled"},
		{name: "db down", checker: stubChecker{dbErr: errors.New("db down")}, code: http.StatusServiceUnavailable, redis: "ok"},
		{name: "redis down", checker: stubChecker{redisErr: errors.New("connection refused")}, code: http.StatusServiceUnavailable, redis: "connection refused"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := ready(t, health.Handler{Checker: tc.checker})
			require.Equal(t, tc.code, code)
			require.Equal(t, tc.redis, body["redis"])
		})
	}
}

func TestReadinessAfterShutdown(t *testing.T) {
	handler := health.Handler{Checker: stubChecker{}}
	t.Cleanup(func() { health.SetReady(true) })

	health.SetReady(false)
	code, body := ready(t, handler)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "shutting down", body["status"])

	health.SetReady(true)
	code, _ = ready(t, handler)
	require.Equal(t, http.StatusOK, code)
}

func TestDepsChecks(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	deps := health.Deps{DB: pingFunc(func(context.Context) error { return nil }), Redis: client}
	code, body := ready(t, health.Handler{Checker: deps})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, map[string]string{"db": "ok", "redis": "ok"}, body)

	code, body = ready(t, health.Handler{Checker: health.Deps{DB: pingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})}, DBTimeout: 10 * time.Millisecond})
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "disabled", body["redis"])
	require.Equal(t, context.DeadlineExceeded.Error(), body["db"])
}
