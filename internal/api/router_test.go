package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/rm-alert-engine/internal/api/handlers"
	"github.com/frostdev-ops/rm-alert-engine/internal/config"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/alerts"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/clock"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/metricsource"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/monitor"
	"github.com/frostdev-ops/rm-alert-engine/internal/core/scheduler"
	"github.com/frostdev-ops/rm-alert-engine/pkg/logger"
)

func newTestRouter(t *testing.T, mutate func(*config.Config)) http.Handler {
	log := logger.New(logger.Options{Level: "error"})
	log.SetLevel(logrus.PanicLevel)
	t.Cleanup(func() { log.Close() })

	fake := clock.NewFake(time.Date(2024, 6, 3, 2, 0, 0, 0, time.UTC))
	sched := scheduler.New(fake, log.Logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = sched.Stop(ctx)
	})

	specs, err := monitor.SpecsFromConfig(nil)
	require.NoError(t, err)
	service, err := monitor.NewService(monitor.ServiceConfig{
		Specs:     specs,
		Manager:   alerts.NewManager(alerts.DefaultManagerConfig(), sched, log.Logger, alerts.WithClock(fake)),
		Source:    metricsource.NewStaticSource(nil),
		Scheduler: sched,
		Clock:     fake,
	}, log.Logger)
	require.NoError(t, err)

	cfg := &config.Config{
		Server:     config.ServerConfig{Mode: "test"},
		Prometheus: config.PrometheusConfig{Enabled: true, Path: "/metrics"},
	}
	if mutate != nil {
		mutate(cfg)
	}

	return NewRouter(cfg, handlers.Dependencies{Service: service}, log)
}

func get(router http.Handler, path string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouter_PublicRoutes(t *testing.T) {
	router := newTestRouter(t, nil)

	w := get(router, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = get(router, "/health/ready")
	assert.Equal(t, http.StatusOK, w.Code)

	get(router, "/api/v1/status")
	w = get(router, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "rmalert_http_requests_total"))

	w = get(router, "/api/v1/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Hub not configured
	w = get(router, "/ws")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_AuthEnabled(t *testing.T) {
	router := newTestRouter(t, func(cfg *config.Config) {
		cfg.Auth = config.AuthConfig{Enabled: true, JWTSecret: "s3cret", ActorClaim: "sub"}
	})

	w := get(router, "/api/v1/status")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = get(router, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_MetricsDisabled(t *testing.T) {
	router := newTestRouter(t, func(cfg *config.Config) {
		cfg.Prometheus.Enabled = false
	})

	w := get(router, "/metrics")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
