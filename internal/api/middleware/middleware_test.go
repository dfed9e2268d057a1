package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/rm-alert-engine/internal/config"
	"github.com/frostdev-ops/rm-alert-engine/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func actorRouter(cfg config.AuthConfig) *gin.Engine {
	r := gin.New()
	r.Use(AuthMiddleware(cfg))
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, Actor(c))
	})
	return r
}

func signed(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.MapClaims) string {
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	r := actorRouter(config.AuthConfig{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(ActorHeader, "analyst-7")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "analyst-7", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.Equal(t, AnonymousActor, w.Body.String())
}

func TestAuthMiddleware_Enabled(t *testing.T) {
	cfg := config.AuthConfig{Enabled: true, JWTSecret: "s3cret", ActorClaim: "email"}
	r := actorRouter(cfg)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{name: "missing header", header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer not.a.jwt", status: http.StatusUnauthorized},
		{
			name:   "wrong secret",
			header: "Bearer " + signed(t, "other", jwt.SigningMethodHS256, jwt.MapClaims{"email": "a@rm.io"}),
			status: http.StatusUnauthorized,
		},
		{
			name:   "missing actor claim",
			header: "Bearer " + signed(t, "s3cret", jwt.SigningMethodHS256, jwt.MapClaims{"sub": "42"}),
			status: http.StatusUnauthorized,
		},
		{
			name: "expired",
			header: "Bearer " + signed(t, "s3cret", jwt.SigningMethodHS256, jwt.MapClaims{
				"email": "a@rm.io",
				"exp":   time.Now().Add(-time.Hour).Unix(),
			}),
			status: http.StatusUnauthorized,
		},
		{
			name:   "valid",
			header: "Bearer " + signed(t, "s3cret", jwt.SigningMethodHS256, jwt.MapClaims{"email": "a@rm.io"}),
			status: http.StatusOK,
			body:   "a@rm.io",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	r := gin.New()
	r.Use(RequestIDMiddleware(), RecoveryMiddleware(log))
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal server error")
	assert.Equal(t, "req-1", w.Header().Get(RequestIDHeader))
}

func TestRequestIDMiddleware_Generates(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Len(t, w.Header().Get(RequestIDHeader), 36)
	assert.Equal(t, w.Header().Get(RequestIDHeader), w.Body.String())
}

func TestCORSMiddleware(t *testing.T) {
	preflight := func(r *gin.Engine, origin string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/alerts", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		r.ServeHTTP(w, req)
		return w
	}

	restricted := gin.New()
	restricted.Use(CORSMiddleware([]string{"https://rm.example.com"}))
	restricted.POST("/api/v1/alerts", func(c *gin.Context) {})

	w := preflight(restricted, "https://rm.example.com")
	assert.Equal(t, "https://rm.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = preflight(restricted, "https://evil.example.com")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	open := gin.New()
	open.Use(CORSMiddleware([]string{"*"}))
	open.POST("/api/v1/alerts", func(c *gin.Context) {})

	w = preflight(open, "https://anywhere.example.com")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestLoggingAndMetricsMiddleware(t *testing.T) {
	log := logger.New(logger.Options{Level: "error", BatchSize: 100})
	defer log.Close()

	r := gin.New()
	r.Use(MetricsMiddleware(), LoggingMiddleware(log))
	r.GET("/api/v1/alerts/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/alerts/a-1", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, 3, log.Pending())
}
