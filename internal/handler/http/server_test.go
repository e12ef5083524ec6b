package http

import (
	"Clixy-Backend/internal/analytics"
	"Clixy-Backend/internal/auth"
	"Clixy-Backend/internal/domain"
	"Clixy-Backend/internal/geo"
	"Clixy-Backend/internal/ratelimit"
	"Clixy-Backend/internal/repository"
	"Clixy-Backend/internal/repository/memory"
	"Clixy-Backend/internal/service"
	"Clixy-Backend/pkg/useragent"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testSecret    = "test-secret"
	instagramUA   = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148 Instagram 300.0.0.0"
	testRateLimit = 5
)

type testEnv struct {
	handler   http.Handler
	storage   *memory.MemStorage
	processor *analytics.Processor
	link      *domain.Link
	geoCalls  *atomic.Int32
}

type envOptions struct {
	geoDelay time.Duration
	geoCode  string
	limiter  ratelimit.Limiter
	links    repository.LinkReader
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	ctx := context.Background()
	log := zap.NewNop()

	if opts.geoCode == "" {
		opts.geoCode = "FR"
	}

	var geoCalls atomic.Int32
	geoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		geoCalls.Add(1)
		if opts.geoDelay > 0 {
			select {
			case <-time.After(opts.geoDelay):
			case <-r.Context().Done():
				return
			}
		}
		_, _ = w.Write([]byte(`{"countryCode":"` + opts.geoCode + `"}`))
	}))
	t.Cleanup(geoServer.Close)

	storage := memory.New()
	link := &domain.Link{UserID: "owner", Slug: "abc1234", Name: "Launch", DestinationURL: "https://example.com/landing?utm_source=clixy"}
	require.NoError(t, storage.SaveLink(ctx, link))

	resolver, err := geo.NewResolver(geo.Config{
		TrustEdgeHeaders: true,
		EdgeHeaders:      []string{"X-Vercel-IP-Country", "CF-IPCountry"},
		Endpoint:         geoServer.URL,
		Timeout:          200 * time.Millisecond,
	}, log)
	require.NoError(t, err)

	parser, err := useragent.NewParser("", log)
	require.NoError(t, err)

	cfg := analytics.DefaultConfig()
	cfg.ShutdownTimeout = 5 * time.Second
	cfg.VisitorSalt = "salt"
	processor := analytics.NewProcessor(storage, analytics.NewClassifier(parser), resolver, log, cfg)
	require.NoError(t, processor.Start())
	t.Cleanup(func() { _ = processor.Stop() })

	limiter := opts.limiter
	if limiter == nil {
		limiter, err = ratelimit.NewMemoryLimiter(ratelimit.Limit{MaxHits: testRateLimit, Window: time.Minute}, 100)
		require.NoError(t, err)
	}

	links := opts.links
	if links == nil {
		links = storage
	}

	jwtService := auth.NewJWTService(&auth.JWTConfig{SecretKey: []byte(testSecret)})
	server := NewServer(
		NewRedirectHandler(links, limiter, processor, log),
		NewHealthHandler(storage, processor, log),
		NewStatsHandler(service.NewStatsService(storage, log), log),
		auth.NewMiddleware(jwtService, []string{"http://localhost:3000"}, log),
		log,
	)

	return &testEnv{
		handler:   server.SetupRoutes(),
		storage:   storage,
		processor: processor,
		link:      link,
		geoCalls:  &geoCalls,
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) clicks(t *testing.T) []*domain.Click {
	t.Helper()
	clicks, err := e.storage.RecentClicks(context.Background(), e.link.ID, 100)
	require.NoError(t, err)
	return clicks
}

func (e *testEnv) waitForClicks(t *testing.T, n int) []*domain.Click {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(e.clicks(t)) == n
	}, 3*time.Second, 10*time.Millisecond)
	return e.clicks(t)
}

func TestRedirect_Found(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	req := httptest.NewRequest(http.MethodGet, "/r/abc1234", nil)
	req.Header.Set("User-Agent", instagramUA)
	req.Header.Set("CF-IPCountry", "de")
	rec := env.do(req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://example.com/landing?utm_source=clixy", rec.Header().Get("Location"))
	assert.Equal(t, "no-store, no-cache, must-revalidate", rec.Header().Get("Cache-Control"))

	clicks := env.waitForClicks(t, 1)
	c := clicks[0]
	assert.Equal(t, env.link.ID, c.LinkID)
	assert.Equal(t, "Instagram", c.Platform)
	assert.Equal(t, domain.DeviceMobile, c.Device)
	assert.Equal(t, "DE", c.Country)
	require.NotNil(t, c.UserAgent)
	assert.Equal(t, instagramUA, *c.UserAgent)
	assert.Nil(t, c.Referrer)
	assert.True(t, c.IsUnique)
	assert.Zero(t, env.geoCalls.Load(), "edge header avoids the lookup")
}

func TestRedirect_ReferrerSpellings(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	req := httptest.NewRequest(http.MethodGet, "/r/abc1234", nil)
	req.Header.Set("Referrer", "https://www.youtube.com/watch?v=1")
	req.Header.Set("X-Vercel-IP-Country", "US")
	require.Equal(t, http.StatusFound, env.do(req).Code)

	c := env.waitForClicks(t, 1)[0]
	require.NotNil(t, c.Referrer)
	assert.Equal(t, "https://www.youtube.com/watch?v=1", *c.Referrer)
	assert.Equal(t, "YouTube", c.Platform)
	assert.Equal(t, domain.DeviceUnknown, c.Device)
}

func TestRedirect_NotFound(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/r/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Link Not Found")
	assert.Contains(t, rec.Body.String(), "This tracking link does not exist or has been removed.")

	require.NoError(t, env.processor.Stop())
	assert.Zero(t, env.processor.GetStats().Submitted)
	assert.Empty(t, env.clicks(t))
}

func TestRedirect_RateLimited(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	for i := 0; i < testRateLimit; i++ {
		req := httptest.NewRequest(http.MethodGet, "/r/abc1234", nil)
		req.Header.Set("CF-IPCountry", "US")
		require.Equal(t, http.StatusFound, env.do(req).Code, "hit %d", i+1)
	}

	rec := env.do(httptest.NewRequest(http.MethodGet, "/r/abc1234", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too Many Requests", rec.Body.String())
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Empty(t, rec.Header().Get("Location"))

	// Limits are per slug, so unknown slugs still get their own answer.
	assert.Equal(t, http.StatusNotFound, env.do(httptest.NewRequest(http.MethodGet, "/r/other", nil)).Code)

	require.NoError(t, env.processor.Stop())
	assert.Len(t, env.clicks(t), testRateLimit)
}

func TestRedirect_SlowGeolocation(t *testing.T) {
	env := newTestEnv(t, envOptions{geoDelay: 2 * time.Second})

	req := httptest.NewRequest(http.MethodGet, "/r/abc1234", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7")

	start := time.Now()
	rec := env.do(req)
	elapsed := time.Since(start)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Less(t, elapsed, 200*time.Millisecond, "redirect must not wait for geolocation")

	c := env.waitForClicks(t, 1)[0]
	assert.Equal(t, domain.CountryUnknown, c.Country)
	assert.Equal(t, int32(1), env.geoCalls.Load())
}

func TestRedirect_GeolocationLookup(t *testing.T) {
	env := newTestEnv(t, envOptions{geoCode: "JP"})

	req := httptest.NewRequest(http.MethodGet, "/r/abc1234", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	require.Equal(t, http.StatusFound, env.do(req).Code)

	assert.Equal(t, "JP", env.waitForClicks(t, 1)[0].Country)
}

func TestRedirect_Loopback(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	req := httptest.NewRequest(http.MethodGet, "/r/abc1234", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	require.Equal(t, http.StatusFound, env.do(req).Code)

	assert.Equal(t, domain.CountryLocal, env.waitForClicks(t, 1)[0].Country)
	assert.Zero(t, env.geoCalls.Load())
}

type MockLimiter struct {
	mock.Mock
}

func (m *MockLimiter) Allow(ctx context.Context, key string) (ratelimit.Decision, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(ratelimit.Decision), args.Error(1)
}

func TestRedirect_LimiterFailureFailsOpen(t *testing.T) {
	limiter := new(MockLimiter)
	limiter.On("Allow", mock.Anything, "abc1234").Return(ratelimit.Decision{}, errors.New("redis: connection refused"))

	env := newTestEnv(t, envOptions{limiter: limiter})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/r/abc1234", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	limiter.AssertExpectations(t)
}

type failingLinks struct{}

func (failingLinks) GetLinkBySlug(context.Context, string) (*domain.Link, error) {
	return nil, errors.New("connection reset by peer")
}

func TestRedirect_DatastoreFailureIsNotFound(t *testing.T) {
	env := newTestEnv(t, envOptions{links: failingLinks{}})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/r/abc1234", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Link Not Found")
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	for _, country := range []string{"US", "US", "DE"} {
		req := httptest.NewRequest(http.MethodGet, "/r/abc1234", nil)
		req.Header.Set("CF-IPCountry", country)
		require.Equal(t, http.StatusFound, env.do(req).Code)
	}
	env.waitForClicks(t, 3)

	t.Run("owner", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/links/abc1234/stats", nil)
		req.Header.Set("Authorization", bearer(t, "owner"))
		rec := env.do(req)

		require.Equal(t, http.StatusOK, rec.Code)
		var stats service.LinkStats
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
		assert.Equal(t, int64(3), stats.TotalClicks)
		assert.Equal(t, 2, stats.UniqueCountries)
		require.NotEmpty(t, stats.Countries)
		assert.Equal(t, service.Breakdown{Label: "US", Count: 2, Percentage: 66.7}, stats.Countries[0])
		assert.Len(t, stats.RecentClicks, 3)
	})

	t.Run("other user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/links/abc1234/stats", nil)
		req.Header.Set("Authorization", bearer(t, "someone-else"))
		assert.Equal(t, http.StatusNotFound, env.do(req).Code)
	})

	t.Run("anonymous", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, env.do(httptest.NewRequest(http.MethodGet, "/api/links/abc1234/stats", nil)).Code)
	})
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("database is down") }

func TestHealth(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	t.Run("healthy", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body.Status)
		assert.Equal(t, "healthy", body.DatabaseStatus)
	})

	t.Run("unhealthy", func(t *testing.T) {
		h := NewHealthHandler(failingPinger{}, env.processor, zap.NewNop())
		rec := httptest.NewRecorder()
		h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("ready", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, env.do(httptest.NewRequest(http.MethodGet, "/ready", nil)).Code)
	})

	t.Run("metrics", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/r/abc1234", nil)
		req.Header.Set("CF-IPCountry", "US")
		require.Equal(t, http.StatusFound, env.do(req).Code)

		rec := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body MetricsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.Analytics.Started)
		assert.Equal(t, int64(1), body.Analytics.Submitted)
	})
}
