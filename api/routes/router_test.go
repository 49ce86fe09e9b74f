package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gigmarket-backend/api/controllers"
	"github.com/angelmondragon/gigmarket-backend/internal/admin"
	"github.com/angelmondragon/gigmarket-backend/internal/gigs"
	"github.com/angelmondragon/gigmarket-backend/internal/realtime"
	"github.com/angelmondragon/gigmarket-backend/internal/users"
	pkgAuth "github.com/angelmondragon/gigmarket-backend/pkg/auth"
	"github.com/angelmondragon/gigmarket-backend/pkg/auth/session"
	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/metrics"
	"github.com/angelmondragon/gigmarket-backend/pkg/pagination"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type stubSessions struct{}

func (stubSessions) HasSession(context.Context, string) (bool, error) {
	return true, nil
}

// stubGigs answers the public listing; every other method is unused here.
type stubGigs struct {
	gigs.Service
	lastFilter gigs.ListFilter
}

func (s *stubGigs) List(_ context.Context, filter gigs.ListFilter) (pagination.Page[gigs.GigDTO], error) {
	s.lastFilter = filter
	return pagination.Page[gigs.GigDTO]{Items: []gigs.GigDTO{{ID: uuid.New(), Title: "Fix my sink"}}}, nil
}

type stubAdmin struct {
	admin.Service
	calls int
}

func (s *stubAdmin) ListUsers(context.Context, users.ListFilter) (pagination.Page[users.UserDTO], error) {
	s.calls++
	return pagination.Page[users.UserDTO]{Items: []users.UserDTO{}}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:                 "secret",
			Issuer:                 "issuer",
			ExpirationMinutes:      60,
			RefreshTokenTTLMinutes: 120,
		},
	}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
}

func newTestRouter(cfg *config.Config, deps Deps) http.Handler {
	if deps.Sessions == nil {
		deps.Sessions = stubSessions{}
	}
	return NewRouter(cfg, testLogger(), deps)
}

func buildToken(t *testing.T, cfg *config.Config, role enums.UserRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
		Plan:   enums.PlanTierFree,
		JTI:    session.NewAccessID(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter(testConfig(), Deps{
		Health: map[string]controllers.Pinger{"db": stubPinger{}, "redis": nil},
	})

	if resp := serve(router, httptest.NewRequest(http.MethodGet, "/health/live", nil)); resp.Code != http.StatusOK {
		t.Fatalf("expected live 200 got %d", resp.Code)
	}
	if resp := serve(router, httptest.NewRequest(http.MethodGet, "/health/ready", nil)); resp.Code != http.StatusOK {
		t.Fatalf("expected ready 200 got %d", resp.Code)
	}
}

func TestRouterBuildsWithoutDomainServices(t *testing.T) {
	var router http.Handler
	require.NotPanics(t, func() { router = newTestRouter(testConfig(), Deps{}) })

	resp := serve(router, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestHealthReadyFailsWhenDependencyDown(t *testing.T) {
	router := newTestRouter(testConfig(), Deps{
		Health: map[string]controllers.Pinger{"db": stubPinger{err: context.DeadlineExceeded}},
	})
	resp := serve(router, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestPrivateRoutesRejectMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig(), Deps{})
	for _, path := range []string{"/api/v1/ping", "/api/v1/gigs/mine", "/api/v1/notifications"} {
		resp := serve(router, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 got %d", path, resp.Code)
		}
	}
}

func TestPrivatePingSucceedsWithJWT(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, Deps{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleClient))
	resp := serve(router, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var body struct {
		Data struct {
			Role   string `json:"role"`
			UserID string `json:"user_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Data.Role != string(enums.UserRoleClient) || body.Data.UserID == "" {
		t.Fatalf("expected caller identity echoed, got %+v", body.Data)
	}
}

func TestPublicGigListingAllowsAnonymous(t *testing.T) {
	svc := &stubGigs{}
	router := newTestRouter(testConfig(), Deps{Gigs: svc})

	resp := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/gigs?city=Austin&limit=5", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastFilter.City != "Austin" || svc.lastFilter.Limit != 5 {
		t.Fatalf("unexpected filter %+v", svc.lastFilter)
	}

	var body struct {
		Data struct {
			Items []gigs.GigDTO `json:"items"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Data.Items) != 1 {
		t.Fatalf("expected one gig got %d", len(body.Data.Items))
	}
}

func TestPublicGigListingRejectsBadToken(t *testing.T) {
	router := newTestRouter(testConfig(), Deps{Gigs: &stubGigs{}})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/gigs", nil)
	req.Header.Set("Authorization", "Bearer nope")
	if resp := serve(router, req); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestCreateGigRequiresClientRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, Deps{Gigs: &stubGigs{}})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/gigs", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleProvider))
	if resp := serve(router, req); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for provider got %d", resp.Code)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	cfg := testConfig()
	svc := &stubAdmin{}
	router := newTestRouter(cfg, Deps{Admin: svc})

	for _, role := range []enums.UserRole{enums.UserRoleClient, enums.UserRoleProvider} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/users", nil)
		req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, role))
		if resp := serve(router, req); resp.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403 got %d", role, resp.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/users?role=provider", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleAdmin))
	if resp := serve(router, req); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin got %d", resp.Code)
	}
	if svc.calls != 1 {
		t.Fatalf("expected one admin call got %d", svc.calls)
	}
}

func TestRealtimeRequiresQueryToken(t *testing.T) {
	logg := testLogger()
	hub, err := realtime.NewHub(realtime.HubParams{Bus: realtime.NewLocalBus(), Logger: logg})
	if err != nil {
		t.Fatalf("new hub: %v", err)
	}
	router := newTestRouter(testConfig(), Deps{Hub: hub})

	resp := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/realtime", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestRealtimeRouteAbsentWithoutHub(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, Deps{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/realtime?token="+buildToken(t, cfg, enums.UserRoleClient), nil)
	if resp := serve(router, req); resp.Code == http.StatusOK || resp.Code == http.StatusSwitchingProtocols {
		t.Fatalf("expected no socket route got %d", resp.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	router := newTestRouter(testConfig(), Deps{
		Metrics:        metrics.NewHTTPMetrics(reg),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	serve(router, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	resp := serve(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}
