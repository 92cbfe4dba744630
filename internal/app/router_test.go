package app_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabtrack/fabtrack/internal/app"
	"github.com/fabtrack/fabtrack/internal/auth"
	"github.com/fabtrack/fabtrack/internal/directory"
	"github.com/fabtrack/fabtrack/internal/observability"
	"github.com/fabtrack/fabtrack/internal/orders"
	"github.com/fabtrack/fabtrack/internal/realtime"
	"github.com/fabtrack/fabtrack/internal/shared"
	_ "github.com/fabtrack/fabtrack/internal/testing/guard"
	"github.com/fabtrack/fabtrack/jobs"
)

const (
	adminEmail  = "admin@fab.test"
	adminPass   = "admin-pass"
	clientEmail = "budi@client.test"
	clientPass  = "client-pass"
)

type staticSource []directory.Client

func (s staticSource) Fetch(ctx context.Context) ([]directory.Client, error) {
	return s, nil
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := &app.Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second}

	sessions := shared.NewSessionManager(rdb, "fabtrack_session", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")
	metrics := observability.NewMetrics()

	dir := directory.NewService(staticSource{{Ref: "1", Name: "Budi", Email: clientEmail}}, rdb, time.Minute, nil)
	authSvc := auth.NewService(auth.NewMemoryRepository(), dir, auth.Config{
		AdminEmail:            adminEmail,
		AdminDefaultPassword:  adminPass,
		ClientDefaultPassword: clientPass,
	}, nil)
	require.NoError(t, authSvc.EnsureAdmin(context.Background()))

	orderSvc := orders.NewService(orders.ServiceConfig{
		Store:     orders.NewMemoryStore(),
		Directory: dir,
		Metrics:   metrics,
	})
	hub := realtime.NewHub(orderSvc.Cache(), nil)

	handler := app.NewRouter(app.RouterParams{
		Config:           cfg,
		SessionManager:   sessions,
		CSRFManager:      csrf,
		AuthHandler:      auth.NewHandler(nil, authSvc, sessions, csrf),
		OrdersHandler:    orders.NewHandler(nil, orderSvc),
		DirectoryHandler: directory.NewHandler(nil, dir),
		StreamHandler:    realtime.NewHandler(hub, nil),
		JobHandler:       jobs.NewHandler(nil, nil),
		Metrics:          metrics,
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

type browser struct {
	t     *testing.T
	base  string
	http  *http.Client
	token string
}

func newBrowser(t *testing.T, srv *httptest.Server) *browser {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{t: t, base: srv.URL, http: &http.Client{Jar: jar}}
}

func (b *browser) do(method, path, body string) (int, string) {
	b.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, b.base+path, reader)
	require.NoError(b.t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.token != "" {
		req.Header.Set(shared.CSRFHeader, b.token)
	}
	res, err := b.http.Do(req)
	require.NoError(b.t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(b.t, err)
	return res.StatusCode, string(data)
}

func (b *browser) login(email, password string) {
	b.t.Helper()
	code, body := b.do(http.MethodGet, "/auth/csrf", "")
	require.Equal(b.t, http.StatusOK, code, body)
	b.token = csrfToken(b.t, body)

	code, body = b.do(http.MethodPost, "/auth/login", `{"email":"`+email+`","password":"`+password+`"}`)
	require.Equal(b.t, http.StatusOK, code, body)
	b.token = csrfToken(b.t, body)
}

func csrfToken(t *testing.T, body string) string {
	t.Helper()
	var out struct {
		CSRFToken string `json:"csrfToken"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	require.NotEmpty(t, out.CSRFToken)
	return out.CSRFToken
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newServer(t)
	b := newBrowser(t, srv)

	code, body := b.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	code, body = b.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "fabtrack_http_requests_total")
}

func TestAnonymousRequestsAreRejected(t *testing.T) {
	srv := newServer(t)
	b := newBrowser(t, srv)

	code, _ := b.do(http.MethodGet, "/api/orders/", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = b.do(http.MethodGet, "/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = b.do(http.MethodPost, "/auth/login", `{"email":"admin@fab.test","password":"admin-pass"}`)
	assert.Equal(t, http.StatusForbidden, code, "login without a csrf token")
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	srv := newServer(t)
	admin := newBrowser(t, srv)
	admin.login(adminEmail, adminPass)

	code, body := admin.do(http.MethodPost, "/api/orders/", `{"clientEmail":"budi@client.test"}`)
	require.Equal(t, http.StatusCreated, code, body)
	var created orders.OrderView
	require.NoError(t, json.Unmarshal([]byte(body), &created))
	assert.Equal(t, "quotation", string(created.Stage))

	code, body = admin.do(http.MethodPut, "/api/orders/"+created.ID+"/quotation", `{"link":"https://docs.example.com/q1"}`)
	require.Equal(t, http.StatusOK, code, body)

	saved := admin.token
	admin.token = ""
	code, _ = admin.do(http.MethodPost, "/api/orders/"+created.ID+"/advance", "")
	assert.Equal(t, http.StatusForbidden, code, "mutations need the csrf header")
	admin.token = saved

	client := newBrowser(t, srv)
	client.login(clientEmail, clientPass)

	code, body = client.do(http.MethodGet, "/api/orders/", "")
	require.Equal(t, http.StatusOK, code)
	var mine []orders.OrderView
	require.NoError(t, json.Unmarshal([]byte(body), &mine))
	require.Len(t, mine, 1)

	code, body = client.do(http.MethodPost, "/api/orders/"+created.ID+"/decisions/approve-quotation", `{"value":true}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Contains(t, body, `"advanced":true`)
	assert.Contains(t, body, `"to":"material"`)

	code, _ = client.do(http.MethodGet, "/api/clients/", "")
	assert.Equal(t, http.StatusForbidden, code)

	code, body = admin.do(http.MethodGet, "/api/clients/", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, clientEmail)

	code, body = admin.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `fabtrack_stage_transitions_total{from="quotation",override="false",to="material"} 1`)

	code, _ = client.do(http.MethodPost, "/auth/logout", "")
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = client.do(http.MethodGet, "/api/orders/", "")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestJobsHealthRequiresAdmin(t *testing.T) {
	srv := newServer(t)
	client := newBrowser(t, srv)
	client.login(clientEmail, clientPass)

	code, _ := client.do(http.MethodGet, "/jobs/health", "")
	assert.Equal(t, http.StatusForbidden, code)

	admin := newBrowser(t, srv)
	admin.login(adminEmail, adminPass)
	code, body := admin.do(http.MethodGet, "/jobs/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"queue":"default"`)
}
