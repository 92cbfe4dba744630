package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fabtrack/fabtrack/internal/auth"
	"github.com/fabtrack/fabtrack/internal/directory"
	"github.com/fabtrack/fabtrack/internal/shared"
	_ "github.com/fabtrack/fabtrack/testing"
)

const (
	adminEmail    = "admin@fab.test"
	clientDefault = "client-pass"
)

type stubDirectory struct {
	clients []directory.Client
	err     error
}

func (d stubDirectory) Lookup(ctx context.Context, email string) (directory.Client, error) {
	if d.err != nil {
		return directory.Client{}, d.err
	}
	for _, c := range d.clients {
		if shared.SameEmail(c.Email, email) {
			return c, nil
		}
	}
	return directory.Client{}, shared.ErrNotFound
}

type authEnv struct {
	handler  *auth.Handler
	service  *auth.Service
	repo     *auth.MemoryRepository
	sessions *shared.SessionManager
}

func newAuthEnv(t *testing.T, dir auth.Directory) *authEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(redisClient, "test_session", time.Hour, false)
	repo := auth.NewMemoryRepository()
	svc := auth.NewService(repo, dir, auth.Config{
		AdminEmail:            adminEmail,
		AdminDefaultPassword:  "initial-pass",
		ClientDefaultPassword: clientDefault,
	}, nil)
	require.NoError(t, svc.EnsureAdmin(context.Background()))
	return &authEnv{
		handler:  auth.NewHandler(nil, svc, sessions, shared.NewCSRFManager("csrfsecret")),
		service:  svc,
		repo:     repo,
		sessions: sessions,
	}
}

// serve runs fn with a session loaded from cookie and commits it afterwards.
func (e *authEnv) serve(t *testing.T, fn http.HandlerFunc, method, body string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, "/auth", nil)
	} else {
		req = httptest.NewRequest(method, "/auth", strings.NewReader(body))
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	sess, err := e.sessions.Load(context.Background(), req)
	require.NoError(t, err)
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)
	res := httptest.NewRecorder()
	fn(res, req)
	require.NoError(t, e.sessions.Commit(ctx, res, req, sess))
	return res
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newAuthEnv(t, stubDirectory{})
	res := env.serve(t, env.handler.HandleLoginForTest, http.MethodPost, `{"email":"admin@fab.test","password":"wrongpass"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Empty(t, res.Result().Cookies(), "failed login must not start a session")
}

func TestAdminLoginAndMe(t *testing.T) {
	env := newAuthEnv(t, stubDirectory{})
	res := env.serve(t, env.handler.HandleLoginForTest, http.MethodPost, `{"email":"ADMIN@fab.test","password":"initial-pass"}`, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	var body struct {
		User      shared.Principal `json:"user"`
		CSRFToken string           `json:"csrfToken"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, shared.RoleAdmin, body.User.Role)
	assert.NotEmpty(t, body.CSRFToken)

	cookies := res.Result().Cookies()
	require.Len(t, cookies, 1)

	me := env.serve(t, env.handler.MeForTest, http.MethodGet, "", cookies)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), adminEmail)
	assert.Contains(t, me.Body.String(), body.CSRFToken)
}

func TestClientLoginUsesDirectory(t *testing.T) {
	dir := stubDirectory{clients: []directory.Client{{Name: "Budi", Email: "budi@client.test"}}}
	env := newAuthEnv(t, dir)

	res := env.serve(t, env.handler.HandleLoginForTest, http.MethodPost, `{"email":"Budi@Client.test","password":"client-pass"}`, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Contains(t, res.Body.String(), `"role":"client"`)
	assert.Contains(t, res.Body.String(), `"name":"Budi"`)

	res = env.serve(t, env.handler.HandleLoginForTest, http.MethodPost, `{"email":"ghost@client.test","password":"client-pass"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = env.serve(t, env.handler.HandleLoginForTest, http.MethodPost, `{"email":"budi@client.test","password":"nope"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestClientLoginDuringDirectoryOutage(t *testing.T) {
	env := newAuthEnv(t, stubDirectory{err: shared.ErrBackingService})
	res := env.serve(t, env.handler.HandleLoginForTest, http.MethodPost, `{"email":"budi@client.test","password":"client-pass"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
}

func TestLogoutDestroysSession(t *testing.T) {
	env := newAuthEnv(t, stubDirectory{})
	res := env.serve(t, env.handler.HandleLoginForTest, http.MethodPost, `{"email":"admin@fab.test","password":"initial-pass"}`, nil)
	require.Equal(t, http.StatusOK, res.Code)
	cookies := res.Result().Cookies()

	out := env.serve(t, env.handler.LogoutForTest, http.MethodPost, "", cookies)
	assert.Equal(t, http.StatusNoContent, out.Code)

	me := env.serve(t, env.handler.MeForTest, http.MethodGet, "", cookies)
	assert.Equal(t, http.StatusUnauthorized, me.Code)
}

func TestChangePassword(t *testing.T) {
	env := newAuthEnv(t, stubDirectory{})
	ctx := context.Background()
	admin := shared.Principal{Email: adminEmail, Role: shared.RoleAdmin}

	assert.ErrorIs(t, env.service.ChangePassword(ctx, admin, "short", "short"), shared.ErrValidation)
	assert.ErrorIs(t, env.service.ChangePassword(ctx, admin, "long-enough", "different"), shared.ErrValidation)
	tooLong := strings.Repeat("x", auth.MaxPasswordBytes+1)
	assert.ErrorIs(t, env.service.ChangePassword(ctx, admin, tooLong, tooLong), shared.ErrValidation)
	assert.ErrorIs(t, env.service.ChangePassword(ctx, shared.Principal{Email: "c@x", Role: shared.RoleClient}, "long-enough", "long-enough"), shared.ErrForbidden)

	require.NoError(t, env.service.ChangePassword(ctx, admin, "long-enough", "long-enough"))
	cred, err := env.repo.GetAdmin(ctx)
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte("long-enough")))

	_, err = env.service.Authenticate(ctx, adminEmail, "initial-pass")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	p, err := env.service.Authenticate(ctx, adminEmail, "long-enough")
	require.NoError(t, err)
	assert.True(t, p.IsAdmin())

	require.NoError(t, env.service.EnsureAdmin(ctx))
	_, err = env.service.Authenticate(ctx, adminEmail, "long-enough")
	assert.NoError(t, err, "seeding never overwrites an existing credential")
}

func TestChangePasswordRejectsOverlongPassword(t *testing.T) {
	env := newAuthEnv(t, stubDirectory{})
	res := env.serve(t, env.handler.HandleLoginForTest, http.MethodPost, `{"email":"admin@fab.test","password":"initial-pass"}`, nil)
	require.Equal(t, http.StatusOK, res.Code)

	long := strings.Repeat("p", auth.MaxPasswordBytes+1)
	body := `{"newPassword":"` + long + `","confirmPassword":"` + long + `"}`
	out := env.serve(t, env.handler.ChangePasswordForTest, http.MethodPost, body, res.Result().Cookies())
	assert.Equal(t, http.StatusBadRequest, out.Code)
}
