package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fabtrack/fabtrack/internal/shared"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := shared.PrincipalFromContext(r.Context())
		_, _ = w.Write([]byte(p.Email))
	})
}

func requestWithSession(sess *shared.Session) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	if sess != nil {
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	}
	return req
}

func TestRequireAuthenticated(t *testing.T) {
	m := Middleware{}
	h := m.RequireAuthenticated(okHandler())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, requestWithSession(nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, requestWithSession(&shared.Session{}))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	sess := &shared.Session{}
	sess.BindPrincipal(shared.Principal{Email: "a@client.test", Name: "A", Role: shared.RoleClient})
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, requestWithSession(sess))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "a@client.test", rr.Body.String())
}

func TestRequireRole(t *testing.T) {
	m := Middleware{}
	h := m.RequireAuthenticated(m.RequireRole(shared.RoleAdmin)(okHandler()))

	client := &shared.Session{}
	client.BindPrincipal(shared.Principal{Email: "a@client.test", Role: shared.RoleClient})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, requestWithSession(client))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	admin := &shared.Session{}
	admin.BindPrincipal(shared.Principal{Email: "admin@fab.test", Role: shared.RoleAdmin})
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, requestWithSession(admin))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	m.RequireRole(shared.RoleAdmin)(okHandler()).ServeHTTP(rr, requestWithSession(nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
