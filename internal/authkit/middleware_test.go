package authkit

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newGateRouter(t *testing.T, users *testUserStore, clock Clock) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	configuration := ServerConfig{
		AccessSigningKey: []byte("test-signing-key"),
		AccessIssuer:     "tutorhub-auth",
		AccessTTL:        15 * time.Minute,
		RefreshTTL:       24 * time.Hour,
	}
	gate := NewGate(configuration, users, clock, nil, nil)

	router := gin.New()
	protected := router.Group("/api")
	protected.Use(gate.RequireAuth())
	protected.GET("/me", func(contextGin *gin.Context) {
		identity, _ := IdentityFromContext(contextGin)
		contextGin.JSON(http.StatusOK, gin.H{"id": identity.ID, "role": identity.Role})
	})

	admin := protected.Group("/admin")
	admin.Use(RequireRole(nil, nil, RoleAdmin))
	admin.GET("/stats", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func mintTestToken(t *testing.T, clock Clock, identity Identity) string {
	t.Helper()
	token, _, err := MintAccessToken(clock, identity, "tutorhub-auth", []byte("test-signing-key"), 15*time.Minute)
	if err != nil {
		t.Fatalf("mint error: %v", err)
	}
	return token
}

func performRequest(router *gin.Engine, method string, path string, authorization string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(method, path, nil)
	if authorization != "" {
		request.Header.Set("Authorization", authorization)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestGateRejectsMissingAndMalformedHeaders(t *testing.T) {
	t.Parallel()

	users := newTestUserStore()
	router := newGateRouter(t, users, nil)

	for _, authorization := range []string{"", "Basic abc", "Bearer", "token-without-scheme"} {
		recorder := performRequest(router, http.MethodGet, "/api/me", authorization)
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", authorization, recorder.Code)
		}
	}
}

func TestGateRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	reference := time.Unix(1700000000, 0).UTC()
	users := newTestUserStore()
	user := users.seed(t, "a@x.com", "secret1", RoleStudent, true)

	token := mintTestToken(t, fixedClock{timestamp: reference}, Identity{ID: user.ID, Email: user.Email, Role: user.Role})
	router := newGateRouter(t, users, fixedClock{timestamp: reference.Add(16 * time.Minute)})

	recorder := performRequest(router, http.MethodGet, "/api/me", "Bearer "+token)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", recorder.Code)
	}
}

func TestGateRejectsDeletedAndDeactivatedUsers(t *testing.T) {
	t.Parallel()

	users := newTestUserStore()
	user := users.seed(t, "a@x.com", "secret1", RoleStudent, true)
	router := newGateRouter(t, users, nil)
	token := mintTestToken(t, NewSystemClock(), Identity{ID: user.ID, Email: user.Email, Role: user.Role})

	// Token is honored while the account is intact.
	if recorder := performRequest(router, http.MethodGet, "/api/me", "Bearer "+token); recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 before deactivation, got %d", recorder.Code)
	}

	// Deactivation takes effect on the very next request, unexpired token or not.
	users.setActive(user.ID, false)
	if recorder := performRequest(router, http.MethodGet, "/api/me", "Bearer "+token); recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after deactivation, got %d", recorder.Code)
	}

	delete(users.byID, user.ID)
	if recorder := performRequest(router, http.MethodGet, "/api/me", "Bearer "+token); recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deleted user, got %d", recorder.Code)
	}
}

func TestRequireRoleEnforcesAllowList(t *testing.T) {
	t.Parallel()

	users := newTestUserStore()
	student := users.seed(t, "student@x.com", "secret1", RoleStudent, true)
	admin := users.seed(t, "admin@x.com", "secret1", RoleAdmin, true)
	router := newGateRouter(t, users, nil)

	studentToken := mintTestToken(t, NewSystemClock(), Identity{ID: student.ID, Email: student.Email, Role: student.Role})
	if recorder := performRequest(router, http.MethodGet, "/api/admin/stats", "Bearer "+studentToken); recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for student on admin route, got %d", recorder.Code)
	}

	adminToken := mintTestToken(t, NewSystemClock(), Identity{ID: admin.ID, Email: admin.Email, Role: admin.Role})
	if recorder := performRequest(router, http.MethodGet, "/api/admin/stats", "Bearer "+adminToken); recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", recorder.Code)
	}
}

func TestRequireRoleWithoutGateIsUnauthorized(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	// Policy mounted without the gate in front of it.
	router := gin.New()
	router.GET("/naked", RequireRole(nil, nil, RoleAdmin), func(contextGin *gin.Context) {
		contextGin.Status(http.StatusOK)
	})
	recorder := performRequest(router, http.MethodGet, "/naked", "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when identity is absent, got %d", recorder.Code)
	}
}

func TestGateAttachesResolvedIdentity(t *testing.T) {
	t.Parallel()

	users := newTestUserStore()
	user := users.seed(t, "tutor@x.com", "secret1", RoleTutor, true)
	router := newGateRouter(t, users, nil)
	token := mintTestToken(t, NewSystemClock(), Identity{ID: user.ID, Email: user.Email, Role: user.Role})

	recorder := performRequest(router, http.MethodGet, "/api/me", "Bearer "+token)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	body := recorder.Body.String()
	if want := `"id":"` + user.ID + `"`; !strings.Contains(body, want) {
		t.Fatalf("expected body to carry %s, got %s", want, body)
	}
	if !strings.Contains(body, `"role":"TUTOR"`) {
		t.Fatalf("expected tutor role in body, got %s", body)
	}
}

func TestGateReturnsServerErrorOnStoreFailure(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	outage := errors.New("dial tcp: connection refused")
	configuration := ServerConfig{
		AccessSigningKey: []byte("test-signing-key"),
		AccessIssuer:     "tutorhub-auth",
		AccessTTL:        15 * time.Minute,
		RefreshTTL:       24 * time.Hour,
	}
	gate := NewGate(configuration, failingUserStore{err: outage}, nil, nil, nil)

	router := gin.New()
	router.GET("/api/me", gate.RequireAuth(), func(contextGin *gin.Context) {
		contextGin.Status(http.StatusOK)
	})

	token := mintTestToken(t, NewSystemClock(), Identity{ID: "user-1", Email: "a@x.com", Role: RoleStudent})
	recorder := performRequest(router, http.MethodGet, "/api/me", "Bearer "+token)
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 during store outage, got %d", recorder.Code)
	}
}
