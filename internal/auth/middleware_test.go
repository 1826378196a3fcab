package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(t *testing.T, check func(r *http.Request)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticate(t *testing.T) {
	mgr := newTestJWTManager()
	token, err := mgr.GenerateToken("user-9", RoleStudent, "school-3")
	require.NoError(t, err)

	t.Run("valid token sets caller", func(t *testing.T) {
		h := Authenticate(mgr)(okHandler(t, func(r *http.Request) {
			caller := CallerFromContext(r.Context())
			require.NotNil(t, caller)
			assert.Equal(t, "user-9", caller.UserID)
			assert.Equal(t, RoleStudent, caller.Role)
			assert.Equal(t, "school-3", caller.SchoolID)
			assert.Equal(t, "user-9", SubjectFromContext(r.Context()))
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	for name, header := range map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic " + token,
		"garbage token":  "Bearer not-a-jwt",
	} {
		t.Run(name, func(t *testing.T) {
			h := Authenticate(mgr)(okHandler(t, nil))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	mgr := newTestJWTManager()
	h := Authenticate(mgr)(RequireRole(AdminRoles()...)(okHandler(t, nil)))

	tests := []struct {
		role string
		want int
	}{
		{RoleSuperAdmin, http.StatusOK},
		{RoleSchoolAdmin, http.StatusOK},
		{RoleTeacher, http.StatusForbidden},
		{RoleStudent, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			token, err := mgr.GenerateToken("u", tt.role, "school-1")
			require.NoError(t, err)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRequireRole_NoAuthContext(t *testing.T) {
	rec := httptest.NewRecorder()
	RequireRole(RoleSuperAdmin)(okHandler(t, nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateService(t *testing.T) {
	mgr := NewServiceAuthManager("service-secret")
	scoped, err := mgr.GenerateServiceToken("attendance", []string{ScopeTrackActions}, time.Hour)
	require.NoError(t, err)
	unscoped, err := mgr.GenerateServiceToken("attendance", []string{"reports:read"}, time.Hour)
	require.NoError(t, err)

	h := AuthenticateService(mgr, ScopeTrackActions)(okHandler(t, func(r *http.Request) {
		tok := ServiceFromContext(r.Context())
		require.NotNil(t, tok)
		assert.Equal(t, "attendance", tok.Sub)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"scoped", "Bearer " + scoped, http.StatusOK},
		{"missing scope", "Bearer " + unscoped, http.StatusForbidden},
		{"missing header", "", http.StatusUnauthorized},
		{"bad token", "Bearer abc.def", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
