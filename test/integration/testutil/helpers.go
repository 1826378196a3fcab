//go:build integration

package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/schoolerp/gamification/internal/auth"
)

// UserToken mints a JWT for a fresh user with the given role and returns
// the token and the user ID.
func (env *TestEnv) UserToken(role string) (token, userID string) {
	env.t.Helper()
	userID = uuid.NewString()
	token, err := env.JWTMgr.GenerateToken(userID, role, "school-1")
	if err != nil {
		env.t.Fatalf("UserToken: %v", err)
	}
	return token, userID
}

// ServiceToken mints a module token carrying the given scopes.
func (env *TestEnv) ServiceToken(module string, scopes ...string) string {
	env.t.Helper()
	token, err := env.ServiceAuth.GenerateServiceToken(module, scopes, auth.DefaultServiceTokenTTL)
	if err != nil {
		env.t.Fatalf("ServiceToken: %v", err)
	}
	return token
}

// GET performs an unauthenticated GET.
func (env *TestEnv) GET(path string) *http.Response {
	env.t.Helper()
	resp, err := http.Get(env.Server.URL + path)
	if err != nil {
		env.t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

// AuthGET performs a GET with a bearer token.
func (env *TestEnv) AuthGET(path, token string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodGet, path, nil, map[string]string{"Authorization": "Bearer " + token})
}

// AuthPOST performs a JSON POST with a bearer token.
func (env *TestEnv) AuthPOST(path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	return env.POSTWithHeaders(path, body, map[string]string{"Authorization": "Bearer " + token})
}

// POSTWithHeaders performs a JSON POST with arbitrary headers.
func (env *TestEnv) POSTWithHeaders(path string, body interface{}, headers map[string]string) *http.Response {
	env.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			env.t.Fatalf("POST %s: encode: %v", path, err)
		}
	}
	return env.do(http.MethodPost, path, &buf, headers)
}

// CompleteAction posts an action for the token's user.
func (env *TestEnv) CompleteAction(token, actionType string) *http.Response {
	env.t.Helper()
	return env.AuthPOST("/gamification/actions/complete", map[string]string{"actionType": actionType}, token)
}

func (env *TestEnv) do(method, path string, body *bytes.Buffer, headers map[string]string) *http.Response {
	env.t.Helper()
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequest(method, env.Server.URL+path, body)
	} else {
		req, err = http.NewRequest(method, env.Server.URL+path, nil)
	}
	if err != nil {
		env.t.Fatalf("%s %s: new request: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}
