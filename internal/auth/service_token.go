package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ScopeTrackActions allows an ERP module to report actions on behalf of users.
const ScopeTrackActions = "actions:track"

// DefaultServiceTokenTTL is used when no TTL is given.
const DefaultServiceTokenTTL = time.Hour

// ServiceToken is the payload of an HMAC-SHA256 scoped token held by another
// ERP module (attendance, documents, events...).
type ServiceToken struct {
	Sub    string   `json:"sub"` // module name
	Scopes []string `json:"scopes"`
	Exp    int64    `json:"exp"`
	Iat    int64    `json:"iat"`
	Jti    string   `json:"jti"`
}

// HasScope reports whether the token grants scope.
func (t *ServiceToken) HasScope(scope string) bool {
	for _, s := range t.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// ServiceAuthManager handles HMAC-SHA256 scoped tokens for ERP modules.
type ServiceAuthManager struct {
	secret []byte
	now    func() time.Time
}

// NewServiceAuthManager creates a service auth manager.
func NewServiceAuthManager(secret string) *ServiceAuthManager {
	return &ServiceAuthManager{secret: []byte(secret), now: time.Now}
}

// GenerateServiceToken creates a scoped token.
// Format: base64(payload).base64(signature)
func (m *ServiceAuthManager) GenerateServiceToken(module string, scopes []string, ttl time.Duration) (string, error) {
	if module == "" {
		return "", fmt.Errorf("module is required")
	}
	if ttl <= 0 {
		ttl = DefaultServiceTokenTTL
	}
	now := m.now()

	token := ServiceToken{
		Sub:    module,
		Scopes: scopes,
		Exp:    now.Add(ttl).Unix(),
		Iat:    now.Unix(),
		Jti:    uuid.New().String(),
	}

	payloadJSON, err := json.Marshal(token)
	if err != nil {
		return "", fmt.Errorf("marshal service token: %w", err)
	}

	payloadB64 := base64.RawURLEncoding.EncodeToString(payloadJSON)
	sigB64 := base64.RawURLEncoding.EncodeToString(m.sign(payloadB64))

	return payloadB64 + "." + sigB64, nil
}

// ValidateServiceToken verifies and decodes a service token.
func (m *ServiceAuthManager) ValidateServiceToken(tokenString string) (*ServiceToken, error) {
	i := strings.LastIndexByte(tokenString, '.')
	if i <= 0 {
		return nil, fmt.Errorf("invalid service token format")
	}
	payloadB64, sigB64 := tokenString[:i], tokenString[i+1:]

	actualSig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	if !hmac.Equal(m.sign(payloadB64), actualSig) {
		return nil, fmt.Errorf("invalid signature")
	}

	payloadJSON, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	var token ServiceToken
	if err := json.Unmarshal(payloadJSON, &token); err != nil {
		return nil, fmt.Errorf("unmarshal token: %w", err)
	}

	if m.now().Unix() > token.Exp {
		return nil, fmt.Errorf("token expired")
	}

	return &token, nil
}

func (m *ServiceAuthManager) sign(data string) []byte {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}
