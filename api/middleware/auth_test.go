package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nomadair/nomadair-backend/pkg/config"
)

var authTestConfig = config.JWTConfig{
	Secret: "test-signing-secret",
	Issuer: "nomadair-idp",
}

func mintToken(t *testing.T, userID uuid.UUID, role string, expiresIn time.Duration) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": userID.String(),
		"iss": authTestConfig.Issuer,
		"exp": time.Now().Add(expiresIn).Unix(),
		"iat": time.Now().Unix(),
	}
	if role != "" {
		claims["role"] = role
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(authTestConfig.Secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func runAuth(token string) (*httptest.ResponseRecorder, string, string) {
	var gotUserID, gotRole string
	handler := Auth(authTestConfig, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = UserIDFromContext(r.Context())
		gotRole = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/bookings", nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp, gotUserID, gotRole
}

func TestAuthAcceptsValidBearerToken(t *testing.T) {
	userID := uuid.New()
	resp, gotUserID, gotRole := runAuth("Bearer " + mintToken(t, userID, "admin", time.Hour))

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d: %s", resp.Code, resp.Body.String())
	}
	if gotUserID != userID.String() {
		t.Fatalf("user id not seeded, got %q", gotUserID)
	}
	if gotRole != "admin" {
		t.Fatalf("role not seeded, got %q", gotRole)
	}
}

func TestAuthRejectsMissingHeader(t *testing.T) {
	resp, _, _ := runAuth("")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	resp, _, _ := runAuth("Bearer " + mintToken(t, uuid.New(), "user", -time.Minute))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthRejectsForeignSignature(t *testing.T) {
	claims := jwt.MapClaims{
		"sub": uuid.New().String(),
		"iss": authTestConfig.Issuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("some-other-secret"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	resp, _, _ := runAuth("Bearer " + forged)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}
