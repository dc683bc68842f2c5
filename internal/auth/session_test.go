package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/grosir-api/internal/common"
)

const (
	testAPIKey = "api-key-123"
	testShop   = "demo-store.myshopify.com"
)

var testSecret = []byte("app-secret")

func signSessionToken(t *testing.T, alg jwa.SignatureAlgorithm, key any, mutate func(jwt.Token)) string {
	t.Helper()
	now := time.Now()
	token := jwt.New()
	_ = token.Set(jwt.IssuerKey, "https://"+testShop+"/admin")
	_ = token.Set("dest", "https://"+testShop)
	_ = token.Set(jwt.AudienceKey, testAPIKey)
	_ = token.Set(jwt.SubjectKey, "42")
	_ = token.Set(jwt.IssuedAtKey, now)
	_ = token.Set(jwt.NotBeforeKey, now.Add(-time.Second))
	_ = token.Set(jwt.ExpirationKey, now.Add(time.Minute))
	if mutate != nil {
		mutate(token)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(alg, key))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return string(signed)
}

func newVerifier() *SessionVerifier {
	return &SessionVerifier{APIKey: testAPIKey, Secret: testSecret}
}

func TestSessionVerifierSuccess(t *testing.T) {
	token := signSessionToken(t, jwa.HS256, testSecret, nil)

	session, err := newVerifier().Verify(token)
	if err != nil {
		t.Fatalf("expected token to verify, got %v", err)
	}
	if session.Shop != testShop {
		t.Fatalf("expected shop %s, got %s", testShop, session.Shop)
	}
	if session.UserID != "42" {
		t.Fatalf("expected user 42, got %s", session.UserID)
	}
}

func TestSessionVerifierAudienceMismatch(t *testing.T) {
	token := signSessionToken(t, jwa.HS256, testSecret, func(tok jwt.Token) {
		_ = tok.Set(jwt.AudienceKey, "another-app")
	})
	if _, err := newVerifier().Verify(token); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected ErrInvalidSessionToken, got %v", err)
	}
}

func TestSessionVerifierWrongSecret(t *testing.T) {
	token := signSessionToken(t, jwa.HS256, []byte("other-secret"), nil)
	if _, err := newVerifier().Verify(token); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected ErrInvalidSessionToken, got %v", err)
	}
}

func TestSessionVerifierExpired(t *testing.T) {
	token := signSessionToken(t, jwa.HS256, testSecret, nil)
	verifier := newVerifier()
	verifier.Now = func() time.Time { return time.Now().Add(10 * time.Minute) }
	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}

func TestSessionVerifierIssuerDestMismatch(t *testing.T) {
	token := signSessionToken(t, jwa.HS256, testSecret, func(tok jwt.Token) {
		_ = tok.Set(jwt.IssuerKey, "https://evil-store.myshopify.com/admin")
	})
	if _, err := newVerifier().Verify(token); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected issuer mismatch to fail, got %v", err)
	}
}

func TestSessionVerifierAlgorithmMismatch(t *testing.T) {
	token := signSessionToken(t, jwa.HS512, testSecret, nil)
	if _, err := newVerifier().Verify(token); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected algorithm mismatch to fail, got %v", err)
	}
}

func TestRequireSession(t *testing.T) {
	mw := Middleware{Verifier: newVerifier()}
	var gotShop, gotUser string
	handler := mw.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotShop, _ = common.Shop(r.Context())
		gotUser, _ = common.UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.Header.Set("Authorization", "Bearer "+signSessionToken(t, jwa.HS256, testSecret, nil))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotShop != testShop || gotUser != "42" {
		t.Fatalf("unexpected context values shop=%q user=%q", gotShop, gotUser)
	}

	missing := httptest.NewRecorder()
	handler.ServeHTTP(missing, httptest.NewRequest(http.MethodGet, "/api/products", nil))
	if missing.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", missing.Code)
	}
}
