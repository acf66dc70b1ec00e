package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-that-is-at-least-32-chars"

// newTestTokenService creates a TokenService with a fixed secret so tests
// are deterministic.
func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService(testSecret, time.Hour, "HomeLibrary")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

// =========================================================================
// TOKEN SERVICE CONSTRUCTION TESTS
// =========================================================================

func TestNewTokenService_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		ttl    time.Duration
		issuer string
	}{
		{"short secret", "short", time.Hour, "HomeLibrary"},
		{"31 chars", strings.Repeat("x", 31), time.Hour, "HomeLibrary"},
		{"zero ttl", testSecret, 0, "HomeLibrary"},
		{"no issuer", testSecret, time.Hour, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTokenService(tt.secret, tt.ttl, tt.issuer); err == nil {
				t.Fatal("NewTokenService() should have failed")
			}
		})
	}
}

func TestNewTokenService_ExactMinimum(t *testing.T) {
	if _, err := NewTokenService(strings.Repeat("x", MinSecretLength), time.Minute, "HomeLibrary"); err != nil {
		t.Fatalf("NewTokenService() unexpected error: %v", err)
	}
}

// =========================================================================
// GENERATE / VALIDATE TESTS
// =========================================================================

func TestGenerate_LooksLikeJWT(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate(42)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got := strings.Count(token, "."); got != 2 {
		t.Errorf("Generate() token has %d dots, want 2", got)
	}
}

func TestValidate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate(42)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	got, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got != 42 {
		t.Errorf("Validate() userID = %d, want 42", got)
	}
}

func TestValidate_ExpiredToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.GenerateWithDuration(42, -1*time.Second)
	if err != nil {
		t.Fatalf("GenerateWithDuration() error = %v", err)
	}

	_, err = ts.Validate(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Validate() error = %v, want ErrTokenExpired", err)
	}
}

func TestValidate_InvalidTokens(t *testing.T) {
	ts := newTestTokenService(t)
	good, _ := ts.Generate(42)

	other, _ := NewTokenService("another-secret-that-is-32-chars-long", time.Hour, "HomeLibrary")
	wrongSecret, _ := other.Generate(42)

	otherIssuer, _ := NewTokenService(testSecret, time.Hour, "SomeoneElse")
	wrongIssuer, _ := otherIssuer.Generate(42)

	badSubject := signRaw(t, jwt.RegisteredClaims{
		Subject:   "not-a-number",
		Issuer:    "HomeLibrary",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	noExpiry := signRaw(t, jwt.RegisteredClaims{Subject: "42", Issuer: "HomeLibrary"})

	tests := map[string]string{
		"empty":        "",
		"garbage":      "not.a.jwt",
		"tampered":     good[:len(good)-3] + "xxx",
		"wrong secret": wrongSecret,
		"wrong issuer": wrongIssuer,
		"bad subject":  badSubject,
		"no expiry":    noExpiry,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ts.Validate(token)
			if !errors.Is(err, ErrTokenInvalid) {
				t.Fatalf("Validate() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}

func TestValidate_RejectsNoneAlgorithm(t *testing.T) {
	ts := newTestTokenService(t)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "42",
		Issuer:    "HomeLibrary",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing none token: %v", err)
	}

	if _, err := ts.Validate(token); err == nil {
		t.Fatal("Validate() accepted an alg=none token")
	}
}

func signRaw(t *testing.T, c jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	return s
}
