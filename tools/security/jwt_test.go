package security

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("unit-test-secret")

func TestGenerateVerify(t *testing.T) {
	opts := DefaultOptions(testSecret)
	tok, exp, err := Generate(opts, "1001", RoleClient)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expiry in the past: %v", exp)
	}
	id, err := Verify(opts, tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.UserID != "1001" || id.Role != RoleClient {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestVerifyRejects(t *testing.T) {
	opts := DefaultOptions(testSecret)
	good, _, _ := Generate(opts, "1001", RoleClient)

	if _, err := Verify(DefaultOptions([]byte("other")), good); err == nil {
		t.Fatalf("wrong secret must fail")
	}
	if _, err := Verify(opts, ""); err == nil {
		t.Fatalf("empty token must fail")
	}
	if _, err := Verify(opts, "not-a-jwt"); err == nil {
		t.Fatalf("garbage must fail")
	}

	expired := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"me": "1001", "role": RoleClient, "exp": time.Now().Add(-time.Minute).Unix(),
	})
	s, _ := expired.SignedString(testSecret)
	if _, err := Verify(opts, s); err == nil {
		t.Fatalf("expired token must fail")
	}

	noUser := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{"role": RoleClient})
	s, _ = noUser.SignedString(testSecret)
	if _, err := Verify(opts, s); err == nil {
		t.Fatalf("token without user id must fail")
	}
}

func TestVerifyFallsBackToSub(t *testing.T) {
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{"sub": "2002", "role": "admin"})
	s, _ := tok.SignedString(testSecret)
	id, err := Verify(DefaultOptions(testSecret), s)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.UserID != "2002" || id.Role != "admin" {
		t.Fatalf("unexpected identity %+v", id)
	}
}
