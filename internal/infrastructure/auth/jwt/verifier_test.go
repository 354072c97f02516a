package jwt

import (
	"context"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
)

func TestVerifyIssuedToken(t *testing.T) {
	verifier, err := NewVerifier("secret", "docchat", "api")
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	token, err := verifier.Issue("user-1", "Aiko", []string{"reader", RoleAdmin}, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	session, err := verifier.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if session.UserID != "user-1" || session.Name != "Aiko" || !session.IsAdmin {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	verifier, _ := NewVerifier("secret", "", "")
	expired, _ := verifier.Issue("user-1", "", nil, -time.Minute)
	if _, err := verifier.Verify(context.Background(), expired); !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for expired token, got %v", err)
	}

	other, _ := NewVerifier("other-secret", "", "")
	foreign, _ := other.Issue("user-1", "", nil, time.Hour)
	if _, err := verifier.Verify(context.Background(), foreign); !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for foreign signature, got %v", err)
	}

	none := gojwt.NewWithClaims(gojwt.SigningMethodNone, gojwt.RegisteredClaims{Subject: "user-1", ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Hour))})
	unsigned, _ := none.SignedString(gojwt.UnsafeAllowNoneSignatureType)
	if _, err := verifier.Verify(context.Background(), unsigned); !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for unsigned token, got %v", err)
	}
}

func TestVerifyRequiresSubject(t *testing.T) {
	verifier, _ := NewVerifier("secret", "", "")
	token, _ := verifier.Issue("", "", nil, time.Hour)
	if _, err := verifier.Verify(context.Background(), token); !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
