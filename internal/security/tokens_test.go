package security

import (
	"testing"
	"time"
)

func TestTokenProvider_IssuePairAndValidate(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	pr := Principal{UserID: "user-1", IdentityID: "identity-1", Role: "union"}
	pair, err := p.IssuePair(pr)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if pair.Access == "" || pair.Refresh == "" {
		t.Fatal("IssuePair returned empty tokens")
	}
	if !pair.RefreshExpiresAt.After(pair.AccessExpiresAt) {
		t.Error("refresh token should outlive access token")
	}

	claims, err := p.ValidateAccess(pair.Access)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if got := claims.Principal(); got != pr {
		t.Errorf("Principal = %+v, want %+v", got, pr)
	}

	claims, err = p.ValidateRefresh(pair.Refresh)
	if err != nil {
		t.Fatalf("ValidateRefresh: %v", err)
	}
	if claims.Subject != "user-1" || claims.Role != "union" {
		t.Errorf("refresh claims = %+v", claims)
	}
}

func TestTokenProvider_RejectsWrongTokenType(t *testing.T) {
	p, _ := NewTestTokenProvider()
	pair, err := p.IssuePair(Principal{UserID: "u", IdentityID: "i", Role: "admin"})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if _, err := p.ValidateAccess(pair.Refresh); err != ErrInvalidToken {
		t.Errorf("ValidateAccess(refresh) err = %v, want ErrInvalidToken", err)
	}
	if _, err := p.ValidateRefresh(pair.Access); err != ErrInvalidToken {
		t.Errorf("ValidateRefresh(access) err = %v, want ErrInvalidToken", err)
	}
}

func TestTokenProvider_IssuePairRequiresUser(t *testing.T) {
	p, _ := NewTestTokenProvider()
	if _, err := p.IssuePair(Principal{IdentityID: "i"}); err == nil {
		t.Fatal("IssuePair without user id should fail")
	}
}

func TestTokenProvider_ValidateInvalid(t *testing.T) {
	p, _ := NewTestTokenProvider()
	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := p.ValidateAccess(tok); err != ErrInvalidToken {
			t.Errorf("ValidateAccess(%q) err = %v, want ErrInvalidToken", tok, err)
		}
	}
}

func TestTokenProvider_Expired(t *testing.T) {
	p, _ := NewTestTokenProvider()
	issuedAt := time.Now().Add(-2 * time.Hour)
	p.now = func() time.Time { return issuedAt }
	pair, err := p.IssuePair(Principal{UserID: "u", Role: "union"})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	p.now = time.Now
	if _, err := p.ValidateAccess(pair.Access); err != ErrInvalidToken {
		t.Errorf("expired access token err = %v, want ErrInvalidToken", err)
	}
	if _, err := p.ValidateRefresh(pair.Refresh); err != nil {
		t.Errorf("refresh token should still be valid: %v", err)
	}
}

func TestTokenProvider_WrongAudience(t *testing.T) {
	p, _ := NewTestTokenProvider()
	pair, _ := p.IssuePair(Principal{UserID: "u", Role: "union"})
	other := NewTokenProvider(p.privateKey, p.publicKey, p.issuer, "other-audience", time.Minute, time.Hour)
	if _, err := other.ValidateAccess(pair.Access); err != ErrInvalidToken {
		t.Errorf("wrong audience err = %v, want ErrInvalidToken", err)
	}
}

func TestTokenProvider_ECDSA(t *testing.T) {
	signer, pub, err := LoadSigningKeys("", "", true)
	if err != nil {
		t.Fatalf("LoadSigningKeys: %v", err)
	}
	p := NewTokenProvider(signer, pub, "iss", "aud", time.Minute, time.Hour)
	pair, err := p.IssuePair(Principal{UserID: "u", Role: "admin"})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if _, err := p.ValidateAccess(pair.Access); err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
}
