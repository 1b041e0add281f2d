package security

import (
	"testing"
)

func TestHasher_HashAndCompare(t *testing.T) {
	h := NewHasher(4)
	secret := []byte("0012345678")
	hash, err := h.Hash(secret)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "" || hash == string(secret) {
		t.Fatal("Hash returned empty or plaintext")
	}
	if err := h.Compare(hash, secret); err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if err := h.Compare(hash, []byte("wrong")); err == nil {
		t.Fatal("Compare with wrong secret should fail")
	}
}

func TestHasher_Cost(t *testing.T) {
	testCases := []struct {
		in, want int
	}{
		{12, 12},
		{0, 10},
		{1, 4},
		{99, 31},
	}
	for _, tc := range testCases {
		if got := NewHasher(tc.in).Cost; got != tc.want {
			t.Errorf("NewHasher(%d).Cost = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestSecretMatcher(t *testing.T) {
	m, err := NewSecretMatcher(NewHasher(4), "0000000000")
	if err != nil {
		t.Fatalf("NewSecretMatcher: %v", err)
	}
	if err := m.Match("0000000000"); err != nil {
		t.Errorf("Match(correct) = %v", err)
	}
	if err := m.Match("0000000001"); err != ErrSecretMismatch {
		t.Errorf("Match(wrong) = %v, want ErrSecretMismatch", err)
	}
	if _, err := NewSecretMatcher(NewHasher(4), ""); err == nil {
		t.Error("NewSecretMatcher should reject empty secret")
	}
}
