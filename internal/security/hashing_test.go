package security

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHasher_HashAndCompare(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash([]byte("Secret123"))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "" || hash == "Secret123" {
		t.Fatal("hash empty or equal to plaintext")
	}
	if err := h.Compare(hash, []byte("Secret123")); err != nil {
		t.Errorf("Compare with correct password: %v", err)
	}
	if err := h.Compare(hash, []byte("wrong")); err == nil {
		t.Error("Compare with wrong password: want error")
	}
}

func TestNewHasher_CostClamping(t *testing.T) {
	if c := NewHasher(0).Cost; c != bcrypt.DefaultCost {
		t.Errorf("cost 0 → %d, want default %d", c, bcrypt.DefaultCost)
	}
	if c := NewHasher(1).Cost; c != bcrypt.MinCost {
		t.Errorf("cost 1 → %d, want min %d", c, bcrypt.MinCost)
	}
	if c := NewHasher(99).Cost; c != bcrypt.MaxCost {
		t.Errorf("cost 99 → %d, want max %d", c, bcrypt.MaxCost)
	}
}
