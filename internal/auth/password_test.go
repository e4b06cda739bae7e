package auth

import (
	"strings"
	"testing"
)

func TestHashPassword_Format(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=1$") {
		t.Errorf("hash = %q, want argon2id PHC prefix with default params", hash)
	}
	if strings.Count(hash, "$") != 5 {
		t.Errorf("hash has %d separators, want 5", strings.Count(hash, "$"))
	}
}

func TestHash_SaltedPerCall(t *testing.T) {
	a, _ := testHashParams.Hash("same")
	b, _ := testHashParams.Hash("same")
	if a == b {
		t.Error("two hashes of the same password are identical")
	}
}

func TestVerifyPassword(t *testing.T) {
	hash, err := testHashParams.Hash("s3cret")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	tests := []struct {
		name     string
		password string
		want     bool
	}{
		{"correct", "s3cret", true},
		{"wrong", "s3cret!", false},
		{"empty", "", false},
		{"case", "S3CRET", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := VerifyPassword(tt.password, hash)
			if err != nil {
				t.Fatalf("VerifyPassword() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("VerifyPassword(%q) = %v, want %v", tt.password, got, tt.want)
			}
		})
	}
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"plaintext", "password"},
		{"bcrypt", "$2a$10$abcdefghijklmnopqrstuv"},
		{"wrong algorithm", "$argon2i$v=19$m=65536,t=3,p=1$c2FsdA$a2V5"},
		{"wrong version", "$argon2id$v=16$m=65536,t=3,p=1$c2FsdA$a2V5"},
		{"bad params", "$argon2id$v=19$m=x,t=3,p=1$c2FsdA$a2V5"},
		{"bad salt", "$argon2id$v=19$m=65536,t=3,p=1$!!!$a2V5"},
		{"bad key", "$argon2id$v=19$m=65536,t=3,p=1$c2FsdA$!!!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := VerifyPassword("x", tt.hash); err == nil {
				t.Errorf("VerifyPassword(%q) error = nil, want error", tt.hash)
			}
		})
	}
}
