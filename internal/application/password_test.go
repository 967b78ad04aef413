package application

import (
	"errors"
	"testing"
)

var fastArgon2idParams = Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

func TestPasswordHashRoundTrip(t *testing.T) {
	t.Parallel()

	hash, err := CreatePasswordHash("correct horse", fastArgon2idParams)
	if err != nil {
		t.Fatalf("CreatePasswordHash returned error: %v", err)
	}
	if err := VerifyPassword(hash, "correct horse"); err != nil {
		t.Fatalf("expected password to verify, got %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestVerifyPasswordRejectsMalformedHashes(t *testing.T) {
	t.Parallel()

	cases := map[string]error{
		"":                                 ErrInvalidPasswordHash,
		"plain":                            ErrInvalidPasswordHash,
		"$bcrypt$v=19$m=1,t=1,p=1$aa$bb":   ErrInvalidPasswordHash,
		"$argon2id$v=1$m=1,t=1,p=1$aa$bb":  ErrIncompatiblePasswordVersion,
		"$argon2id$v=19$garbage$aa$bb":     ErrInvalidPasswordHash,
		"$argon2id$v=19$m=1,t=1,p=1$@@$bb": ErrInvalidPasswordHash,
	}
	for hash, want := range cases {
		if err := VerifyPassword(hash, "pw"); !errors.Is(err, want) {
			t.Errorf("VerifyPassword(%q) = %v, want %v", hash, err, want)
		}
	}
}
