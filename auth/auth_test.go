// auth/auth_test.go
// Copyright(c) 2026 openfsd contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package auth

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"testing"
)

type memStore map[string]User

func (s memStore) LookupUser(ctx context.Context, cid string) (User, error) {
	u, ok := s[cid]
	if !ok {
		return User{}, ErrUnknownUser
	}
	return u, nil
}

func (s memStore) Close() {}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestVerifyPasswordMD5(t *testing.T) {
	stored := md5hex("secret")

	if !VerifyPassword("secret", stored) {
		t.Error("cleartext against stored digest should verify")
	}
	if !VerifyPassword(md5hex("secret"), stored) {
		t.Error("pre-hashed client password should verify")
	}
	// Legacy digests compare case-insensitively.
	if !VerifyPassword("SECRET", md5hex("SECRET")) {
		t.Error("digest comparison should ignore case")
	}
	if VerifyPassword("wrong", stored) {
		t.Error("wrong password verified")
	}
}

func TestVerifyPasswordArgon2(t *testing.T) {
	stored := EncodeArgon2id("secret", []byte("0123456789abcdef"))

	if !VerifyPassword("secret", stored) {
		t.Error("argon2id password should verify")
	}
	if VerifyPassword("wrong", stored) {
		t.Error("wrong argon2id password verified")
	}
	if VerifyPassword("secret", "$argon2id$mangled") {
		t.Error("mangled hash should not verify")
	}
}

func TestCheckLogin(t *testing.T) {
	ctx := context.Background()
	store := memStore{
		"100001": {CID: "100001", PasswordHash: md5hex("secret"), Rating: 5},
	}

	u, err := CheckLogin(ctx, store, "100001", "secret")
	if err != nil {
		t.Fatalf("CheckLogin: %v", err)
	}
	if u.Rating != 5 {
		t.Errorf("Rating = %d, want 5", u.Rating)
	}

	if _, err := CheckLogin(ctx, store, "100001", "wrong"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("wrong password: err = %v", err)
	}
	if _, err := CheckLogin(ctx, store, "999999", "secret"); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("unknown user: err = %v", err)
	}
}
