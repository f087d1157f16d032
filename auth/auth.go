// auth/auth.go
// Copyright(c) 2026 openfsd contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package auth looks up user records for login and verifies the password
// the client supplied against the stored hash. Legacy FSD clients send an
// MD5 of the cleartext over the wire; newer deployments store argon2id
// hashes instead.
package auth

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	ErrUnknownUser      = errors.New("Username unknown")
	ErrPasswordMismatch = errors.New("Password mismatch")
)

// User is a row of the users table; Rating 0 means suspended.
type User struct {
	CID          string
	PasswordHash string
	Rating       int
}

// Store is the opaque user-lookup service. LookupUser returns
// ErrUnknownUser when no row exists for the cid; anything else is an
// infrastructure error.
type Store interface {
	LookupUser(ctx context.Context, cid string) (User, error)
	Close()
}

// CheckLogin authenticates cid/password against the store. The returned
// error is ErrUnknownUser or ErrPasswordMismatch for bad credentials;
// infrastructure errors come back wrapped and should be treated as login
// failure without telling the client why.
func CheckLogin(ctx context.Context, store Store, cid, password string) (User, error) {
	user, err := store.LookupUser(ctx, cid)
	if err != nil {
		if errors.Is(err, ErrUnknownUser) {
			return User{}, ErrUnknownUser
		}
		return User{}, fmt.Errorf("user lookup: %w", err)
	}

	if !VerifyPassword(password, user.PasswordHash) {
		return User{}, ErrPasswordMismatch
	}
	return user, nil
}

// VerifyPassword compares a client-supplied password against the stored
// hash. Stored argon2id hashes are verified properly; otherwise the
// stored value is taken to be an MD5 hex digest and the supplied value
// may be either the same digest (legacy pre-hashed clients) or the
// cleartext.
func VerifyPassword(supplied, stored string) bool {
	if strings.HasPrefix(stored, "$argon2id$") {
		return verifyArgon2id(supplied, stored)
	}

	eq := func(a, b string) bool {
		return subtle.ConstantTimeCompare([]byte(strings.ToLower(a)), []byte(strings.ToLower(b))) == 1
	}
	if eq(supplied, stored) {
		return true
	}
	sum := md5.Sum([]byte(supplied))
	return eq(hex.EncodeToString(sum[:]), stored)
}

// verifyArgon2id checks supplied against an encoded hash of the form
// $argon2id$v=19$m=65536,t=1,p=4$<b64 salt>$<b64 hash>.
func verifyArgon2id(supplied, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var mem, iters uint32
	var par uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iters, &par); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	got := argon2.IDKey([]byte(supplied), salt, iters, mem, par, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

// EncodeArgon2id produces an encoded hash suitable for storing in the
// users table; used by account tooling and tests.
func EncodeArgon2id(password string, salt []byte) string {
	const mem, iters, par, keyLen = 64 * 1024, 1, 4, 32
	key := argon2.IDKey([]byte(password), salt, iters, mem, par, keyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s", argon2.Version, mem, iters, par,
		base64.RawStdEncoding.EncodeToString(salt), base64.RawStdEncoding.EncodeToString(key))
}
