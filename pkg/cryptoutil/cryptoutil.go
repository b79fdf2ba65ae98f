// Package cryptoutil provides the digest and password-hash helpers.
package cryptoutil

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"

	"golang.org/x/crypto/pbkdf2"
)

func hashFactory(algorithm string) (func() hash.Hash, error) {
	switch algorithm {
	case "md5":
		return md5.New, nil
	case "sha1":
		return sha1.New, nil
	case "sha256":
		return sha256.New, nil
	case "sha512":
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("unsupported algorithm %q (md5, sha1, sha256, sha512)", algorithm)
	}
}

// Digest returns the hex digest of data under the named algorithm.
func Digest(data, algorithm string) (string, error) {
	factory, err := hashFactory(algorithm)
	if err != nil {
		return "", err
	}
	h := factory()
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// PBKDF2Params carries everything needed to verify a derived key later.
type PBKDF2Params struct {
	SaltHex    string `json:"salt_hex"`
	HashHex    string `json:"hash_hex"`
	Iterations int    `json:"iterations"`
	Algorithm  string `json:"algorithm"`
}

// GeneratePBKDF2 derives a key from password with a fresh random salt.
// md5 is rejected here; PBKDF2 use is limited to the SHA family.
func GeneratePBKDF2(password, algorithm string, iterations, saltSize int) (PBKDF2Params, error) {
	if algorithm == "md5" {
		return PBKDF2Params{}, fmt.Errorf("md5 is not allowed for PBKDF2")
	}
	factory, err := hashFactory(algorithm)
	if err != nil {
		return PBKDF2Params{}, err
	}
	if iterations <= 0 {
		return PBKDF2Params{}, fmt.Errorf("iterations must be positive, got %d", iterations)
	}
	if saltSize <= 0 {
		return PBKDF2Params{}, fmt.Errorf("salt size must be positive, got %d", saltSize)
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return PBKDF2Params{}, fmt.Errorf("salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, iterations, factory().Size(), factory)
	return PBKDF2Params{
		SaltHex:    hex.EncodeToString(salt),
		HashHex:    hex.EncodeToString(key),
		Iterations: iterations,
		Algorithm:  algorithm,
	}, nil
}

// VerifyPBKDF2 re-derives the key and compares in constant time.
func VerifyPBKDF2(password string, p PBKDF2Params) (bool, error) {
	factory, err := hashFactory(p.Algorithm)
	if err != nil {
		return false, err
	}
	salt, err := hex.DecodeString(p.SaltHex)
	if err != nil {
		return false, fmt.Errorf("salt hex: %w", err)
	}
	want, err := hex.DecodeString(p.HashHex)
	if err != nil {
		return false, fmt.Errorf("hash hex: %w", err)
	}
	got := pbkdf2.Key([]byte(password), salt, p.Iterations, len(want), factory)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
