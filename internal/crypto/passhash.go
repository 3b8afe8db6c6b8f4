// Package crypto implements server-side secret hashing and verification.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Argon2id parameters (tuned for server-side hashing).
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32
	saltLen             = 16
)

// SecretHasher hashes principal secrets into self-describing digests.
type SecretHasher interface {
	// Hash returns an encoded digest of secret with a fresh salt.
	Hash(secret string) (string, error)
	// Compare reports whether secret matches digest.
	Compare(secret, digest string) bool
}

// Argon2id hashes secrets as "$argon2id$v=19$m=..,t=..,p=..$<salt>$<key>".
// Compare also accepts bcrypt digests ("$2a$", "$2b$", "$2y$") written by the
// previous system so migrated accounts keep working.
type Argon2id struct{}

var _ SecretHasher = Argon2id{}

var b64 = base64.RawStdEncoding

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// HashPassword returns Argon2id hash of password using the provided salt.
func HashPassword(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// Hash implements SecretHasher.
func (Argon2id) Hash(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("empty secret")
	}
	salt, err := RandBytes(saltLen)
	if err != nil {
		return "", err
	}
	key := HashPassword([]byte(secret), salt)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// Compare implements SecretHasher in constant time for argon2id digests.
func (Argon2id) Compare(secret, digest string) bool {
	if strings.HasPrefix(digest, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
	}
	p, err := decodeArgon2id(digest)
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(secret), p.salt, p.time, p.memory, p.threads, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(got, p.key) == 1
}

type argonParams struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

func decodeArgon2id(digest string) (argonParams, error) {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return argonParams{}, errors.New("not an argon2id digest")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return argonParams{}, errors.New("unsupported argon2 version")
	}
	var p argonParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return argonParams{}, fmt.Errorf("bad argon2 params: %w", err)
	}
	if p.time == 0 || p.threads == 0 {
		return argonParams{}, errors.New("bad argon2 params")
	}
	var err error
	if p.salt, err = b64.DecodeString(parts[4]); err != nil {
		return argonParams{}, err
	}
	if p.key, err = b64.DecodeString(parts[5]); err != nil || len(p.key) == 0 {
		return argonParams{}, errors.New("bad argon2 key")
	}
	return p, nil
}
