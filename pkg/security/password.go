package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/angelmondragon/gigmarket-backend/pkg/config"
)

// ErrInvalidHash signals a stored password hash that is not PHC-formatted
// argon2id.
var ErrInvalidHash = errors.New("invalid argon2id hash")

// Params are the argon2id cost settings. They travel inside every encoded
// hash so verification never depends on the current configuration.
type Params struct {
	Memory  uint32
	Time    uint32
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// ParamsFromConfig clamps the configured costs into ranges argon2 accepts.
func ParamsFromConfig(cfg config.PasswordConfig) Params {
	return Params{
		Memory:  bounded(cfg.ArgonMemoryKB, 8, 512*1024),
		Time:    bounded(cfg.ArgonTime, 1, 10),
		Threads: uint8(bounded(cfg.ArgonParallelism, 1, 255)),
		SaltLen: bounded(cfg.ArgonSaltLen, 8, 64),
		KeyLen:  bounded(cfg.ArgonKeyLen, 16, 64),
	}
}

func bounded(value, lo, hi int) uint32 {
	return uint32(max(lo, min(value, hi)))
}

// HashPassword encodes password as $argon2id$v=19$m=..,t=..,p=..$salt$key.
func HashPassword(password string, cfg config.PasswordConfig) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	p := ParamsFromConfig(cfg)

	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, p.KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Time, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword reports whether password matches encoded. A malformed hash
// is an error, a mismatch is not.
func VerifyPassword(password, encoded string) (bool, error) {
	h, err := decode(encoded)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(password), h.salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)
	return subtle.ConstantTimeCompare(h.key, computed) == 1, nil
}

// NeedsRehash is true when encoded was produced with costs other than the
// configured ones, so a successful login can upgrade the stored hash.
func NeedsRehash(encoded string, cfg config.PasswordConfig) bool {
	h, err := decode(encoded)
	if err != nil {
		return true
	}
	return h.params != ParamsFromConfig(cfg)
}

type decodedHash struct {
	params Params
	salt   []byte
	key    []byte
}

func decode(encoded string) (decodedHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return decodedHash{}, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return decodedHash{}, ErrInvalidHash
	}

	var h decodedHash
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.params.Memory, &h.params.Time, &h.params.Threads); err != nil {
		return decodedHash{}, ErrInvalidHash
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return decodedHash{}, ErrInvalidHash
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return decodedHash{}, ErrInvalidHash
	}
	if len(h.key) == 0 || h.params.Time == 0 || h.params.Threads == 0 {
		return decodedHash{}, ErrInvalidHash
	}
	h.params.SaltLen = uint32(len(h.salt))
	h.params.KeyLen = uint32(len(h.key))
	return h, nil
}
