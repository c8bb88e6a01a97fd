package signing

import (
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"

	"github.com/wfunc/playerhook/config"
)

var (
	ErrInvalidParameters = errors.New("invalid key derivation parameters")
	ErrUnknownAlgorithm  = errors.New("unknown key derivation algorithm")
)

const (
	DefaultIterations = 20000
	DefaultKeyLength  = 8
)

// Deriver derives the key a player must attach to placements in a signed
// session. The key depends on the session secret and round, so a key is
// only valid until the next operation on the session.
type Deriver interface {
	Derive(username, secret string, round int64) (string, error)
}

func salt(secret string, round int64) []byte {
	return []byte(secret + ":" + strconv.FormatInt(round, 10))
}

// PBKDF2 derives keys with PBKDF2-HMAC-SHA1 using the username as password
// and "secret:round" as salt.
type PBKDF2 struct {
	Iterations int
	KeyLength  int
}

func NewPBKDF2() PBKDF2 {
	return PBKDF2{Iterations: DefaultIterations, KeyLength: DefaultKeyLength}
}

func (d PBKDF2) Derive(username, secret string, round int64) (string, error) {
	if d.Iterations < 1 || d.KeyLength < 1 {
		return "", fmt.Errorf("%w: pbkdf2 iterations=%d length=%d", ErrInvalidParameters, d.Iterations, d.KeyLength)
	}
	key := pbkdf2.Key([]byte(username), salt(secret, round), d.Iterations, d.KeyLength, sha1.New)
	return base64.StdEncoding.EncodeToString(key), nil
}

// Argon2 derives keys with argon2id over the same password and salt as
// PBKDF2.
type Argon2 struct {
	Time      uint32
	Memory    uint32
	Threads   uint8
	KeyLength uint32
}

func (d Argon2) Derive(username, secret string, round int64) (string, error) {
	if d.Time < 1 || d.Threads < 1 || d.KeyLength < 1 {
		return "", fmt.Errorf("%w: argon2 time=%d threads=%d length=%d", ErrInvalidParameters, d.Time, d.Threads, d.KeyLength)
	}
	key := argon2.IDKey([]byte(username), salt(secret, round), d.Time, d.Memory, d.Threads, d.KeyLength)
	return base64.StdEncoding.EncodeToString(key), nil
}

// FromConfig builds the deriver selected by cfg.Algorithm.
func FromConfig(cfg config.SigningConfig) (Deriver, error) {
	switch cfg.Algorithm {
	case "", "pbkdf2":
		return PBKDF2{Iterations: cfg.Iterations, KeyLength: cfg.KeyLength}, nil
	case "argon2":
		return Argon2{
			Time:      cfg.Argon2.Time,
			Memory:    cfg.Argon2.Memory,
			Threads:   cfg.Argon2.Threads,
			KeyLength: uint32(cfg.KeyLength),
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, cfg.Algorithm)
}
