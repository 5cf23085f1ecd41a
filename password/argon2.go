package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB  uint32 = 8 * 1024
	minSaltBytes        = 16
	minKeyBytes         = 16
	algorithmID         = "argon2id"
)

var (
	ErrInvalidParams = errors.New("invalid argon2 parameters")
	ErrMalformedHash = errors.New("malformed password hash")
	ErrEmptyPassword = errors.New("empty password")
)

var b64 = base64.RawStdEncoding

// Params are the Argon2id cost parameters.
type Params struct {
	Memory      uint32 `yaml:"memory_kb"`
	Time        uint32 `yaml:"time"`
	Parallelism uint8  `yaml:"parallelism"`
	SaltLength  uint32 `yaml:"salt_length"`
	KeyLength   uint32 `yaml:"key_length"`
}

// DefaultParams follows the OWASP baseline for Argon2id.
func DefaultParams() Params {
	return Params{Memory: 19 * 1024, Time: 2, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func (p Params) validate() error {
	switch {
	case p.Memory < minMemoryKB:
		return fmt.Errorf("%w: memory must be >= %d KB", ErrInvalidParams, minMemoryKB)
	case p.Time < 1:
		return fmt.Errorf("%w: time must be >= 1", ErrInvalidParams)
	case p.Parallelism < 1:
		return fmt.Errorf("%w: parallelism must be >= 1", ErrInvalidParams)
	case p.SaltLength < minSaltBytes:
		return fmt.Errorf("%w: salt length must be >= %d", ErrInvalidParams, minSaltBytes)
	case p.KeyLength < minKeyBytes:
		return fmt.Errorf("%w: key length must be >= %d", ErrInvalidParams, minKeyBytes)
	}
	return nil
}

// Hasher produces and checks Argon2id hashes. It is safe for concurrent use.
type Hasher struct {
	params Params
}

// NewHasher validates p.
func NewHasher(p Params) (*Hasher, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &Hasher{params: p}, nil
}

// Hash returns the PHC encoding of plain.
func (h *Hasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(plain), salt, h.params.Time, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version,
		h.params.Memory, h.params.Time, h.params.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key),
	), nil
}

// Verify reports whether plain matches encoded.
func (h *Hasher) Verify(plain, encoded string) (bool, error) {
	p, salt, key, err := decode(encoded)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(plain), salt, p.Time, p.Memory, p.Parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(got, key) == 1, nil
}

// NeedsRehash reports whether encoded was produced with weaker parameters.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	p, _, key, err := decode(encoded)
	if err != nil {
		return false, err
	}
	return p.Memory < h.params.Memory ||
		p.Time < h.params.Time ||
		p.Parallelism < h.params.Parallelism ||
		uint32(len(key)) != h.params.KeyLength, nil
}

func decode(encoded string) (Params, []byte, []byte, error) {
	var p Params

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return p, nil, nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, fmt.Errorf("%w: unsupported version", ErrMalformedHash)
	}
	if n, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Parallelism); err != nil || n != 3 {
		return p, nil, nil, fmt.Errorf("%w: bad parameters", ErrMalformedHash)
	}
	if p.Memory < minMemoryKB || p.Time < 1 || p.Parallelism < 1 {
		return p, nil, nil, fmt.Errorf("%w: parameters out of range", ErrMalformedHash)
	}

	salt, err := b64.DecodeString(parts[4])
	if err != nil || len(salt) < minSaltBytes {
		return p, nil, nil, fmt.Errorf("%w: bad salt", ErrMalformedHash)
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil || len(key) < minKeyBytes {
		return p, nil, nil, fmt.Errorf("%w: bad key", ErrMalformedHash)
	}
	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(key))
	return p, salt, key, nil
}
