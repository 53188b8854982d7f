package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Hashes are stored in PHC string form:
//
//	$argon2id$v=19$m=65536,t=2,p=2$<salt-b64>$<digest-b64>
//
// The parameters travel with the hash, so cost upgrades only affect new
// records.

var (
	ErrInvalidInput  = errors.New("invalid password input")
	ErrInvalidParams = errors.New("invalid password hashing parameters")
)

const (
	algorithmID = "argon2id"

	minMemoryKiB    uint32 = 8 * 1024
	minTime         uint32 = 1
	minParallelism  uint8  = 1
	minSaltLength   uint32 = 16
	minKeyLength    uint32 = 16
	maxSecretLength        = 256
)

type Params struct {
	MemoryKiB   uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type Hasher struct {
	params Params
}

func NewHasher(p Params) (*Hasher, error) {
	if err := validateParams(p); err != nil {
		return nil, err
	}
	return &Hasher{params: p}, nil
}

// Hash derives a fresh salted digest for the secret. Every call draws a new
// salt from crypto/rand, so hashing the same secret twice yields different
// encodings.
func (h *Hasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("%w: empty secret", ErrInvalidInput)
	}
	if len(secret) > maxSecretLength {
		return "", fmt.Errorf("%w: secret exceeds %d bytes", ErrInvalidInput, maxSecretLength)
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}

	digest := argon2.IDKey(
		[]byte(secret),
		salt,
		h.params.Time,
		h.params.MemoryKiB,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.params.MemoryKiB,
		h.params.Time,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	), nil
}

// Verify recomputes the digest with the parameters stored in encoded and
// compares in constant time. A wrong secret is (false, nil); only a
// malformed stored hash is an error.
func (h *Hasher) Verify(secret, encoded string) (bool, error) {
	parsed, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(secret),
		parsed.salt,
		parsed.time,
		parsed.memoryKiB,
		parsed.parallelism,
		uint32(len(parsed.digest)),
	)

	return subtle.ConstantTimeCompare(computed, parsed.digest) == 1, nil
}

type parsedHash struct {
	memoryKiB   uint32
	time        uint32
	parallelism uint8
	salt        []byte
	digest      []byte
}

func parsePHC(encoded string) (parsedHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return parsedHash{}, errors.New("malformed hash encoding")
	}
	if parts[1] != algorithmID {
		return parsedHash{}, errors.New("unsupported hash algorithm")
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if !strings.HasPrefix(parts[2], "v=") || err != nil || version != argon2.Version {
		return parsedHash{}, errors.New("unsupported argon2 version")
	}

	var p parsedHash
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memoryKiB, &p.time, &p.parallelism); err != nil {
		return parsedHash{}, errors.New("malformed hash parameters")
	}
	if p.memoryKiB < minMemoryKiB || p.time < minTime || p.parallelism < minParallelism {
		return parsedHash{}, errors.New("hash parameters below minimums")
	}

	p.salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || uint32(len(p.salt)) < minSaltLength {
		return parsedHash{}, errors.New("malformed salt")
	}
	p.digest, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || uint32(len(p.digest)) < minKeyLength {
		return parsedHash{}, errors.New("malformed digest")
	}
	return p, nil
}

func validateParams(p Params) error {
	if p.MemoryKiB < minMemoryKiB {
		return fmt.Errorf("%w: memory must be >= %d KiB", ErrInvalidParams, minMemoryKiB)
	}
	if p.Time < minTime {
		return fmt.Errorf("%w: time must be >= %d", ErrInvalidParams, minTime)
	}
	if p.Parallelism < minParallelism {
		return fmt.Errorf("%w: parallelism must be >= %d", ErrInvalidParams, minParallelism)
	}
	if p.SaltLength < minSaltLength {
		return fmt.Errorf("%w: salt length must be >= %d", ErrInvalidParams, minSaltLength)
	}
	if p.KeyLength < minKeyLength {
		return fmt.Errorf("%w: key length must be >= %d", ErrInvalidParams, minKeyLength)
	}
	return nil
}
