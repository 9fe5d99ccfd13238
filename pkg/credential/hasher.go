package credential

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/sync/semaphore"
)

const (
	algorithmID = "argon2id"

	minMemoryKiB  uint32 = 8 * 1024
	minSaltLength uint32 = 16
	minKeyLength  uint32 = 16

	// Upper bounds for stored records, so a corrupt row cannot request an
	// arbitrarily large derivation.
	maxMemoryKiB  uint32 = 4 * 1024 * 1024
	maxIterations uint32 = 64

	tokenBytes = 32
)

var (
	// ErrMalformedHash marks a stored record that cannot be parsed. It signals
	// data corruption and is never returned for a wrong password.
	ErrMalformedHash = errors.New("credential: malformed hash record")
	// ErrInvalidParams is returned by NewHasher for unusable parameters.
	ErrInvalidParams = errors.New("credential: invalid hashing parameters")
	// ErrEntropy is returned when the system random source fails.
	ErrEntropy = errors.New("credential: random source unavailable")
)

// Params configures Argon2id. Memory is expressed in KiB.
type Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams returns the production profile: a 2 GiB working set, one
// pass, one lane.
func DefaultParams() Params {
	return Params{
		Memory:      2 * 1024 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (p Params) validate() error {
	switch {
	case p.Memory < minMemoryKiB || p.Memory > maxMemoryKiB:
		return fmt.Errorf("%w: memory must be within %d..%d KiB", ErrInvalidParams, minMemoryKiB, maxMemoryKiB)
	case p.Iterations < 1 || p.Iterations > maxIterations:
		return fmt.Errorf("%w: iterations must be within 1..%d", ErrInvalidParams, maxIterations)
	case p.Parallelism < 1:
		return fmt.Errorf("%w: parallelism must be >= 1", ErrInvalidParams)
	case p.SaltLength < minSaltLength:
		return fmt.Errorf("%w: salt length must be >= %d", ErrInvalidParams, minSaltLength)
	case p.KeyLength < minKeyLength:
		return fmt.Errorf("%w: key length must be >= %d", ErrInvalidParams, minKeyLength)
	}
	return nil
}

// Hasher derives and verifies Argon2id PHC strings. Every derivation holds a
// slot of a weighted semaphore so at most maxConcurrent working sets are
// allocated at once.
type Hasher struct {
	params Params
	slots  *semaphore.Weighted
	random io.Reader
}

// NewHasher validates params and bounds concurrent derivations to maxConcurrent
// (minimum one).
func NewHasher(params Params, maxConcurrent int) (*Hasher, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Hasher{
		params: params,
		slots:  semaphore.NewWeighted(int64(maxConcurrent)),
		random: rand.Reader,
	}, nil
}

// Params returns the parameters used for new hashes.
func (h *Hasher) Params() Params {
	return h.params
}

// Hash derives a PHC record for plaintext with a fresh random salt.
func (h *Hasher) Hash(ctx context.Context, plaintext string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(h.random, salt); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEntropy, err)
	}

	if err := h.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(plaintext), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)
	h.slots.Release(1)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.params.Memory,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the hash with the parameters stored in encoded. A wrong
// password is (false, nil); only an unparseable record yields ErrMalformedHash.
func (h *Hasher) Verify(ctx context.Context, encoded, plaintext string) (bool, error) {
	rec, err := decode(encoded)
	if err != nil {
		return false, err
	}

	if err := h.slots.Acquire(ctx, 1); err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(plaintext), rec.salt, rec.iterations, rec.memory, rec.parallelism, uint32(len(rec.key)))
	h.slots.Release(1)

	return subtle.ConstantTimeCompare(key, rec.key) == 1, nil
}

// GenerateToken returns 256 random bits encoded as unpadded base64url.
func (h *Hasher) GenerateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(h.random, buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEntropy, err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

type record struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func decode(encoded string) (*record, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, fmt.Errorf("%w: unexpected segment count", ErrMalformedHash)
	}
	if parts[1] != algorithmID {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrMalformedHash, parts[1])
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, fmt.Errorf("%w: unsupported version", ErrMalformedHash)
	}

	rec := &record{}
	seen := 0
	for _, pair := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("%w: bad parameter %q", ErrMalformedHash, pair)
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("%w: bad parameter %q", ErrMalformedHash, pair)
		}
		switch k {
		case "m":
			rec.memory = uint32(n)
		case "t":
			rec.iterations = uint32(n)
		case "p":
			if n > 255 {
				return nil, fmt.Errorf("%w: parallelism out of range", ErrMalformedHash)
			}
			rec.parallelism = uint8(n)
		default:
			return nil, fmt.Errorf("%w: unknown parameter %q", ErrMalformedHash, k)
		}
		seen++
	}
	if seen != 3 || rec.memory == 0 || rec.iterations == 0 || rec.parallelism == 0 {
		return nil, fmt.Errorf("%w: missing parameters", ErrMalformedHash)
	}
	if rec.memory > maxMemoryKiB || rec.iterations > maxIterations {
		return nil, fmt.Errorf("%w: parameters out of range", ErrMalformedHash)
	}

	var err error
	if rec.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(rec.salt) == 0 {
		return nil, fmt.Errorf("%w: bad salt encoding", ErrMalformedHash)
	}
	if rec.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(rec.key) == 0 {
		return nil, fmt.Errorf("%w: bad key encoding", ErrMalformedHash)
	}
	return rec, nil
}
