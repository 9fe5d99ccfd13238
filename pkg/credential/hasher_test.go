package credential

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() Params {
	return Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher(testParams(), 2)
	require.NoError(t, err)
	return h
}

func TestHashAndVerify(t *testing.T) {
	h := newTestHasher(t)
	ctx := context.Background()

	encoded, err := h.Hash(ctx, "correctHorseBatteryStaple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$"), encoded)

	ok, err := h.Verify(ctx, encoded, "correctHorseBatteryStaple")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify(ctx, encoded, "correctHorseBatteryStaplf")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashUsesFreshSalt(t *testing.T) {
	h := newTestHasher(t)
	ctx := context.Background()

	first, err := h.Hash(ctx, "same-password")
	require.NoError(t, err)
	second, err := h.Hash(ctx, "same-password")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestVerifyMalformedRecord(t *testing.T) {
	h := newTestHasher(t)

	tests := []struct {
		name    string
		encoded string
	}{
		{"empty", ""},
		{"plain text", "not-a-hash"},
		{"wrong algorithm", "$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5"},
		{"wrong version", "$argon2id$v=16$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5"},
		{"missing parameter", "$argon2id$v=19$m=8192,t=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5"},
		{"zero memory", "$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5"},
		{"huge memory", "$argon2id$v=19$m=4294967295,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5"},
		{"bad salt", "$argon2id$v=19$m=8192,t=1,p=1$!!!$a2V5"},
		{"empty key", "$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := h.Verify(context.Background(), tt.encoded, "whatever-password")
			assert.False(t, ok)
			assert.True(t, errors.Is(err, ErrMalformedHash), "got %v", err)
		})
	}
}

func TestNewHasherRejectsWeakParams(t *testing.T) {
	p := testParams()
	p.Memory = 1024
	_, err := NewHasher(p, 1)
	assert.ErrorIs(t, err, ErrInvalidParams)

	p = testParams()
	p.SaltLength = 4
	_, err = NewHasher(p, 1)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestNewHasherRejectsParamsItCannotVerify(t *testing.T) {
	p := testParams()
	p.Iterations = maxIterations + 1
	_, err := NewHasher(p, 1)
	assert.ErrorIs(t, err, ErrInvalidParams)

	p = testParams()
	p.Memory = maxMemoryKiB + 1
	_, err = NewHasher(p, 1)
	assert.ErrorIs(t, err, ErrInvalidParams)

	// The largest accepted iteration count still round-trips.
	p = testParams()
	p.Iterations = maxIterations
	h, err := NewHasher(p, 1)
	require.NoError(t, err)
	ctx := context.Background()
	encoded, err := h.Hash(ctx, "correctHorseBatteryStaple")
	require.NoError(t, err)
	ok, err := h.Verify(ctx, encoded, "correctHorseBatteryStaple")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDefaultParamsMatchProductionProfile(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, uint32(2097152), p.Memory)
	assert.Equal(t, uint32(1), p.Iterations)
	assert.Equal(t, uint8(1), p.Parallelism)
	assert.NoError(t, p.validate())
}

func TestHashFailsClosedWhenSlotsExhausted(t *testing.T) {
	h, err := NewHasher(testParams(), 1)
	require.NoError(t, err)

	require.True(t, h.slots.TryAcquire(1))
	defer h.slots.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = h.Hash(ctx, "blocked-password")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ok, err := h.Verify(ctx, "$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5", "blocked-password")
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestGenerateToken(t *testing.T) {
	h := newTestHasher(t)

	seen := make(map[string]struct{})
	for i := 0; i < 64; i++ {
		tok, err := h.GenerateToken()
		require.NoError(t, err)
		assert.Len(t, tok, 43)
		assert.NotContains(t, tok, "+")
		assert.NotContains(t, tok, "/")
		assert.NotContains(t, tok, "=")
		_, dup := seen[tok]
		assert.False(t, dup)
		seen[tok] = struct{}{}
	}
}

func TestGenerateTokenEntropyFailure(t *testing.T) {
	h := newTestHasher(t)
	h.random = strings.NewReader("short")

	_, err := h.GenerateToken()
	assert.ErrorIs(t, err, ErrEntropy)
}
