package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"
	"golang.org/x/sync/semaphore"
)

const (
	saltSize  = 16
	keyLength = 64

	scryptN = 1 << 14
	scryptR = 8
	scryptP = 1
)

// Hasher produces and checks "<hashHex>.<saltHex>" password strings. The
// salt is fed to scrypt as its hex text, which existing rows depend on.
type Hasher struct {
	sem     *semaphore.Weighted
	entropy io.Reader
	n       int
}

func NewHasher(maxConcurrent int) *Hasher {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Hasher{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		entropy: rand.Reader,
		n:       scryptN,
	}
}

func (h *Hasher) Hash(ctx context.Context, plaintext string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(h.entropy, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	saltHex := hex.EncodeToString(salt)

	key, err := h.derive(ctx, plaintext, saltHex)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(key) + "." + saltHex, nil
}

// Verify reports whether plaintext matches stored. Malformed stored values
// never match. A cancelled context also yields false.
func (h *Hasher) Verify(ctx context.Context, plaintext, stored string) bool {
	hashHex, saltHex, ok := strings.Cut(stored, ".")
	if !ok || hashHex == "" || saltHex == "" {
		return false
	}

	expected, err := hex.DecodeString(hashHex)
	if err != nil {
		return false
	}

	actual, err := h.derive(ctx, plaintext, saltHex)
	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare(expected, actual) == 1
}

func (h *Hasher) derive(ctx context.Context, plaintext, saltHex string) ([]byte, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for hashing slot: %w", err)
	}
	defer h.sem.Release(1)

	key, err := scrypt.Key([]byte(plaintext), []byte(saltHex), h.n, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}
