package password

import (
	"context"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// Hasher applies the password hashing policy: bcrypt with a fixed cost,
// salted internally by the algorithm. Hashing is deliberately expensive,
// so concurrent hash and verify operations are capped with a weighted
// semaphore sized to the number of CPUs; a burst of logins cannot occupy
// every scheduler thread and stall unrelated requests.
type Hasher struct {
	cost int
	sem  *semaphore.Weighted
}

// NewHasher constructs a Hasher. A cost outside the valid bcrypt range
// (including zero) falls back to bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{
		cost: cost,
		sem:  semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
	}
}

// Hash derives the stored form of a plaintext password. Two calls with
// the same plaintext produce different hashes; both verify.
func (h *Hasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether plaintext matches the stored hash. The
// comparison inside bcrypt is constant-time.
func (h *Hasher) Verify(ctx context.Context, hash, plaintext string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.sem.Release(1)

	switch err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)); err {
	case nil:
		return true, nil
	case bcrypt.ErrMismatchedHashAndPassword:
		return false, nil
	default:
		return false, err
	}
}
