package password

import (
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"

	customErrors "github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/errors"
)

const (
	Argon2id = "argon2id"
	Bcrypt   = "bcrypt"
)

// bcrypt ignores everything past 72 bytes and x/crypto refuses longer input.
const bcryptMaxBytes = 72

// maxArgonMemory bounds the memory (KiB) a stored hash may ask Verify for.
const maxArgonMemory = 1 << 20

var argonParams = &argon2id.Params{
	Memory:      64 * 1024, // 64 MiB
	Iterations:  2,
	Parallelism: 4,
	SaltLength:  16,
	KeyLength:   32,
}

// Hasher hashes new passwords with one algorithm but verifies hashes made by
// either of them, so switching PASSWORD_HASHER keeps old accounts working.
type Hasher struct {
	algo   string
	pepper string
	cost   int
	params *argon2id.Params
}

func New(algo, pepper string) (*Hasher, error) {
	switch algo {
	case "", Argon2id:
		algo = Argon2id
	case Bcrypt:
	default:
		return nil, fmt.Errorf("unknown password hasher %q", algo)
	}
	return &Hasher{algo: algo, pepper: pepper, cost: bcrypt.DefaultCost, params: argonParams}, nil
}

// WithCost overrides the work factors; tests use it to keep hashing fast.
func (h *Hasher) WithCost(bcryptCost int, params *argon2id.Params) *Hasher {
	cp := *h
	if bcryptCost > 0 {
		cp.cost = bcryptCost
	}
	if params != nil {
		cp.params = params
	}
	return &cp
}

func (h *Hasher) Algorithm() string { return h.algo }

func (h *Hasher) Hash(plain string) (string, error) {
	if h.algo == Bcrypt {
		if len(plain)+len(h.pepper) > bcryptMaxBytes {
			return "", customErrors.NewValidation("password is too long")
		}
		b, err := bcrypt.GenerateFromPassword([]byte(plain+h.pepper), h.cost)
		if err != nil {
			return "", customErrors.WrapInternal(err, "bcrypt hash")
		}
		return string(b), nil
	}

	hash, err := argon2id.CreateHash(plain+h.pepper, h.params)
	if err != nil {
		return "", customErrors.WrapInternal(err, "argon2id hash")
	}
	return hash, nil
}

// Verify never fails loudly: unknown or malformed hashes simply do not match.
func (h *Hasher) Verify(plain, hash string) bool {
	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		if !saneArgonHash(hash) {
			return false
		}
		ok, err := argon2id.ComparePasswordAndHash(plain+h.pepper, hash)
		return err == nil && ok
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain+h.pepper)) == nil
	default:
		return false
	}
}

// saneArgonHash rejects encoded parameters that argon2.IDKey would panic on
// or that would make a single comparison allocate unbounded memory.
func saneArgonHash(hash string) bool {
	params, salt, key, err := argon2id.DecodeHash(hash)
	if err != nil {
		return false
	}
	return params.Iterations >= 1 &&
		params.Parallelism >= 1 &&
		params.Memory >= 1 && params.Memory <= maxArgonMemory &&
		len(salt) > 0 && len(key) > 0
}
