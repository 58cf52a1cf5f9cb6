package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
)

var ErrUnknownHashFormat = errors.New("unknown password hash format")

type Argon2Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

var defaultParams = Argon2Params{
	Time:    3,
	Memory:  64 * 1024,
	Threads: 2,
	KeyLen:  32,
	SaltLen: 16,
}

// PasswordHasher hashes new credentials with the configured algorithm and
// verifies both argon2id and bcrypt encodings, so hashes imported from the
// previous system keep working.
type PasswordHasher struct {
	algorithm  string
	bcryptCost int
	params     Argon2Params
	dummy      string
}

type HasherOption func(*PasswordHasher)

func WithAlgorithm(algorithm string) HasherOption {
	return func(h *PasswordHasher) {
		if algorithm != "" {
			h.algorithm = algorithm
		}
	}
}

func WithBcryptCost(cost int) HasherOption {
	return func(h *PasswordHasher) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			h.bcryptCost = cost
		}
	}
}

func WithArgon2Params(params Argon2Params) HasherOption {
	return func(h *PasswordHasher) {
		if params.Time > 0 {
			h.params.Time = params.Time
		}
		if params.Memory > 0 {
			h.params.Memory = params.Memory
		}
		if params.Threads > 0 {
			h.params.Threads = params.Threads
		}
	}
}

func NewPasswordHasher(opts ...HasherOption) (*PasswordHasher, error) {
	h := &PasswordHasher{
		algorithm:  AlgorithmArgon2id,
		bcryptCost: 12,
		params:     defaultParams,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.algorithm != AlgorithmArgon2id && h.algorithm != AlgorithmBcrypt {
		return nil, fmt.Errorf("unsupported password algorithm %q", h.algorithm)
	}

	// The placeholder is verified when no account matches, so unknown emails
	// cost the same as wrong passwords.
	placeholder, err := RandomToken(16)
	if err != nil {
		return nil, err
	}
	dummy, err := h.Hash(placeholder)
	if err != nil {
		return nil, fmt.Errorf("build placeholder hash: %w", err)
	}
	h.dummy = dummy

	return h, nil
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	if h.algorithm == AlgorithmBcrypt {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), h.bcryptCost)
		if err != nil {
			return "", fmt.Errorf("bcrypt: %w", err)
		}
		return string(hash), nil
	}
	return HashPasswordWithParams(password, h.params)
}

// Verify reports whether password matches encodedHash. A mismatch is (false, nil);
// errors are reserved for malformed hashes.
func (h *PasswordHasher) Verify(password string, encodedHash string) (bool, error) {
	switch {
	case strings.HasPrefix(encodedHash, "$argon2id$"):
		return VerifyPassword(password, encodedHash)
	case strings.HasPrefix(encodedHash, "$2a$"), strings.HasPrefix(encodedHash, "$2b$"), strings.HasPrefix(encodedHash, "$2y$"):
		err := bcrypt.CompareHashAndPassword([]byte(normalizeBcrypt(encodedHash)), []byte(password))
		if err == nil {
			return true, nil
		}
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("bcrypt: %w", err)
	default:
		return false, ErrUnknownHashFormat
	}
}

// VerifyDummy burns the same CPU as a real verification and always fails.
func (h *PasswordHasher) VerifyDummy(password string) {
	_, _ = h.Verify(password, h.dummy)
}

// normalizeBcrypt maps the $2y$ prefix written by PHP to the equivalent $2a$.
func normalizeBcrypt(hash string) string {
	if strings.HasPrefix(hash, "$2y$") {
		return "$2a$" + hash[4:]
	}
	return hash
}

func HashPasswordWithParams(password string, params Argon2Params) (string, error) {
	salt := make([]byte, params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, params.KeyLen)

	encoded := base64.RawStdEncoding.EncodeToString(hash)
	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, params.Memory, params.Time, params.Threads, encodedSalt, encoded), nil
}

func VerifyPassword(password string, encodedHash string) (bool, error) {
	// $argon2id$v=19$m=65536,t=3,p=2$<salt>$<hash>
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != AlgorithmArgon2id {
		return false, fmt.Errorf("parse hash: %w", ErrUnknownHashFormat)
	}

	var params Argon2Params
	for _, kv := range strings.Split(parts[3], ",") {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return false, fmt.Errorf("parse hash params: %w", ErrUnknownHashFormat)
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return false, fmt.Errorf("parse hash param %s: %w", key, err)
		}
		switch key {
		case "m":
			params.Memory = uint32(n)
		case "t":
			params.Time = uint32(n)
		case "p":
			params.Threads = uint8(n)
		}
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("decode salt: %w", err)
	}

	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("decode hash: %w", err)
	}

	computed := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, uint32(len(hash)))

	if subtle.ConstantTimeCompare(hash, computed) == 1 {
		return true, nil
	}
	return false, nil
}
