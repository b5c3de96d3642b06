// password хэширует и проверяет пароли (argon2id, строка в формате PHC)
// и проверяет пароль на соответствие политике сложности.
//
// Хэширование намеренно дорогое (десятки миллисекунд при параметрах по умолчанию):
// это компромисс между пропускной способностью логина и стойкостью к перебору.
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

const algorithmID = "argon2id"

const (
	// costFactor — во сколько раз параметры хранимого хэша могут превышать настроенные.
	costFactor = 4
	// maxKeyLength — предел длины ключа в хранимом хэше (байт).
	maxKeyLength = 1024
)

// ErrHashing — внутренний сбой хэширования (нет энтропии и т.п.).
// Никогда не означает «слабый пароль».
var ErrHashing = errors.New("password hashing failed")

// Params — параметры argon2id.
type Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams — 64 MiB, 3 прохода, 4 потока.
func DefaultParams() Params {
	return Params{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher хэширует и проверяет пароли. Безопасен для конкурентного использования.
type Hasher struct {
	params Params
	rand   io.Reader
}

// NewHasher создаёт Hasher и проверяет параметры.
func NewHasher(p Params) (*Hasher, error) {
	const op = "password.NewHasher"

	switch {
	case p.Memory == 0:
		return nil, fmt.Errorf("%s: memory must be > 0", op)
	case p.Iterations == 0:
		return nil, fmt.Errorf("%s: iterations must be > 0", op)
	case p.Parallelism == 0:
		return nil, fmt.Errorf("%s: parallelism must be > 0", op)
	case p.SaltLength < 8:
		return nil, fmt.Errorf("%s: salt length must be >= 8", op)
	case p.KeyLength < 16:
		return nil, fmt.Errorf("%s: key length must be >= 16", op)
	}

	return &Hasher{params: p, rand: rand.Reader}, nil
}

// Hash возвращает солёный хэш в формате $argon2id$v=19$m=..,t=..,p=..$salt$hash.
func (h *Hasher) Hash(plain string) (string, error) {
	const op = "password.Hash"

	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(h.rand, salt); err != nil {
		return "", fmt.Errorf("%s: %w: %v", op, ErrHashing, err)
	}

	key := argon2.IDKey([]byte(plain), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

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

// Verify сравнивает пароль с хэшем за постоянное время.
// Битый или чужой формат хэша — это false, а не ошибка.
func (h *Hasher) Verify(digest, plain string) bool {
	parsed, err := parse(digest)
	if err != nil || !h.affordable(parsed) {
		return false
	}

	key := argon2.IDKey([]byte(plain), parsed.salt, parsed.iterations, parsed.memory, parsed.parallelism, uint32(len(parsed.key)))

	return subtle.ConstantTimeCompare(key, parsed.key) == 1
}

// affordable ограничивает параметры из хранимого хэша: не больше
// costFactor×настроенных и не длиннее maxKeyLength, иначе битая запись в БД
// заставит argon2 выделить гигабайты памяти.
func (h *Hasher) affordable(d *parsedDigest) bool {
	return uint64(d.memory) <= costFactor*uint64(h.params.Memory) &&
		uint64(d.iterations) <= costFactor*uint64(h.params.Iterations) &&
		uint64(d.parallelism) <= costFactor*uint64(h.params.Parallelism) &&
		len(d.key) <= maxKeyLength
}

type parsedDigest struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func parse(digest string) (*parsedDigest, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, errors.New("invalid digest format")
	}

	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, errors.New("unsupported argon2 version")
	}

	var out parsedDigest
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, errors.New("invalid params")
		}

		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return nil, errors.New("invalid params")
		}

		switch k {
		case "m":
			out.memory = uint32(n)
		case "t":
			out.iterations = uint32(n)
		case "p":
			if n > 255 {
				return nil, errors.New("invalid params")
			}
			out.parallelism = uint8(n)
		default:
			return nil, errors.New("unknown param")
		}
	}

	if out.memory == 0 || out.iterations == 0 || out.parallelism == 0 {
		return nil, errors.New("missing params")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return nil, errors.New("invalid salt")
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return nil, errors.New("invalid key")
	}

	out.salt = salt
	out.key = key

	return &out, nil
}
