// Package crypto implements the encrypted-at-rest codec for session
// snapshots: Argon2id key derivation plus AES-256-GCM.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	// SaltSize - размер соли для Argon2id (16 bytes)
	SaltSize = 16
	// NonceSize - размер nonce для AES-GCM (12 bytes стандартный размер)
	NonceSize = 12
	// keySize - длина выходного ключа AES-256
	keySize = 32
)

// ErrIntegrity indicates that the authentication tag did not verify: the blob
// was tampered with, truncated, or encrypted under different credentials.
// There is no fallback that accepts unauthenticated plaintext.
var ErrIntegrity = errors.New("session blob failed integrity check")

// Params - параметры work factor для Argon2id
type Params struct {
	// Time - количество итераций (time cost)
	Time uint32
	// Memory - объем памяти в KiB
	Memory uint32
	// Threads - количество параллельных потоков
	Threads uint8
}

// DefaultParams возвращает параметры Argon2id по умолчанию (64 MiB, 1 проход)
func DefaultParams() Params {
	return Params{
		Time:    1,
		Memory:  64 * 1024,
		Threads: 4,
	}
}

func (p Params) validate() error {
	if p.Time == 0 || p.Memory == 0 || p.Threads == 0 {
		return fmt.Errorf("argon2 params must be non-zero: time=%d memory=%d threads=%d",
			p.Time, p.Memory, p.Threads)
	}
	return nil
}

// deriveKey деривирует 32-байтный ключ из пароля и соли через Argon2id
func deriveKey(password string, salt []byte, params Params) []byte {
	return argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, keySize)
}

// Encrypt шифрует сериализованный снимок сессии паролем.
// Формат результата: salt (16 bytes) + nonce (12 bytes) + ciphertext + auth_tag.
// Соль и nonce генерируются заново при каждом вызове.
func Encrypt(plaintext []byte, password string, params Params) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("plaintext cannot be empty")
	}
	if password == "" {
		return nil, fmt.Errorf("password cannot be empty")
	}
	if err := params.validate(); err != nil {
		return nil, err
	}

	// 1. Генерируем случайную соль для деривации ключа
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	// 2. Деривируем ключ из пароля
	key := deriveKey(password, salt, params)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	// 3. Свежий случайный nonce на каждый вызов
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// 4. Шифруем; GCM добавляет authentication tag в конец
	ciphertext := aesGCM.Seal(nil, nonce, plaintext, nil)

	// 5. Формируем результат: salt + nonce + ciphertext
	result := make([]byte, 0, SaltSize+NonceSize+len(ciphertext))
	result = append(result, salt...)
	result = append(result, nonce...)
	result = append(result, ciphertext...)

	return result, nil
}

// Decrypt дешифрует снимок сессии, зашифрованный Encrypt.
// Любое несовпадение authentication tag (порча, подмена, чужой пароль)
// возвращает ErrIntegrity.
func Decrypt(blob []byte, password string, params Params) ([]byte, error) {
	if password == "" {
		return nil, fmt.Errorf("password cannot be empty")
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	if len(blob) < SaltSize+NonceSize {
		return nil, fmt.Errorf("blob too short to contain salt and nonce: %w", ErrIntegrity)
	}

	salt := blob[:SaltSize]
	nonce := blob[SaltSize : SaltSize+NonceSize]
	ciphertext := blob[SaltSize+NonceSize:]

	// Ключ деривируется из соли, встроенной в blob
	key := deriveKey(password, salt, params)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session blob: %w", ErrIntegrity)
	}

	return plaintext, nil
}
