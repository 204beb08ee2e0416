package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testParams - облегченные параметры Argon2id, чтобы тесты не жгли память
func testParams() Params {
	return Params{
		Time:    1,
		Memory:  64,
		Threads: 1,
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		plaintext []byte
		password  string
	}{
		{
			name:      "simple session json",
			plaintext: []byte(`{"sessionId":"ABC123","clientId":42}`),
			password:  "correct horse battery staple",
		},
		{
			name:      "single byte",
			plaintext: []byte{0x01},
			password:  "p",
		},
		{
			name:      "binary data",
			plaintext: []byte{0x00, 0xff, 0x10, 0x20, 0x00, 0x00},
			password:  "пароль",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := Encrypt(tt.plaintext, tt.password, testParams())
			require.NoError(t, err)
			require.GreaterOrEqual(t, len(blob), SaltSize+NonceSize+len(tt.plaintext))

			decrypted, err := Decrypt(blob, tt.password, testParams())
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, decrypted)
		})
	}
}

func TestEncrypt_FreshSaltAndNonce(t *testing.T) {
	plaintext := []byte("same plaintext twice")

	first, err := Encrypt(plaintext, "password", testParams())
	require.NoError(t, err)
	second, err := Encrypt(plaintext, "password", testParams())
	require.NoError(t, err)

	// Соль и nonce обязаны отличаться между вызовами
	assert.NotEqual(t, first[:SaltSize], second[:SaltSize])
	assert.NotEqual(t, first[SaltSize:SaltSize+NonceSize], second[SaltSize:SaltSize+NonceSize])
	assert.NotEqual(t, first, second)
}

func TestDecrypt_Tampered(t *testing.T) {
	blob, err := Encrypt([]byte(`{"sessionId":"ABC123"}`), "password", testParams())
	require.NoError(t, err)

	// Переворачиваем по одному биту в каждой секции blob'а:
	// соль, nonce, ciphertext и auth tag
	offsets := []struct {
		name string
		pos  int
	}{
		{"salt", 0},
		{"nonce", SaltSize},
		{"ciphertext", SaltSize + NonceSize},
		{"auth tag", len(blob) - 1},
	}

	for _, tt := range offsets {
		t.Run(tt.name, func(t *testing.T) {
			tampered := make([]byte, len(blob))
			copy(tampered, blob)
			tampered[tt.pos] ^= 0x01

			_, err := Decrypt(tampered, "password", testParams())
			assert.ErrorIs(t, err, ErrIntegrity)
		})
	}
}

func TestDecrypt_WrongPassword(t *testing.T) {
	blob, err := Encrypt([]byte("secret session"), "password", testParams())
	require.NoError(t, err)

	_, err = Decrypt(blob, "wrong password", testParams())
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestDecrypt_Truncated(t *testing.T) {
	blob, err := Encrypt([]byte("secret session"), "password", testParams())
	require.NoError(t, err)

	tests := []struct {
		name string
		blob []byte
	}{
		{"empty", nil},
		{"salt only", blob[:SaltSize]},
		{"salt and nonce only", blob[:SaltSize+NonceSize]},
		{"missing tag", blob[:len(blob)-8]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decrypt(tt.blob, "password", testParams())
			assert.ErrorIs(t, err, ErrIntegrity)
		})
	}
}

func TestEncrypt_Validation(t *testing.T) {
	tests := []struct {
		name      string
		plaintext []byte
		password  string
		params    Params
	}{
		{"empty plaintext", nil, "password", testParams()},
		{"empty password", []byte("data"), "", testParams()},
		{"zero params", []byte("data"), "password", Params{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encrypt(tt.plaintext, tt.password, tt.params)
			assert.Error(t, err)
		})
	}
}
