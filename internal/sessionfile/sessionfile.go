// Package sessionfile persists encrypted session snapshots on disk. One file
// per account identity, owner-only permissions, writes serialized through a
// single mutex so concurrent saves never interleave.
package sessionfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"

	"github.com/ribelo/degiro-go/internal/crypto"
	"github.com/ribelo/degiro-go/internal/session"
)

const (
	dirName  = ".degiro"
	dirPerm  = 0o700
	filePerm = 0o600
)

// ErrNoSession indicates that no persisted snapshot exists for the account.
var ErrNoSession = errors.New("no persisted session")

// Store управляет файлами снимков сессий в одном каталоге
type Store struct {
	mu     sync.Mutex
	dir    string
	params crypto.Params
}

// New создает Store над указанным каталогом.
// Каталог создается при первой записи.
func New(dir string, params crypto.Params) *Store {
	return &Store{dir: dir, params: params}
}

// DefaultDir возвращает каталог снимков по умолчанию: <user config dir>/.degiro
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}
	return filepath.Join(base, dirName), nil
}

// PathFor возвращает путь файла снимка для аккаунта.
// Имя файла содержит хеш username: у каждой identity свой файл.
func (s *Store) PathFor(username string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(username))
	return filepath.Join(s.dir, fmt.Sprintf("session_%x.enc", h.Sum64()))
}

// Save шифрует и записывает снимок сессии.
// Бессмысленные снимки (нет session token) пропускаются без ошибки.
// Запись идет через временный файл и rename, под общим mutex.
func (s *Store) Save(state session.State, username, password string) error {
	if state.Level == session.LevelUnauthenticated || state.Data.SessionID == "" {
		return nil
	}

	// 1. Сериализуем снимок
	plaintext, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}

	// 2. Шифруем
	blob, err := crypto.Encrypt(plaintext, password, s.params)
	if err != nil {
		return fmt.Errorf("failed to encrypt session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 3. Создаем каталог с правами только для владельца
	if err := os.MkdirAll(s.dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	// 4. Пишем атомарно: tmp file + rename
	path := s.PathFor(username)
	tmp, err := os.CreateTemp(s.dir, "session_*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set session file permissions: %w", err)
	}
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close session file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	return nil
}

// Load читает и расшифровывает снимок сессии.
// Отсутствие файла - ErrNoSession. Порченый blob возвращает crypto.ErrIntegrity,
// caller должен удалить файл и начать новый логин.
func (s *Store) Load(username, password string) (session.State, error) {
	s.mu.Lock()
	blob, err := os.ReadFile(s.PathFor(username))
	s.mu.Unlock()
	if err != nil {
		if os.IsNotExist(err) {
			return session.State{}, ErrNoSession
		}
		return session.State{}, fmt.Errorf("failed to read session file: %w", err)
	}

	plaintext, err := crypto.Decrypt(blob, password, s.params)
	if err != nil {
		return session.State{}, err
	}

	var state session.State
	if err := json.Unmarshal(plaintext, &state); err != nil {
		return session.State{}, fmt.Errorf("failed to deserialize session: %w", err)
	}

	return state, nil
}

// Delete удаляет снимок сессии аккаунта (logout).
// Отсутствие файла ошибкой не считается.
func (s *Store) Delete(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.PathFor(username))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
