// Package session owns the single source of truth for auth state and session
// data. All reads return immutable snapshots, all writes go through one gate.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ribelo/degiro-go/internal/models"
)

// AuthLevel описывает состояние аутентификации сессии.
// В каждый момент времени активно ровно одно значение.
type AuthLevel int

const (
	// LevelUnauthenticated - нет активной сессии
	LevelUnauthenticated AuthLevel = iota
	// LevelAwaitingSecondFactor - пароль принят, сервис ждет TOTP код
	LevelAwaitingSecondFactor
	// LevelAuthenticated - полная сессия с session token и конфигурацией аккаунта
	LevelAuthenticated
	// LevelExpired - сервис ответил 401, сессия требует повторного логина
	LevelExpired
)

func (l AuthLevel) String() string {
	switch l {
	case LevelUnauthenticated:
		return "unauthenticated"
	case LevelAwaitingSecondFactor:
		return "awaiting_second_factor"
	case LevelAuthenticated:
		return "authenticated"
	case LevelExpired:
		return "expired"
	default:
		return fmt.Sprintf("auth_level(%d)", int(l))
	}
}

// Satisfies reports whether the current level covers the level a request
// requires. Expired satisfies nothing above Unauthenticated: the caller has
// to go through re-authentication first.
func (l AuthLevel) Satisfies(required AuthLevel) bool {
	switch required {
	case LevelUnauthenticated:
		return true
	case LevelAwaitingSecondFactor:
		return l == LevelAwaitingSecondFactor || l == LevelAuthenticated
	case LevelAuthenticated:
		return l == LevelAuthenticated
	default:
		return false
	}
}

// CanTransitionTo проверяет допустимость перехода между состояниями.
// Разрешенные переходы:
//
//	Unauthenticated  -> AwaitingSecondFactor | Authenticated  (login)
//	AwaitingSecondFactor -> Authenticated                     (second factor)
//	Authenticated    -> Expired                               (401 от сервиса)
//	Expired          -> Authenticated | Unauthenticated       (re-auth / его провал)
//	любое состояние  -> Unauthenticated                       (logout)
func (l AuthLevel) CanTransitionTo(target AuthLevel) bool {
	if target == LevelUnauthenticated || target == l {
		return true
	}
	switch l {
	case LevelUnauthenticated:
		return target == LevelAwaitingSecondFactor || target == LevelAuthenticated
	case LevelAwaitingSecondFactor:
		return target == LevelAuthenticated
	case LevelAuthenticated:
		return target == LevelExpired
	case LevelExpired:
		return target == LevelAuthenticated
	default:
		return false
	}
}

// Data — данные сессии. Все поля заменяются вместе: читатель никогда
// не увидит token в паре с чужим account identifier.
type Data struct {
	// SessionID - opaque session token от сервиса
	SessionID string
	// ClientID - идентификатор клиента из конфигурации аккаунта
	ClientID int
	// IntAccount - идентификатор, которым namespace-ятся торговые запросы
	IntAccount int
	// AccountConfig - конфигурация аккаунта, загружается один раз за сессию
	AccountConfig *models.AccountConfig
	// Rates - таблица валютных курсов "FROM/TO" -> курс
	Rates map[string]decimal.Decimal
	// IssuedAt - момент создания сессии
	IssuedAt time.Time
}

// State is the single (AuthLevel, Data) pair the store guards.
type State struct {
	Level AuthLevel
	Data  Data
}

// clone возвращает глубокую копию состояния
func (st State) clone() State {
	out := st
	if st.Data.AccountConfig != nil {
		cfg := *st.Data.AccountConfig
		out.Data.AccountConfig = &cfg
	}
	if st.Data.Rates != nil {
		rates := make(map[string]decimal.Decimal, len(st.Data.Rates))
		for k, v := range st.Data.Rates {
			rates[k] = v
		}
		out.Data.Rates = rates
	}
	return out
}

var (
	// ErrCorrupted indicates that an update panicked while holding the store
	// gate. The store refuses all further access; the client must be rebuilt.
	ErrCorrupted = errors.New("session store corrupted by failed update")
)

// InvalidTransitionError is returned by SetLevel for transitions the auth
// state machine does not allow.
type InvalidTransitionError struct {
	From AuthLevel
	To   AuthLevel
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid auth transition %s -> %s", e.From, e.To)
}

// Store exclusively owns one (AuthLevel, Data) pair. Reads hand out deep
// copies, updates replace state atomically under a single mutex. A panic
// inside an update poisons the store permanently instead of silently serving
// a half-applied value.
type Store struct {
	mu        sync.Mutex
	corrupted bool
	state     State
}

// New создает пустой store в состоянии Unauthenticated
func New() *Store {
	return &Store{}
}

// Snapshot returns an immutable copy of the current state. Mutating the
// returned value has no effect on the store.
func (s *Store) Snapshot() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.corrupted {
		return State{}, ErrCorrupted
	}
	return s.state.clone(), nil
}

// Level возвращает текущий уровень аутентификации
func (s *Store) Level() (AuthLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.corrupted {
		return LevelUnauthenticated, ErrCorrupted
	}
	return s.state.Level, nil
}

// Update applies fn to the state under the gate. If fn panics the store is
// marked corrupted before the panic is re-raised; every subsequent access
// then fails with ErrCorrupted. Deliberately no recover-and-continue.
func (s *Store) Update(fn func(*State)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.corrupted {
		return ErrCorrupted
	}
	defer func() {
		if r := recover(); r != nil {
			s.corrupted = true
			panic(r)
		}
	}()
	fn(&s.state)
	return nil
}

// Replace заменяет всю пару (AuthLevel, Data) атомарно
func (s *Store) Replace(st State) error {
	return s.Update(func(cur *State) {
		*cur = st.clone()
	})
}

// SetLevel performs a validated auth state transition.
func (s *Store) SetLevel(target AuthLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.corrupted {
		return ErrCorrupted
	}
	if !s.state.Level.CanTransitionTo(target) {
		return &InvalidTransitionError{From: s.state.Level, To: target}
	}
	s.state.Level = target
	return nil
}

// SetRates заменяет таблицу валютных курсов под тем же gate.
// Таблица копируется: у вызывателя не остается ссылки внутрь store.
func (s *Store) SetRates(rates map[string]decimal.Decimal) error {
	return s.Update(func(st *State) {
		if rates == nil {
			st.Data.Rates = nil
			return
		}
		cp := make(map[string]decimal.Decimal, len(rates))
		for k, v := range rates {
			cp[k] = v
		}
		st.Data.Rates = cp
	})
}

// Clear сбрасывает store в исходное состояние (logout)
func (s *Store) Clear() error {
	return s.Update(func(st *State) {
		*st = State{}
	})
}
