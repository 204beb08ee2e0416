// Package client ties the session store, auth state machine and transport
// pipeline together into the brokerage client facade.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/ribelo/degiro-go/internal/crypto"
	"github.com/ribelo/degiro-go/internal/models"
	"github.com/ribelo/degiro-go/internal/profilecache"
	"github.com/ribelo/degiro-go/internal/session"
	"github.com/ribelo/degiro-go/internal/sessionfile"
	"github.com/ribelo/degiro-go/internal/transport"
)

const (
	// DefaultBaseURL - базовый URL сервиса
	DefaultBaseURL = "https://trader.degiro.nl/"

	loginPath  = "login/secure/login"
	totpPath   = "login/secure/login/totp"
	configPath = "login/secure/config"

	// refererURL отправляется с каждым запросом; сервис это требует
	refererURL = "https://trader.degiro.nl/trader"

	// defaultMaxSessionAge - возраст, после которого сохраненный снимок
	// считается протухшим и не восстанавливается
	defaultMaxSessionAge = 24 * time.Hour
)

// Credentials - учетные данные аккаунта. TOTPSecret опционален: без него
// логин останавливается на AwaitingSecondFactor и код передается вручную
// через SubmitSecondFactor.
type Credentials struct {
	Username   string
	Password   string
	TOTPSecret string
}

// Config - конфигурация клиента. Нулевые поля получают значения по умолчанию.
type Config struct {
	Credentials Credentials
	BaseURL     string
	HTTPClient  *http.Client

	// RequestsPerSecond и Burst настраивают admission control
	RequestsPerSecond float64
	Burst             int

	// Retry - политика ретраев транспортного уровня
	Retry transport.RetryPolicy

	// KDF - work factor Argon2id для шифрования снимков
	KDF crypto.Params

	// PersistSession включает сохранение снимка сессии на диск
	PersistSession bool
	// SnapshotDir - каталог снимков; пустое значение - каталог по умолчанию
	SnapshotDir string

	// MaxSessionAge - максимальный возраст восстанавливаемого снимка
	MaxSessionAge time.Duration

	// ProfileCache - опциональный кэш известных сбойных продуктов
	ProfileCache *profilecache.Cache

	Logger *slog.Logger
}

// Client - фасад: хранит сессию, выполняет аутентификацию и предоставляет
// транспортный конвейер endpoint-слою.
type Client struct {
	id      string
	creds   Credentials
	baseURL string

	store    *session.Store
	exec     *transport.Executor
	files    *sessionfile.Store
	persist  bool
	maxAge   time.Duration
	profiles *profilecache.Cache
	logger   *slog.Logger

	// loginFlight коалесцирует конкурентные логины/re-auth в один сетевой вызов
	loginFlight singleflight.Group
}

// New создает клиента. Если включена персистентность, пытается восстановить
// сохраненную сессию; порченый снимок удаляется, клиент остается
// Unauthenticated.
func New(cfg Config) (*Client, error) {
	if cfg.Credentials.Username == "" || cfg.Credentials.Password == "" {
		return nil, fmt.Errorf("username and password are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.KDF == (crypto.Params{}) {
		cfg.KDF = crypto.DefaultParams()
	}
	if cfg.MaxSessionAge == 0 {
		cfg.MaxSessionAge = defaultMaxSessionAge
	}
	if cfg.HTTPClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		cfg.HTTPClient = &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		}
	}

	snapshotDir := cfg.SnapshotDir
	if cfg.PersistSession && snapshotDir == "" {
		dir, err := sessionfile.DefaultDir()
		if err != nil {
			return nil, err
		}
		snapshotDir = dir
	}

	c := &Client{
		id:       uuid.New().String(),
		creds:    cfg.Credentials,
		baseURL:  cfg.BaseURL,
		store:    session.New(),
		persist:  cfg.PersistSession,
		maxAge:   cfg.MaxSessionAge,
		profiles: cfg.ProfileCache,
	}
	c.logger = cfg.Logger.With("client_id", c.id)
	c.files = sessionfile.New(snapshotDir, cfg.KDF)

	c.exec = transport.NewExecutor(transport.Config{
		HTTPClient: cfg.HTTPClient,
		Auth:       c,
		Limiter:    transport.NewLimiter(cfg.RequestsPerSecond, cfg.Burst),
		Retry:      cfg.Retry,
		Logger:     c.logger,
	})

	if c.persist {
		c.restoreSession()
	}

	return c, nil
}

// Do выполняет запрос через транспортный конвейер. Endpoint-слой строит
// transport.Request и декодирует typed-результаты сам.
func (c *Client) Do(ctx context.Context, req *transport.Request, out any) error {
	return c.exec.Do(ctx, req, out)
}

// Snapshot возвращает копию текущего состояния сессии
func (c *Client) Snapshot() (session.State, error) {
	return c.store.Snapshot()
}

// AuthLevel возвращает текущий уровень аутентификации
func (c *Client) AuthLevel() (session.AuthLevel, error) {
	return c.store.Level()
}

// Rate возвращает кэшированный курс конвертации
func (c *Client) Rate(from, to models.Currency) (decimal.Decimal, error) {
	return c.store.Rate(from, to)
}

// Convert конвертирует сумму по кэшированному курсу
func (c *Client) Convert(m models.Money, to models.Currency) (models.Money, error) {
	return c.store.Convert(m, to)
}

// ProfileCache возвращает кэш сбойных продуктов (может быть nil)
func (c *Client) ProfileCache() *profilecache.Cache {
	return c.profiles
}

// restoreSession восстанавливает сохраненный снимок.
// Ошибки не фатальны: клиент просто остается Unauthenticated.
func (c *Client) restoreSession() {
	state, err := c.files.Load(c.creds.Username, c.creds.Password)
	if err != nil {
		if err == sessionfile.ErrNoSession {
			c.logger.Debug("no persisted session found")
			return
		}
		// Порченый или чужой снимок: удаляем и начинаем с чистого листа
		c.logger.Warn("discarding unreadable session snapshot", "error", err)
		if delErr := c.files.Delete(c.creds.Username); delErr != nil {
			c.logger.Warn("failed to delete session snapshot", "error", delErr)
		}
		return
	}

	if state.Level != session.LevelAuthenticated ||
		time.Since(state.Data.IssuedAt) > c.maxAge {
		c.logger.Debug("persisted session is stale, ignoring")
		if err := c.files.Delete(c.creds.Username); err != nil {
			c.logger.Warn("failed to delete stale session snapshot", "error", err)
		}
		return
	}

	if err := c.store.Replace(state); err != nil {
		c.logger.Warn("failed to restore session state", "error", err)
		return
	}
	c.logger.Info("session restored from snapshot",
		"int_account", state.Data.IntAccount)
}

// saveSession сохраняет текущее состояние, если персистентность включена
func (c *Client) saveSession() {
	if !c.persist {
		return
	}
	state, err := c.store.Snapshot()
	if err != nil {
		c.logger.Warn("failed to snapshot session for save", "error", err)
		return
	}
	if err := c.files.Save(state, c.creds.Username, c.creds.Password); err != nil {
		c.logger.Warn("failed to save session snapshot", "error", err)
		return
	}
	c.logger.Debug("session snapshot saved")
}
