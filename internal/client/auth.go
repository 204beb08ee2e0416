package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/ribelo/degiro-go/internal/models"
	"github.com/ribelo/degiro-go/internal/session"
	"github.com/ribelo/degiro-go/internal/transport"
	"github.com/ribelo/degiro-go/pkg/api"
)

// ErrSecondFactorRequired - логин остановился на втором факторе: TOTP secret
// не сконфигурирован, код нужно передать через SubmitSecondFactor.
var ErrSecondFactorRequired = errors.New("second factor required")

// AuthError - фатальная ошибка аутентификации: неверные учетные данные,
// отклоненный второй фактор, провал re-auth. Не ретраится.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// EnsureLevel доводит сессию до требуемого уровня аутентификации.
// Уровень уже достаточен - no-op. Expired или Unauthenticated - логин через
// single-flight: конкурентные вызыватели ждут один общий сетевой логин и
// получают его результат.
func (c *Client) EnsureLevel(ctx context.Context, required session.AuthLevel) error {
	level, err := c.store.Level()
	if err != nil {
		return err
	}
	if level.Satisfies(required) {
		return nil
	}

	if level == session.LevelAwaitingSecondFactor {
		return &AuthError{Op: "ensure_auth", Err: ErrSecondFactorRequired}
	}

	return c.authenticate(ctx, false)
}

// HandleUnauthorized вызывается транспортом при 401: сессия помечается
// Expired и выполняется ровно один single-flight re-auth.
func (c *Client) HandleUnauthorized(ctx context.Context) error {
	if err := c.store.SetLevel(session.LevelExpired); err != nil {
		var invalid *session.InvalidTransitionError
		if !errors.As(err, &invalid) {
			return err
		}
		// Сессия уже не Authenticated: кто-то успел пометить или сбросить
	}
	c.logger.Info("session marked expired, re-authenticating")
	return c.authenticate(ctx, false)
}

// Login выполняет полный цикл логина. Обычно вызывать его явно не нужно:
// EnsureLevel делает это лениво при первом запросе.
func (c *Client) Login(ctx context.Context) error {
	return c.authenticate(ctx, true)
}

// authenticate коалесцирует конкурентные логины в один сетевой вызов.
// Отмена контекста инициатора не прерывает сам логин: его результата
// ждут остальные вызыватели. force пропускает перепроверку уровня внутри
// flight (явный Login всегда логинится заново).
func (c *Client) authenticate(ctx context.Context, force bool) error {
	ch := c.loginFlight.DoChan("login", func() (any, error) {
		if !force {
			// Перепроверяем уровень уже внутри критической секции:
			// вызыватель мог застать Expired до того, как чужой re-auth
			// успел завершиться и ключ flight был забыт
			level, err := c.store.Level()
			if err != nil {
				return nil, err
			}
			if level.Satisfies(session.LevelAuthenticated) {
				return nil, nil
			}
		}
		return nil, c.login(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// login - один проход state machine: password -> (TOTP) -> session token ->
// account config -> client info -> currency rates. Любой провал приводит
// состояние к Unauthenticated и возвращает AuthError.
func (c *Client) login(ctx context.Context) error {
	c.logger.Info("logging in", "username", c.creds.Username)

	// 1. Отправляем пароль
	req := transport.Post("login", c.baseURL+loginPath).
		NoAuth().
		WithHeader("Referer", refererURL).
		WithJSON(api.LoginRequest{
			Username: c.creds.Username,
			Password: c.creds.Password,
		})

	var resp api.LoginResponse
	if err := c.exec.Do(ctx, req, &resp); err != nil {
		return c.failLogin(err)
	}

	// 2. Второй фактор, если сервис его запросил
	if resp.Status == api.LoginStatusTOTPNeeded {
		if c.creds.TOTPSecret == "" {
			// Код передают вручную; состояние фиксирует ожидание
			c.awaitSecondFactor()
			return &AuthError{Op: "login", Err: ErrSecondFactorRequired}
		}

		code, err := c.generateTOTP()
		if err != nil {
			return c.failLogin(err)
		}
		resp, err = c.submitTOTP(ctx, code)
		if err != nil {
			return c.failLogin(err)
		}
	}

	if resp.SessionID == "" {
		return c.failLogin(fmt.Errorf("login response carries no session token (status %d: %s)",
			resp.Status, resp.StatusText))
	}

	// 3. Достраиваем сессию до Authenticated
	if err := c.completeLogin(ctx, resp.SessionID); err != nil {
		return c.failLogin(err)
	}

	c.logger.Info("login complete")
	return nil
}

// SubmitSecondFactor завершает логин вручную переданным TOTP кодом.
// Допустим только из состояния AwaitingSecondFactor.
func (c *Client) SubmitSecondFactor(ctx context.Context, code string) error {
	level, err := c.store.Level()
	if err != nil {
		return err
	}
	if level != session.LevelAwaitingSecondFactor {
		return &AuthError{Op: "submit_second_factor",
			Err: fmt.Errorf("no login awaiting second factor (state %s)", level)}
	}

	resp, err := c.submitTOTP(ctx, code)
	if err != nil {
		return c.failLogin(err)
	}
	if resp.SessionID == "" {
		return c.failLogin(fmt.Errorf("second factor accepted but no session token returned"))
	}
	if err := c.completeLogin(ctx, resp.SessionID); err != nil {
		return c.failLogin(err)
	}
	return nil
}

// submitTOTP отправляет одноразовый код на totp endpoint
func (c *Client) submitTOTP(ctx context.Context, code string) (api.LoginResponse, error) {
	req := transport.Post("login_totp", c.baseURL+totpPath).
		NoAuth().
		WithHeader("Referer", refererURL).
		WithJSON(api.TOTPLoginRequest{
			Username:        c.creds.Username,
			Password:        c.creds.Password,
			OneTimePassword: code,
		})

	var resp api.LoginResponse
	if err := c.exec.Do(ctx, req, &resp); err != nil {
		return api.LoginResponse{}, err
	}
	return resp, nil
}

// completeLogin выполняет post-login последовательность и атомарно заменяет
// всю пару (AuthLevel, SessionData)
func (c *Client) completeLogin(ctx context.Context, sessionID string) error {
	// Конфигурация аккаунта: один раз за сессию
	cfg, err := c.fetchAccountConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch account config: %w", err)
	}

	info, err := c.fetchClientInfo(ctx, cfg.PaURL, sessionID)
	if err != nil {
		return fmt.Errorf("failed to fetch client info: %w", err)
	}

	rates, err := c.fetchRates(ctx, cfg, sessionID, info.IntAccount, info.BaseCurrency)
	if err != nil {
		return fmt.Errorf("failed to fetch currency rates: %w", err)
	}

	state := session.State{
		Level: session.LevelAuthenticated,
		Data: session.Data{
			SessionID:     sessionID,
			ClientID:      cfg.ClientID,
			IntAccount:    info.IntAccount,
			AccountConfig: cfg,
			Rates:         rates,
			IssuedAt:      time.Now(),
		},
	}
	if err := c.store.Replace(state); err != nil {
		return err
	}

	c.saveSession()
	return nil
}

// failLogin сбрасывает состояние в Unauthenticated и оборачивает причину
// в AuthError. Все ждущие single-flight вызыватели получат эту же ошибку.
func (c *Client) failLogin(cause error) error {
	if err := c.store.SetLevel(session.LevelUnauthenticated); err != nil {
		c.logger.Error("failed to reset auth state after login failure", "error", err)
	}
	var authErr *AuthError
	if errors.As(cause, &authErr) {
		return cause
	}
	return &AuthError{Op: "login", Err: cause}
}

// awaitSecondFactor переводит состояние в AwaitingSecondFactor.
// Из Expired сначала опускаемся в Unauthenticated: провал re-auth.
func (c *Client) awaitSecondFactor() {
	if err := c.store.SetLevel(session.LevelAwaitingSecondFactor); err == nil {
		return
	}
	if err := c.store.SetLevel(session.LevelUnauthenticated); err != nil {
		c.logger.Error("failed to reset auth state", "error", err)
		return
	}
	if err := c.store.SetLevel(session.LevelAwaitingSecondFactor); err != nil {
		c.logger.Error("failed to enter awaiting-second-factor state", "error", err)
	}
}

// generateTOTP генерирует одноразовый код из сконфигурированного секрета
func (c *Client) generateTOTP() (string, error) {
	secret := strings.ToUpper(strings.ReplaceAll(c.creds.TOTPSecret, " ", ""))
	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		return "", fmt.Errorf("invalid TOTP secret: %w", err)
	}
	return code, nil
}

// Logout сбрасывает сессию и удаляет сохраненный снимок.
// Сервис инвалидирует session token по своему таймауту; отдельного
// logout endpoint-а у протокола нет.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.store.Clear(); err != nil {
		return err
	}
	if err := c.files.Delete(c.creds.Username); err != nil {
		return err
	}
	c.logger.Info("logged out")
	return nil
}

// fetchAccountConfig загружает конфигурацию аккаунта.
// Session cookie уже в jar после логина.
func (c *Client) fetchAccountConfig(ctx context.Context) (*models.AccountConfig, error) {
	req := transport.Get("account_config", c.baseURL+configPath).
		NoAuth().
		WithHeader("Referer", refererURL)

	var wrapper struct {
		Data models.AccountConfig `json:"data"`
	}
	if err := c.exec.Do(ctx, req, &wrapper); err != nil {
		return nil, err
	}
	return &wrapper.Data, nil
}
