// Package transport implements the rate-limited, retrying request pipeline
// between endpoint code and the brokerage REST service.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ribelo/degiro-go/internal/session"
)

// Authenticator поднимает уровень аутентификации сессии перед запросом
// и обрабатывает 401 от сервиса.
type Authenticator interface {
	// EnsureLevel доводит сессию до требуемого уровня. Конкурентные вызовы
	// при одном и том же Expired состоянии коалесцируются в один логин.
	EnsureLevel(ctx context.Context, required session.AuthLevel) error

	// HandleUnauthorized помечает сессию как Expired и выполняет ровно один
	// re-auth. Вызывается executor-ом при 401.
	HandleUnauthorized(ctx context.Context) error
}

// Config - параметры Executor. Нулевые поля заменяются значениями по умолчанию.
type Config struct {
	HTTPClient *http.Client
	Auth       Authenticator
	Limiter    *Limiter
	Retry      RetryPolicy
	Logger     *slog.Logger
}

// Executor - конвейер запросов: auth level -> rate limit -> send c ретраями ->
// классификация исхода -> декодирование ответа.
type Executor struct {
	httpClient *http.Client
	auth       Authenticator
	limiter    *Limiter
	retry      RetryPolicy
	logger     *slog.Logger

	// sleep подменяется в тестах для проверки backoff-задержек
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor создает новый Executor
func NewExecutor(cfg Config) *Executor {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewLimiter(DefaultRequestsPerSecond, DefaultBurst)
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{
		httpClient: cfg.HTTPClient,
		auth:       cfg.Auth,
		limiter:    cfg.Limiter,
		retry:      cfg.Retry,
		logger:     cfg.Logger,
		sleep:      sleepCtx,
	}
}

// Do выполняет запрос и декодирует JSON ответ в out (если out != nil).
//
// Порядок конвейера:
//  1. ensure auth level - вне retry-цикла, повтором состояние auth не меняется
//  2. admission через rate limiter (внутри каждой попытки)
//  3. отправка с retry policy: сетевые сбои до отправки и 5xx/429 ретраятся,
//     429 ждет max(backoff, Retry-After)
//  4. 401 - ровно один re-auth и ровно один повтор запроса вне retry-цикла
//  5. успех - декодирование; ошибка декодирования - DataError, без ретраев
func (e *Executor) Do(ctx context.Context, req *Request, out any) error {
	body, err := e.DoBytes(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &DataError{Op: req.Op, Path: req.URL, Err: err}
	}
	return nil
}

// DoBytes выполняет запрос и возвращает сырое тело ответа
func (e *Executor) DoBytes(ctx context.Context, req *Request) ([]byte, error) {
	// 1. Поднимаем уровень аутентификации. Этот шаг не ретраится.
	if req.RequiredAuth != session.LevelUnauthenticated && e.auth != nil {
		if err := e.auth.EnsureLevel(ctx, req.RequiredAuth); err != nil {
			return nil, err
		}
	}

	body, err := e.sendWithRetry(ctx, req)

	// 401 обрабатывается вне retry-цикла: один re-auth, один повтор
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusUnauthorized &&
		req.RequiredAuth != session.LevelUnauthenticated && e.auth != nil {
		e.logger.Warn("session expired, re-authenticating",
			"op", req.Op, "url", req.URL)
		if authErr := e.auth.HandleUnauthorized(ctx); authErr != nil {
			return nil, authErr
		}
		body, err = e.attempt(ctx, req)
		if err != nil {
			var again *StatusError
			if errors.As(err, &again) && again.Code == http.StatusUnauthorized {
				return nil, fmt.Errorf("%s: %w even after re-authentication", req.Op, ErrSessionExpired)
			}
			return nil, withAttempts(err, 1)
		}
		return body, nil
	}

	return body, err
}

// sendWithRetry гоняет attempt под retry policy
func (e *Executor) sendWithRetry(ctx context.Context, req *Request) ([]byte, error) {
	bo := e.retry.newBackoff()

	var attempts int
	for {
		attempts++
		body, err := e.attempt(ctx, req)
		if err == nil {
			return body, nil
		}

		retryable, retryAfter := e.classify(err, req)
		if !retryable || attempts >= e.retry.MaxAttempts {
			return nil, withAttempts(err, attempts)
		}

		// Одна задержка на попытку: max(backoff, Retry-After), никогда
		// не спим дважды за один и тот же 429
		delay := bo.NextBackOff()
		if retryAfter > delay {
			delay = retryAfter
		}
		e.logger.Debug("retrying request",
			"op", req.Op, "attempt", attempts, "delay", delay, "cause", err)
		if err := e.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// attempt выполняет одну попытку: admission, отправка, классификация статуса
func (e *Executor) attempt(ctx context.Context, req *Request) ([]byte, error) {
	var bodyReader io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, &DataError{Op: req.Op, Path: req.URL, Err: fmt.Errorf("failed to marshal request body: %w", err)}
		}
		bodyReader = bytes.NewReader(data)
	}

	// 2. Один admission-токен на попытку; при сбое отправки не возвращается
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.fullURL(), bodyReader)
	if err != nil {
		return nil, &DataError{Op: req.Op, Path: req.URL, Err: fmt.Errorf("failed to build request: %w", err)}
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Op: req.Op, URL: req.URL, Attempts: 1, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: req.Op, URL: req.URL, Attempts: 1, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			Op:         req.Op,
			Path:       req.URL,
			Code:       resp.StatusCode,
			Body:       truncateBody(respBody),
			Attempts:   1,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	return respBody, nil
}

// classify решает, ретраить ли исход попытки
func (e *Executor) classify(err error, req *Request) (bool, time.Duration) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.retryable(), statusErr.RetryAfter
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		if req.Mutating {
			// Неоднозначный исход state-changing запроса не ретраим:
			// запрос мог дойти до сервиса
			return netErr.preSend(), 0
		}
		return true, 0
	}

	return false, 0
}

// parseRetryAfter понимает секунды и HTTP-date форматы заголовка
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func truncateBody(b []byte) string {
	const maxLen = 512
	if len(b) > maxLen {
		return string(b[:maxLen]) + "..."
	}
	return string(b)
}

// withAttempts проставляет итоговое число попыток в ошибку
func withAttempts(err error, attempts int) error {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		statusErr.Attempts = attempts
		return err
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		netErr.Attempts = attempts
		return err
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
